package main

import (
	"flag"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/HugoSmits86/nativewebp"
	"github.com/devblok/texstream/core"
	"github.com/devblok/texstream/device"
	"github.com/devblok/texstream/dxt"
	"github.com/devblok/texstream/loader"
	"github.com/devblok/texstream/pixel"
	"github.com/devblok/texstream/vfs"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var (
	sourceDir  = flag.String("dir", ".", "Directory the textures are read from")
	archive    = flag.String("archive", "", "Kar archive searched after the directory")
	outputDir  = flag.String("out", "", "Directory to dump WebP levels into, nothing is written when empty")
	envFiles   = flag.String("env", "", "Comma separated env files with TEXSTREAM_ settings")
	foreground = flag.Bool("fg", false, "Load on the main goroutine instead of the worker")
	thumbnails = flag.Bool("thumbs", false, "Show thumbnails while the full loads are pending")
	allLevels  = flag.Bool("mips", false, "Dump every mip level, not just the first")
	hue        = flag.Float64("hue", 0, "Hue shift in degrees")
	timeout    = flag.Duration("timeout", 30*time.Second, "Give up waiting after this long")
)

func configuration() (core.Configuration, error) {
	var files []string
	for _, f := range strings.Split(*envFiles, ",") {
		if f = strings.TrimSpace(f); f != "" {
			files = append(files, f)
		}
	}
	return core.LoadConfiguration(files...)
}

func main() {
	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: texview [flags] texture...")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg, err := configuration()
	if err != nil {
		log.Fatal(err)
	}
	if err := core.ConfigureLogging(cfg.Log); err != nil {
		log.Fatal(err)
	}

	var sources vfs.FileSystem = vfs.NewOS(*sourceDir)
	if *archive != "" {
		ar, err := vfs.OpenArchive(*archive)
		if err != nil {
			log.Fatal(err)
		}
		defer ar.Close()
		sources = vfs.Chain(sources, ar)
	}

	dev := device.NewMemory(cfg.Device)
	ctx, err := loader.NewContext(cfg, dev, sources)
	if err != nil {
		log.Fatal(err)
	}
	ctx.Start()

	req := loader.DefaultRequest()
	req.Shift = mgl32.Vec3{float32(*hue), 0, 0}

	var textures []*loader.Texture
	for _, name := range flag.Args() {
		textures = append(textures, loader.NewTexture(name, req))
	}

	if *foreground {
		for _, tex := range textures {
			ctx.RequestForeground(tex)
		}
	} else {
		remote := ctx.Remote()
		go func() {
			for _, tex := range textures {
				if *thumbnails {
					remote.RequestThumbnail(tex)
				}
				remote.RequestBackground(tex)
			}
		}()
	}

	clock := core.NewTime(cfg.Time)
	deadline := time.After(*timeout)
	started := time.Now()
	frames := 0

EventLoop:
	for {
		select {
		case <-deadline:
			log.WithField("timeout", *timeout).Warn("textures not ready")
			break EventLoop
		case <-clock.FpsTicker().C:
			ctx.Update()
			frames++
			if ready(textures) {
				break EventLoop
			}
		}
	}
	clock.Stop()
	log.WithFields(log.Fields{
		"frames":  frames,
		"elapsed": time.Since(started),
	}).Info("event loop exited")

	for _, tex := range textures {
		report(tex)
		if *outputDir != "" {
			if err := dump(tex, *outputDir); err != nil {
				log.WithError(err).WithField("texture", tex.Name()).Error("dump failed")
			}
		}
		tex.Release()
	}

	if err := ctx.Close(); err != nil {
		log.Fatal(err)
	}
	if dev.Live() != 0 {
		log.WithField("live", dev.Live()).Warn("device textures leaked")
	}
}

func ready(textures []*loader.Texture) bool {
	for _, tex := range textures {
		select {
		case <-tex.Ready():
		default:
			return false
		}
	}
	return true
}

func report(tex *loader.Texture) {
	res := tex.Resource()
	if res == nil {
		log.WithField("texture", tex.Name()).Warn("nothing loaded")
		return
	}
	desc := res.Desc()
	log.WithFields(log.Fields{
		"texture":   tex.Name(),
		"kind":      desc.Kind,
		"size":      fmt.Sprintf("%dx%dx%d", desc.Width, desc.Height, desc.Depth),
		"mips":      desc.MipLevels,
		"format":    desc.Format,
		"missing":   tex.IsMissing(),
		"thumbnail": tex.IsThumbnail(),
	}).Info("texture")
}

func toImage(s pixel.Surface) (*image.NRGBA, error) {
	if s.Format.IsCompressed() {
		return dxt.Decode(s)
	}
	return pixel.ToImage(s)
}

// dump writes the first slice of every face as WebP files.
func dump(tex *loader.Texture, dir string) error {
	res := tex.Resource()
	if res == nil {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	desc := res.Desc()
	levels := 1
	if *allLevels {
		levels = desc.MipLevels
	}
	base := strings.TrimSuffix(filepath.Base(tex.Name()), filepath.Ext(tex.Name()))

	for face := 0; face < desc.Kind.Faces(); face++ {
		for level := 0; level < levels; level++ {
			name := filepath.Join(dir, fmt.Sprintf("%s_f%d_l%d.webp", base, face, level))
			err := device.WithLock(res, face, level, func(s pixel.Surface) error {
				img, err := toImage(s)
				if err != nil {
					return err
				}
				return writeWebP(name, img)
			})
			if err != nil {
				return errors.Wrapf(err, "face %d level %d", face, level)
			}
		}
	}
	return nil
}

func writeWebP(name string, img image.Image) error {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	if err := nativewebp.Encode(f, img, nil); err != nil {
		f.Close()
		return errors.Wrap(err, name)
	}
	return f.Close()
}
