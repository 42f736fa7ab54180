package main

import (
	"bufio"
	"flag"
	"image"
	"image/png"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/devblok/texstream/cache"
	"github.com/devblok/texstream/core"
	"github.com/devblok/texstream/dds"
	"github.com/devblok/texstream/pixel"
	"github.com/devblok/texstream/targa"
	"github.com/devblok/texstream/utility/kar"
	"github.com/devblok/texstream/utility/tagblock"
	"github.com/devblok/texstream/vfs"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

func userName() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return "unknown"
}

var (
	currentUserName = userName()

	format    = flag.String("format", "dxt5", "Block format to encode with: dxt1, dxt3 or dxt5")
	mips      = flag.Int("mips", 0, "Number of mip levels to write, 0 for the whole chain")
	dstFile   = flag.String("f", "", "Destination file, the source name with a .dds extension by default")
	overwrite = flag.Bool("force", false, "Overwrite the destination file")
	cachePath = flag.String("cache", "", "Also store the uncompressed chain of tga sources in this content cache")
	compress  = flag.String("compressor", "lz4", "Compressor of the content cache")
	pack      = flag.String("pack", "", "Bundle the sources and converted files into this kar archive")
	author    = flag.String("author", currentUserName, "Set the author of the archive")
	silent    = flag.Bool("s", false, "Silent")
)

func main() {
	flag.Parse()
	if *silent {
		log.SetLevel(log.WarnLevel)
	}
	if flag.NArg() == 0 {
		flag.PrintDefaults()
		os.Exit(2)
	}
	if *dstFile != "" && flag.NArg() > 1 {
		log.Fatal("-f takes a single source")
	}

	f, err := pixel.ParseFormat(*format)
	if err != nil || !f.IsCompressed() {
		log.Fatalf("%s is not a block format", *format)
	}

	var builder *kar.Builder
	if *pack != "" {
		builder = kar.NewBuilder(kar.Header{
			Author:      *author,
			DateCreated: time.Now().Unix(),
			Version:     1,
		})
	}

	for _, src := range flag.Args() {
		dst := *dstFile
		if dst == "" {
			dst = strings.TrimSuffix(src, filepath.Ext(src)) + ".dds"
		}
		if err := convert(src, dst, f); err != nil {
			log.WithError(err).WithField("source", src).Fatal("conversion failed")
		}
		log.WithFields(log.Fields{"source": src, "destination": dst}).Info("converted")
		if builder != nil {
			for _, name := range []string{src, dst} {
				if err := addFile(builder, name); err != nil {
					log.WithError(err).Fatal("pack failed")
				}
			}
		}
	}

	if builder != nil {
		if err := writeArchive(builder, *pack); err != nil {
			log.WithError(err).Fatal("pack failed")
		}
		log.WithFields(log.Fields{"archive": *pack, "files": builder.Len()}).Info("packed")
	}
}

func addFile(b *kar.Builder, name string) error {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()
	return b.AddFrom(filepath.ToSlash(filepath.Base(name)), f)
}

func writeArchive(b *kar.Builder, path string) error {
	if _, err := os.Stat(path); err == nil && !*overwrite {
		return errors.Errorf("%s exists, will not overwrite", path)
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := b.WriteTo(out); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// decode reads a TGA or PNG source. PNG goes through png.Decode since the
// tga decoder registers itself without a magic and would claim any file.
func decode(fsys vfs.FileSystem, name string) (image.Image, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".tga":
		img, _, err := targa.Decode(fsys, name)
		return img, err
	case ".png":
		f, err := fsys.Open(name)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return png.Decode(io.NewSectionReader(f, 0, f.Size()))
	}
	return nil, errors.Errorf("%s: unknown source type", name)
}

func convert(src, dst string, f pixel.Format) error {
	if _, err := os.Stat(dst); err == nil && !*overwrite {
		return errors.Errorf("%s exists, will not overwrite", dst)
	}

	dir, name := filepath.Split(src)
	fsys := vfs.NewOS(dir)
	img, err := decode(fsys, name)
	if err != nil {
		return err
	}

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(out)
	if err := dds.Encode(w, img, f, *mips); err != nil {
		out.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	if *cachePath != "" && strings.EqualFold(filepath.Ext(name), ".tga") {
		return prewarm(fsys, name, img)
	}
	return nil
}

// prewarm stores the chain the loader would generate for a tga source.
func prewarm(fsys vfs.FileSystem, name string, img image.Image) error {
	c, err := cache.New(core.CacheConfiguration{
		Path:       *cachePath,
		Compressor: *compress,
	}, fsys)
	if err != nil {
		return err
	}
	defer c.Close()

	b := img.Bounds()
	w, h := core.NextPowerOfTwo(b.Dx()), core.NextPowerOfTwo(b.Dy())
	count := core.MipCount(w, h)
	levels := make([]pixel.Surface, count)
	for i, level := range core.MipChain(img, w, h, count) {
		levels[i] = pixel.NewSurface(pixel.A8R8G8B8, level.Rect.Dx(), level.Rect.Dy())
		if err := pixel.FromImage(levels[i], level, mgl32.Vec3{}); err != nil {
			return err
		}
	}

	src := cache.SourceInfo{Width: b.Dx(), Height: b.Dy(), Format: pixel.A8R8G8B8}
	if h, err := targa.Open(fsys, name); err == nil {
		src.Format = h.Format()
	}
	err = c.Save(name, src, levels)
	if errors.Is(err, tagblock.ErrExists) {
		log.WithField("texture", name).Info("already cached")
		return nil
	}
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"texture": name, "levels": count}).Info("cached")
	return nil
}
