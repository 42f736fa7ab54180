package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/devblok/texstream/cache"
	"github.com/devblok/texstream/core"
	"github.com/devblok/texstream/dds"
	"github.com/devblok/texstream/pixel"
	"github.com/devblok/texstream/vfs"
	log "github.com/sirupsen/logrus"
)

var (
	sourceDir = flag.String("dir", ".", "Directory the files are read from")
	reduction = flag.Int("reduction", 0, "Top levels to skip")
	dropSmall = flag.Bool("drop", false, "Drop the two smallest levels")
	cachePath = flag.String("cache", "", "Describe the records of this content cache instead")
	compress  = flag.String("compressor", "lz4", "Compressor of the content cache")
	indent    = flag.Bool("indent", true, "Indent the output")
)

// Level is one retained mip level.
type Level struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	Depth  int `json:"depth"`
	Offset int `json:"offset"`
	Size   int `json:"size"`
}

// Info describes one DDS file.
type Info struct {
	Name       string       `json:"name"`
	Format     pixel.Format `json:"format"`
	Kind       string       `json:"kind"`
	Width      int          `json:"width"`
	Height     int          `json:"height"`
	HeaderMips int          `json:"headerMips"`
	Reduction  int          `json:"reduction"`
	Levels     []Level      `json:"levels"`
	Error      string       `json:"error,omitempty"`
}

func describe(fsys vfs.FileSystem, name string, policy dds.Policy) Info {
	img, err := dds.Open(fsys, name, *reduction, policy)
	if err != nil {
		return Info{Name: name, Error: err.Error()}
	}
	info := Info{
		Name:       name,
		Format:     img.Format(),
		Kind:       img.Kind().String(),
		Width:      img.FullWidth(),
		Height:     img.FullHeight(),
		HeaderMips: img.HeaderMipLevels(),
		Reduction:  img.Reduction(),
	}
	table := img.Levels()
	for level := 0; level < img.MipLevels(); level++ {
		l := table[img.Reduction()+level]
		info.Levels = append(info.Levels, Level{
			Width:  img.Width(level),
			Height: img.Height(level),
			Depth:  img.Depth(level),
			Offset: l.Offset,
			Size:   l.Size,
		})
	}
	return info
}

func describeCache(fsys vfs.FileSystem, names []string) ([]interface{}, error) {
	c, err := cache.New(core.CacheConfiguration{Path: *cachePath, Compressor: *compress}, fsys)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	var out []interface{}
	for _, name := range names {
		info, err := c.Info(name)
		if err != nil {
			out = append(out, map[string]string{"name": name, "error": err.Error()})
			continue
		}
		out = append(out, info)
	}
	return out, nil
}

func main() {
	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: texinfo [flags] file...")
		flag.PrintDefaults()
		os.Exit(2)
	}
	fsys := vfs.NewOS(*sourceDir)

	var out []interface{}
	if *cachePath != "" {
		var err error
		if out, err = describeCache(fsys, flag.Args()); err != nil {
			log.Fatal(err)
		}
	} else {
		policy := dds.KeepAll
		if *dropSmall {
			policy = dds.DropTwoSmallest
		}
		for _, name := range flag.Args() {
			out = append(out, describe(fsys, name, policy))
		}
	}

	var (
		data []byte
		err  error
	)
	if *indent {
		data, err = json.MarshalIndent(out, "", "  ")
	} else {
		data, err = json.Marshal(out)
	}
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%s\n", data)
}
