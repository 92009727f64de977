package main

import (
	"context"
	"flag"
	"image/png"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tmpim/kabe"
	"github.com/tmpim/kabe/config"
	"github.com/tmpim/kabe/datapack"
	"github.com/tmpim/kabe/report"
)

var (
	outputPath  = flag.String("o", "build_structure.mcfunction", "set location of output script (.mcfunction, or .zip for a datapack)")
	previewPath = flag.String("p", "preview.png", "set location of output preview (will be PNG, empty to disable)")
	size        = flag.Int("s", kabe.DefaultTargetSize, "set the width and height of the wall in blocks")
	depth       = flag.Int("d", kabe.DefaultDepthOffset, "set how many blocks in front of you the wall is built")
	palettePath = flag.String("palette", "", "set a palette file (YAML or JSON) to use instead of the built-in wool palette")
	configPath  = flag.String("config", "", "set a YAML config file, flags take precedence over it")
	matcher     = flag.String("matcher", string(kabe.MatcherTree), "set the color matcher (tree or linear)")
	stats       = flag.Bool("stats", false, "print block usage and color error statistics")
)

func main() {
	flag.Parse()
	log.SetFlags(0)

	if flag.NArg() == 0 {
		log.Println("Usage: kabe [options] input_image...")
		log.Println("")
		log.Println("Kabe converts images (PNG, JPG, GIF, BMP, TIFF or WebP) into Minecraft")
		log.Println("function scripts that build the image as a wall of blocks.")
		log.Println("Images are scaled to fit a square wall and padded with black.")
		log.Println("")
		log.Println("Several images can be converted at once if the output is a .zip")
		log.Println("datapack, each image becomes its own function.")
		log.Println("")
		log.Println("Options:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	cfg := loadConfig()

	opts, err := cfg.ConverterOptions()
	if err != nil {
		log.Println("Failed to load palette:", err)
		os.Exit(1)
	}

	conv, err := kabe.NewConverter(opts)
	if err != nil {
		log.Println("Invalid options:", err)
		os.Exit(1)
	}

	zipOutput := strings.EqualFold(filepath.Ext(*outputPath), ".zip")
	if flag.NArg() > 1 && !zipOutput {
		log.Println("Multiple input images require a .zip datapack output (-o).")
		os.Exit(1)
	}

	var pack *datapack.Pack
	if zipOutput {
		pack = cfg.NewPack()
	}

	start := time.Now()

	jobs := make(chan kabe.Job)
	go func() {
		defer close(jobs)
		for _, path := range flag.Args() {
			jobs <- kabe.Job{Name: path, Path: path}
		}
	}()

	log.Println("Converting", flag.NArg(), "image(s)...")

	failed := false
	for res := range kabe.ConvertBatch(context.Background(), conv, jobs, 0) {
		if res.Err != nil {
			log.Println("Failed to convert "+res.Name+":", res.Err)
			failed = true
			continue
		}

		log.Printf("Converted %q into %d blocks.\n", res.Name,
			len(res.Result.Commands))

		if *stats {
			r, err := report.Build(res.Result.Pixels, res.Result.Blocks,
				conv.Palette())
			if err != nil {
				log.Println("Warning: Failed to build statistics:", err)
			} else {
				log.Println(r.Summary())
			}
		}

		if flag.NArg() == 1 && *previewPath != "" {
			writePreview(res.Result.Blocks, conv.Palette())
		}

		if pack != nil {
			name := pack.UniqueName(datapack.FunctionName(res.Name))
			if err := pack.Add(name, res.Result.Script()); err != nil {
				log.Println("Failed to add "+res.Name+" to datapack:", err)
				failed = true
			}
			continue
		}

		if err := kabe.WriteScript(*outputPath, res.Result.Commands); err != nil {
			log.Println("Failed to write to output file:", err)
			os.Exit(1)
		}
	}

	if failed {
		os.Exit(1)
	}

	if pack != nil {
		if err := pack.WriteFile(*outputPath); err != nil {
			log.Println("Failed to write datapack:", err)
			os.Exit(1)
		}
	}

	log.Println("\nDone! That took " + time.Since(start).String() + ".")

	if pack == nil {
		log.Printf("Script outputted to \"%s\".\n", *outputPath)
		return
	}

	log.Printf("Datapack outputted to \"%s\". Copy it into your world's datapacks\n",
		*outputPath)
	log.Println("folder, run /reload, then stand where the wall should start and run:")
	for _, name := range pack.Functions() {
		log.Println("  /" + pack.Command(name))
	}
}

// loadConfig reads the config file, if any, and applies flags that were set
// explicitly on top of it.
func loadConfig() config.Config {
	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Println("Failed to load config:", err)
			os.Exit(1)
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "s":
			cfg.TargetSize = *size
		case "d":
			cfg.DepthOffset = *depth
		case "palette":
			cfg.PaletteFile = *palettePath
		case "matcher":
			cfg.Matcher = *matcher
		}
	})

	if err := cfg.Validate(); err != nil {
		log.Println("Invalid options:", err)
		os.Exit(1)
	}

	return cfg
}

func writePreview(blocks *kabe.BlockGrid, palette *kabe.Palette) {
	img, err := kabe.Preview(blocks, palette)
	if err != nil {
		log.Println("Warning: Failed to create preview image:", err)
		return
	}

	err = kabe.WriteFileAtomic(*previewPath, func(w io.Writer) error {
		return png.Encode(w, img)
	})
	if err != nil {
		log.Println("Warning: Failed to write preview image:", err)
		return
	}

	log.Printf("Preview outputted to \"%s\".\n", *previewPath)
}
