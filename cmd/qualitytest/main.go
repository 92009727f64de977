package main

import (
	"flag"
	"image/png"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime/pprof"
	"sort"
	"strings"
	"time"

	"github.com/tmpim/kabe"
	"github.com/tmpim/kabe/report"
)

var (
	outputDir  = flag.String("o", "./output_test", "set the directory previews are written to")
	size       = flag.Int("s", kabe.DefaultTargetSize, "set the wall size")
	cpuProfile = flag.String("cpuprofile", "", "write a CPU profile to this file")
)

type result struct {
	name   string
	report report.Report
}

func main() {
	flag.Parse()
	log.SetFlags(0)

	if flag.NArg() != 1 {
		log.Println("Usage: qualitytest [options] input_dir")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
	}

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		log.Fatal("could not create output directory: ", err)
	}

	files, err := os.ReadDir(flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}

	var results []result
	for _, f := range files {
		if f.IsDir() {
			continue
		}

		r, ok := convert(filepath.Join(flag.Arg(0), f.Name()))
		if ok {
			results = append(results, result{name: f.Name(), report: r})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].report.MeanDeltaE > results[j].report.MeanDeltaE
	})

	log.Println("\nworst images first:")
	for _, res := range results {
		log.Printf("  %-32s mean ΔE %6.2f  max ΔE %6.2f  %d distinct blocks\n",
			res.name, res.report.MeanDeltaE, res.report.MaxDeltaE,
			len(res.report.Histogram))
	}
}

func convert(path string) (report.Report, bool) {
	name := filepath.Base(path)
	start := time.Now()

	opts := kabe.DefaultOptions()
	opts.TargetSize = *size
	opts.Progress = func(stage kabe.Stage) {
		log.Println(name, stage.String()+":", time.Since(start))
	}

	conv, err := kabe.NewConverter(opts)
	if err != nil {
		log.Fatal("invalid options: ", err)
	}

	img, err := kabe.DecodeFile(path)
	if err != nil {
		log.Println("Failed to decode image:", name, err)
		return report.Report{}, false
	}

	log.Println(name, "read+decode:", time.Since(start))

	res, err := conv.Convert(img)
	if err != nil {
		log.Println("Failed to convert image:", name, err)
		return report.Report{}, false
	}

	r, err := report.Build(res.Pixels, res.Blocks, conv.Palette())
	if err != nil {
		log.Println("Failed to build report:", name, err)
		return report.Report{}, false
	}

	log.Println(name, "[complete] report:", time.Since(start))

	preview, err := kabe.Preview(res.Blocks, conv.Palette())
	if err != nil {
		log.Println("Warning: Failed to create preview image:", err)
		return r, true
	}

	basename := strings.TrimSuffix(name, filepath.Ext(name))
	err = kabe.WriteFileAtomic(filepath.Join(*outputDir, basename+".png"),
		func(w io.Writer) error {
			return png.Encode(w, preview)
		})
	if err != nil {
		log.Println("Warning: Failed to write preview image:", err)
	}

	return r, true
}
