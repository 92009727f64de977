package main

import (
	"flag"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/tmpim/kabe"
)

var (
	workers    = flag.Int("w", 8, "set the number of concurrent converters")
	iterations = flag.Int("n", 20, "set the number of conversions per converter")
	size       = flag.Int("s", kabe.DefaultTargetSize, "set the wall size")
)

func main() {
	flag.Parse()

	if flag.NArg() != 1 {
		log.Fatal("must have path to image")
	}

	img, err := kabe.DecodeFile(flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}

	for _, kind := range []kabe.MatcherKind{kabe.MatcherLinear, kabe.MatcherTree} {
		opts := kabe.DefaultOptions()
		opts.TargetSize = *size
		opts.Matcher = kind
		// Each converter runs single threaded so that workers scale.
		opts.Workers = 1

		conv, err := kabe.NewConverter(opts)
		if err != nil {
			log.Fatal(err)
		}

		wg := new(sync.WaitGroup)
		start := time.Now()

		for w := 0; w < *workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < *iterations; i++ {
					if _, err := conv.Convert(img); err != nil {
						panic(err)
					}
				}
			}()
		}

		wg.Wait()
		took := time.Since(start)
		fmt.Printf("%s: took %v (%v per conversion)\n", kind, took,
			took/time.Duration(*workers**iterations))
	}
}
