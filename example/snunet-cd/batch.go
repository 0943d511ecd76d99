package main

import (
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/sugarme/gotch"
	"golang.org/x/sync/errgroup"

	"github.com/sugarme/snunet/imgutil"
	"github.com/sugarme/snunet/predict"
)

type loadedPair struct {
	id   string
	a, b image.Image
}

// loadPairs decodes pairs concurrently, at most workers files at a time.
func loadPairs(pairs []predict.Pair, workers int) ([]loadedPair, error) {
	loaded := make([]loadedPair, len(pairs))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, p := range pairs {
		i, p := i, p
		g.Go(func() error {
			a, err := imgutil.ReadImage(p.ImageA)
			if err != nil {
				return fmt.Errorf("pair %v: %w", p.ID, err)
			}
			b, err := imgutil.ReadImage(p.ImageB)
			if err != nil {
				return fmt.Errorf("pair %v: %w", p.ID, err)
			}
			loaded[i] = loadedPair{id: p.ID, a: a, b: b}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return loaded, nil
}

func newBatchCmd(opts *options) *cobra.Command {
	var (
		manifest string
		outDir   string
		workers  int
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Detect changes for every pair listed in a CSV manifest",
		Long:  "Detect changes for every pair listed in a CSV manifest with columns id, image_a, image_b.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if workers < 1 {
				return fmt.Errorf("workers must be positive. Got %v", workers)
			}

			pairs, err := predict.ReadManifestFile(manifest)
			if err != nil {
				return err
			}

			_, net, err := opts.loadModel()
			if err != nil {
				return err
			}
			device := opts.device()
			predictor := predict.NewPredictor(net, device)

			if err := os.MkdirAll(outDir, 0755); err != nil {
				return err
			}

			start := time.Now()
			startRAM, ramOK := usedRAM()
			var summaries []predict.Summary
			for from := 0; from < len(pairs); from += workers {
				to := from + workers
				if to > len(pairs) {
					to = len(pairs)
				}

				loaded, err := loadPairs(pairs[from:to], workers)
				if err != nil {
					return err
				}

				// forward passes stay sequential
				for _, p := range loaded {
					res, err := predictor.Predict(p.a, p.b)
					if err != nil {
						return fmt.Errorf("pair %v: %w", p.id, err)
					}
					if err := res.SaveMask(filepath.Join(outDir, p.id+".png")); err != nil {
						return err
					}
					summaries = append(summaries, res.Summarize(p.id))
				}

				if ramOK && device == gotch.CPU {
					if used, ok := usedRAM(); ok {
						log.Printf("Pairs %v/%v\t Used: [%8.2f MiB]\n", to, len(pairs), (float64(used)-float64(startRAM))/1024)
					}
				}
			}

			if len(summaries) == 0 {
				return fmt.Errorf("manifest %v lists no pairs", manifest)
			}

			report, err := os.Create(filepath.Join(outDir, "report.csv"))
			if err != nil {
				return err
			}
			if err := predict.WriteReport(report, summaries); err != nil {
				report.Close()
				return err
			}
			if err := report.Close(); err != nil {
				return err
			}

			fmt.Printf("Processed %v pairs\t Taken time: %0.2fMin\n", len(summaries), time.Since(start).Minutes())
			return nil
		},
	}

	cmd.Flags().StringVarP(&manifest, "manifest", "m", "", "specify CSV manifest with columns id, image_a, image_b")
	cmd.Flags().StringVarP(&outDir, "out", "o", "./out", "specify output directory")
	cmd.Flags().IntVar(&workers, "workers", 4, "specify number of images decoded concurrently")
	cmd.MarkFlagRequired("manifest")

	return cmd
}
