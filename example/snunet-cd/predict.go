package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sugarme/snunet/imgutil"
	"github.com/sugarme/snunet/predict"
)

func newPredictCmd(opts *options) *cobra.Command {
	var (
		imageA, imageB string
		outDir         string
		overlay, hist  bool
	)

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Detect changes between two co-registered images",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, net, err := opts.loadModel()
			if err != nil {
				return err
			}

			a, err := imgutil.ReadImage(imageA)
			if err != nil {
				return err
			}
			b, err := imgutil.ReadImage(imageB)
			if err != nil {
				return err
			}

			if err := os.MkdirAll(outDir, 0755); err != nil {
				return err
			}

			res, err := predict.NewPredictor(net, opts.device()).Predict(a, b)
			if err != nil {
				return err
			}

			if err := res.SaveMask(filepath.Join(outDir, "mask.png")); err != nil {
				return err
			}

			if overlay {
				size := a.Bounds().Size()
				mask := imgutil.ResizeMask(res.Mask(), size.X, size.Y)
				// 25% opacity
				if err := imgutil.SavePNG(imgutil.Overlay(a, mask, 64), filepath.Join(outDir, "overlay.png")); err != nil {
					return err
				}
			}

			if hist {
				if err := predict.SaveHistogram(res.Change, 20, "Change score", filepath.Join(outDir, "hist.png")); err != nil {
					return err
				}
			}

			s := res.Summarize(filepath.Base(imageA))
			fmt.Printf("%v\t size: %vx%v\t changed: %v (%0.2f%%)\t mean score: %6.4f\n",
				s.ID, s.Width, s.Height, s.ChangedPixels, s.ChangeRatio*100, s.MeanScore)

			return nil
		},
	}

	cmd.Flags().StringVarP(&imageA, "a", "a", "", "specify image taken at time 1")
	cmd.Flags().StringVarP(&imageB, "b", "b", "", "specify image taken at time 2")
	cmd.Flags().StringVarP(&outDir, "out", "o", "./out", "specify output directory")
	cmd.Flags().BoolVar(&overlay, "overlay", false, "specify whether to save the mask drawn over image A")
	cmd.Flags().BoolVar(&hist, "hist", false, "specify whether to save a histogram of change scores")
	cmd.MarkFlagRequired("a")
	cmd.MarkFlagRequired("b")

	return cmd
}
