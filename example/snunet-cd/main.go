package main

import (
	"fmt"
	"log"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"

	"github.com/sugarme/snunet/snunet"
)

// flag variables shared by every command
type options struct {
	cuda     bool
	seed     int64
	inCh     int64
	classes  int64
	bilinear bool
	weights  string
}

func NewCLI() *cobra.Command {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	opts := &options{}
	rootCmd := &cobra.Command{
		Use:   "snunet-cd",
		Short: "Bi-temporal change detection with SNUNet-CD/ECAM",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Disable usage printing on errors
			cmd.SilenceUsage = true
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.BoolVar(&opts.cuda, "cuda", false, "specify whether using CUDA or not.")
	pf.Int64Var(&opts.seed, "seed", 42, "specify random seed for weight initialization")
	pf.Int64Var(&opts.inCh, "in", 3, "specify number of input image channels (1 or 3)")
	pf.Int64Var(&opts.classes, "classes", 2, "specify number of output classes")
	pf.BoolVar(&opts.bilinear, "bilinear", false, "specify bilinear upsampling instead of transposed conv")
	pf.StringVar(&opts.weights, "weights", "", "specify full path to model weight '.ot' file.")

	cobra.EnableCommandSorting = false

	rootCmd.AddCommand(
		newSummaryCmd(opts),
		newPredictCmd(opts),
		newBatchCmd(opts),
	)

	return rootCmd
}

func (o *options) device() gotch.Device {
	if o.cuda {
		return gotch.NewCuda().CudaIfAvailable()
	}
	return gotch.CPU
}

// loadModel builds the network and loads weights when a file is given.
func (o *options) loadModel() (*nn.VarStore, *snunet.SNUNetECAM, error) {
	cfg := snunet.DefaultConfig(o.inCh, o.classes)
	cfg.Bilinear = o.bilinear
	cfg.Seed = o.seed

	vs := nn.NewVarStore(o.device())
	net, err := snunet.New(vs.Root(), cfg)
	if err != nil {
		return nil, nil, err
	}

	if o.weights == "" {
		log.Printf("No weights given. Using randomly initialized model (seed=%v)\n", o.seed)
		return vs, net, nil
	}

	modelPath, err := filepath.Abs(o.weights)
	if err != nil {
		return nil, nil, err
	}
	if err := vs.Load(modelPath); err != nil {
		return nil, nil, fmt.Errorf("load weights %v: %w", modelPath, err)
	}
	log.Printf("Weights loaded from %v\n", modelPath)

	return vs, net, nil
}

// sortedVars returns variable names sorted by name
func sortedVars(vs *nn.VarStore) []string {
	vars := vs.Variables()
	names := make([]string, 0, len(vars))
	for n := range vars {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func main() {
	if err := NewCLI().Execute(); err != nil {
		log.Fatal(err)
	}
}
