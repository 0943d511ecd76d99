package main

import (
	"fmt"
	"io"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/sugarme/gotch/nn"
)

func newSummaryCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Print model parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			vs, net, err := opts.loadModel()
			if err != nil {
				return err
			}

			cfg := net.Config()
			fmt.Printf("filters: %v\tfused width: %v\tstride: %v\n", cfg.Filters(), cfg.FusedWidth(), cfg.Stride())
			total := printParams(os.Stdout, vs)
			fmt.Printf("total parameters: %v\n", total)

			return nil
		},
	}
}

// printParams renders one row per variable and returns the element total.
func printParams(w io.Writer, vs *nn.VarStore) int64 {
	vars := vs.Variables()
	var total int64
	data := [][]string{}
	for _, name := range sortedVars(vs) {
		v := vars[name]
		size := v.MustSize()
		n := numel(size)
		total += n
		data = append(data, []string{name, fmt.Sprint(size), fmt.Sprint(n)})
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"NAME", "SHAPE", "PARAMS"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()

	return total
}

func numel(size []int64) int64 {
	n := int64(1)
	for _, s := range size {
		n *= s
	}
	return n
}
