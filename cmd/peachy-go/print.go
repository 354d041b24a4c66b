package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"peachy-go/pkg/machine"
)

type printOptions struct {
	layers      string
	dryRun      bool
	noSubLayers bool
}

func (o *printOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.layers, "layers", "", "YAML layer file to print")
	cmd.Flags().BoolVar(&o.dryRun, "dry-run", false, "Print without audio output or z-axis")
	cmd.Flags().BoolVar(&o.noSubLayers, "no-sublayers", false, "Do not interpolate sub-layers between layers")
	_ = cmd.MarkFlagRequired("layers")
}

func newPrintCmd(a *app) *cobra.Command {
	opts := &printOptions{}
	cmd := &cobra.Command{
		Use:   "print",
		Short: "Print a layer file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrint(cmd, a, opts)
		},
	}
	opts.addFlags(cmd)
	return cmd
}

func runPrint(cmd *cobra.Command, a *app, opts *printOptions) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	if opts.noSubLayers {
		cfg.Print.PrintSubLayers = false
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	s, err := a.openSession(ctx, cfg, opts.dryRun)
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.api.PrintFile(ctx, opts.layers, opts.dryRun); err != nil {
		return err
	}
	err = s.api.Wait()
	writeSummary(cmd.OutOrStdout(), s.api.GetStatus())
	return err
}

func writeSummary(w io.Writer, snap machine.Snapshot) {
	fmt.Fprintf(w, "Status:  %s\n", snap.Status)
	fmt.Fprintf(w, "Layers:  %d\n", snap.CurrentLayer)
	fmt.Fprintf(w, "Height:  %.3f mm (%d drips)\n", snap.Height, snap.Drips)
	fmt.Fprintf(w, "Elapsed: %s\n", snap.ElapsedTime)
	for _, e := range snap.Errors {
		fmt.Fprintf(w, "Error:   %s\n", e)
	}
}
