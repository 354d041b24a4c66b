package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"peachy-go/pkg/printapi"
)

func newVerifyCmd(a *app) *cobra.Command {
	var layers string
	var noSubLayers bool
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Dry-run a layer file and report laser and path statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if noSubLayers {
				cfg.Print.PrintSubLayers = false
			}
			ctx, cancel := signalContext(cmd)
			defer cancel()

			api := printapi.New(cfg, printapi.Toolchain{}, printapi.WithLogger(a.logger.Named("verify")))
			report, err := api.VerifyFile(ctx, layers)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			writeSummary(w, report.Status)
			fmt.Fprintf(w, "Laser:   %d toggles, %d frames on, %d frames off\n",
				report.Laser.Toggles, report.Laser.OnFrames, report.Laser.OffFrames)
			fmt.Fprintf(w, "Path:    %d motions, %.3f mm, %d points\n",
				report.Path.Motions, report.Path.Distance, report.Path.Points)
			return report.Err
		},
	}
	cmd.Flags().StringVar(&layers, "layers", "", "YAML layer file to verify")
	cmd.Flags().BoolVar(&noSubLayers, "no-sublayers", false, "Do not interpolate sub-layers between layers")
	_ = cmd.MarkFlagRequired("layers")
	return cmd
}
