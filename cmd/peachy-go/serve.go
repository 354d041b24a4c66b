package main

import (
	"context"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"peachy-go/pkg/machine"
	"peachy-go/pkg/metrics"
	"peachy-go/pkg/printapi"
	"peachy-go/pkg/statusapi"
)

func newServeCmd(a *app) *cobra.Command {
	opts := &printOptions{}
	var exitOnComplete bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Print a layer file while serving the status API and metrics",
		Long: `serve prints like the print command and additionally exposes the status
API on [server] address and Prometheus metrics on [server] metrics_address.
The listeners stay up after the print ends until interrupted, unless
--exit-on-complete is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, a, opts, exitOnComplete)
		},
	}
	opts.addFlags(cmd)
	cmd.Flags().BoolVar(&exitOnComplete, "exit-on-complete", false, "Stop serving once the print has finished")
	return cmd
}

func runServe(cmd *cobra.Command, a *app, opts *printOptions, exitOnComplete bool) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	if opts.noSubLayers {
		cfg.Print.PrintSubLayers = false
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	pm := metrics.NewPrintMetrics()
	var status *statusapi.Server
	s, err := a.openSession(ctx, cfg, opts.dryRun,
		printapi.WithObserver(pm),
		// status is assigned before the print starts.
		printapi.WithObserver(machine.ObserverFunc(func(snap machine.Snapshot) { status.OnStatus(snap) })),
	)
	if err != nil {
		return err
	}
	defer s.close()

	scfg := statusapi.Config{
		Address: cfg.Server.Address,
		Printer: s.api,
		Logger:  a.logger.Named("statusapi"),
	}
	if s.history != nil {
		scfg.History = s.history
	}
	status = statusapi.New(scfg)

	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stopServing := context.WithCancel(gctx)
	defer stopServing()

	if cfg.Server.Address != "" {
		g.Go(func() error { return status.Run(serveCtx) })
	}
	if cfg.Server.MetricsAddress != "" {
		mcfg := metrics.DefaultServerConfig()
		mcfg.Address = cfg.Server.MetricsAddress
		srv := metrics.NewServer(pm, mcfg)
		g.Go(func() error { return srv.Run(serveCtx) })
		a.logger.Info("Metrics listening on %s", cfg.Server.MetricsAddress)
	}

	g.Go(func() error {
		if err := s.api.PrintFile(gctx, opts.layers, opts.dryRun); err != nil {
			return err
		}
		err := s.api.Wait()
		writeSummary(cmd.OutOrStdout(), s.api.GetStatus())
		if exitOnComplete {
			stopServing()
		}
		return err
	})

	return g.Wait()
}
