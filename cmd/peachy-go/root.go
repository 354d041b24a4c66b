package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"peachy-go/pkg/config"
	"peachy-go/pkg/history"
	"peachy-go/pkg/log"
	"peachy-go/pkg/printapi"
	"peachy-go/pkg/telemetry"
)

const defaultEnvFile = ".env"

// app carries the global flags and what PersistentPreRunE derives from them.
type app struct {
	logLevel   string
	logFormat  string
	envFile    string
	configPath string

	logger *log.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "peachy-go",
		Short: "Audio-modulated laser resin printer host",
		Long: `peachy-go prints layer files on a drip-fed resin printer whose laser is
steered by an audio signal. Motions are streamed through the laser and audio
pipeline while the z-axis is raised one drip at a time.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error (default from PEACHY_LOG_LEVEL or info)")
	flags.StringVar(&a.logFormat, "log-format", "", "Log format: text or json (default from PEACHY_LOG_FORMAT or text)")
	flags.StringVar(&a.envFile, "env-file", defaultEnvFile, "Environment file loaded before reading configuration")
	flags.StringVar(&a.configPath, "config", "", "Printer configuration file (defaults apply when empty)")

	cmd.AddCommand(
		newPrintCmd(a),
		newVerifyCmd(a),
		newServeCmd(a),
		newPortsCmd(a),
	)
	return cmd
}

// setup loads the env file and configures logging.
func (a *app) setup(cmd *cobra.Command) error {
	if a.envFile != "" {
		err := godotenv.Load(a.envFile)
		missingDefault := errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("env-file")
		if err != nil && !missingDefault {
			return fmt.Errorf("load env file %s: %w", a.envFile, err)
		}
	}

	a.logger = log.New("peachy")
	a.logger.SetWriter(cmd.ErrOrStderr())
	log.ConfigureFromEnv(a.logger)
	if a.logLevel != "" {
		a.logger.SetLevel(log.ParseLevel(a.logLevel))
	}
	if a.logFormat != "" {
		format, ok := log.ParseFormat(a.logFormat)
		if !ok {
			return fmt.Errorf("unknown log format %q", a.logFormat)
		}
		a.logger.SetFormat(format)
	}
	log.SetDefaultLogger(a.logger)
	return nil
}

func (a *app) loadConfig() (*config.PrinterConfig, error) {
	if a.configPath == "" {
		a.logger.Info("No --config given, using defaults")
		return config.DefaultPrinterConfig(), nil
	}
	return config.ParsePrinterConfig(a.configPath)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

// session holds what a print command needs and must release.
type session struct {
	api       *printapi.API
	history   *history.Store
	telemetry *telemetry.Provider
	closeZ    func() error
	logger    *log.Logger
}

func (a *app) openSession(ctx context.Context, cfg *config.PrinterConfig, dryRun bool, opts ...printapi.Option) (*session, error) {
	s := &session{logger: a.logger}

	provider, err := telemetry.Setup(ctx, telemetry.OptionsFromEnv(), a.logger.Named("telemetry"))
	if err != nil {
		return nil, fmt.Errorf("set up tracing: %w", err)
	}
	s.telemetry = provider

	if cfg.Server.HistoryDB != "" {
		if s.history, err = history.Open(cfg.Server.HistoryDB); err != nil {
			s.close()
			return nil, err
		}
		opts = append(opts, printapi.WithHistory(s.history))
	}

	tools, closeZ, err := buildToolchain(cfg, dryRun, a.logger)
	if err != nil {
		s.close()
		return nil, err
	}
	s.closeZ = closeZ

	opts = append(opts,
		printapi.WithLogger(a.logger.Named("printapi")),
		printapi.WithTracer(provider.Tracer("peachy-go/controller")),
	)
	s.api = printapi.New(cfg, tools, opts...)
	return s, nil
}

func (s *session) close() {
	if s.closeZ != nil {
		if err := s.closeZ(); err != nil {
			s.logger.WithError(err).Warn("Closing z-axis control failed")
		}
	}
	if s.history != nil {
		if err := s.history.Close(); err != nil {
			s.logger.WithError(err).Warn("Closing history failed")
		}
	}
	if s.telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.telemetry.Shutdown(ctx); err != nil {
			s.logger.WithError(err).Warn("Flushing traces failed")
		}
	}
}
