package main

import (
	"peachy-go/pkg/audio"
	"peachy-go/pkg/config"
	"peachy-go/pkg/dryrun"
	"peachy-go/pkg/errors"
	"peachy-go/pkg/log"
	"peachy-go/pkg/printapi"
	"peachy-go/pkg/serial"
	"peachy-go/pkg/zaxis"
)

// buildToolchain assembles the devices for a print. The laser and path are
// always the dry-run stand-ins. The returned closer releases the valve port.
func buildToolchain(cfg *config.PrinterConfig, dryRun bool, logger *log.Logger) (printapi.Toolchain, func() error, error) {
	tools := printapi.Toolchain{
		Laser: dryrun.NewLaser(),
		Path:  dryrun.NewPath(cfg.Laser.SampleRate, cfg.Laser.MaxDeflection),
		Audio: audio.Discard,
	}
	noop := func() error { return nil }
	if dryRun {
		return tools, noop, nil
	}

	if cfg.ZAxis.Enabled {
		if cfg.ZAxis.SimulateDripInterval <= 0 {
			return tools, noop, errors.ConfigValidationError("zaxis", "simulate_drip_interval_ms",
				"drip detection is not available, set a simulated drip interval or use --dry-run")
		}
		z, err := zaxis.NewDripZAxis(
			zaxis.SimulatedDrips{Interval: cfg.ZAxis.SimulateDripInterval},
			cfg.ZAxis.DripsPerMM,
			cfg.ZAxis.InitialHeight,
			logger.Named("zaxis"),
		)
		if err != nil {
			return tools, noop, err
		}
		tools.ZAxis = z
	}

	if cfg.ZAxisSerial.Enabled {
		ctl, err := zaxis.OpenSerialControl(
			serial.Config{Device: cfg.ZAxisSerial.Port, BaudRate: cfg.ZAxisSerial.Baud},
			cfg.ZAxisSerial.OnCommand,
			cfg.ZAxisSerial.OffCommand,
			logger.Named("valve"),
		)
		if err != nil {
			return tools, noop, err
		}
		tools.ZAxisControl = ctl
		return tools, ctl.Close, nil
	}
	return tools, noop, nil
}
