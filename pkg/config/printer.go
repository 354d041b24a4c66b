package config

import (
	"time"

	"peachy-go/pkg/errors"
)

// PrinterConfig is the typed form of printer.cfg.
type PrinterConfig struct {
	Print       PrintConfig
	Laser       LaserConfig
	ZAxis       ZAxisConfig
	ZAxisSerial SerialConfig
	Server      ServerConfig
}

// PrintConfig is the [print] section.
type PrintConfig struct {
	PrintSubLayers  bool
	SubLayerHeight  float64 // mm
	MaxLeadDistance float64 // mm, 0 disables the check
	AbortOnError    bool
	PollInterval    time.Duration
}

// LaserConfig is the [laser] section. It sizes the path transform.
type LaserConfig struct {
	SampleRate    float64 // samples per second
	MaxDeflection float64 // mm from center to the edge of the build area
}

// ZAxisConfig is the [zaxis] section. Without the section there is no
// z-axis and layers never wait.
type ZAxisConfig struct {
	Enabled              bool
	DripsPerMM           float64
	InitialHeight        float64 // mm
	SimulateDripInterval time.Duration
}

// SerialConfig is the [zaxis_serial] section controlling the drip valve.
type SerialConfig struct {
	Enabled    bool
	Port       string
	Baud       int
	OnCommand  string
	OffCommand string
}

// ServerConfig is the [server] section. Empty addresses disable a listener.
type ServerConfig struct {
	Address        string
	MetricsAddress string
	HistoryDB      string
}

// DefaultPrinterConfig returns the configuration used when printer.cfg is
// empty.
func DefaultPrinterConfig() *PrinterConfig {
	return &PrinterConfig{
		Print: PrintConfig{
			PrintSubLayers:  true,
			SubLayerHeight:  0.01,
			MaxLeadDistance: 0.5,
			AbortOnError:    true,
			PollInterval:    time.Millisecond,
		},
		Laser: LaserConfig{
			SampleRate:    48000,
			MaxDeflection: 50,
		},
		ZAxisSerial: SerialConfig{
			Baud:       9600,
			OnCommand:  "7",
			OffCommand: "0",
		},
		Server: ServerConfig{
			Address: ":7125",
		},
	}
}

// ParsePrinterConfig loads and validates a printer.cfg file.
func ParsePrinterConfig(path string) (*PrinterConfig, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	return c.PrinterConfig()
}

// ParsePrinterConfigString parses printer.cfg content.
func ParsePrinterConfigString(data string) (*PrinterConfig, error) {
	c, err := LoadString(data)
	if err != nil {
		return nil, err
	}
	return c.PrinterConfig()
}

// PrinterConfig reads the typed configuration. Unknown sections and options
// are reported as errors.
func (c *Config) PrinterConfig() (*PrinterConfig, error) {
	pc := DefaultPrinterConfig()

	steps := []func(*Config, *PrinterConfig) error{
		readPrint,
		readLaser,
		readZAxis,
		readZAxisSerial,
		readServer,
	}
	for _, step := range steps {
		if err := step(c, pc); err != nil {
			return nil, err
		}
	}
	if err := c.CheckUnused(); err != nil {
		return nil, err
	}
	return pc, nil
}

func readPrint(c *Config, pc *PrinterConfig) (err error) {
	sec := c.GetSectionOptional("print")
	if sec == nil {
		return nil
	}
	p := &pc.Print
	if p.PrintSubLayers, err = sec.GetBool("print_sub_layers", p.PrintSubLayers); err != nil {
		return err
	}
	if p.SubLayerHeight, err = sec.GetFloatWithBounds("sublayer_height_mm", FloatBounds{Above: Float(0)}, p.SubLayerHeight); err != nil {
		return err
	}
	if p.MaxLeadDistance, err = sec.GetFloatWithBounds("max_lead_distance_mm", FloatBounds{MinVal: Float(0)}, p.MaxLeadDistance); err != nil {
		return err
	}
	if p.AbortOnError, err = sec.GetBool("abort_on_error", p.AbortOnError); err != nil {
		return err
	}
	if p.PollInterval, err = sec.GetDuration("wait_poll_interval_ms", time.Millisecond, p.PollInterval); err != nil {
		return err
	}
	if p.PollInterval == 0 {
		return errors.ConfigValidationError("print", "wait_poll_interval_ms", "must be above 0")
	}
	return nil
}

func readLaser(c *Config, pc *PrinterConfig) (err error) {
	sec := c.GetSectionOptional("laser")
	if sec == nil {
		return nil
	}
	l := &pc.Laser
	if l.SampleRate, err = sec.GetFloatWithBounds("sample_rate", FloatBounds{Above: Float(0)}, l.SampleRate); err != nil {
		return err
	}
	l.MaxDeflection, err = sec.GetFloatWithBounds("max_deflection_mm", FloatBounds{Above: Float(0)}, l.MaxDeflection)
	return err
}

func readZAxis(c *Config, pc *PrinterConfig) (err error) {
	sec := c.GetSectionOptional("zaxis")
	if sec == nil {
		return nil
	}
	z := &pc.ZAxis
	if z.Enabled, err = sec.GetBool("enabled", true); err != nil {
		return err
	}
	if !z.Enabled {
		// Read the remaining options so a disabled section still validates.
		sec.markAccessed("drips_per_mm")
		sec.markAccessed("initial_height_mm")
		sec.markAccessed("simulate_drip_interval_ms")
		return nil
	}
	if z.DripsPerMM, err = sec.GetFloatWithBounds("drips_per_mm", FloatBounds{Above: Float(0)}); err != nil {
		return err
	}
	if z.InitialHeight, err = sec.GetFloat("initial_height_mm", 0); err != nil {
		return err
	}
	z.SimulateDripInterval, err = sec.GetDuration("simulate_drip_interval_ms", time.Millisecond, 0)
	return err
}

func readZAxisSerial(c *Config, pc *PrinterConfig) (err error) {
	sec := c.GetSectionOptional("zaxis_serial")
	if sec == nil {
		return nil
	}
	s := &pc.ZAxisSerial
	s.Enabled = true
	if s.Port, err = sec.Get("port"); err != nil {
		return err
	}
	if s.Baud, err = sec.GetInt("baud", s.Baud); err != nil {
		return err
	}
	if s.Baud <= 0 {
		return errors.ConfigValidationError("zaxis_serial", "baud", "must be positive")
	}
	if s.OnCommand, err = sec.Get("on_command", s.OnCommand); err != nil {
		return err
	}
	s.OffCommand, err = sec.Get("off_command", s.OffCommand)
	return err
}

func readServer(c *Config, pc *PrinterConfig) (err error) {
	sec := c.GetSectionOptional("server")
	if sec == nil {
		return nil
	}
	s := &pc.Server
	if s.Address, err = sec.Get("address", s.Address); err != nil {
		return err
	}
	if s.MetricsAddress, err = sec.Get("metrics_address", s.MetricsAddress); err != nil {
		return err
	}
	s.HistoryDB, err = sec.Get("history_db", s.HistoryDB)
	return err
}
