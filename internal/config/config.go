// Package config parses and validates the togglejitter configuration.
//
// Values come from GNU-style flags and, optionally, a YAML file named by
// --config. Flags given explicitly on the command line override the file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	flag "github.com/spf13/pflag"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/randomizedcoder/toggle-jitter/internal/export"
	"github.com/randomizedcoder/toggle-jitter/internal/rt"
)

// Defaults.
const (
	DefaultChip      = "gpiochip0"
	DefaultLine      = 17
	DefaultFrequency = 500
	DefaultCore      = 0
	DefaultCapacity  = 1024
	DefaultRefresh   = 200 * time.Millisecond
	DefaultWindow    = 100

	// MaxFrequency keeps the half period at 5µs or more.
	MaxFrequency = 100_000
	// MaxPriority is the highest SCHED_FIFO priority on Linux.
	MaxPriority = 99
)

var (
	ErrInvalidLine      = errors.New("invalid GPIO line")
	ErrInvalidFrequency = errors.New("invalid signal frequency")
	ErrInvalidPeriod    = errors.New("invalid period")
	ErrInvalidCore      = errors.New("invalid CPU core")
	ErrInvalidPriority  = errors.New("invalid priority")
	ErrInvalidCapacity  = errors.New("invalid ring capacity")
	ErrInvalidRefresh   = errors.New("invalid refresh interval")
	ErrInvalidWindow    = errors.New("invalid window size")
	ErrInvalidLogging   = errors.New("invalid logging option")
	ErrMissingChip      = errors.New("missing GPIO chip")
)

// ConfigurationError reports every problem found before start.
// It unwraps to the individual sentinel errors.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return "configuration: " + e.Err.Error()
}

func (e *ConfigurationError) Unwrap() []error {
	return multierr.Errors(e.Err)
}

// Config holds all settings.
type Config struct {
	Chip      string        `yaml:"chip"`
	Line      int           `yaml:"line"`
	Frequency int           `yaml:"frequency"`
	Period    time.Duration `yaml:"period"`
	Core      int           `yaml:"core"`
	Priority  int           `yaml:"priority"`
	Capacity  int           `yaml:"capacity"`
	Refresh   time.Duration `yaml:"refresh"`
	Window    int           `yaml:"window"`
	OutDir    string        `yaml:"out_dir"`
	Format    string        `yaml:"format"`
	Plot      bool          `yaml:"plot"`
	DryRun    bool          `yaml:"dry_run"`
	LogLevel  string        `yaml:"log_level"`
	LogFormat string        `yaml:"log_format"`

	ConfigFile string `yaml:"-"`
	Help       bool   `yaml:"-"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Chip:      DefaultChip,
		Line:      DefaultLine,
		Frequency: DefaultFrequency,
		Core:      DefaultCore,
		Capacity:  DefaultCapacity,
		Refresh:   DefaultRefresh,
		Window:    DefaultWindow,
		OutDir:    ".",
		Format:    string(export.CSV),
		LogLevel:  "info",
		LogFormat: "json",
	}
}

// TogglePeriod returns the time between toggles: Period if set, otherwise
// half the signal period of Frequency.
func (c *Config) TogglePeriod() time.Duration {
	if c.Period > 0 {
		return c.Period
	}
	if c.Frequency <= 0 {
		return 0
	}
	return time.Duration(int64(time.Second) / (2 * int64(c.Frequency)))
}

func newFlagSet(cfg *Config, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("togglejitter", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SortFlags = false

	fs.StringVar(&cfg.Chip, "chip", cfg.Chip, "GPIO chip name or path")
	fs.IntVarP(&cfg.Line, "line", "l", cfg.Line, "GPIO line offset to toggle")
	fs.IntVarP(&cfg.Frequency, "frequency", "f", cfg.Frequency, "Signal frequency in Hz (toggles at twice this rate)")
	fs.DurationVar(&cfg.Period, "period", cfg.Period, "Toggle period, overrides --frequency (e.g. 1ms)")
	fs.IntVarP(&cfg.Core, "core", "c", cfg.Core, "CPU core for the toggle loop (-1 = no pinning)")
	fs.IntVar(&cfg.Priority, "priority", cfg.Priority, "SCHED_FIFO priority 1-99 (0 = default scheduling)")
	fs.IntVar(&cfg.Capacity, "capacity", cfg.Capacity, "Sample ring capacity in samples")
	fs.DurationVar(&cfg.Refresh, "refresh", cfg.Refresh, "Data handler drain interval")
	fs.IntVar(&cfg.Window, "window", cfg.Window, "Samples in the jitter window")
	fs.StringVarP(&cfg.OutDir, "out", "o", cfg.OutDir, "Directory for the jitter log")
	fs.StringVar(&cfg.Format, "format", cfg.Format, "Jitter log format: csv or msgpack")
	fs.BoolVarP(&cfg.Plot, "plot", "p", cfg.Plot, "Plot live jitter using gnuplot")
	fs.BoolVar(&cfg.DryRun, "dry-run", cfg.DryRun, "Toggle a null line instead of GPIO hardware")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: json or console")
	fs.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "YAML configuration file")
	fs.BoolVarP(&cfg.Help, "help", "h", false, "Show help")

	fs.Usage = func() {
		fmt.Fprintln(stderr, "togglejitter - toggle a GPIO line periodically and record timing jitter")
		fmt.Fprintln(stderr, "")
		fmt.Fprintln(stderr, "Usage: togglejitter [flags]")
		fmt.Fprintln(stderr, "")
		fmt.Fprintln(stderr, "Examples:")
		fmt.Fprintln(stderr, "  togglejitter -f 1000 -c 3 --priority 80")
		fmt.Fprintln(stderr, "  togglejitter --period 250us --dry-run -p")
		fmt.Fprintln(stderr, "")
		fmt.Fprintln(stderr, "Flags:")
		fs.PrintDefaults()
		fmt.Fprintln(stderr, "")
		fmt.Fprintln(stderr, "Press Enter (or send SIGINT) to stop and write the jitter log.")
	}
	return fs
}

// Parse builds a Config from args (without the program name).
// It returns flag.ErrHelp after printing usage when --help is given.
func Parse(args []string, stderr io.Writer) (*Config, error) {
	cfg := Default()
	fs := newFlagSet(&cfg, stderr)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.Help {
		fs.Usage()
		return &cfg, flag.ErrHelp
	}
	if cfg.ConfigFile == "" {
		return &cfg, nil
	}

	// Reparse on top of the file so explicit flags win.
	fileCfg := Default()
	if err := LoadFile(cfg.ConfigFile, &fileCfg); err != nil {
		return nil, err
	}
	fs = newFlagSet(&fileCfg, stderr)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	// An explicit frequency replaces a period taken from the file.
	if fs.Changed("frequency") && !fs.Changed("period") {
		fileCfg.Period = 0
	}
	return &fileCfg, nil
}

// LoadFile decodes a YAML file into cfg. Keys absent from the file keep
// their current values; unknown keys are an error.
func LoadFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// Validate checks every setting. A pinned core must be in online.
// All problems are reported together in a *ConfigurationError.
func (c *Config) Validate(online rt.CPUList) error {
	var errs error
	add := func(sentinel error, format string, args ...any) {
		errs = multierr.Append(errs, fmt.Errorf("%w: "+format, append([]any{sentinel}, args...)...))
	}

	if c.Chip == "" && !c.DryRun {
		add(ErrMissingChip, "--chip is required unless --dry-run is set")
	}
	if c.Line < 0 {
		add(ErrInvalidLine, "%d", c.Line)
	}
	if c.Period == 0 && (c.Frequency <= 0 || c.Frequency > MaxFrequency) {
		add(ErrInvalidFrequency, "%d Hz (want 1-%d)", c.Frequency, MaxFrequency)
	}
	if c.Period != 0 && (c.Period < 0 || c.Period >= time.Second) {
		add(ErrInvalidPeriod, "%v (want greater than 0 and less than 1s)", c.Period)
	}
	if c.Core != -1 && !online.Contains(c.Core) {
		add(ErrInvalidCore, "%d (want -1 or one of %v)", c.Core, online)
	}
	if c.Priority < 0 || c.Priority > MaxPriority {
		add(ErrInvalidPriority, "%d (want 0-%d)", c.Priority, MaxPriority)
	}
	if c.Capacity <= 0 {
		add(ErrInvalidCapacity, "%d", c.Capacity)
	}
	if c.Refresh <= 0 {
		add(ErrInvalidRefresh, "%v", c.Refresh)
	}
	if c.Window <= 0 {
		add(ErrInvalidWindow, "%d", c.Window)
	}
	if _, err := export.ParseFormat(c.Format); err != nil {
		errs = multierr.Append(errs, err)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		add(ErrInvalidLogging, "level %q", c.LogLevel)
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		add(ErrInvalidLogging, "format %q (want json or console)", c.LogFormat)
	}

	if errs != nil {
		return &ConfigurationError{Err: errs}
	}
	return nil
}
