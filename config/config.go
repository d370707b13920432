// Package config parses the CLI surface a printer application exposes
// (spec.md §6) and, optionally, an on-disk TOML file the host application
// may use to set the same knobs declaratively. Flag parsing follows the
// teacher's own main.go/cmd/tp/internal/cfg/cfg.go: stdlib flag, with
// github.com/rusq/osenv/v2 supplying environment-variable defaults.
package config

import (
	"flag"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/rusq/osenv/v2"

	"github.com/printcore/pappl/applog"
)

// Config is the test-harness CLI surface named in spec.md §6.
type Config struct {
	SpoolDir   string
	LogFile    string
	LogLevel   applog.Level
	Port       int
	Drivers    []string // repeatable -driver flag
	CleanStart bool
	TLSOnly    bool
	NoTLS      bool
	AuthPAM    string
	USBGadget  bool
	SingleQueue bool
	OutputDir  string
	TestSelect string
}

// driverList implements flag.Value for a repeatable -driver flag.
type driverList struct{ vals *[]string }

func (d driverList) String() string {
	if d.vals == nil {
		return ""
	}
	return fmt.Sprint(*d.vals)
}

func (d driverList) Set(v string) error {
	*d.vals = append(*d.vals, v)
	return nil
}

// Parse builds a FlagSet over args (typically os.Args[1:]) with
// osenv-sourced defaults, matching cfg.go's "os.Getenv as zero value"
// pattern generalized to every CLI knob.
func Parse(args []string) (Config, error) {
	var c Config
	c.LogLevel = applog.Level(osenv.Value("PAPPL_LOG_LEVEL", string(applog.LevelInfo)))

	fs := flag.NewFlagSet("papplserver", flag.ContinueOnError)
	fs.StringVar(&c.SpoolDir, "spool-dir", osenv.Value("PAPPL_SPOOL_DIR", "/var/spool/pappl"), "spool directory")
	fs.StringVar(&c.LogFile, "log-file", osenv.Value("PAPPL_LOG_FILE", ""), "log file (stderr if unset)")
	var levelFlag string
	fs.StringVar(&levelFlag, "log-level", string(c.LogLevel), "log level: fatal, error, warn, info, debug")
	fs.IntVar(&c.Port, "port", osenv.Int("PAPPL_PORT", 8000), "listen port")
	fs.Var(driverList{&c.Drivers}, "driver", "driver name (repeatable)")
	fs.BoolVar(&c.CleanStart, "clean-start", false, "ignore any persisted state file")
	fs.BoolVar(&c.TLSOnly, "tls-only", false, "require TLS for all connections")
	fs.BoolVar(&c.NoTLS, "no-tls", false, "disable TLS entirely")
	fs.StringVar(&c.AuthPAM, "auth-pam-service", osenv.Value("PAPPL_AUTH_PAM_SERVICE", ""), "PAM service name for authentication")
	fs.BoolVar(&c.USBGadget, "usb-gadget", false, "register as a USB printer gadget")
	fs.BoolVar(&c.SingleQueue, "single-queue", false, "support only a single print queue")
	fs.StringVar(&c.OutputDir, "output-dir", osenv.Value("PAPPL_OUTPUT_DIR", ""), "directory for rendered test output")
	fs.StringVar(&c.TestSelect, "test", "", "name of a single conformance test to run")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	level, err := applog.ParseLevel(levelFlag)
	if err != nil {
		return Config{}, err
	}
	c.LogLevel = level

	if c.TLSOnly && c.NoTLS {
		return Config{}, fmt.Errorf("config: -tls-only and -no-tls are mutually exclusive")
	}
	return c, nil
}

// FileOverlay is the subset of Config a host application may also supply
// via an on-disk TOML file (BurntSushi/toml), applied before flags so that
// explicit command-line values still win.
type FileOverlay struct {
	SpoolDir string `toml:"spool_dir"`
	LogLevel string `toml:"log_level"`
	Port     int    `toml:"port"`
	Drivers  []string `toml:"drivers"`
}

// LoadFile reads a TOML config file, if present. A missing file is not an
// error (fresh-start semantics, matching the persisted-state loader).
func LoadFile(path string) (FileOverlay, error) {
	var o FileOverlay
	if path == "" {
		return o, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return o, nil
	}
	if _, err := toml.DecodeFile(path, &o); err != nil {
		return o, fmt.Errorf("config: %s: %w", path, err)
	}
	return o, nil
}

// ApplyOverlay merges a FileOverlay's non-zero fields into c, for values the
// CLI invocation did not explicitly set.
func ApplyOverlay(c Config, o FileOverlay) Config {
	if c.SpoolDir == "" && o.SpoolDir != "" {
		c.SpoolDir = o.SpoolDir
	}
	if o.LogLevel != "" {
		if lvl, err := applog.ParseLevel(o.LogLevel); err == nil {
			c.LogLevel = lvl
		}
	}
	if c.Port == 0 && o.Port != 0 {
		c.Port = o.Port
	}
	if len(c.Drivers) == 0 && len(o.Drivers) > 0 {
		c.Drivers = o.Drivers
	}
	return c
}
