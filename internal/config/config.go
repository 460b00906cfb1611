// Package config binds rdo settings to command-line flags and an optional
// HCL config file.
//
// A setting is taken from, in order of precedence: an explicitly set flag,
// the config file, the flag default.
//
//	database = "shop.db"
//	log-level = "debug"
//	log-sql = true
//	fold_simple_queries = false
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/hashicorp/hcl"
	"github.com/hashicorp/hcl/hcl/scanner"
	"github.com/hashicorp/hcl/hcl/token"
	"github.com/spf13/pflag"
)

// DefaultFile is the config file read when none is named.
const DefaultFile = "rdo.hcl"

// Config holds the settings shared by every command.
type Config struct {
	Database string
	LogLevel string
	LogSQL   bool
	Flags    Flags

	vars map[string]*pflag.Flag
}

// New returns a Config holding the defaults.
func New() *Config {
	return &Config{
		Database: ":memory:",
		LogLevel: "info",
		Flags:    Default(),
		vars:     map[string]*pflag.Flag{},
	}
}

// Bind declares the config flags on fs.
func (c *Config) Bind(fs *pflag.FlagSet) {
	fs.StringVar(&c.Database, "database", c.Database, "SQLite `path` (\":memory:\" for a private database)")
	c.vars["database"] = fs.Lookup("database")

	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level: debug, info, warn or error")
	c.vars["log-level"] = fs.Lookup("log-level")

	fs.BoolVar(&c.LogSQL, "log-sql", c.LogSQL, "log every executed statement")
	c.vars["log-sql"] = fs.Lookup("log-sql")
}

// LoadFile reads the config file at path. Settings whose flag was set
// explicitly on fs are left alone. A missing file is an error only when
// required is true.
func (c *Config) LoadFile(fs *pflag.FlagSet, path string, required bool) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return nil
		}
		return fmt.Errorf("config: %w", err)
	}
	if err := c.load(fs, b); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	return nil
}

func (c *Config) load(fs *pflag.FlagSet, b []byte) error {
	file, err := hcl.ParseBytes(b)
	if err != nil {
		return err
	}
	if err := checkTrailingAssign(b); err != nil {
		return err
	}
	var cfg map[string]interface{}
	if err := hcl.DecodeObject(&cfg, file); err != nil {
		return err
	}
	for name, val := range cfg {
		if flg, ok := c.vars[name]; ok {
			if fs != nil && fs.Changed(flg.Name) {
				continue
			}
			if _, isMap := val.([]map[string]interface{}); isMap {
				return fmt.Errorf("%s: expected a scalar value", name)
			}
			if err := flg.Value.Set(fmt.Sprintf("%v", val)); err != nil {
				return fmt.Errorf("%s: %s", name, err)
			}
		} else if f, ok := LookupFlag(name); ok {
			b, ok := val.(bool)
			if !ok {
				return fmt.Errorf("%s: expected boolean value; got %v", name, val)
			}
			c.Flags[f] = b
		} else {
			return fmt.Errorf("%s is not a config variable", name)
		}
	}
	return nil
}

// checkTrailingAssign rejects a final `name =` with no value. The HCL
// parser drops such an item without reporting it.
func checkTrailingAssign(src []byte) error {
	sc := scanner.New(src)
	var prev, last token.Token
	for tok := sc.Scan(); tok.Type != token.EOF; tok = sc.Scan() {
		if tok.Type == token.COMMENT {
			continue
		}
		prev, last = last, tok
	}
	if last.Type == token.ASSIGN {
		return fmt.Errorf("%s: %s: missing value", last.Pos, prev.Text)
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("config: invalid log level %q", c.LogLevel)
	}
	return l, nil
}
