// Package config loads lrsweek settings from defaults, an optional config
// file, a .env file, LRSWEEK_* environment variables and command-line flags,
// in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. LRSWEEK_LRS_URL.
const EnvPrefix = "LRSWEEK"

// Config holds runtime configuration.
type Config struct {
	LRS     LRS
	Output  Output
	Store   Store
	Metrics Metrics
}

// LRS describes how to reach the Learning Record Store.
type LRS struct {
	URL      string            `validate:"required"`
	Port     int               `validate:"required,min=1,max=65535"`
	User     string            `validate:"required"`
	Password string            `validate:"required"`
	Headers  map[string]string `validate:"-"`
	Params   map[string]string `validate:"-"`
	Timeout  time.Duration     `validate:"gt=0"`
}

// Output controls where weekly feature files go.
type Output struct {
	Dir    string `validate:"required"`
	Prefix string `validate:"required,excludesall=/\\"`
}

// Store points at the optional SQLite cache.
type Store struct {
	Path string
}

// Metrics points at the optional Prometheus textfile.
type Metrics struct {
	File string
}

// Options controls where Load looks.
type Options struct {
	// ConfigFile is an optional YAML, TOML or JSON file.
	ConfigFile string
	// EnvFiles are loaded with godotenv; missing files are ignored. Empty
	// means ".env".
	EnvFiles []string
	// Flags, when set, are bound to their config keys. Only flags the user
	// changed override lower layers.
	Flags *pflag.FlagSet
}

// FlagKeys maps command-line flag names to config keys.
var FlagKeys = map[string]string{
	"url":          "lrs.url",
	"port":         "lrs.port",
	"auth":         "lrs.auth",
	"headers":      "lrs.headers",
	"params":       "lrs.params",
	"timeout":      "lrs.timeout",
	"output-dir":   "output.dir",
	"prefix":       "output.prefix",
	"db":           "store.path",
	"metrics-file": "metrics.file",
}

// RegisterFlags defines the flags listed in FlagKeys on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("url", "", "LRS base URL")
	fs.Int("port", 0, "LRS port")
	fs.String("auth", "", "LRS credentials as user:password")
	fs.StringSlice("headers", nil, "extra request headers as KEY=VALUE")
	fs.StringSlice("params", nil, "extra query parameters as KEY=VALUE")
	fs.Duration("timeout", 0, "per-request timeout")
	fs.String("output-dir", "", "directory for weekly feature files")
	fs.String("prefix", "", "feature file name prefix")
	fs.String("db", "", "SQLite cache path")
	fs.String("metrics-file", "", "Prometheus textfile to write after a run")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads configuration. It validates only the output settings; call
// ValidateLRS before contacting the LRS.
func Load(opts Options) (Config, error) {
	envFiles := opts.EnvFiles
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("read env file %s: %w", f, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("lrs.auth", "testsuite:password")
	v.SetDefault("lrs.headers", []string{"X-Experience-API-Version=1.0.3"})
	v.SetDefault("lrs.params", []string{})
	v.SetDefault("lrs.timeout", "60s")
	v.SetDefault("output.dir", ".")
	v.SetDefault("output.prefix", "logSP31")

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", opts.ConfigFile, err)
		}
	}

	if opts.Flags != nil {
		for flag, key := range FlagKeys {
			if f := opts.Flags.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", flag, err)
				}
			}
		}
	}

	user, password, err := ParseAuth(v.GetString("lrs.auth"))
	if err != nil {
		return Config{}, err
	}
	headers, err := ParseVars(v.GetStringSlice("lrs.headers"))
	if err != nil {
		return Config{}, fmt.Errorf("headers: %w", err)
	}
	params, err := ParseVars(v.GetStringSlice("lrs.params"))
	if err != nil {
		return Config{}, fmt.Errorf("params: %w", err)
	}
	timeout, err := time.ParseDuration(v.GetString("lrs.timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid lrs timeout: %w", err)
	}

	cfg := Config{
		LRS: LRS{
			URL:      v.GetString("lrs.url"),
			Port:     v.GetInt("lrs.port"),
			User:     user,
			Password: password,
			Headers:  headers,
			Params:   params,
			Timeout:  timeout,
		},
		Output: Output{
			Dir:    v.GetString("output.dir"),
			Prefix: v.GetString("output.prefix"),
		},
		Store:   Store{Path: v.GetString("store.path")},
		Metrics: Metrics{File: v.GetString("metrics.file")},
	}

	if err := validate.Struct(cfg.Output); err != nil {
		return Config{}, fieldErrors("output", err)
	}
	return cfg, nil
}

// ValidateLRS checks the settings needed to contact the LRS.
func (c Config) ValidateLRS() error {
	if err := validate.Struct(c.LRS); err != nil {
		return fieldErrors("lrs", err)
	}
	return nil
}

// fieldErrors rewrites validator errors as "section.field: tag" messages.
func fieldErrors(section string, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s.%s: failed %q", section, strings.ToLower(fe.Field()), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// ParseVars parses KEY=VALUE items into a map.
func ParseVars(items []string) (map[string]string, error) {
	out := make(map[string]string, len(items))
	for _, item := range items {
		key, value, ok := strings.Cut(item, "=")
		if !ok || key == "" || strings.Contains(value, "=") {
			return nil, fmt.Errorf("cannot parse %q: required format is KEY=VALUE", item)
		}
		out[key] = value
	}
	return out, nil
}

// ParseAuth splits user:password. Both parts must be non-empty.
func ParseAuth(s string) (user, password string, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("cannot parse auth %q: use user:password", s)
	}
	if parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("empty user or password in auth: use user:password")
	}
	return parts[0], parts[1], nil
}
