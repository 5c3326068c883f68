// Package config loads knoldeck's configuration.
//
// Precedence, highest first:
//  1. Command-line flags that were set explicitly
//  2. Environment variables prefixed with KNOLDECK_
//  3. The YAML file named by --config
//  4. Built-in defaults
//
// Environment variables map onto keys by section:
//
//	KNOLDECK_SCHEDULER_DESIRED_RETENTION -> scheduler.desired_retention
//	KNOLDECK_QUIET_HOURS_START           -> quiet_hours.start
//	KNOLDECK_REPOS_DIR                   -> repos_dir
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/conorfennell/knoldeck/internal/classifier"
	"github.com/conorfennell/knoldeck/internal/fsrs"
	"github.com/conorfennell/knoldeck/internal/micro"
	"github.com/conorfennell/knoldeck/internal/session"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

const envPrefix = "KNOLDECK_"

// sections are the nested top-level keys, longest first so that
// quiet_hours wins over a hypothetical "quiet".
var sections = []string{"quiet_hours", "classifier", "scheduler", "storage", "session", "micro", "http", "log"}

type Config struct {
	Storage    StorageConfig       `koanf:"storage"`
	Decks      []DeckSource        `koanf:"decks" validate:"dive"`
	ReposDir   string              `koanf:"repos_dir" validate:"required"`
	Scheduler  SchedulerConfig     `koanf:"scheduler"`
	Session    session.Config      `koanf:"session"`
	Micro      micro.Config        `koanf:"micro"`
	QuietHours micro.QuietHours    `koanf:"quiet_hours"`
	Classifier classifier.Keywords `koanf:"classifier"`
	HTTP       HTTPConfig          `koanf:"http"`
	Log        LogConfig           `koanf:"log"`
}

type StorageConfig struct {
	Path string `koanf:"path" validate:"required"`
}

// DeckSource is a deck folder or a git URL.
type DeckSource struct {
	Name string `koanf:"name"`
	Path string `koanf:"path" validate:"required"`
}

type SchedulerConfig struct {
	DesiredRetention float64 `koanf:"desired_retention" validate:"gt=0,lt=1"`
	Fuzz             bool    `koanf:"fuzz"`
	MaximumInterval  int     `koanf:"maximum_interval" validate:"min=1,max=36500"`
}

// Params returns engine parameters with the configured overrides.
func (s SchedulerConfig) Params() *fsrs.Params {
	p := fsrs.DefaultParams()
	p.DesiredRetention = s.DesiredRetention
	p.MaximumInterval = s.MaximumInterval
	return p
}

type HTTPConfig struct {
	Addr string `koanf:"addr" validate:"required"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// Default returns the built-in configuration.
func Default() Config {
	params := fsrs.DefaultParams()
	return Config{
		Storage:  StorageConfig{Path: "knoldeck.db"},
		ReposDir: "repos",
		Scheduler: SchedulerConfig{
			DesiredRetention: params.DesiredRetention,
			Fuzz:             true,
			MaximumInterval:  params.MaximumInterval,
		},
		Session:    session.DefaultConfig(),
		Micro:      micro.DefaultConfig(),
		QuietHours: micro.DefaultQuietHours(),
		Classifier: classifier.DefaultKeywords(),
		HTTP:       HTTPConfig{Addr: ":8080"},
		Log:        LogConfig{Level: "info", Format: "text"},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every section.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// flagKeys maps flag names onto config keys.
var flagKeys = map[string]string{
	"db":             "storage.path",
	"repos-dir":      "repos_dir",
	"retention":      "scheduler.desired_retention",
	"fuzz":           "scheduler.fuzz",
	"max-interval":   "scheduler.maximum_interval",
	"session-size":   "session.size",
	"weakness-focus": "session.weakness_focus",
	"hours-ahead":    "micro.hours_ahead",
	"max-challenges": "micro.max_challenges",
	"addr":           "http.addr",
	"log-level":      "log.level",
	"log-format":     "log.format",
}

// Flags returns the flag set Load reads. Defaults shown in help come from Default.
func Flags(name string) *pflag.FlagSet {
	d := Default()
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "Path to a YAML config file")
	fs.String("db", d.Storage.Path, "Path to the SQLite database file")
	fs.StringArray("deck", nil, "Deck source as path, git URL or name=path (repeatable)")
	fs.String("repos-dir", d.ReposDir, "Directory git-hosted decks are checked out into")
	fs.Float64("retention", d.Scheduler.DesiredRetention, "Desired retention between 0 and 1")
	fs.Bool("fuzz", d.Scheduler.Fuzz, "Spread intervals by up to 5% to avoid review clusters")
	fs.Int("max-interval", d.Scheduler.MaximumInterval, "Longest interval in days")
	fs.Int("session-size", d.Session.SessionSize, "Cards per session")
	fs.Float64("weakness-focus", d.Session.WeaknessFocus, "Share of a session spent on weak cards")
	fs.Int("hours-ahead", d.Micro.HoursAhead, "How far ahead micro challenges look for due cards")
	fs.Int("max-challenges", d.Micro.MaxChallenges, "Most micro challenges per run")
	fs.String("addr", d.HTTP.Addr, "HTTP listen address")
	fs.String("log-level", d.Log.Level, "Log level: debug, info, warn or error")
	fs.String("log-format", d.Log.Format, "Log format: text or json")
	return fs
}

// Load reads the configuration from an already parsed flag set built by Flags.
func Load(fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path, _ := fs.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	flags := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, interface{}) {
		key, ok := flagKeys[f.Name]
		if !ok || !f.Changed {
			return "", nil
		}
		return key, posflag.FlagVal(fs, f)
	})
	if err := k.Load(flags, nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	decks, _ := fs.GetStringArray("deck")
	for _, d := range decks {
		cfg.Decks = append(cfg.Decks, ParseDeck(d))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	for _, sec := range sections {
		if strings.HasPrefix(lower, sec+"_") {
			return sec + "." + strings.TrimPrefix(lower, sec+"_")
		}
	}
	return lower
}

// ParseDeck reads "name=path" or a bare path or URL. A bare source is named
// after its last path element.
func ParseDeck(s string) DeckSource {
	if name, path, ok := strings.Cut(s, "="); ok && name != "" && !strings.Contains(name, "/") {
		return DeckSource{Name: name, Path: path}
	}
	return DeckSource{Name: filepath.Base(strings.TrimSuffix(s, ".git")), Path: s}
}
