// Package config layers defaults, an optional YAML file, the environment
// (including a .env file) and command-line flags into one Config.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"shree/internal/gate"
	"shree/internal/script"
)

type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Runner  RunnerConfig  `mapstructure:"runner"`
	Pump    PumpConfig    `mapstructure:"pump"`
	Confirm ConfirmConfig `mapstructure:"confirm"`
	History HistoryConfig `mapstructure:"history"`
	Voice   VoiceConfig   `mapstructure:"voice"`
	Speech  SpeechConfig  `mapstructure:"speech"`
	OpenAI  OpenAIConfig  `mapstructure:"openai"`
	Browser string        `mapstructure:"browser"`
	Socket  string        `mapstructure:"socket"`
	Bus     BusConfig     `mapstructure:"bus"`

	// Viper stays live so script paths are re-read on every run.
	Viper *viper.Viper `mapstructure:"-"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type RunnerConfig struct {
	Interpreter string   `mapstructure:"interpreter"`
	Elevator    []string `mapstructure:"elevator"`
	Elevate     bool     `mapstructure:"elevate"`
}

type PumpConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	DrainGrace   time.Duration `mapstructure:"drain_grace"`
}

type ConfirmConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	OnTimeout string        `mapstructure:"on_timeout"`
}

// Default is the decision an unanswered confirmation resolves to.
func (c ConfirmConfig) Default() gate.Decision {
	d, _ := gate.ParseDecision(c.OnTimeout)
	return d
}

type HistoryConfig struct {
	Path string `mapstructure:"path"`
}

type VoiceConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Model   string `mapstructure:"model"`
	Lang    string `mapstructure:"language"`
	Chime   string `mapstructure:"chime"`
	Duck    bool   `mapstructure:"duck"`
	// Input transcribes a recorded file instead of the microphone.
	Input string `mapstructure:"input"`
}

type SpeechConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Lang    string `mapstructure:"language"`
	Rate    int    `mapstructure:"rate"`
}

type OpenAIConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
	Proxy  string `mapstructure:"proxy"`
}

type BusConfig struct {
	URL   string `mapstructure:"url"`
	Shard string `mapstructure:"shard"`
}

// flagKeys maps flag names to configuration keys.
var flagKeys = map[string]string{
	"log":             "log.level",
	"proxy":           "openai.proxy",
	"voice":           "voice.enabled",
	"model":           "voice.model",
	"input-audio":     "voice.input",
	"speak":           "speech.enabled",
	"socket":          "socket",
	"bus":             "bus.url",
	"confirm-timeout": "confirm.timeout",
	"on-timeout":      "confirm.on_timeout",
	"history":         "history.path",
}

// Flags registers the shared command-line flags on fs.
func Flags(fs *cli.FlagSet) {
	fs.StringP("env", "e", ".env", "Env file path")
	fs.StringP("config", "c", "", "Config file (YAML)")
	fs.StringP("log", "l", "info", "Log level")
	fs.StringP("proxy", "p", "", "SOCKS5 proxy for API calls")
	fs.Bool("voice", false, "Listen on the microphone")
	fs.String("model", "", "Whisper model path")
	fs.String("input-audio", "", "Transcribe this audio file as the first command")
	fs.Bool("speak", false, "Speak notices aloud")
	fs.String("socket", "", "Control socket path")
	fs.String("bus", "", "Hub websocket URL")
	fs.Duration("confirm-timeout", gate.DefaultTimeout, "How long to wait for a yes/no answer")
	fs.String("on-timeout", "clear", "Answer used when nobody replies (clear|keep)")
	fs.Bool("no-sudo", false, "Run scripts without sudo")
	fs.String("history", "", "History log path")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")

	v.SetDefault("runner.interpreter", "bash")
	v.SetDefault("runner.elevator", []string{"sudo"})
	v.SetDefault("runner.elevate", true)

	v.SetDefault("pump.poll_interval", 100*time.Millisecond)
	v.SetDefault("pump.drain_grace", 500*time.Millisecond)

	v.SetDefault("confirm.timeout", gate.DefaultTimeout)
	v.SetDefault("confirm.on_timeout", "clear")

	v.SetDefault("history.path", defaultHistoryPath())

	v.SetDefault("voice.enabled", false)
	v.SetDefault("voice.model", "models/ggml-base.en.bin")
	v.SetDefault("voice.language", "en")
	v.SetDefault("voice.chime", "")
	v.SetDefault("voice.duck", true)

	v.SetDefault("speech.enabled", false)
	v.SetDefault("speech.language", "en")
	v.SetDefault("speech.rate", 0)

	v.SetDefault("openai.model", "")
	v.SetDefault("openai.proxy", "")

	v.SetDefault("browser", "xdg-open")
	v.SetDefault("bus.url", "")
	v.SetDefault("bus.shard", "shree")

	for _, n := range script.All() {
		v.SetDefault(n.Key(), "")
	}
}

// Load builds the configuration. fs must have been set up with Flags and
// parsed.
func Load(fs *cli.FlagSet) (*Config, error) {
	if envFile, _ := fs.GetString("env"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SHREE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The helper scripts and the API key keep their conventional names.
	for _, n := range script.All() {
		_ = v.BindEnv(n.Key(), n.Env(), "SHREE_"+strings.ToUpper(strings.ReplaceAll(n.Key(), ".", "_")))
	}
	_ = v.BindEnv("openai.api_key", "OPENAI_API_KEY", "SHREE_OPENAI_API_KEY")

	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("shree")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "shree"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil || key == "" {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", name, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if noSudo, _ := fs.GetBool("no-sudo"); noSudo {
		cfg.Runner.Elevate = false
	}
	cfg.Viper = v

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var errs []error

	if _, ok := LogLevels[strings.ToLower(c.Log.Level)]; !ok {
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	if d, ok := gate.ParseDecision(c.Confirm.OnTimeout); !ok || d == gate.Undecided {
		errs = append(errs, fmt.Errorf("confirm.on_timeout %q must be clear or keep", c.Confirm.OnTimeout))
	}
	if c.Runner.Interpreter == "" {
		errs = append(errs, errors.New("runner.interpreter is required"))
	}
	if c.Bus.URL != "" && c.Bus.Shard == "" {
		errs = append(errs, errors.New("bus.shard is required when bus.url is set"))
	}
	return errors.Join(errs...)
}

func defaultHistoryPath() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "shree", "history.log")
	}
	return "shree_history.log"
}
