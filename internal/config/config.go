// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g.
// SCALPEL_EDITOR_SERVER_ADDR.
const EnvPrefix = "SCALPEL_EDITOR"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Interface is read access to the application configuration.
type Interface interface {
	Logger() LoggerConfig
	Editor() EditorConfig
	Server() ServerConfig
	Preview() PreviewConfig

	SetServerAddr(addr string)
	SetPreviewHeadless(b bool)
}

// Config holds the whole application configuration.
type Config struct {
	LoggerCfg  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	EditorCfg  EditorConfig  `mapstructure:"editor" yaml:"editor"`
	ServerCfg  ServerConfig  `mapstructure:"server" yaml:"server"`
	PreviewCfg PreviewConfig `mapstructure:"preview" yaml:"preview"`
}

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) Editor() EditorConfig   { return c.EditorCfg }
func (c *Config) Server() ServerConfig   { return c.ServerCfg }
func (c *Config) Preview() PreviewConfig { return c.PreviewCfg }

func (c *Config) SetServerAddr(addr string) { c.ServerCfg.Addr = addr }
func (c *Config) SetPreviewHeadless(b bool) { c.PreviewCfg.Headless = b }

// LoggerConfig configures the process logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig names the console color of each level.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

func (l LoggerConfig) Validate() error {
	switch l.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logger.format must be json or console, got %q", l.Format)
	}
	if l.LogFile != "" && l.MaxSize <= 0 {
		return fmt.Errorf("logger.max_size must be positive when log_file is set")
	}
	return nil
}

// EditorConfig tunes the guest runtime and the document store.
type EditorConfig struct {
	DebounceMs      int     `mapstructure:"debounce_ms" yaml:"debounce_ms"`
	MinSize         float64 `mapstructure:"min_size" yaml:"min_size"`
	ImageMaxWidth   float64 `mapstructure:"image_max_width" yaml:"image_max_width"`
	InsertX         float64 `mapstructure:"insert_x" yaml:"insert_x"`
	InsertY         float64 `mapstructure:"insert_y" yaml:"insert_y"`
	DuplicateOffset float64 `mapstructure:"duplicate_offset" yaml:"duplicate_offset"`
	// Canvas is a CSS selector for the root editable region; empty means
	// the body.
	Canvas        string        `mapstructure:"canvas" yaml:"canvas"`
	HistoryDepth  int           `mapstructure:"history_depth" yaml:"history_depth"`
	ImageTimeout  time.Duration `mapstructure:"image_timeout" yaml:"image_timeout"`
	ImageMaxBytes int64         `mapstructure:"image_max_bytes" yaml:"image_max_bytes"`
}

func (e EditorConfig) Validate() error {
	if e.DebounceMs <= 0 {
		return fmt.Errorf("editor.debounce_ms must be a positive integer")
	}
	if e.MinSize <= 0 {
		return fmt.Errorf("editor.min_size must be positive")
	}
	if e.ImageMaxWidth <= 0 {
		return fmt.Errorf("editor.image_max_width must be positive")
	}
	if e.HistoryDepth < 1 {
		return fmt.Errorf("editor.history_depth must be at least 1")
	}
	if e.ImageTimeout <= 0 {
		return fmt.Errorf("editor.image_timeout must be positive")
	}
	return nil
}

// ServerConfig configures the websocket bridge.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	MaxMessageBytes int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	RateLimit       float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst       int           `mapstructure:"rate_burst" yaml:"rate_burst"`
	PongWait        time.Duration `mapstructure:"pong_wait" yaml:"pong_wait"`
	WriteWait       time.Duration `mapstructure:"write_wait" yaml:"write_wait"`
	SendBuffer      int           `mapstructure:"send_buffer" yaml:"send_buffer"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

func (s ServerConfig) Validate() error {
	if s.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if s.RateLimit <= 0 || s.RateBurst <= 0 {
		return fmt.Errorf("server.rate_limit and server.rate_burst must be positive")
	}
	if s.PongWait <= s.WriteWait {
		return fmt.Errorf("server.pong_wait must exceed server.write_wait")
	}
	return nil
}

// PreviewConfig configures headless Chrome rendering.
type PreviewConfig struct {
	ExecPath   string        `mapstructure:"exec_path" yaml:"exec_path"`
	Headless   bool          `mapstructure:"headless" yaml:"headless"`
	DisableGPU bool          `mapstructure:"disable_gpu" yaml:"disable_gpu"`
	Args       []string      `mapstructure:"args" yaml:"args"`
	Width      int64         `mapstructure:"width" yaml:"width"`
	Height     int64         `mapstructure:"height" yaml:"height"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

func (p PreviewConfig) Validate() error {
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("preview.width and preview.height must be positive")
	}
	if p.Timeout <= 0 {
		return fmt.Errorf("preview.timeout must be positive")
	}
	return nil
}

// SetDefaults registers every default with v.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "scalpel-editor")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Editor --
	v.SetDefault("editor.debounce_ms", 50)
	v.SetDefault("editor.min_size", 10.0)
	v.SetDefault("editor.image_max_width", 400.0)
	v.SetDefault("editor.insert_x", 50.0)
	v.SetDefault("editor.insert_y", 50.0)
	v.SetDefault("editor.duplicate_offset", 20.0)
	v.SetDefault("editor.canvas", "")
	v.SetDefault("editor.history_depth", 100)
	v.SetDefault("editor.image_timeout", "10s")
	v.SetDefault("editor.image_max_bytes", 16<<20)

	// -- Server --
	v.SetDefault("server.addr", "127.0.0.1:8787")
	v.SetDefault("server.max_message_bytes", 4<<20)
	v.SetDefault("server.rate_limit", 50.0)
	v.SetDefault("server.rate_burst", 100)
	v.SetDefault("server.pong_wait", "60s")
	v.SetDefault("server.write_wait", "10s")
	v.SetDefault("server.send_buffer", 256)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.shutdown_timeout", "15s")

	// -- Preview --
	v.SetDefault("preview.exec_path", "")
	v.SetDefault("preview.headless", true)
	v.SetDefault("preview.disable_gpu", true)
	v.SetDefault("preview.args", []string{})
	v.SetDefault("preview.width", 1280)
	v.SetDefault("preview.height", 720)
	v.SetDefault("preview.timeout", "30s")
}

// NewDefaultConfig returns the configuration with nothing but defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	// Defaults alone always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Load reads file, or config.yaml from the working directory and from
// ~/.scalpel-editor when file is empty, layers environment overrides on top
// and validates the result. A missing default file is not an error.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)
	if file != "" {
		expanded, err := homedir.Expand(file)
		if err != nil {
			return nil, fmt.Errorf("expanding config path: %w", err)
		}
		v.SetConfigFile(expanded)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".scalpel-editor"))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}
	return NewConfigFromViper(v)
}

// NewConfigFromViper decodes and validates whatever v holds.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	for _, p := range []*string{&cfg.LoggerCfg.LogFile, &cfg.PreviewCfg.ExecPath} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return nil, fmt.Errorf("expanding %q: %w", *p, err)
		}
		*p = expanded
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	checks := []func() error{
		c.LoggerCfg.Validate, c.EditorCfg.Validate, c.ServerCfg.Validate, c.PreviewCfg.Validate,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}
	return nil
}
