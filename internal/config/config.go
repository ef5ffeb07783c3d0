package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// EnvPath names the environment variable that overrides the config path.
const EnvPath = "PAGEPRESS_CONFIG"

const defaultPath = "./pagepress.yaml"

type FetchConfig struct {
	TimeoutSec     int    `yaml:"timeout_sec"`
	DialTimeoutSec int    `yaml:"dial_timeout_sec"`
	MaxBodyBytes   int64  `yaml:"max_body_bytes"`
	UserAgent      string `yaml:"user_agent"`
}

// WorkersConfig sizes the independent worker pools.
type WorkersConfig struct {
	Extract    int `yaml:"extract"`
	Classify   int `yaml:"classify"`
	Verify     int `yaml:"verify"`
	PDFFetch   int `yaml:"pdf_fetch"`
	ImageFetch int `yaml:"image_fetch"`
}

type ClassifierConfig struct {
	MinScore        float64 `yaml:"min_score"`
	MaxCandidates   int     `yaml:"max_candidates"`
	ScriptScanLimit int     `yaml:"script_scan_limit"`
	ProbeBytes      int64   `yaml:"probe_bytes"`
	Strict          bool    `yaml:"strict"`
}

// BookConfig holds EPUB metadata. An empty Language is taken from the
// first document that declares one.
type BookConfig struct {
	Title      string `yaml:"title"`
	Language   string `yaml:"language"`
	Author     string `yaml:"author"`
	Identifier string `yaml:"identifier"`
}

type MongoConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Bucket     string `yaml:"bucket"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

type OutputConfig struct {
	Dir   string      `yaml:"dir"`
	Mongo MongoConfig `yaml:"mongo"`
}

type SMTPConfig struct {
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Username string   `yaml:"username"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
	Subject  string   `yaml:"subject"`
	Auth     string   `yaml:"auth"`
	TokenEnv string   `yaml:"token_env"`
}

type DeliveryConfig struct {
	Enabled         bool       `yaml:"enabled"`
	MaxAttachments  int        `yaml:"max_attachments"`
	MaxBatchBytes   int64      `yaml:"max_batch_bytes"`
	MaxMessageBytes int        `yaml:"max_message_bytes"`
	TimeoutSec      int        `yaml:"timeout_sec"`
	SMTP            SMTPConfig `yaml:"smtp"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type Config struct {
	Fetch      FetchConfig      `yaml:"fetch"`
	Workers    WorkersConfig    `yaml:"workers"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Book       BookConfig       `yaml:"book"`
	Output     OutputConfig     `yaml:"output"`
	Delivery   DeliveryConfig   `yaml:"delivery"`
	Log        LogConfig        `yaml:"log"`
	Server     ServerConfig     `yaml:"server"`
}

// Defaults returns a Config usable without any file.
func Defaults() Config {
	return Config{
		Fetch: FetchConfig{
			TimeoutSec:     30,
			DialTimeoutSec: 10,
			MaxBodyBytes:   100 << 20,
		},
		Workers: WorkersConfig{
			Extract:    3,
			Classify:   4,
			Verify:     3,
			PDFFetch:   2,
			ImageFetch: 6,
		},
		Classifier: ClassifierConfig{
			MinScore:        0.5,
			MaxCandidates:   6,
			ScriptScanLimit: 200_000,
			ProbeBytes:      1024,
		},
		Output: OutputConfig{
			Dir: ".",
			Mongo: MongoConfig{
				Database:   "pagepress",
				Bucket:     "artifacts",
				TimeoutSec: 30,
			},
		},
		Delivery: DeliveryConfig{
			MaxAttachments:  25,
			MaxBatchBytes:   25 << 20,
			MaxMessageBytes: 35 << 20,
			TimeoutSec:      120,
			SMTP: SMTPConfig{
				Port:     587,
				Auth:     "xoauth2",
				TokenEnv: "PAGEPRESS_SMTP_TOKEN",
			},
		},
		Log:    LogConfig{Level: "info", Format: "text"},
		Server: ServerConfig{Addr: ":8080"},
	}
}

// Load reads the file named by PAGEPRESS_CONFIG, or ./pagepress.yaml.
// A missing default file yields Defaults().
func Load() (Config, error) {
	path := os.Getenv(EnvPath)
	if path == "" {
		cfg, err := LoadConfig(defaultPath)
		if errors.Is(err, os.ErrNotExist) {
			return Defaults(), nil
		}
		return cfg, err
	}
	return LoadConfig(path)
}

// LoadConfig overlays the YAML file at path on Defaults() and validates
// the result.
func LoadConfig(path string) (Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var problems []string
	check := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}
	check(c.Fetch.TimeoutSec > 0, "fetch.timeout_sec must be positive")
	check(c.Fetch.MaxBodyBytes > 0, "fetch.max_body_bytes must be positive")
	w := c.Workers
	check(w.Extract > 0 && w.Classify > 0 && w.Verify > 0 && w.PDFFetch > 0 && w.ImageFetch > 0,
		"workers.* must all be positive")
	check(c.Classifier.MinScore >= 0 && c.Classifier.MinScore <= 1, "classifier.min_score must be within [0,1]")
	check(c.Delivery.MaxAttachments > 0, "delivery.max_attachments must be positive")
	check(c.Delivery.MaxBatchBytes > 0, "delivery.max_batch_bytes must be positive")
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("log.format %q is not text or json", c.Log.Format))
	}
	if c.Delivery.Enabled {
		s := c.Delivery.SMTP
		check(s.Host != "" && s.Port > 0, "delivery.smtp.host and port are required when delivery is enabled")
		check(s.From != "" && len(s.To) > 0, "delivery.smtp.from and to are required when delivery is enabled")
		check(s.TokenEnv != "", "delivery.smtp.token_env is required when delivery is enabled")
		auth := strings.ToLower(s.Auth)
		check(auth == "xoauth2" || auth == "plain", "delivery.smtp.auth must be xoauth2 or plain")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Seconds converts a config value in seconds to a Duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
