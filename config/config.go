package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "parrot.yaml"

type Duration time.Duration

func (d Duration) ToDuration() time.Duration { return time.Duration(d) }

// UnmarshalYAML accepts "5s", "250ms", or an integer number of seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		*d = 0
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a scalar")
	}
	switch value.Tag {
	case "!!int":
		i, err := strconv.ParseInt(value.Value, 10, 64)
		if err != nil {
			return err
		}
		*d = Duration(time.Duration(i) * time.Second)
		return nil
	default:
		if value.Value == "" {
			*d = 0
			return nil
		}
		if dur, err := time.ParseDuration(value.Value); err == nil {
			*d = Duration(dur)
			return nil
		}
		if i, err := strconv.ParseInt(value.Value, 10, 64); err == nil {
			*d = Duration(time.Duration(i) * time.Second)
			return nil
		}
		return fmt.Errorf("invalid duration: %q", value.Value)
	}
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Audio    AudioConfig    `yaml:"audio"`
	Speech   SpeechConfig   `yaml:"speech"`
	Voice    VoiceConfig    `yaml:"voice"`
	Practice PracticeConfig `yaml:"practice"`
	LogLevel string         `yaml:"log_level"`
}

type ServerConfig struct {
	BaseURL      string   `yaml:"base_url"`
	Timeout      Duration `yaml:"timeout"`
	CSRFCookie   string   `yaml:"csrf_cookie"`
	CSRFHeader   string   `yaml:"csrf_header"`
	CSRFTokenEnv string   `yaml:"csrf_token_env"`
}

type AudioConfig struct {
	Format         string `yaml:"format"` // wav or flac
	Device         string `yaml:"device"`
	Beeps          bool   `yaml:"beeps"`
	KeepRecordings bool   `yaml:"keep_recordings"`
	RecordingsDir  string `yaml:"recordings_dir"`
}

// SpeechConfig drives live recognition.
type SpeechConfig struct {
	APIKeyEnv       string   `yaml:"api_key_env"`
	URL             string   `yaml:"url"`
	Model           string   `yaml:"model"`
	Language        string   `yaml:"language"`
	MaxRestarts     int      `yaml:"max_restarts"`
	RestartBackoff  Duration `yaml:"restart_backoff"`
	FinalizeTimeout Duration `yaml:"finalize_timeout"`
}

// VoiceConfig drives sentence read-aloud.
type VoiceConfig struct {
	APIKeyEnv    string   `yaml:"api_key_env"`
	BaseURL      string   `yaml:"base_url"`
	Model        string   `yaml:"model"`
	Voice        string   `yaml:"voice"`
	Speed        float64  `yaml:"speed"`
	Timeout      Duration `yaml:"timeout"`
	CacheDir     string   `yaml:"cache_dir"`
	MaxTextChars int      `yaml:"max_text_chars"`
}

type PracticeConfig struct {
	Difficulty      string   `yaml:"difficulty"`
	SilenceWarn     Duration `yaml:"silence_warn"`
	SilenceAutoStop Duration `yaml:"silence_auto_stop"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			BaseURL:      "http://localhost:8000",
			Timeout:      Duration(30 * time.Second),
			CSRFCookie:   "csrftoken",
			CSRFHeader:   "X-CSRFToken",
			CSRFTokenEnv: "PARROT_CSRF_TOKEN",
		},
		Audio: AudioConfig{
			Format:         "wav",
			Beeps:          true,
			KeepRecordings: true,
		},
		Speech: SpeechConfig{
			APIKeyEnv:       "DEEPGRAM_API_KEY",
			Model:           "nova-3",
			Language:        "en-US",
			MaxRestarts:     3,
			RestartBackoff:  Duration(250 * time.Millisecond),
			FinalizeTimeout: Duration(2 * time.Second),
		},
		Voice: VoiceConfig{
			APIKeyEnv:    "OPENAI_API_KEY",
			Model:        "tts-1",
			Voice:        "nova",
			Speed:        1.0,
			Timeout:      Duration(30 * time.Second),
			MaxTextChars: 500,
		},
		Practice: PracticeConfig{
			Difficulty:      "all",
			SilenceWarn:     Duration(8 * time.Second),
			SilenceAutoStop: Duration(30 * time.Second),
		},
		LogLevel: "info",
	}
}

// Load reads path over the defaults. The returned config is normalized even
// when err is non-nil, so a missing file can be treated as "use defaults".
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		cfg.normalize()
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		cfg = Default()
		cfg.normalize()
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	d := Default()
	c.Server.BaseURL = strings.TrimRight(strings.TrimSpace(c.Server.BaseURL), "/")
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = d.Server.BaseURL
	}
	if c.Server.Timeout <= 0 {
		c.Server.Timeout = d.Server.Timeout
	}
	if c.Server.CSRFCookie == "" {
		c.Server.CSRFCookie = d.Server.CSRFCookie
	}
	if c.Server.CSRFHeader == "" {
		c.Server.CSRFHeader = d.Server.CSRFHeader
	}
	if c.Audio.Format == "" {
		c.Audio.Format = d.Audio.Format
	}
	if c.Audio.RecordingsDir == "" {
		c.Audio.RecordingsDir = filepath.Join(cacheRoot(), "recordings")
	}
	if c.Speech.APIKeyEnv == "" {
		c.Speech.APIKeyEnv = d.Speech.APIKeyEnv
	}
	if c.Speech.Language == "" {
		c.Speech.Language = d.Speech.Language
	}
	if c.Speech.MaxRestarts < 0 {
		c.Speech.MaxRestarts = 0
	}
	if c.Speech.RestartBackoff <= 0 {
		c.Speech.RestartBackoff = d.Speech.RestartBackoff
	}
	if c.Speech.FinalizeTimeout <= 0 {
		c.Speech.FinalizeTimeout = d.Speech.FinalizeTimeout
	}
	if c.Voice.APIKeyEnv == "" {
		c.Voice.APIKeyEnv = d.Voice.APIKeyEnv
	}
	if c.Voice.Speed <= 0 {
		c.Voice.Speed = d.Voice.Speed
	}
	if c.Voice.Timeout <= 0 {
		c.Voice.Timeout = d.Voice.Timeout
	}
	if c.Voice.CacheDir == "" {
		c.Voice.CacheDir = filepath.Join(cacheRoot(), "tts")
	}
	if c.Voice.MaxTextChars <= 0 {
		c.Voice.MaxTextChars = d.Voice.MaxTextChars
	}
	if c.Practice.Difficulty == "" {
		c.Practice.Difficulty = d.Practice.Difficulty
	}
	if c.Practice.SilenceWarn <= 0 {
		c.Practice.SilenceWarn = d.Practice.SilenceWarn
	}
	if c.Practice.SilenceAutoStop < c.Practice.SilenceWarn {
		c.Practice.SilenceAutoStop = d.Practice.SilenceAutoStop
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
}

func cacheRoot() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "parrot")
}

// Secret reads a credential from the named environment variable.
func Secret(env string) string {
	if env == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(env))
}
