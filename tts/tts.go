package tts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/singleflight"

	"parrot/audio"
)

// OpenAI returns raw PCM as 24 kHz mono signed 16-bit little-endian.
const (
	pcmSampleRate = 24000
	pcmChannels   = 1
)

type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	Voice        string
	Speed        float64
	Timeout      time.Duration
	CacheDir     string
	MaxTextChars int
}

type Client struct {
	cfg    Config
	api    *openai.Client
	player audio.Player
	log    zerolog.Logger

	sf singleflight.Group
}

type Result struct {
	Path     string
	CacheHit bool
}

func NewClient(cfg Config, player audio.Player, log zerolog.Logger) (*Client, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		return nil, errors.New("missing OpenAI API key")
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.TTSModel1)
	}
	if cfg.Voice == "" {
		cfg.Voice = string(openai.VoiceNova)
	}
	if cfg.Speed <= 0 {
		cfg.Speed = 1.0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(os.TempDir(), "parrot-tts")
	}
	if cfg.MaxTextChars <= 0 {
		cfg.MaxTextChars = 500
	}
	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return nil, err
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Client{
		cfg:    cfg,
		api:    openai.NewClientWithConfig(oc),
		player: player,
		log:    log,
	}, nil
}

func (c *Client) Name() string { return "openai/" + c.cfg.Voice }

// Speak synthesizes text and plays it to completion.
func (c *Client) Speak(ctx context.Context, text string) error {
	res, err := c.Synthesize(ctx, text)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(res.Path)
	if err != nil {
		return fmt.Errorf("reading cached speech: %w", err)
	}
	c.log.Debug().Str("path", res.Path).Bool("cache_hit", res.CacheHit).Msg("speak")
	if c.player == nil {
		return nil
	}
	if err := c.player.Play(audio.Samples(data), pcmSampleRate, pcmChannels); err != nil {
		return fmt.Errorf("playing speech: %w", err)
	}
	return nil
}

// Synthesize returns the cached PCM file for text, calling the API on a miss.
func (c *Client) Synthesize(ctx context.Context, text string) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, errors.New("empty tts text")
	}
	if r := []rune(text); len(r) > c.cfg.MaxTextChars {
		text = string(r[:c.cfg.MaxTextChars])
	}

	key := c.cacheKey(text)
	finalPath := filepath.Join(c.cfg.CacheDir, key+".pcm")

	if fileExists(finalPath) {
		return Result{Path: finalPath, CacheHit: true}, nil
	}

	v, err, _ := c.sf.Do(key, func() (any, error) {
		if fileExists(finalPath) {
			return Result{Path: finalPath, CacheHit: true}, nil
		}

		start := time.Now()
		pcm, err := c.synthesize(ctx, text)
		if err != nil {
			return Result{}, err
		}
		c.log.Info().
			Int("chars", len(text)).
			Int("bytes", len(pcm)).
			Dur("took", time.Since(start)).
			Msg("tts synthesized")

		tmp := finalPath + ".tmp-" + uuid.NewString()
		if err := os.WriteFile(tmp, pcm, 0o644); err != nil {
			return Result{}, err
		}
		if err := os.Rename(tmp, finalPath); err != nil {
			_ = os.Remove(tmp)
			return Result{}, err
		}
		return Result{Path: finalPath}, nil
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

func (c *Client) synthesize(ctx context.Context, text string) ([]byte, error) {
	resp, err := c.api.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(c.cfg.Model),
		Input:          text,
		Voice:          openai.SpeechVoice(c.cfg.Voice),
		ResponseFormat: openai.SpeechResponseFormatPcm,
		Speed:          c.cfg.Speed,
	})
	if err != nil {
		return nil, fmt.Errorf("openai tts: %w", err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("openai tts read: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("empty audio response")
	}
	return data, nil
}

func (c *Client) cacheKey(text string) string {
	raw := c.cfg.Model + "|" + c.cfg.Voice + "|pcm|" + fmt.Sprintf("%.3f", c.cfg.Speed) + "|" + text
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !st.IsDir() && st.Size() > 0
}
