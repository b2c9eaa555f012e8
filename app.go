package main

import (
	"context"
	"fmt"
	"os"

	"parrot/api"
	"parrot/audio"
	"parrot/config"
	"parrot/doctor"
	"parrot/encoder"
	"parrot/log"
	"parrot/practice"
	"parrot/transcriber"
	"parrot/tts"
)

// services are the outside collaborators of a practice session. recognizer
// and voice are nil when their API key is not configured.
type services struct {
	server     *api.Client
	recognizer transcriber.Recognizer
	voice      *tts.Client
	player     audio.Player
}

func newServices(cfg config.Config, player audio.Player) (*services, error) {
	server, err := api.NewClient(api.Config{
		BaseURL:    cfg.Server.BaseURL,
		Timeout:    cfg.Server.Timeout.ToDuration(),
		CSRFCookie: cfg.Server.CSRFCookie,
		CSRFHeader: cfg.Server.CSRFHeader,
		CSRFToken:  config.Secret(cfg.Server.CSRFTokenEnv),
		UserAgent:  "parrot/" + version,
	})
	if err != nil {
		return nil, err
	}
	s := &services{server: server, player: player}

	if key := config.Secret(cfg.Speech.APIKeyEnv); key != "" {
		s.recognizer = transcriber.NewDeepgram(key, cfg.Speech.URL)
	} else {
		log.Warnf("%s not set: live transcription disabled", cfg.Speech.APIKeyEnv)
	}

	if key := config.Secret(cfg.Voice.APIKeyEnv); key != "" {
		voice, err := tts.NewClient(tts.Config{
			APIKey:       key,
			BaseURL:      cfg.Voice.BaseURL,
			Model:        cfg.Voice.Model,
			Voice:        cfg.Voice.Voice,
			Speed:        cfg.Voice.Speed,
			Timeout:      cfg.Voice.Timeout.ToDuration(),
			CacheDir:     cfg.Voice.CacheDir,
			MaxTextChars: cfg.Voice.MaxTextChars,
		}, player, log.With("tts"))
		if err != nil {
			log.Warnf("speech synthesis disabled: %v", err)
		} else {
			s.voice = voice
		}
	} else {
		log.Warnf("%s not set: speech synthesis disabled", cfg.Voice.APIKeyEnv)
	}
	return s, nil
}

func streamConfig(cfg config.Config) transcriber.StreamConfig {
	return transcriber.StreamConfig{
		SampleRate: encoder.SampleRate,
		Channels:   encoder.Channels,
		Language:   cfg.Speech.Language,
		Model:      cfg.Speech.Model,
	}
}

func (s *services) recognizerName() string {
	if s.recognizer == nil {
		return "off"
	}
	return s.recognizer.Name()
}

func (s *services) voiceName() string {
	if s.voice == nil {
		return "off"
	}
	return s.voice.Name()
}

// prime fetches the CSRF cookie. Failure is logged; the first sentence
// fetch reports it to the user.
func (s *services) prime(ctx context.Context) {
	if err := s.server.Prime(ctx); err != nil {
		log.Warnf("server %s: %v", s.server.BaseURL(), err)
		return
	}
	if s.server.CSRFToken() == "" {
		log.Warnf("server %s set no CSRF cookie", s.server.BaseURL())
	}
}

func (s *services) controller(ctx context.Context, cfg config.Config, rec practice.Recorder, sink practice.EventSink, format encoder.Format, level api.Difficulty) *practice.Controller {
	opts := practice.Options{
		Recorder:        rec,
		Server:          s.server,
		Sink:            sink,
		Player:          s.player,
		Format:          format,
		Level:           level,
		SilenceWarn:     cfg.Practice.SilenceWarn.ToDuration(),
		SilenceAutoStop: cfg.Practice.SilenceAutoStop.ToDuration(),
	}
	if s.voice != nil {
		opts.Synthesizer = s.voice
	}
	if cfg.Audio.KeepRecordings {
		opts.RecordingsDir = cfg.Audio.RecordingsDir
	}
	if s.recognizer != nil {
		live := transcriber.LiveConfig{
			Stream:          streamConfig(cfg),
			MaxRestarts:     cfg.Speech.MaxRestarts,
			RestartBackoff:  cfg.Speech.RestartBackoff.ToDuration(),
			FinalizeTimeout: cfg.Speech.FinalizeTimeout.ToDuration(),
		}
		opts.NewTranscriber = func() practice.Transcriber {
			return transcriber.NewLive(s.recognizer, live)
		}
	}
	log.SessionStart(s.server.BaseURL(), s.recognizerName(), s.voiceName(), string(format))
	return practice.New(ctx, opts)
}

func captureConfig() audio.CaptureConfig {
	return audio.CaptureConfig{
		SampleRate: encoder.SampleRate,
		Channels:   encoder.Channels,
	}
}

func runDoctor(ctx context.Context, cfg config.Config) int {
	audioCtx, err := audio.NewContext()
	if err != nil {
		audioCtx = audio.Unavailable(err)
	}
	defer audioCtx.Close()

	device, err := resolveDevice(audioCtx, cfg.Audio.Device, false)
	if err != nil {
		log.Warnf("doctor: %v, using default device", err)
	}
	player := audio.NewPlayer()
	svc, err := newServices(cfg, player)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	opts := doctor.Options{
		Server:     svc.server,
		Audio:      audioCtx,
		Device:     device,
		Recognizer: svc.recognizer,
		Stream:     streamConfig(cfg),
	}
	if svc.voice != nil {
		opts.Synthesizer = svc.voice
	}
	return doctor.Run(ctx, opts)
}
