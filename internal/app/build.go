package app

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.aimuz.me/voicebridge/audiocapture"
	"go.aimuz.me/voicebridge/cache"
	"go.aimuz.me/voicebridge/config"
	"go.aimuz.me/voicebridge/langs"
	"go.aimuz.me/voicebridge/livetranslate"
	"go.aimuz.me/voicebridge/llm"
	"go.aimuz.me/voicebridge/stt"
	"go.aimuz.me/voicebridge/translate"
	"go.aimuz.me/voicebridge/tts"
)

// Build wires a Service from configuration. Engines that cannot run on this
// machine are kept but reported as not ready.
func Build(cfg *config.Config, version string) (*Service, error) {
	ttsEngine, err := tts.ParseEngine(cfg.TTS.Engine)
	if err != nil {
		return nil, err
	}
	catalog := langs.New(cfg.Language.Fallback)
	mic := audiocapture.NewCommandMicrophone(cfg.Audio.Recorder, MicrophoneConfig(cfg))

	providers, err := SpeechProviders(cfg)
	if err != nil {
		return nil, err
	}
	transcriber := stt.NewTranscriber(providers, cfg.Speech.MinTextLength)
	closers := []io.Closer{transcriber}

	translator, store, err := buildTranslator(cfg, catalog)
	if err != nil {
		_ = transcriber.Close()
		return nil, err
	}
	if store != nil {
		closers = append(closers, store)
	}

	speaker := buildSpeaker(cfg)

	session := livetranslate.NewSession(mic, transcriber, translator, speaker, livetranslate.Config{
		CaptureTimeout:    config.Seconds(cfg.Session.CaptureTimeout),
		CalibrateDuration: config.Seconds(cfg.Session.CalibrateDuration),
		UtteranceTimeout:  config.Seconds(cfg.Session.UtteranceTimeout),
		MaxWorkers:        cfg.Session.MaxWorkers,
		TTSEngine:         ttsEngine,
		AutoTranslate:     cfg.Session.AutoTranslate,
		HistorySize:       cfg.Session.HistorySize,
	})

	var ready []string
	for _, p := range providers {
		if p.IsReady() {
			ready = append(ready, p.Name())
		}
	}
	if len(ready) == 0 {
		slog.Warn("no speech recognition engine is ready", "configured", cfg.Speech.Engines)
	}

	return New(Deps{
		Catalog:       catalog,
		Microphone:    mic,
		Session:       session,
		Translator:    translator,
		Speaker:       speaker,
		TTSEngine:     ttsEngine,
		STTEngines:    ready,
		DefaultTarget: cfg.Language.DefaultTarget,
		Version:       version,
		Closers:       closers,
	}), nil
}

// MicrophoneConfig converts the audio section to a capture configuration.
func MicrophoneConfig(cfg *config.Config) audiocapture.Config {
	c := audiocapture.DefaultConfig()
	c.Device = cfg.Audio.Device
	c.SampleRate = cfg.Audio.SampleRate
	c.EnergyThreshold = cfg.Audio.EnergyThreshold
	c.DynamicEnergy = cfg.Audio.DynamicEnergy
	c.PauseThreshold = config.Seconds(cfg.Audio.PauseThreshold)
	c.PhraseTimeLimit = config.Seconds(cfg.Audio.PhraseTimeLimit)
	return c
}

// SpeechProviders creates recognition providers in the configured order.
func SpeechProviders(cfg *config.Config) ([]stt.Provider, error) {
	engines, err := cfg.SpeechEngines()
	if err != nil {
		return nil, err
	}

	providers := make([]stt.Provider, 0, len(engines))
	for _, e := range engines {
		switch e {
		case stt.EngineWhisperLocal:
			w, err := WhisperLocal(cfg)
			if err != nil {
				return nil, err
			}
			if !w.IsReady() {
				slog.Warn("whisper model or binary missing, run setup", "model", w.ModelPath(), "binary", w.HasBinary())
			}
			providers = append(providers, w)
		case stt.EngineWhisperAPI:
			providers = append(providers, stt.NewWhisperAPI(stt.WhisperAPIConfig{
				APIKey:  cfg.Speech.API.APIKey,
				BaseURL: cfg.Speech.API.BaseURL,
				Model:   cfg.Speech.API.Model,
			}))
		case stt.EnginePocketSphinx:
			providers = append(providers, stt.NewPocketSphinx(stt.PocketSphinxConfig{
				BinPath:   cfg.Speech.Sphinx.BinPath,
				HMM:       cfg.Speech.Sphinx.HMM,
				Dict:      cfg.Speech.Sphinx.Dict,
				LM:        cfg.Speech.Sphinx.LM,
				Languages: cfg.Speech.Sphinx.Languages,
			}))
		}
	}
	return providers, nil
}

// WhisperLocal creates the whisper.cpp provider from configuration.
func WhisperLocal(cfg *config.Config) (*stt.WhisperLocal, error) {
	w, err := stt.NewWhisperLocal(stt.WhisperLocalConfig{
		ModelSize: cfg.Speech.Whisper.ModelSize,
		ModelDir:  cfg.Speech.Whisper.ModelDir,
		BinPath:   cfg.Speech.Whisper.BinPath,
		Threads:   cfg.Speech.Whisper.Threads,
	})
	if err != nil {
		return nil, fmt.Errorf("init whisper local: %w", err)
	}
	return w, nil
}

// Translator creates the text translator without a persistent cache.
func Translator(cfg *config.Config) (*translate.Translator, error) {
	t, _, err := buildTranslator(cfg, langs.New(cfg.Language.Fallback))
	return t, err
}

func buildTranslator(cfg *config.Config, catalog *langs.Catalog) (*translate.Translator, *cache.Store, error) {
	tc := cfg.Translation
	completer, err := llm.NewCompleter(llm.Config{
		Provider:        llm.Provider(tc.Provider),
		APIKey:          tc.APIKey,
		BaseURL:         tc.BaseURL,
		Model:           tc.Model,
		MaxTokens:       tc.MaxTokens,
		Temperature:     tc.Temperature,
		DisableThinking: tc.DisableThinking,
		Timeout:         config.Seconds(tc.Timeout),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init translation client: %w", err)
	}

	var store *cache.Store
	if tc.CacheDir != "" {
		store, err = cache.New(tc.CacheDir)
		if err != nil {
			// Continue with the in-memory tier only.
			slog.Error("init translation cache", "path", tc.CacheDir, "error", err)
			store = nil
		} else {
			slog.Info("translation cache initialized", "path", tc.CacheDir)
		}
	}

	svc := translate.NewLLMService(completer, tc.Provider, tc.SystemPrompt)
	t := translate.New(svc, translate.Options{
		MaxRetries: tc.MaxRetries,
		RetryDelay: config.Seconds(tc.RetryDelay),
		CacheSize:  tc.CacheSize,
		Store:      store,
		StoreTTL:   time.Duration(tc.CacheTTLHours) * time.Hour,
		Detector:   translate.NewLinguaDetector(catalog.Codes()),
	})
	return t, store, nil
}

func buildSpeaker(cfg *config.Config) *tts.Speaker {
	var remote, local tts.Synthesizer
	if cfg.TTS.Remote.APIKey != "" {
		remote = tts.NewRemote(tts.RemoteConfig{
			APIKey:  cfg.TTS.Remote.APIKey,
			BaseURL: cfg.TTS.Remote.BaseURL,
			Model:   cfg.TTS.Remote.Model,
			Voice:   cfg.TTS.Voice,
			Slow:    cfg.TTS.Slow,
		})
	} else {
		slog.Warn("remote speech synthesis disabled, no api key")
	}

	l := tts.NewLocal(tts.LocalConfig{
		BinPath: cfg.TTS.LocalBin,
		Rate:    cfg.TTS.Rate,
		Volume:  cfg.TTS.Volume,
	})
	if l.Available() {
		local = l
	} else {
		slog.Warn("local speech synthesis disabled, binary not found", "binary", cfg.TTS.LocalBin)
	}
	return tts.NewSpeaker(remote, local)
}
