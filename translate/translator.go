// Package translate turns recognized text into the target language with
// bounded retries and a two-tier cache.
package translate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.aimuz.me/voicebridge/cache"
	"go.aimuz.me/voicebridge/internal/metrics"
)

// Default retry and cache settings.
const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = time.Second
)

var (
	// ErrNothingToTranslate is returned for empty or whitespace-only input.
	ErrNothingToTranslate = errors.New("nothing to translate")
	// ErrFailed is returned once every attempt has failed.
	ErrFailed = errors.New("translation failed")
)

// Service is a remote translation capability. It is called without any
// retry or caching of its own.
type Service interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// Detector guesses the language of a text.
type Detector interface {
	Detect(text string) (code string, ok bool)
}

// Options configures a Translator. Zero values select the defaults.
type Options struct {
	MaxRetries int
	RetryDelay time.Duration
	CacheSize  int

	// Store is an optional persistent cache tier.
	Store *cache.Store
	// StoreTTL defaults to cache.DefaultTTL.
	StoreTTL time.Duration

	Detector Detector
}

// Translator wraps a Service with retry and caching.
// Zero value is not useful; create via New.
type Translator struct {
	svc      Service
	detector Detector
	lru      *cache.LRU
	store    *cache.Store
	storeTTL time.Duration

	maxRetries int
	retryDelay time.Duration
}

// New creates a Translator around svc.
func New(svc Service, opts Options) *Translator {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.StoreTTL <= 0 {
		opts.StoreTTL = cache.DefaultTTL
	}

	return &Translator{
		svc:        svc,
		detector:   opts.Detector,
		lru:        cache.NewLRU(opts.CacheSize),
		store:      opts.Store,
		storeTTL:   opts.StoreTTL,
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
	}
}

// Translate translates text from source to target.
//
// A cached result for the exact (text, source, target) tuple is returned
// without calling the service. Otherwise the service is tried up to
// MaxRetries times with RetryDelay between attempts.
func (t *Translator) Translate(ctx context.Context, text, source, target string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrNothingToTranslate
	}

	key := cache.Key{Text: text, Source: source, Target: target}
	if out, ok := t.cached(key); ok {
		return out, nil
	}

	var lastErr error
	for attempt := 1; attempt <= t.maxRetries; attempt++ {
		out, err := t.svc.Translate(ctx, text, source, target)
		if err == nil {
			out = strings.TrimSpace(out)
			t.remember(key, out)
			return out, nil
		}

		lastErr = err
		metrics.RecordEngineFailure("translate", engineName(t.svc))
		slog.Warn("translation attempt failed",
			"attempt", attempt,
			"max_attempts", t.maxRetries,
			"error", err,
		)

		if attempt == t.maxRetries {
			break
		}
		if err := sleep(ctx, t.retryDelay); err != nil {
			return "", fmt.Errorf("%w: %w", ErrFailed, err)
		}
	}

	return "", fmt.Errorf("%w after %d attempts: %w", ErrFailed, t.maxRetries, lastErr)
}

// TranslateBatch translates each text independently. Failed items are
// returned as empty strings.
func (t *Translator) TranslateBatch(ctx context.Context, texts []string, source, target string) []string {
	out := make([]string, len(texts))
	for i, text := range texts {
		res, err := t.Translate(ctx, text, source, target)
		if err != nil {
			if !errors.Is(err, ErrNothingToTranslate) {
				slog.Warn("batch item translation failed", "index", i, "error", err)
			}
			continue
		}
		out[i] = res
	}
	return out
}

// Forget drops the cached translation of text from both tiers, so the next
// request reaches the service again.
func (t *Translator) Forget(text, source, target string) error {
	key := cache.Key{Text: text, Source: source, Target: target}
	t.lru.Remove(key)
	if t.store == nil {
		return nil
	}
	if err := t.store.Delete(cache.KeyFor(key)); err != nil {
		return fmt.Errorf("forget translation: %w", err)
	}
	return nil
}

// ClearMemory empties the in-memory tier. The persistent store is kept.
func (t *Translator) ClearMemory() int {
	n := t.lru.Len()
	t.lru.Purge()
	return n
}

// DetectLanguage guesses the language of text in a single attempt.
func (t *Translator) DetectLanguage(ctx context.Context, text string) (string, bool) {
	if t.detector == nil || strings.TrimSpace(text) == "" {
		return "", false
	}
	if ctx.Err() != nil {
		return "", false
	}
	return t.detector.Detect(text)
}

func (t *Translator) cached(key cache.Key) (string, bool) {
	if out, ok := t.lru.Get(key); ok {
		metrics.RecordCacheLookup("memory", true)
		return out, true
	}
	metrics.RecordCacheLookup("memory", false)

	if t.store == nil {
		return "", false
	}

	entry, ok := t.store.Get(cache.KeyFor(key))
	metrics.RecordCacheLookup("disk", ok)
	if !ok {
		return "", false
	}

	t.lru.Add(key, entry.Text)
	return entry.Text, true
}

func (t *Translator) remember(key cache.Key, out string) {
	t.lru.Add(key, out)

	if t.store == nil {
		return
	}

	entry := &cache.Entry{
		Text:      out,
		Engine:    engineName(t.svc),
		CreatedAt: time.Now(),
	}
	if err := t.store.Set(cache.KeyFor(key), entry, t.storeTTL); err != nil {
		slog.Debug("persist translation failed", "error", err)
	}
}

func engineName(svc Service) string {
	if n, ok := svc.(interface{ Name() string }); ok {
		return n.Name()
	}
	return "unknown"
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
