// Package config loads the source registry and service settings. Per-source
// resilience knobs live in a YAML registry file; service-wide settings come
// from environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"bioterminal/internal/domain/entity"
	"bioterminal/internal/infra/httppool"
	"bioterminal/internal/usecase/fetch"
	pkgconfig "bioterminal/pkg/config"
)

// Registry is the parsed source registry file.
type Registry struct {
	Pool    PoolConfig     `yaml:"pool"`
	Sources []SourceConfig `yaml:"sources"`
}

// PoolConfig holds the shared connection pool settings.
type PoolConfig struct {
	MaxConnections          int `yaml:"maxConnections"`
	MaxConnectionsPerOrigin int `yaml:"maxConnectionsPerOrigin"`
	AcquireTimeoutMs        int `yaml:"acquireTimeoutMs"`
	IdleTimeoutMs           int `yaml:"idleTimeoutMs"`
}

// HTTPPool converts the pool settings into a pool configuration. Zero-valued
// fields stay zero so the pool constructor applies its defaults.
func (pc PoolConfig) HTTPPool() httppool.Config {
	return httppool.Config{
		MaxGlobal:      pc.MaxConnections,
		MaxPerOrigin:   pc.MaxConnectionsPerOrigin,
		AcquireTimeout: time.Duration(pc.AcquireTimeoutMs) * time.Millisecond,
		IdleTimeout:    time.Duration(pc.IdleTimeoutMs) * time.Millisecond,
	}
}

// SourceConfig describes one source and its resilience settings.
type SourceConfig struct {
	ID      string         `yaml:"id"`
	Name    string         `yaml:"name"`
	URL     string         `yaml:"url"`
	Type    string         `yaml:"type"`
	Active  *bool          `yaml:"active"`
	Scraper *ScraperConfig `yaml:"scraper"`
	Fetch   FetchConfig    `yaml:"fetch"`
}

// ScraperConfig holds CSS selectors for press release sources.
type ScraperConfig struct {
	ItemSelector  string `yaml:"itemSelector"`
	TitleSelector string `yaml:"titleSelector"`
	DateSelector  string `yaml:"dateSelector"`
	URLSelector   string `yaml:"urlSelector"`
	DateFormat    string `yaml:"dateFormat"`
	URLPrefix     string `yaml:"urlPrefix"`
}

// FetchConfig holds per-source resilience settings. Zero values fall back to
// the stack defaults when converted.
type FetchConfig struct {
	FailureThreshold     int     `yaml:"failureThreshold"`
	SuccessThreshold     int     `yaml:"successThreshold"`
	ResetTimeoutMs       int     `yaml:"resetTimeoutMs"`
	CallTimeoutMs        int     `yaml:"callTimeoutMs"`
	RateMinPerSecond     float64 `yaml:"rateMinPerSecond"`
	RateMaxPerSecond     float64 `yaml:"rateMaxPerSecond"`
	RateInitialPerSecond float64 `yaml:"rateInitialPerSecond"`
	RateBurst            int     `yaml:"rateBurst"`
	CacheTtlMs           int     `yaml:"cacheTtlMs"`
	CacheMaxEntries      int     `yaml:"cacheMaxEntries"`
	MaxRetryAttempts     int     `yaml:"maxRetryAttempts"`
	RetryInitialDelayMs  int     `yaml:"retryInitialDelayMs"`
	RetryMaxDelayMs      int     `yaml:"retryMaxDelayMs"`
	RetryBackoffFactor   float64 `yaml:"retryBackoffFactor"`
}

// LoadRegistry reads and validates a source registry file.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}

	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}

	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return &reg, nil
}

// Validate checks the registry for structural problems. Failures match
// entity.ErrInvalidInput under errors.Is.
func (r *Registry) Validate() error {
	if err := r.validate(); err != nil {
		return fmt.Errorf("%s: %w", err, entity.ErrInvalidInput)
	}
	return nil
}

func (r *Registry) validate() error {
	if len(r.Sources) == 0 {
		return fmt.Errorf("registry has no sources")
	}

	seen := make(map[string]bool, len(r.Sources))
	for i, sc := range r.Sources {
		if sc.ID == "" {
			return fmt.Errorf("source %d: missing id", i)
		}
		if seen[sc.ID] {
			return fmt.Errorf("source %q: duplicate id", sc.ID)
		}
		seen[sc.ID] = true

		if sc.URL == "" {
			return fmt.Errorf("source %q: missing url", sc.ID)
		}
		switch sc.Type {
		case "", entity.SourceTypeRSS, entity.SourceTypeJSON:
		case entity.SourceTypePressRelease:
			if sc.Scraper == nil || sc.Scraper.ItemSelector == "" {
				return fmt.Errorf("source %q: press release sources need scraper selectors", sc.ID)
			}
		default:
			return fmt.Errorf("source %q: unknown type %q", sc.ID, sc.Type)
		}

		f := sc.Fetch
		if f.RateMinPerSecond < 0 || f.RateMaxPerSecond < 0 ||
			(f.RateMaxPerSecond > 0 && f.RateMinPerSecond > f.RateMaxPerSecond) {
			return fmt.Errorf("source %q: invalid rate bounds [%g, %g]", sc.ID, f.RateMinPerSecond, f.RateMaxPerSecond)
		}
		if f.RetryBackoffFactor < 0 || (f.RetryBackoffFactor > 0 && f.RetryBackoffFactor < 1) {
			return fmt.Errorf("source %q: retry backoff factor must be >= 1, got %g", sc.ID, f.RetryBackoffFactor)
		}
		for name, ms := range map[string]int{
			"resetTimeoutMs":      f.ResetTimeoutMs,
			"callTimeoutMs":       f.CallTimeoutMs,
			"cacheTtlMs":          f.CacheTtlMs,
			"retryInitialDelayMs": f.RetryInitialDelayMs,
			"retryMaxDelayMs":     f.RetryMaxDelayMs,
		} {
			if err := pkgconfig.ValidateNonNegativeDuration(time.Duration(ms) * time.Millisecond); err != nil {
				return fmt.Errorf("source %q: invalid %s: %w", sc.ID, name, err)
			}
		}
	}
	return nil
}

// Source converts the config entry into a domain source.
func (sc *SourceConfig) Source() *entity.Source {
	src := &entity.Source{
		ID:         sc.ID,
		Name:       sc.Name,
		URL:        sc.URL,
		SourceType: sc.Type,
		Active:     sc.Active == nil || *sc.Active,
	}
	if src.Name == "" {
		src.Name = sc.ID
	}
	if src.SourceType == "" {
		src.SourceType = entity.SourceTypeRSS
	}
	if sc.Scraper != nil {
		src.ScraperConfig = &entity.ScraperConfig{
			ItemSelector:  sc.Scraper.ItemSelector,
			TitleSelector: sc.Scraper.TitleSelector,
			DateSelector:  sc.Scraper.DateSelector,
			URLSelector:   sc.Scraper.URLSelector,
			DateFormat:    sc.Scraper.DateFormat,
			URLPrefix:     sc.Scraper.URLPrefix,
		}
	}
	return src
}

// StackConfig converts the fetch settings into a stack configuration.
// Zero-valued fields stay zero so the stack constructor applies its defaults.
func (sc *SourceConfig) StackConfig() fetch.StackConfig {
	f := sc.Fetch
	return fetch.StackConfig{
		FailureThreshold:     f.FailureThreshold,
		SuccessThreshold:     f.SuccessThreshold,
		ResetTimeout:         time.Duration(f.ResetTimeoutMs) * time.Millisecond,
		CallTimeout:          time.Duration(f.CallTimeoutMs) * time.Millisecond,
		RateMinPerSecond:     f.RateMinPerSecond,
		RateMaxPerSecond:     f.RateMaxPerSecond,
		RateInitialPerSecond: f.RateInitialPerSecond,
		RateBurst:            f.RateBurst,
		CacheTTL:             time.Duration(f.CacheTtlMs) * time.Millisecond,
		CacheMaxEntries:      f.CacheMaxEntries,
		MaxRetryAttempts:     f.MaxRetryAttempts,
		RetryInitialDelay:    time.Duration(f.RetryInitialDelayMs) * time.Millisecond,
		RetryMaxDelay:        time.Duration(f.RetryMaxDelayMs) * time.Millisecond,
		RetryBackoffFactor:   f.RetryBackoffFactor,
	}
}
