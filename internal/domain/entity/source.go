// Package entity defines the core domain entities and validation logic for the application.
// It contains the fundamental business objects such as Source and Record, along with
// their validation rules and domain-specific errors.
package entity

import (
	"errors"
	"fmt"
	"time"
)

// Source types supported by the fetch layer. The values match the `type`
// field in the source registry file.
const (
	SourceTypeRSS          = "rss"
	SourceTypePressRelease = "press_release"
	SourceTypeJSON         = "json"
)

// Source represents an upstream biotech news or data source.
// It contains the fetch URL, metadata, and per-source resilience settings.
type Source struct {
	ID            string
	Name          string
	URL           string
	SourceType    string         // rss, press_release, json
	ScraperConfig *ScraperConfig // Configuration for press release scrapers
	LastFetchedAt *time.Time
	Active        bool
}

// ScraperConfig holds configuration for press release scraping sources.
// The selectors address elements within each press release listing item.
type ScraperConfig struct {
	ItemSelector  string `json:"item_selector,omitempty"`
	TitleSelector string `json:"title_selector,omitempty"`
	DateSelector  string `json:"date_selector,omitempty"`
	URLSelector   string `json:"url_selector,omitempty"`
	DateFormat    string `json:"date_format,omitempty"`

	// URLPrefix is prepended to relative URLs found in listings.
	URLPrefix string `json:"url_prefix,omitempty"`
}

// Validate validates the Source entity fields.
// It checks that the source type is valid and that required configuration is present.
func (s *Source) Validate() error {
	if s.ID == "" {
		return &ValidationError{Field: "id", Message: "must not be empty"}
	}
	if s.URL == "" {
		return &ValidationError{Field: "url", Message: "must not be empty"}
	}

	if s.SourceType == "" {
		s.SourceType = SourceTypeRSS
	}

	validTypes := map[string]bool{
		SourceTypeRSS:          true,
		SourceTypePressRelease: true,
		SourceTypeJSON:         true,
	}
	if !validTypes[s.SourceType] {
		return fmt.Errorf("invalid source_type: %s (must be RSS, PressRelease, or JSON)", s.SourceType)
	}

	if s.SourceType == SourceTypePressRelease && s.ScraperConfig == nil {
		return errors.New("scraper_config is required for press release sources")
	}

	return nil
}
