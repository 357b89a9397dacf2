package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"bioterminal/internal/domain/entity"
)

// ParsePressRelease extracts records from a press release listing page using
// the CSS selectors configured on the source.
func ParsePressRelease(ctx context.Context, body []byte, src *entity.Source) ([]entity.Record, error) {
	cfg := src.ScraperConfig
	if cfg == nil {
		return nil, errors.New("source has no scraper config")
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}

	var records []entity.Record
	doc.Find(cfg.ItemSelector).Each(func(i int, sel *goquery.Selection) {
		title := strings.TrimSpace(sel.Find(cfg.TitleSelector).Text())
		if title == "" {
			slog.Debug("skipping press release with empty title",
				slog.String("source_id", src.ID), slog.Int("index", i))
			return
		}

		itemURL := ""
		if cfg.URLSelector != "" {
			if href, ok := sel.Find(cfg.URLSelector).Attr("href"); ok {
				itemURL = strings.TrimSpace(href)
			}
		}
		if itemURL == "" {
			slog.Debug("skipping press release with empty URL",
				slog.String("source_id", src.ID), slog.String("title", title))
			return
		}
		itemURL = absoluteURL(itemURL, cfg.URLPrefix)

		dateStr := strings.TrimSpace(sel.Find(cfg.DateSelector).Text())

		records = append(records, entity.Record{
			SourceID:    src.ID,
			Title:       title,
			URL:         itemURL,
			PublishedAt: parseDate(dateStr, cfg.DateFormat),
		})
	})

	if len(records) == 0 {
		return nil, fmt.Errorf("no items matched selector %q", cfg.ItemSelector)
	}
	return records, nil
}

// parseDate parses a date string in the configured format, trying a handful
// of common layouts before falling back to the current time.
func parseDate(dateStr, format string) time.Time {
	if dateStr == "" {
		return time.Now()
	}
	if format == "" {
		format = "Jan 2, 2006"
	}

	if t, err := time.Parse(format, dateStr); err == nil {
		return t
	}

	for _, layout := range []string{
		"2006-01-02",
		time.RFC3339,
		"Jan 2, 2006",
		"January 2, 2006",
		"02 Jan 2006",
	} {
		if t, err := time.Parse(layout, dateStr); err == nil {
			return t
		}
	}

	slog.Warn("failed to parse date, using current time",
		slog.String("date_str", dateStr), slog.String("format", format))
	return time.Now()
}

// absoluteURL joins a relative URL onto the configured prefix. Absolute URLs
// pass through unchanged.
func absoluteURL(urlStr, prefix string) string {
	if strings.HasPrefix(urlStr, "http://") || strings.HasPrefix(urlStr, "https://") {
		return urlStr
	}
	if prefix == "" {
		return urlStr
	}
	return strings.TrimRight(prefix, "/") + "/" + strings.TrimLeft(urlStr, "/")
}
