// Package scraper provides parsers that turn fetched response bodies into
// records. Parsers are pure: transport, retries and rate limiting happen
// upstream in the fetch layer.
package scraper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"bioterminal/internal/domain/entity"
	"bioterminal/internal/utils/text"
)

// maxContentRunes caps record content so one verbose feed item cannot bloat
// the cache.
const maxContentRunes = 4096

// ParseRSS parses an RSS or Atom payload into records. Items without a link
// are skipped; items without a parsed date fall back to the fetch time.
func ParseRSS(ctx context.Context, body []byte, src *entity.Source) ([]entity.Record, error) {
	fp := gofeed.NewParser()
	feed, err := fp.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	records := make([]entity.Record, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item.Link == "" {
			slog.Debug("skipping feed item without link",
				slog.String("source_id", src.ID),
				slog.String("title", item.Title))
			continue
		}

		publishedAt := time.Now()
		if item.PublishedParsed != nil {
			publishedAt = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			publishedAt = *item.UpdatedParsed
		}

		records = append(records, entity.Record{
			SourceID:    src.ID,
			Title:       strings.TrimSpace(item.Title),
			URL:         item.Link,
			Content:     text.Truncate(strings.TrimSpace(item.Description), maxContentRunes),
			PublishedAt: publishedAt,
		})
	}

	return records, nil
}
