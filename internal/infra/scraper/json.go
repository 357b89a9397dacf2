package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"bioterminal/internal/domain/entity"
	"bioterminal/internal/utils/text"
)

// jsonFeed mirrors the JSON Feed item layout (jsonfeed.org). Unknown fields
// are ignored so API responses with extra metadata still parse.
type jsonFeed struct {
	Items []jsonFeedItem `json:"items"`
}

type jsonFeedItem struct {
	URL           string `json:"url"`
	Title         string `json:"title"`
	ContentText   string `json:"content_text"`
	ContentHTML   string `json:"content_html"`
	DatePublished string `json:"date_published"`
}

// ParseJSON parses a JSON Feed payload into records.
func ParseJSON(ctx context.Context, body []byte, src *entity.Source) ([]entity.Record, error) {
	var feed jsonFeed
	if err := json.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("parse JSON feed: %w", err)
	}

	records := make([]entity.Record, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item.URL == "" || item.Title == "" {
			continue
		}

		content := item.ContentText
		if content == "" {
			content = item.ContentHTML
		}

		publishedAt := time.Now()
		if item.DatePublished != "" {
			if t, err := time.Parse(time.RFC3339, item.DatePublished); err == nil {
				publishedAt = t
			}
		}

		records = append(records, entity.Record{
			SourceID:    src.ID,
			Title:       strings.TrimSpace(item.Title),
			URL:         item.URL,
			Content:     text.Truncate(strings.TrimSpace(content), maxContentRunes),
			PublishedAt: publishedAt,
		})
	}

	return records, nil
}
