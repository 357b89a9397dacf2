package scraper

import (
	"context"
	"errors"
	"testing"
	"time"

	"bioterminal/internal/domain/entity"
	"bioterminal/internal/usecase/fetch"
)

const sampleJSONFeed = `{
  "version": "https://jsonfeed.org/version/1.1",
  "title": "Regulatory Digest",
  "items": [
    {
      "url": "https://example.com/digest/approval-1",
      "title": "Accelerated approval granted",
      "content_text": "The agency granted accelerated approval.",
      "date_published": "2025-06-15T07:00:00Z"
    },
    {
      "url": "https://example.com/digest/label-update",
      "title": "Label update",
      "content_html": "<p>Boxed warning revised.</p>"
    },
    {
      "title": "No URL, skipped"
    }
  ]
}`

func TestParseJSON(t *testing.T) {
	src := testSource("regulatory-digest", entity.SourceTypeJSON)
	records, err := ParseJSON(context.Background(), []byte(sampleJSONFeed), src)
	if err != nil {
		t.Fatalf("ParseJSON: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}

	first := records[0]
	if first.Title != "Accelerated approval granted" {
		t.Errorf("Title = %q", first.Title)
	}
	if first.Content != "The agency granted accelerated approval." {
		t.Errorf("Content = %q", first.Content)
	}
	want := time.Date(2025, 6, 15, 7, 0, 0, 0, time.UTC)
	if !first.PublishedAt.Equal(want) {
		t.Errorf("PublishedAt = %v, want %v", first.PublishedAt, want)
	}

	// content_html is the fallback when content_text is absent.
	if records[1].Content != "<p>Boxed warning revised.</p>" {
		t.Errorf("Content = %q", records[1].Content)
	}
}

func TestParseJSON_Invalid(t *testing.T) {
	_, err := ParseJSON(context.Background(), []byte("{"), testSource("x", entity.SourceTypeJSON))
	if err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestParserFor(t *testing.T) {
	tests := []struct {
		sourceType string
		wantErr    bool
	}{
		{entity.SourceTypeRSS, false},
		{entity.SourceTypePressRelease, false},
		{entity.SourceTypeJSON, false},
		{"", false},
		{"carrier-pigeon", true},
	}
	for _, tt := range tests {
		t.Run("type_"+tt.sourceType, func(t *testing.T) {
			fn, err := ParserFor(tt.sourceType)
			if tt.wantErr {
				if !errors.Is(err, fetch.ErrNoParser) {
					t.Errorf("err = %v, want ErrNoParser", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParserFor(%q): %v", tt.sourceType, err)
			}
			if fn == nil {
				t.Errorf("ParserFor(%q) returned nil func", tt.sourceType)
			}
		})
	}
}
