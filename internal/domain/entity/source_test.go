package entity

import (
	"errors"
	"testing"
)

func TestSource_Validate(t *testing.T) {
	tests := []struct {
		name    string
		source  Source
		wantErr bool
	}{
		{
			name:    "valid rss source",
			source:  Source{ID: "fda-news", URL: "https://example.com/rss", SourceType: SourceTypeRSS},
			wantErr: false,
		},
		{
			name:    "empty type defaults to rss",
			source:  Source{ID: "fda-news", URL: "https://example.com/rss"},
			wantErr: false,
		},
		{
			name:    "missing id",
			source:  Source{URL: "https://example.com/rss"},
			wantErr: true,
		},
		{
			name:    "missing url",
			source:  Source{ID: "fda-news"},
			wantErr: true,
		},
		{
			name:    "unknown type",
			source:  Source{ID: "x", URL: "https://example.com", SourceType: "GraphQL"},
			wantErr: true,
		},
		{
			name:    "press release without scraper config",
			source:  Source{ID: "x", URL: "https://example.com", SourceType: SourceTypePressRelease},
			wantErr: true,
		},
		{
			name: "press release with scraper config",
			source: Source{
				ID: "x", URL: "https://example.com", SourceType: SourceTypePressRelease,
				ScraperConfig: &ScraperConfig{ItemSelector: ".release"},
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.source.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSource_Validate_DefaultsType(t *testing.T) {
	s := Source{ID: "x", URL: "https://example.com"}
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if s.SourceType != SourceTypeRSS {
		t.Errorf("SourceType = %q, want RSS default", s.SourceType)
	}
}

func TestRecord_Validate(t *testing.T) {
	valid := Record{SourceID: "s", Title: "t", URL: "https://example.com/a"}
	if err := valid.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}

	missing := Record{SourceID: "s", Title: "t"}
	err := missing.Validate()
	if err == nil {
		t.Fatal("expected validation error for missing url")
	}
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error type = %T, want *ValidationError", err)
	}
	if ve.Field != "url" {
		t.Errorf("Field = %q, want url", ve.Field)
	}
}
