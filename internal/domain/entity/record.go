package entity

import "time"

// Record represents one parsed item fetched from a source: a news article,
// press release, or regulatory announcement.
type Record struct {
	SourceID    string
	Title       string
	URL         string
	Content     string
	PublishedAt time.Time
	FetchedAt   time.Time
}

// Validate checks the minimal fields every record must carry.
func (r *Record) Validate() error {
	if r.SourceID == "" {
		return &ValidationError{Field: "source_id", Message: "must not be empty"}
	}
	if r.Title == "" {
		return &ValidationError{Field: "title", Message: "must not be empty"}
	}
	if r.URL == "" {
		return &ValidationError{Field: "url", Message: "must not be empty"}
	}
	return nil
}
