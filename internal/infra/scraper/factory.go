package scraper

import (
	"fmt"

	"bioterminal/internal/domain/entity"
	"bioterminal/internal/usecase/fetch"
)

// ParserFor returns the parse function for a source type.
func ParserFor(sourceType string) (fetch.ParseFunc, error) {
	switch sourceType {
	case entity.SourceTypeRSS, "":
		return ParseRSS, nil
	case entity.SourceTypePressRelease:
		return ParsePressRelease, nil
	case entity.SourceTypeJSON:
		return ParseJSON, nil
	default:
		return nil, fmt.Errorf("%w: %s", fetch.ErrNoParser, sourceType)
	}
}
