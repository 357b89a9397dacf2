package httppool

import "net/http"

// validatorEntry remembers the cache validators a URL last responded with.
type validatorEntry struct {
	etag         string
	lastModified string
}

// applyValidators adds If-None-Match / If-Modified-Since headers when
// validators for the URL are remembered, turning the request into a
// conditional one.
func (p *Pool) applyValidators(req *http.Request, rawURL string) {
	p.mu.Lock()
	entry, ok := p.validators[rawURL]
	p.mu.Unlock()
	if !ok {
		return
	}

	if entry.etag != "" {
		req.Header.Set("If-None-Match", entry.etag)
	}
	if entry.lastModified != "" {
		req.Header.Set("If-Modified-Since", entry.lastModified)
	}
}

// rememberValidators stores the ETag and Last-Modified headers from a 200
// response so the next fetch of the URL can be conditional.
func (p *Pool) rememberValidators(rawURL string, header http.Header) {
	etag := header.Get("ETag")
	lastModified := header.Get("Last-Modified")
	if etag == "" && lastModified == "" {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.validators[rawURL]; !exists && len(p.validators) >= p.cfg.MaxValidatorEntries {
		// Bounded memory: drop one arbitrary entry rather than grow.
		for key := range p.validators {
			delete(p.validators, key)
			break
		}
	}
	p.validators[rawURL] = &validatorEntry{etag: etag, lastModified: lastModified}
}

// ForgetValidators drops remembered validators for a URL. Useful when a
// cached copy is invalidated and the next fetch must be unconditional.
func (p *Pool) ForgetValidators(rawURL string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.validators, rawURL)
}
