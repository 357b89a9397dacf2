package httppool

import (
	"context"
	"net/http"
	"time"
)

// linkEntry remembers the last validation verdict for a URL.
type linkEntry struct {
	valid     bool
	checkedAt time.Time
}

// ValidateLink reports whether rawURL answers a HEAD request with a status
// below 400. Verdicts are cached for LinkCacheTTL so repeated records
// pointing at the same article do not hammer the upstream; transport
// failures count as invalid and are cached too.
func (p *Pool) ValidateLink(ctx context.Context, rawURL string) bool {
	now := p.cfg.Clock.Now()

	p.mu.Lock()
	if e, ok := p.links[rawURL]; ok && now.Sub(e.checkedAt) < p.cfg.LinkCacheTTL {
		valid := e.valid
		p.mu.Unlock()
		return valid
	}
	p.mu.Unlock()

	resp, err := p.Do(ctx, http.MethodHead, rawURL, nil)
	valid := err == nil && resp.StatusCode >= 200 && resp.StatusCode < 400

	p.mu.Lock()
	if _, exists := p.links[rawURL]; !exists && len(p.links) >= p.cfg.MaxLinkEntries {
		// Bounded memory: drop one arbitrary entry rather than grow.
		for key := range p.links {
			delete(p.links, key)
			break
		}
	}
	p.links[rawURL] = &linkEntry{valid: valid, checkedAt: now}
	p.mu.Unlock()

	return valid
}
