package fetch

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Fingerprint derives a deterministic cache key from a source ID and request
// parameters. Parameter order never affects the result: keys are sorted
// before hashing, so logically identical requests share one cache entry.
func Fingerprint(sourceID string, params map[string]string) string {
	var b strings.Builder
	b.WriteString(sourceID)

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		b.WriteByte(0)
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:16])
}
