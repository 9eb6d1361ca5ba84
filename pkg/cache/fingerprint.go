package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Fingerprint derives a deterministic cache key from a request URL and its
// session-relevant headers. Only the Cookie header and headers whose name
// contains "session" participate: rotated user agents and other volatile
// headers must not change the key. The result is stable across process runs
// and insensitive to header order.
func Fingerprint(url string, headers map[string]string) string {
	relevant := make([]string, 0, len(headers))
	for name, value := range headers {
		if isSessionHeader(name) {
			relevant = append(relevant, fmt.Sprintf("%s=%s", strings.ToLower(name), value))
		}
	}
	sort.Strings(relevant)

	h := sha256.New()
	h.Write([]byte(url))
	for _, header := range relevant {
		h.Write([]byte{'\n'})
		h.Write([]byte(header))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func isSessionHeader(name string) bool {
	lower := strings.ToLower(name)
	return lower == "cookie" || strings.Contains(lower, "session")
}
