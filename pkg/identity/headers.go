package identity

import "sync"

// BrowserProfile is one emulated browser: a user agent plus the headers
// that family of browser sends alongside it.
type BrowserProfile struct {
	Name      string
	UserAgent string
	Extra     map[string]string
}

// defaultProfiles are the rotated browser identities. Chromium-family
// profiles carry client-hint headers; Firefox and Safari do not send them.
var defaultProfiles = []BrowserProfile{
	{
		Name:      "chrome-windows",
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		Extra: map[string]string{
			"Sec-Ch-Ua":          `"Chromium";v="124", "Google Chrome";v="124", "Not-A.Brand";v="99"`,
			"Sec-Ch-Ua-Mobile":   "?0",
			"Sec-Ch-Ua-Platform": `"Windows"`,
		},
	},
	{
		Name:      "chrome-macos",
		UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		Extra: map[string]string{
			"Sec-Ch-Ua":          `"Chromium";v="124", "Google Chrome";v="124", "Not-A.Brand";v="99"`,
			"Sec-Ch-Ua-Mobile":   "?0",
			"Sec-Ch-Ua-Platform": `"macOS"`,
		},
	},
	{
		Name:      "firefox-windows",
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:126.0) Gecko/20100101 Firefox/126.0",
	},
	{
		Name:      "firefox-linux",
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64; rv:126.0) Gecko/20100101 Firefox/126.0",
	},
	{
		Name:      "safari-macos",
		UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	},
}

// HeaderRotator cycles through browser profiles, producing a full header
// set per request.
type HeaderRotator struct {
	profiles []BrowserProfile

	mu      sync.Mutex
	counter uint64
}

// NewHeaderRotator creates a rotator over the built-in browser profiles
func NewHeaderRotator() *HeaderRotator {
	return &HeaderRotator{profiles: defaultProfiles}
}

// NewHeaderRotatorWithProfiles creates a rotator over custom profiles
func NewHeaderRotatorWithProfiles(profiles []BrowserProfile) *HeaderRotator {
	if len(profiles) == 0 {
		profiles = defaultProfiles
	}
	return &HeaderRotator{profiles: profiles}
}

// Next returns the header set for the next profile in cyclic order. The
// returned map is a fresh copy the caller may mutate.
func (h *HeaderRotator) Next() map[string]string {
	h.mu.Lock()
	profile := h.profiles[h.counter%uint64(len(h.profiles))]
	h.counter++
	h.mu.Unlock()

	// Accept-Encoding is left to the transport so response bodies are
	// decompressed transparently.
	headers := map[string]string{
		"User-Agent":      profile.UserAgent,
		"Accept":          "application/json, text/plain, */*",
		"Accept-Language": "en-US,en;q=0.9",
	}
	for k, v := range profile.Extra {
		headers[k] = v
	}
	return headers
}

// ProfileCount reports how many profiles the rotator cycles through
func (h *HeaderRotator) ProfileCount() int {
	return len(h.profiles)
}
