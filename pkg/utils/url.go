package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// identityParams are query keys that identify the listing itself on some
// marketplaces. Every other query parameter is treated as per-request noise
// (session tokens, sort order, tracking) and dropped during normalization.
var identityParams = map[string]bool{
	"id":      true,
	"itemid":  true,
	"item_id": true,
	"pid":     true,
	"aid":     true,
}

// HashURL creates a SHA256 hash of a URL string.
// This is useful for creating consistent, safe keys for Redis.
func HashURL(rawURL string) string {
	h := sha256.New()
	h.Write([]byte(rawURL))
	return hex.EncodeToString(h.Sum(nil))
}

// ToAbsoluteURL converts a relative URL to an absolute URL given a base URL.
func ToAbsoluteURL(base *url.URL, relative string) (string, error) {
	relURL, err := url.Parse(relative)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(relURL).String(), nil
}

// NormalizeURL reduces a listing URL to the parts that identify the listing:
// scheme and host are lowercased, the fragment and trailing slash are removed,
// and only identity-bearing query parameters survive, in sorted order.
// Unparseable input is returned trimmed but otherwise untouched.
func NormalizeURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil
	if len(u.Path) > 1 {
		u.Path = strings.TrimRight(u.Path, "/")
		u.RawPath = ""
	}

	kept := url.Values{}
	for key, values := range u.Query() {
		if identityParams[strings.ToLower(key)] {
			sorted := append([]string(nil), values...)
			sort.Strings(sorted)
			kept[key] = sorted
		}
	}
	// Encode sorts by key.
	u.RawQuery = kept.Encode()

	return u.String()
}
