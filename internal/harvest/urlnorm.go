package harvest

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL standardizes a listing URL so query or fragment differences do
// not defeat the seen check: scheme and host are lowercased, default ports
// dropped, query and fragment removed, and the trailing slash trimmed.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.RawQuery = ""
	u.Fragment = ""

	path := strings.TrimRight(u.Path, "/")
	if path == "" {
		path = "/"
	}
	u.Path = path

	return u.String(), nil
}
