package control

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

var schemeAndWWW = regexp.MustCompile(`^(https?://)?(www\.)?`)

// NormalizeSite turns user input such as "https://www.Example.com/path" into
// the bare ASCII hostname "example.com". A port is kept.
func NormalizeSite(raw string) (string, error) {
	site := strings.ToLower(strings.TrimSpace(raw))
	site = schemeAndWWW.ReplaceAllString(site, "")
	site, _, _ = strings.Cut(site, "/")
	site, _, _ = strings.Cut(site, "?")
	site, _, _ = strings.Cut(site, "#")

	if site == "" {
		return "", ErrEmptySite
	}

	host, port, hasPort := strings.Cut(site, ":")
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil || ascii == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidSite, raw)
	}

	if hasPort {
		return ascii + ":" + port, nil
	}
	return ascii, nil
}
