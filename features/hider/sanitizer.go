package hider

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrEmptySelector     = errors.New("selector is empty")
	ErrNoSelectorLiteral = errors.New("selector looks like a DOM query call but has no usable quoted literal")
)

// SelectorSanitizer turns a stored selector string into a CSS selector.
type SelectorSanitizer interface {
	Sanitize(raw string) (string, error)
}

var (
	domQueryCall = regexp.MustCompile(`\b(querySelector(?:All)?|getElementsBy[A-Za-z]+|getElementById)\s*\(`)
	callPrefix   = regexp.MustCompile(`^[A-Za-z_$][\w$]*(\.[A-Za-z_$][\w$]*)*\s*\(`)
	quotedString = regexp.MustCompile(`'([^']+)'|"([^"]+)"`)
)

// RegexSanitizer recovers selectors pasted as JavaScript, such as
// document.querySelectorAll('.promo'), by taking the first quoted literal.
// Anything that does not look like a call is returned trimmed.
type RegexSanitizer struct{}

func (RegexSanitizer) Sanitize(raw string) (string, error) {
	selector := strings.TrimSpace(raw)
	if selector == "" {
		return "", ErrEmptySelector
	}

	var call string
	if m := domQueryCall.FindStringSubmatch(selector); m != nil {
		call = m[1]
	} else if !callPrefix.MatchString(selector) {
		return selector, nil
	}

	m := quotedString.FindStringSubmatch(selector)
	if m == nil {
		return "", ErrNoSelectorLiteral
	}

	literal := strings.TrimSpace(m[1] + m[2])
	if literal == "" {
		return "", ErrNoSelectorLiteral
	}

	switch call {
	case "", "querySelector", "querySelectorAll", "getElementsByTagName":
		return literal, nil
	case "getElementById":
		return "#" + literal, nil
	case "getElementsByClassName":
		return "." + strings.Join(strings.Fields(literal), "."), nil
	case "getElementsByName":
		return `[name="` + cssString.Replace(literal) + `"]`, nil
	}
	return "", fmt.Errorf("%w: unsupported %s", ErrNoSelectorLiteral, call)
}

var cssString = strings.NewReplacer(`\`, `\\`, `"`, `\"`)
