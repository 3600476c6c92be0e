// Package urn is the single URN generation and parsing authority for the
// pipeline. The profiler, indexer, miner and resolver all route identifier
// construction through here so the grammar stays consistent end to end.
package urn

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Numbering identifies a page-numbering system.
type Numbering string

const (
	Arabic Numbering = "arabic"
	Roman  Numbering = "roman"
)

// SlugFallback is used when slugification of a label leaves nothing behind.
const SlugFallback = "theme"

// Anchor grammar: either a direct page URN or a flat namespaced structural
// identifier. Anything mined that does not match this is rejected at
// construction, before it can reach AST lookups.
var anchorPattern = regexp.MustCompile(`^(?:page:(?:arabic|roman):[1-9]\d*|[a-z0-9_.-]+:[A-Za-z0-9_.-]+)$`)

var (
	slugStrip    = regexp.MustCompile(`[^a-z0-9]+`)
	errMalformed = "malformed page URN %q: %s"
)

// ValidAnchor reports whether s conforms to the shared anchor grammar.
func ValidAnchor(s string) bool {
	return anchorPattern.MatchString(s)
}

// PageURN builds a direct page reference URN, e.g. "page:roman:42".
func PageURN(val int, n Numbering) string {
	return fmt.Sprintf("page:%s:%d", strings.ToLower(string(n)), val)
}

// StructuralURN builds an asset or hierarchy identifier, e.g. "map:02".
// The zero-padded counter keeps identifiers lexicographically sortable.
func StructuralURN(namespace string, counter int) string {
	return fmt.Sprintf("%s:%02d", strings.ToLower(namespace), counter)
}

// Slugify converts display text into a URN-safe namespace. Non-alphanumeric
// runs collapse to single hyphens; an empty result yields SlugFallback.
// Idempotent: Slugify(Slugify(s)) == Slugify(s).
func Slugify(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = slugStrip.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return SlugFallback
	}
	return s
}

// ParsePageURN deconstructs a page URN into its numbering type and value.
// Returns ok=false for non-page URNs; errors on structurally broken ones.
func ParsePageURN(s string) (Numbering, int, bool, error) {
	if !strings.HasPrefix(s, "page:") {
		return "", 0, false, nil
	}
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return "", 0, false, fmt.Errorf(errMalformed, s, "expected 3 parts")
	}
	val, err := strconv.Atoi(parts[2])
	if err != nil {
		return "", 0, false, fmt.Errorf(errMalformed, s, "non-integer page value")
	}
	return Numbering(parts[1]), val, true, nil
}
