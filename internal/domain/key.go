package domain

import (
	"math"
	"net"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

const (
	// CookiePrefix prefixes the per-domain variant cookie name.
	CookiePrefix = "sr_variant_"

	// CookieMaxAge is the variant cookie lifetime in seconds (30 days).
	CookieMaxAge = 60 * 60 * 24 * 30
)

// NormalizeKey maps a domain to its storage key by replacing every "." with "_".
func NormalizeKey(domain string) string {
	return strings.ReplaceAll(domain, ".", "_")
}

// CookieName returns the variant cookie name for a lookup key. An empty
// prefix falls back to CookiePrefix.
func CookieName(prefix, key string) string {
	if prefix == "" {
		prefix = CookiePrefix
	}
	return prefix + key
}

// ExtractDomain returns the host without a trailing port.
func ExtractDomain(host string) string {
	// avoid net.SplitHostPort for value without port
	if strings.IndexByte(host, ':') == -1 {
		return host
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	h, _, _ := strings.Cut(host, ":")
	return h
}

// AssignVariant picks a variant for a fresh visitor: draw < split is A.
// split <= 0 always yields B and split >= 1 always yields A for draws in [0,1).
func AssignVariant(draw, split float64) Variant {
	if draw < split {
		return VariantA
	}
	return VariantB
}

var numericPrefix = regexp.MustCompile(`^[+-]?(Infinity|(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?)`)

// ParseSplit converts a submitted or stored split into a fraction. Strings
// are read up to the end of their leading number, the way a browser's
// parseFloat does ("0.3abc" is 0.3). Missing, non-numeric, zero and
// non-finite values all become DefaultSplit.
func ParseSplit(v interface{}) float64 {
	var f float64
	switch value := v.(type) {
	case float64:
		f = value
	case float32:
		f = float64(value)
	case int:
		f = float64(value)
	case int64:
		f = float64(value)
	case string:
		f = parseFloatPrefix(value)
	default:
		return DefaultSplit
	}

	if f == 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return DefaultSplit
	}
	return f
}

func parseFloatPrefix(s string) float64 {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	m := numericPrefix.FindString(s)
	if m == "" {
		return math.NaN()
	}
	// out-of-range exponents come back as ±Inf with ErrRange; the caller
	// treats non-finite values as unset.
	f, _ := strconv.ParseFloat(strings.Replace(m, "Infinity", "Inf", 1), 64)
	return f
}
