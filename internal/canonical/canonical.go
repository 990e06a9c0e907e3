// Package canonical normalizes URLs so that semantically equivalent
// inputs become textually identical. The canonical form is the dedup
// key for short links, so every step here is order-sensitive.
package canonical

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

var ErrInvalidURL = errors.New("invalid url")

const (
	schemeHTTP  = "http"
	schemeHTTPS = "https"
)

// Canonicalize returns the canonical string form of raw. It is
// deterministic and idempotent: Canonicalize(Canonicalize(x)) equals
// Canonicalize(x). Only the scheme and host are case-folded; userinfo,
// path case and query values are preserved verbatim.
func Canonicalize(raw string) (string, error) {
	const op = "canonical.Canonicalize"

	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%s: empty input: %w", op, ErrInvalidURL)
	}

	if !hasScheme(s) {
		if strings.HasPrefix(s, "//") {
			s = "http:" + s
		} else {
			s = "http://" + s
		}
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%s: parse %q: %w", op, raw, ErrInvalidURL)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != schemeHTTP && scheme != schemeHTTPS {
		return "", fmt.Errorf("%s: unsupported scheme %q: %w", op, u.Scheme, ErrInvalidURL)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("%s: missing host: %w", op, ErrInvalidURL)
	}
	// url.Hostname strips the brackets from IPv6 literals
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}

	port := u.Port()
	if port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return "", fmt.Errorf("%s: bad port %q: %w", op, port, ErrInvalidURL)
		}
		if (scheme == schemeHTTP && n == 80) || (scheme == schemeHTTPS && n == 443) {
			port = ""
		} else {
			// ":080" and ":80" must canonicalize identically
			port = strconv.Itoa(n)
		}
	}

	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	if u.User != nil {
		b.WriteString(u.User.String())
		b.WriteByte('@')
	}
	b.WriteString(host)
	if port != "" {
		b.WriteByte(':')
		b.WriteString(port)
	}
	b.WriteString(normalizePath(u.EscapedPath()))
	if q := normalizeQuery(u.RawQuery); q != "" {
		b.WriteByte('?')
		b.WriteString(q)
	}
	// fragment is dropped

	return b.String(), nil
}

// hasScheme reports whether s starts with an explicit scheme. The
// "://" must come before any path or query separator: a schemeless
// input can still carry a full URL inside a query value.
func hasScheme(s string) bool {
	i := strings.Index(s, "://")
	if i < 0 {
		return false
	}
	if j := strings.IndexAny(s, "/?"); j >= 0 && j < i {
		return false
	}
	return true
}

// normalizePath collapses runs of slashes and strips the trailing
// slash unless the path is exactly "/". An empty path becomes "/".
func normalizePath(p string) string {
	if p == "" {
		return "/"
	}

	var b strings.Builder
	b.Grow(len(p))

	prevSlash := false
	for i := 0; i < len(p); i++ {
		if p[i] == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
		} else {
			prevSlash = false
		}
		b.WriteByte(p[i])
	}

	out := b.String()
	if len(out) > 1 && strings.HasSuffix(out, "/") {
		out = out[:len(out)-1]
	}
	if out == "" {
		out = "/"
	}

	return out
}

type queryParam struct {
	key   string
	token string
}

// normalizeQuery stable-sorts parameters by key only, so duplicate
// keys keep their original relative order and values stay untouched.
// A token without "=" is treated as a key with an empty value, and
// "=value" is omitted when the value is empty.
func normalizeQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}

	tokens := strings.Split(rawQuery, "&")
	params := make([]queryParam, 0, len(tokens))

	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		key, value, _ := strings.Cut(tok, "=")
		if value == "" {
			params = append(params, queryParam{key: key, token: key})
		} else {
			params = append(params, queryParam{key: key, token: key + "=" + value})
		}
	}

	sort.SliceStable(params, func(i, j int) bool {
		return params[i].key < params[j].key
	})

	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = p.token
	}

	return strings.Join(parts, "&")
}
