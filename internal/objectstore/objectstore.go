// Package objectstore stores tabular files by key.
// Keys use forward slashes; URI returns "<scheme>://<bucket>/<key>".
package objectstore

import (
	"fmt"
	"strings"
)

// ParseURI splits a store URI into bucket and key
func ParseURI(uri string) (bucket, key string, err error) {
	i := strings.Index(uri, "://")
	if i < 0 {
		return "", "", fmt.Errorf("invalid object uri %q", uri)
	}
	rest := uri[i+3:]
	j := strings.Index(rest, "/")
	if j <= 0 || j == len(rest)-1 {
		return "", "", fmt.Errorf("invalid object uri %q", uri)
	}
	return rest[:j], rest[j+1:], nil
}

// Join builds a key from path segments, dropping empty parts
func Join(parts ...string) string {
	clean := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			clean = append(clean, p)
		}
	}
	return strings.Join(clean, "/")
}

func validKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return fmt.Errorf("invalid object key %q", key)
	}
	return nil
}
