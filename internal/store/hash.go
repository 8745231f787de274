package store

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
)

// ConfigHashKey is the metadata key holding the hash of the configuration
// the cached results were produced with.
const ConfigHashKey = "config_hash"

// ComputeConfigHash computes a deterministic hash of the settings that
// affect scan output. Glob order does not affect the hash.
func ComputeConfigHash(assertType, filterSource string, include, exclude []string) string {
	h := sha256.New()

	fmt.Fprintf(h, "assert_type:%s\n", assertType)
	fmt.Fprintf(h, "filter:%x\n", sha256.Sum256([]byte(filterSource)))

	for _, g := range []struct {
		name     string
		patterns []string
	}{{"include", include}, {"exclude", exclude}} {
		sorted := make([]string, len(g.patterns))
		copy(sorted, g.patterns)
		sort.Strings(sorted)
		fmt.Fprintf(h, "%s:%s\n", g.name, strings.Join(sorted, "\x00"))
	}

	return fmt.Sprintf("%x", h.Sum(nil))
}

// ContentHash returns the hex SHA-256 of a file's contents.
func ContentHash(content []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(content))
}
