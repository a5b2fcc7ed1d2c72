// Package stacktrace trims goroutine dumps down to the frames that belong to
// this module so panic logs stay readable.
package stacktrace

import "strings"

// InternalPaths returns "internal/<pkg>/<file>.go:<line>" entries for every
// frame under an internal/ directory, in stack order.
func InternalPaths(stack []byte) []string {
	lines := strings.Split(string(stack), "\n")
	paths := make([]string, 0, len(lines)/2)

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if !strings.Contains(line, ".go:") {
			continue
		}

		_, rel, found := strings.Cut(line, "/internal/")
		if !found {
			continue
		}

		// drop the " +0x1d" program counter offset
		rel, _, _ = strings.Cut(rel, " ")
		paths = append(paths, "internal/"+rel)
	}

	return paths
}
