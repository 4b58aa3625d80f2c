// Package procscan answers one question: is any running process whose
// command line matches a given pattern? The thermal controller uses it to
// detect a compiler toolchain as a "heavy build in progress" signal.
package procscan

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type Scanner struct {
	root string
}

func New() *Scanner {
	return &Scanner{root: "/proc"}
}

// NewWithRoot scans an alternative proc tree. Used by tests.
func NewWithRoot(root string) *Scanner {
	return &Scanner{root: root}
}

// Match reports whether any process command line contains the pattern.
// Processes that disappear or deny access mid-scan are skipped.
func (s *Scanner) Match(pattern string) bool {
	if pattern == "" {
		return false
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return false
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := strconv.Atoi(entry.Name()); err != nil {
			continue
		}

		raw, err := os.ReadFile(filepath.Join(s.root, entry.Name(), "cmdline"))
		if err != nil {
			continue
		}

		cmdline := strings.ReplaceAll(string(raw), "\x00", " ")
		if strings.Contains(cmdline, pattern) {
			return true
		}
	}

	return false
}
