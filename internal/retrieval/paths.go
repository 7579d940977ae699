package retrieval

import (
	"path"
	"strings"
)

// Default key prefixes of the two storage accounts.
const (
	DefaultParseBase = "parse"
	DefaultRawBase   = "compress"
)

// Layout centralizes object key construction for both storage accounts.
type Layout struct {
	ParseBase string
	RawBase   string
}

// DefaultLayout returns the parse/ and compress/ layout.
func DefaultLayout() Layout {
	return Layout{ParseBase: DefaultParseBase, RawBase: DefaultRawBase}
}

func (l Layout) parseBase() string {
	if b := strings.Trim(l.ParseBase, "/"); b != "" {
		return b
	}
	return DefaultParseBase
}

func (l Layout) rawBase() string {
	if b := strings.Trim(l.RawBase, "/"); b != "" {
		return b
	}
	return DefaultRawBase
}

// ParsePrefix returns "{parse}/{task_type}/{task_id}/".
func (l Layout) ParsePrefix(taskType, taskID string) string {
	return l.parseBase() + "/" + taskType + "/" + taskID + "/"
}

// ParsePath returns the key of one parse output object.
func (l Layout) ParsePath(taskType, taskID, name string) string {
	return l.ParsePrefix(taskType, taskID) + name
}

// RawPath returns the key of one raw input object.
func (l Layout) RawPath(taskType, taskID, name string) string {
	return l.rawBase() + "/" + taskType + "/" + taskID + "/" + name
}

// IsParseKey reports whether key names an object in the parse tree, that is
// "{parse}/{task_type}/{task_id}/{name}".
func (l Layout) IsParseKey(key string) bool {
	clean := path.Clean(key)
	if clean != key || strings.HasPrefix(key, "/") {
		return false
	}
	parts := strings.Split(key, "/")
	if len(parts) < 4 || parts[0] != l.parseBase() {
		return false
	}
	for _, p := range parts[1:] {
		if p == "" {
			return false
		}
	}
	return true
}
