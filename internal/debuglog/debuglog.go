// Package debuglog defines the category-gated debug logging interface used
// throughout the plugin, mirroring the original implementation's
// security_debug category flags (bookkeeping, showkeys, chlookup,
// fake_encryption) without hardcoding any particular sink.
package debuglog

import (
	"fmt"
	"log"
)

// Logger receives a debug message tagged with the category that produced
// it. Implementations decide which categories to surface; the plugin never
// filters on the caller's behalf.
type Logger interface {
	Debugf(category, format string, args ...any)
}

// Categories mirrored from the original implementation's security_debug
// flags.
const (
	CategoryBookkeeping   = "bookkeeping"
	CategoryShowKeys      = "showkeys"
	CategoryLookup        = "chlookup"
	CategoryFakeEncrypted = "fake_encryption"
)

// Nop discards every message. It is the default Logger.
type Nop struct{}

// Debugf implements Logger.
func (Nop) Debugf(string, string, ...any) {}

// Std writes every message to the standard library's log package, prefixed
// with its category in braces the way the original's ACE_DEBUG calls are.
type Std struct {
	// Enabled restricts which categories are written; a nil set writes all
	// categories.
	Enabled map[string]bool
}

// Debugf implements Logger.
func (s Std) Debugf(category, format string, args ...any) {
	if s.Enabled != nil && !s.Enabled[category] {
		return
	}
	log.Printf("{%s} %s", category, fmt.Sprintf(format, args...))
}
