package models

import (
	"strings"

	"golang.org/x/text/cases"
)

// NameKey folds a display name into the value its unique index compares.
// Full Unicode case folding applies, so "Rüppell's Vulture" and
// "RÜPPELL'S VULTURE" share a key where SQLite's NOCASE would not.
func NameKey(name string) string {
	// a Caser keeps state between calls, so each call gets its own
	return cases.Fold().String(strings.TrimSpace(name))
}
