// Package scales maps a room's scale configuration to its legal vote tokens.
package scales

import (
	"slices"
	"strings"
)

const (
	Fibonacci = "fibonacci"
	TShirt    = "tshirt"
	Powers    = "powers"
	Custom    = "custom"
)

const (
	Unsure = "?"
	Coffee = "☕"
)

var presets = map[string][]string{
	Fibonacci: {"0", "1", "2", "3", "5", "8", "13", "21", "34", Unsure, Coffee},
	TShirt:    {"XS", "S", "M", "L", "XL", "XXL", Unsure, Coffee},
	Powers:    {"0", "1", "2", "4", "8", "16", "32", "64", Unsure, Coffee},
}

// Presets returns the names of the built-in scales.
func Presets() []string {
	return []string{Fibonacci, TShirt, Powers}
}

// NormalizeType maps unknown scale identifiers to the fibonacci preset.
func NormalizeType(scaleType string) string {
	if _, ok := presets[scaleType]; ok || scaleType == Custom {
		return scaleType
	}
	return Fibonacci
}

// ParseCustom splits a comma-separated token list, dropping blanks.
func ParseCustom(raw string) []string {
	tokens := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if t := strings.TrimSpace(part); t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// Resolve returns the ordered vote tokens for a scale configuration.
// Custom scales always end with the unsure and coffee tokens; an empty
// custom list falls back to fibonacci. The result is a fresh slice.
func Resolve(scaleType string, custom []string) []string {
	if scaleType == Custom && len(custom) > 0 {
		tokens := slices.Clone(custom)
		if !slices.Contains(tokens, Unsure) {
			tokens = append(tokens, Unsure)
		}
		if !slices.Contains(tokens, Coffee) {
			tokens = append(tokens, Coffee)
		}
		return tokens
	}
	if preset, ok := presets[scaleType]; ok {
		return slices.Clone(preset)
	}
	return slices.Clone(presets[Fibonacci])
}

// Contains reports whether value is a legal token of scale.
func Contains(scale []string, value string) bool {
	return slices.Contains(scale, value)
}
