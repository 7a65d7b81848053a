package hashing

import (
	"regexp"
	"strings"
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`)

// Stop words carry no topical signal and are dropped before hashing.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "were": true, "to": true, "of": true, "and": true, "or": true,
	"in": true, "that": true, "have": true, "it": true, "for": true, "not": true,
	"on": true, "with": true, "as": true, "you": true, "do": true, "at": true,
	"this": true, "but": true, "by": true, "from": true, "i": true, "so": true,
	"if": true, "can": true, "will": true, "just": true,
}

// tokenize lowercases text, extracts word tokens and removes stop words.
func tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	filtered := raw[:0]
	for _, word := range raw {
		if !stopWords[word] {
			filtered = append(filtered, word)
		}
	}
	return filtered
}
