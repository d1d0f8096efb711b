// Copyright (C) 2025 Groundgate Authors (dev@groundgate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package langid provides lightweight best-effort language detection.
//
// The result is recorded for analytics only; nothing in the validation
// chain branches on it, so a rough heuristic is acceptable. Script ranges
// decide non-Latin languages, stopword counting decides among the common
// Latin-script ones. Unknown input returns "en".
package langid

import (
	"strings"
	"unicode"
)

// stopwordLangs fixes the comparison order so stopword-count ties resolve
// the same way on every run.
var stopwordLangs = []string{"en", "es", "fr", "de", "pt", "it"}

var stopwords = map[string]map[string]bool{
	"en": toSet("the", "is", "are", "was", "what", "which", "and", "of", "to", "in", "that", "it", "for", "with", "how"),
	"es": toSet("el", "la", "los", "las", "es", "son", "que", "de", "en", "y", "para", "con", "una", "por", "como"),
	"fr": toSet("le", "la", "les", "est", "sont", "que", "de", "et", "dans", "pour", "avec", "une", "quel", "quelle", "comment"),
	"de": toSet("der", "die", "das", "ist", "sind", "was", "und", "von", "zu", "in", "für", "mit", "eine", "wie", "nicht"),
	"pt": toSet("o", "os", "as", "é", "são", "que", "de", "em", "e", "para", "com", "uma", "por", "como", "não"),
	"it": toSet("il", "lo", "gli", "è", "sono", "che", "di", "in", "e", "per", "con", "una", "come", "cosa", "non"),
}

func toSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// Detect returns a best-effort ISO 639-1 code for the text.
func Detect(text string) string {
	if lang := detectScript(text); lang != "" {
		return lang
	}

	words := strings.Fields(strings.ToLower(text))
	best, bestCount := "en", 0
	for _, lang := range stopwordLangs {
		set := stopwords[lang]
		count := 0
		for _, w := range words {
			if set[strings.Trim(w, ".,;:!?¿¡\"'()")] {
				count++
			}
		}
		if count > bestCount {
			best, bestCount = lang, count
		}
	}
	return best
}

// detectScript short-circuits on non-Latin scripts.
func detectScript(text string) string {
	counts := map[string]int{}
	total := 0
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		total++
		switch {
		case unicode.Is(unicode.Han, r):
			counts["zh"]++
		case unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r):
			counts["ja"]++
		case unicode.Is(unicode.Hangul, r):
			counts["ko"]++
		case unicode.Is(unicode.Cyrillic, r):
			counts["ru"]++
		case unicode.Is(unicode.Arabic, r):
			counts["ar"]++
		case unicode.Is(unicode.Devanagari, r):
			counts["hi"]++
		}
	}
	// Fixed order so mixed-script text resolves deterministically; ja comes
	// before zh because Japanese text mixes Han and kana.
	for _, lang := range []string{"ja", "zh", "ko", "ru", "ar", "hi"} {
		n := counts[lang]
		if lang == "zh" && counts["ja"] > 0 {
			continue
		}
		if total > 0 && n*3 >= total {
			return lang
		}
	}
	return ""
}
