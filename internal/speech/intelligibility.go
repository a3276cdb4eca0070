// Package speech scores spoken exercise attempts against their target text
// and picks the difficulty of the next exercise.
package speech

import (
	"math"
	"regexp"
	"strings"
)

// Keeps ASCII word characters, Hebrew and Cyrillic; everything else is
// punctuation for scoring purposes.
var nonWord = regexp.MustCompile(`[^\w\s\x{0590}-\x{05FF}\x{0400}-\x{04FF}]`)

// WordResult marks whether a target word was heard.
type WordResult struct {
	TargetWord string `json:"targetWord"`
	Matched    bool   `json:"matched"`
}

// Intelligibility returns the percentage (0-100) of target words found in
// the recognized text. Each recognized word can satisfy one target word.
func Intelligibility(recognized, target string) int {
	targetWords := normalize(target)
	if len(targetWords) == 0 {
		return 0
	}
	matches := 0
	for _, w := range WordResults(recognized, target) {
		if w.Matched {
			matches++
		}
	}
	return int(math.Round(float64(matches) / float64(len(targetWords)) * 100))
}

// WordResults reports, per target word in order, whether it was matched.
func WordResults(recognized, target string) []WordResult {
	counts := make(map[string]int)
	for _, w := range normalize(recognized) {
		counts[w]++
	}
	words := normalize(target)
	out := make([]WordResult, 0, len(words))
	for _, w := range words {
		matched := counts[w] > 0
		if matched {
			counts[w]--
		}
		out = append(out, WordResult{TargetWord: w, Matched: matched})
	}
	return out
}

func normalize(text string) []string {
	cleaned := nonWord.ReplaceAllString(strings.ToLower(text), "")
	return strings.Fields(cleaned)
}
