package pronunciation

import (
	"math"
	"strings"
)

// Scores holds the four pronunciation dimensions on a 0-100 scale.
type Scores struct {
	AccuracyScore     float64 `json:"AccuracyScore"`
	FluencyScore      float64 `json:"FluencyScore"`
	CompletenessScore float64 `json:"CompletenessScore"`
	PronScore         float64 `json:"PronScore"`
}

// Sample is the assessment of one utterance against its reference text.
type Sample struct {
	Display    string  `json:"Display"`
	Confidence float64 `json:"Confidence"`
	WordCount  int     `json:"WordCount"`
	Scores     Scores  `json:"PronunciationAssessment"`
}

// Aggregate is the word-weighted combination of several samples.
type Aggregate struct {
	Display    string  `json:"Display"`
	Confidence float64 `json:"Confidence"`
	WordCount  int     `json:"WordCount"`
	Scores     Scores  `json:"PronunciationAssessment"`
}

// CountWords counts whitespace-separated words.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
