package pronunciation

import "strings"

// AggregateSamples merges samples into one result, weighting every field by
// the sample's word count. Samples without words weigh as one word. Means are
// rounded to one decimal; an empty input yields zeros.
func AggregateSamples(samples []Sample) Aggregate {
	var (
		totalWeight  int
		confidence   float64
		accuracy     float64
		fluency      float64
		completeness float64
		pron         float64
		display      strings.Builder
	)
	for _, s := range samples {
		w := max(s.WordCount, 1)
		totalWeight += w
		// a separator follows every item once the text is non-empty, so empty
		// displays in the middle still leave their space
		if display.Len() > 0 {
			display.WriteByte(' ')
		}
		display.WriteString(s.Display)
		fw := float64(w)
		confidence += s.Confidence * fw
		accuracy += s.Scores.AccuracyScore * fw
		fluency += s.Scores.FluencyScore * fw
		completeness += s.Scores.CompletenessScore * fw
		pron += s.Scores.PronScore * fw
	}

	mean := func(sum float64) float64 {
		if totalWeight == 0 {
			return 0
		}
		return round1(sum / float64(totalWeight))
	}

	return Aggregate{
		Display:    strings.TrimSpace(display.String()),
		Confidence: mean(confidence),
		WordCount:  totalWeight,
		Scores: Scores{
			AccuracyScore:     mean(accuracy),
			FluencyScore:      mean(fluency),
			CompletenessScore: mean(completeness),
			PronScore:         mean(pron),
		},
	}
}
