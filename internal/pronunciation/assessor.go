package pronunciation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/loqalabs/loqa-interview/internal/config"
)

// DefaultConfidence stands in when the service reports no hypothesis confidence.
const DefaultConfidence = 0.9

// Assessor scores a finished recording against the text the speaker meant to say.
type Assessor interface {
	Assess(ctx context.Context, wav []byte, reference string) (Sample, error)
}

// New builds the assessor selected by cfg.Mode.
func New(cfg config.AssessorConfig, log *slog.Logger) (Assessor, error) {
	log = log.With(slog.String("component", "assessor"), slog.String("mode", cfg.Mode))
	switch cfg.Mode {
	case "azure":
		return NewAzureAssessor(cfg, log), nil
	case "exec":
		return NewExecAssessor(cfg, log)
	case "mock", "":
		return MockAssessor{}, nil
	default:
		return nil, fmt.Errorf("unknown assessor mode %q", cfg.Mode)
	}
}

// recognitionResult is the detailed-format response shared by the Azure
// endpoint and exec assessors. Scores may sit under PronunciationAssessment
// or directly on the hypothesis.
type recognitionResult struct {
	RecognitionStatus string       `json:"RecognitionStatus"`
	NBest             []hypothesis `json:"NBest"`
}

type hypothesis struct {
	Confidence              *float64    `json:"Confidence"`
	Display                 string      `json:"Display"`
	PronunciationAssessment *scoreField `json:"PronunciationAssessment"`
	scoreField
}

type scoreField struct {
	AccuracyScore     *float64 `json:"AccuracyScore"`
	FluencyScore      *float64 `json:"FluencyScore"`
	CompletenessScore *float64 `json:"CompletenessScore"`
	PronScore         *float64 `json:"PronScore"`
}

func (f scoreField) scores() Scores {
	return Scores{
		AccuracyScore:     deref(f.AccuracyScore),
		FluencyScore:      deref(f.FluencyScore),
		CompletenessScore: deref(f.CompletenessScore),
		PronScore:         deref(f.PronScore),
	}
}

// sampleFromResult builds a Sample from a raw recognition response. The
// display text and word count always come from the reference.
func sampleFromResult(data []byte, reference string) (Sample, error) {
	var res recognitionResult
	if err := json.Unmarshal(data, &res); err != nil {
		return Sample{}, fmt.Errorf("decode assessment: %w", err)
	}
	reference = strings.TrimSpace(reference)
	sample := Sample{
		Display:    reference,
		Confidence: DefaultConfidence,
		WordCount:  CountWords(reference),
	}
	if len(res.NBest) == 0 {
		return sample, nil
	}
	best := res.NBest[0]
	if best.Confidence != nil {
		sample.Confidence = *best.Confidence
	}
	if best.PronunciationAssessment != nil {
		sample.Scores = best.PronunciationAssessment.scores()
	} else {
		sample.Scores = best.scoreField.scores()
	}
	return sample, nil
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
