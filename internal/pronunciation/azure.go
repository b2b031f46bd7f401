package pronunciation

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/loqalabs/loqa-interview/internal/config"
)

const azureRecognitionPath = "/speech/recognition/conversation/cognitiveservices/v1"

// AzureAssessor calls the Azure Speech short-audio REST endpoint with a
// pronunciation assessment request attached.
type AzureAssessor struct {
	endpoint string
	key      string
	language string
	client   *http.Client
	log      *slog.Logger
}

func NewAzureAssessor(cfg config.AssessorConfig, log *slog.Logger) *AzureAssessor {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.stt.speech.microsoft.com", cfg.AzureRegion)
	}
	language := cfg.Language
	if language == "" {
		language = "en-US"
	}
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &AzureAssessor{
		endpoint: endpoint,
		key:      cfg.AzureKey,
		language: language,
		client:   &http.Client{Timeout: timeout},
		log:      log,
	}
}

type assessmentParams struct {
	ReferenceText string `json:"ReferenceText"`
	GradingSystem string `json:"GradingSystem"`
	Granularity   string `json:"Granularity"`
	Dimension     string `json:"Dimension"`
	EnableMiscue  bool   `json:"EnableMiscue"`
}

func assessmentHeader(reference string) (string, error) {
	params, err := json.Marshal(assessmentParams{
		ReferenceText: reference,
		GradingSystem: "HundredMark",
		Granularity:   "Word",
		Dimension:     "Comprehensive",
		EnableMiscue:  true,
	})
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(params), nil
}

func (a *AzureAssessor) Assess(ctx context.Context, wav []byte, reference string) (Sample, error) {
	reference = strings.TrimSpace(reference)
	header, err := assessmentHeader(reference)
	if err != nil {
		return Sample{}, fmt.Errorf("encode assessment params: %w", err)
	}

	query := url.Values{}
	query.Set("language", a.language)
	query.Set("format", "detailed")
	target := a.endpoint + azureRecognitionPath + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(wav))
	if err != nil {
		return Sample{}, err
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", a.key)
	req.Header.Set("Content-Type", "audio/wav; codecs=audio/pcm; samplerate=16000")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Pronunciation-Assessment", header)

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		return Sample{}, fmt.Errorf("azure assessment request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Sample{}, fmt.Errorf("read azure response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return Sample{}, fmt.Errorf("azure returned status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	sample, err := sampleFromResult(body, reference)
	if err != nil {
		return Sample{}, err
	}
	a.log.Debug("assessment complete",
		slog.Int("words", sample.WordCount),
		slog.Float64("pron_score", sample.Scores.PronScore),
		slog.Duration("latency", time.Since(start)),
	)
	return sample, nil
}
