package pronunciation

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/loqalabs/loqa-interview/internal/config"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestSampleFromNestedResult(t *testing.T) {
	body := `{"RecognitionStatus":"Success","NBest":[{"Confidence":0.76,"PronunciationAssessment":{"AccuracyScore":88,"FluencyScore":72.5,"CompletenessScore":100,"PronScore":81.2}}]}`
	s, err := sampleFromResult([]byte(body), "  I enjoy debugging  ")
	require.NoError(t, err)
	require.Equal(t, "I enjoy debugging", s.Display)
	require.Equal(t, 3, s.WordCount)
	require.Equal(t, 0.76, s.Confidence)
	require.Equal(t, Scores{AccuracyScore: 88, FluencyScore: 72.5, CompletenessScore: 100, PronScore: 81.2}, s.Scores)
}

func TestSampleFromFlatResultWithMissingFields(t *testing.T) {
	body := `{"NBest":[{"AccuracyScore":64,"PronScore":58}]}`
	s, err := sampleFromResult([]byte(body), "one two")
	require.NoError(t, err)
	require.Equal(t, DefaultConfidence, s.Confidence)
	require.Equal(t, Scores{AccuracyScore: 64, PronScore: 58}, s.Scores)
}

func TestSampleFromEmptyResult(t *testing.T) {
	s, err := sampleFromResult([]byte(`{"RecognitionStatus":"NoMatch"}`), "hello")
	require.NoError(t, err)
	require.Equal(t, DefaultConfidence, s.Confidence)
	require.Equal(t, Scores{}, s.Scores)
	require.Equal(t, 1, s.WordCount)
}

func TestAzureAssessorRequest(t *testing.T) {
	var gotParams assessmentParams
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, azureRecognitionPath, r.URL.Path)
		require.Equal(t, "en-GB", r.URL.Query().Get("language"))
		require.Equal(t, "detailed", r.URL.Query().Get("format"))
		require.Equal(t, "secret", r.Header.Get("Ocp-Apim-Subscription-Key"))
		raw, err := base64.StdEncoding.DecodeString(r.Header.Get("Pronunciation-Assessment"))
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &gotParams))
		audio, _ := io.ReadAll(r.Body)
		require.Equal(t, []byte("RIFFdata"), audio)
		_, _ = w.Write([]byte(`{"NBest":[{"Confidence":0.8,"PronunciationAssessment":{"AccuracyScore":90,"FluencyScore":80,"CompletenessScore":70,"PronScore":82}}]}`))
	}))
	defer srv.Close()

	a := NewAzureAssessor(config.AssessorConfig{AzureKey: "secret", Endpoint: srv.URL + "/", Language: "en-GB"}, discardLogger())
	s, err := a.Assess(context.Background(), []byte("RIFFdata"), "Ship small changes often")
	require.NoError(t, err)
	require.Equal(t, 82.0, s.Scores.PronScore)
	require.Equal(t, 4, s.WordCount)
	require.Equal(t, assessmentParams{
		ReferenceText: "Ship small changes often",
		GradingSystem: "HundredMark",
		Granularity:   "Word",
		Dimension:     "Comprehensive",
		EnableMiscue:  true,
	}, gotParams)
}

func TestAzureAssessorHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	a := NewAzureAssessor(config.AssessorConfig{AzureKey: "wrong", Endpoint: srv.URL}, discardLogger())
	_, err := a.Assess(context.Background(), []byte("RIFF"), "hello")
	require.ErrorContains(t, err, "401")
}

func TestNewSelectsMode(t *testing.T) {
	a, err := New(config.AssessorConfig{Mode: "mock"}, discardLogger())
	require.NoError(t, err)
	require.IsType(t, MockAssessor{}, a)

	_, err = New(config.AssessorConfig{Mode: "exec", Command: `"unterminated`}, discardLogger())
	require.Error(t, err)

	_, err = New(config.AssessorConfig{Mode: "psychic"}, discardLogger())
	require.Error(t, err)
}

func TestMockAssessorIsDeterministic(t *testing.T) {
	a := MockAssessor{}
	first, err := a.Assess(context.Background(), nil, "I led the migration to Go")
	require.NoError(t, err)
	second, err := a.Assess(context.Background(), nil, "I led the migration to Go")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 6, first.WordCount)
	require.Equal(t, 84.0, first.Scores.CompletenessScore)
}
