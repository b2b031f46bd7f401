package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/loqalabs/loqa-interview/internal/config"
	"github.com/loqalabs/loqa-interview/internal/pronunciation"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := config.Default().API
	cfg.BaseURL = srv.URL + "/api/v1/ai-interview/"
	cfg.AuthToken = "token-abc"
	return NewClient(cfg, slog.New(slog.NewJSONHandler(io.Discard, nil)))
}

func TestListInterviewsUnwrapsEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/ai-interview/all", r.URL.Path)
		require.Equal(t, "token-abc", r.Header.Get("x-auth"))
		var req ListRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, 2, req.Pagination.Page)
		_, _ = w.Write([]byte(`{"data":{"interviews":[{"_id":"iv-1","name":"Backend","difficulty":"medium"}],"total":11,"page":2,"limit":10}}`))
	})

	resp, err := client.ListInterviews(context.Background(), ListRequest{Pagination: &Pagination{Page: 2, Limit: 10}})
	require.NoError(t, err)
	require.Equal(t, 11, resp.Total)
	require.Len(t, resp.Interviews, 1)
	require.Equal(t, "iv-1", resp.Interviews[0].ID)
}

func TestListInterviewsValidatesRequest(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { calls.Add(1) })

	_, err := client.ListInterviews(context.Background(), ListRequest{
		Filters: &Filters{Difficulty: []string{"impossible"}},
	})
	require.Error(t, err)
	require.Zero(t, calls.Load())
}

func TestGetInterviewIsCachedUntilSubmit(t *testing.T) {
	var detailCalls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/ai-interview/interview/iv-1":
			detailCalls.Add(1)
			_, _ = w.Write([]byte(`{"data":{"_id":"iv-1","questions":[{"_id":"q1","question":"Tell me about yourself","audioUrl":"https://cdn/q1.mp3"}],"totalAttempts":1}}`))
		case "/api/v1/ai-interview/submitAssessment":
			var req SubmitRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.Equal(t, "q1", req.QuestionID)
			require.Equal(t, 86.0, req.Data.PronunciationAssessment.PronScore)
			_, _ = w.Write([]byte(`{"message":"saved"}`))
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	details, err := client.GetInterview(ctx, "iv-1")
	require.NoError(t, err)
	require.Equal(t, "Tell me about yourself", details.Questions[0].Question)
	_, err = client.GetInterview(ctx, "iv-1")
	require.NoError(t, err)
	require.EqualValues(t, 1, detailCalls.Load())

	resp, err := client.SubmitAssessment(ctx, SubmitRequest{
		UserID:      "u-1",
		InterviewID: "iv-1",
		QuestionID:  "q1",
		Data:        AnswerFromAggregate(pronunciation.Aggregate{Scores: pronunciation.Scores{PronScore: 86}}),
	})
	require.NoError(t, err)
	require.Equal(t, "saved", resp.Message)

	_, err = client.GetInterview(ctx, "iv-1")
	require.NoError(t, err)
	require.EqualValues(t, 2, detailCalls.Load())
}

func TestSubmitRejectsMissingIDs(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { calls.Add(1) })
	_, err := client.SubmitAssessment(context.Background(), SubmitRequest{InterviewID: "iv-1"})
	require.Error(t, err)
	require.Zero(t, calls.Load())
}

func TestGetResultReadsBareReport(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/ai-interview/result", r.URL.Path)
		_, _ = w.Write([]byte(`{"interviewId":"iv-1","attempt":2,"finalScore":78.5,"strengths":["clear structure"],"avgPronScore":81}`))
	})
	report, err := client.GetResult(context.Background(), "u-1", "iv-1")
	require.NoError(t, err)
	require.Equal(t, 2, report.Attempt)
	require.NotNil(t, report.FinalScore)
	require.Equal(t, 78.5, *report.FinalScore)
	require.Equal(t, []string{"clear structure"}, report.Strengths)
	require.Equal(t, "Pronunciation", report.Metrics()[0].Name)
	require.Equal(t, 81.0, *report.Metrics()[0].Value)
	require.Nil(t, report.Metrics()[1].Value)
}

func TestErrorMessageExtraction(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"data string", http.StatusBadRequest, `{"data":"Maximum attempts reached"}`, "Maximum attempts reached"},
		{"message", http.StatusInternalServerError, `{"message":"database down"}`, "database down"},
		{"raw body", http.StatusBadGateway, `upstream timeout`, "upstream timeout"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := client.Retake(context.Background(), "u-1", "iv-1")
			var apiErr *Error
			require.True(t, errors.As(err, &apiErr))
			require.Equal(t, tc.status, apiErr.Status)
			require.Equal(t, tc.want, apiErr.Message)
		})
	}
}

func TestUserIDFromToken(t *testing.T) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"id": "67b41ece", "role": "student"}).SignedString([]byte("any-secret"))
	require.NoError(t, err)

	id, err := UserIDFromToken(signed)
	require.NoError(t, err)
	require.Equal(t, "67b41ece", id)

	_, err = UserIDFromToken("")
	require.Error(t, err)
	_, err = UserIDFromToken("not-a-jwt")
	require.Error(t, err)
}

func TestGetInterviewMeta(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/api/v1/ai-interview/iv-9", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":{"_id":"iv-9","name":"Data Engineer","company":"Initech","role":"ETL","difficulty":"easy"}}`))
	})
	meta, err := client.GetInterviewMeta(context.Background(), "iv-9")
	require.NoError(t, err)
	require.Equal(t, InterviewMeta{ID: "iv-9", Name: "Data Engineer", Company: "Initech", Role: "ETL", Difficulty: "easy"}, meta)

	_, err = client.GetInterviewMeta(context.Background(), "")
	require.Error(t, err)
}

func TestUpdateUserPutsDetails(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/api/v1/ai-interview/user", r.URL.Path)
		var req UpdateUserRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "u-1", req.UserID)
		require.Equal(t, []string{"concise answers"}, req.Strengths)
		require.NotNil(t, req.FinalScore)
		_, _ = w.Write([]byte(`{"interviewId":"iv-1","finalScore":64.5,"strengths":["concise answers"]}`))
	})
	score := 64.5
	report, err := client.UpdateUser(context.Background(), UpdateUserRequest{
		UserID:      "u-1",
		InterviewID: "iv-1",
		Strengths:   []string{"concise answers"},
		FinalScore:  &score,
	})
	require.NoError(t, err)
	require.Equal(t, 64.5, *report.FinalScore)
}

func TestUpdateUserValidatesRequest(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { calls.Add(1) })

	_, err := client.UpdateUser(context.Background(), UpdateUserRequest{InterviewID: "iv-1"})
	require.Error(t, err)
	over := 120.0
	_, err = client.UpdateUser(context.Background(), UpdateUserRequest{UserID: "u-1", InterviewID: "iv-1", FinalScore: &over})
	require.Error(t, err)
	require.Zero(t, calls.Load())
}

func TestSubmissionCarriesWordCount(t *testing.T) {
	data, err := json.Marshal(SubmitRequest{
		UserID:      "u-1",
		InterviewID: "iv-1",
		QuestionID:  "q1",
		Data:        AnswerFromAggregate(pronunciation.AggregateSamples([]pronunciation.Sample{{Display: "a b c d", WordCount: 4}})),
	})
	require.NoError(t, err)
	require.Contains(t, string(data), `"WordCount":4`)
}
