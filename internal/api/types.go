package api

import "github.com/loqalabs/loqa-interview/internal/pronunciation"

type Filters struct {
	Search     string   `json:"search,omitempty"`
	Company    string   `json:"company,omitempty"`
	Difficulty []string `json:"difficulty,omitempty" validate:"omitempty,dive,oneof=easy medium hard"`
	Tag        string   `json:"tag,omitempty"`
}

type Pagination struct {
	Page  int `json:"page" validate:"gte=1"`
	Limit int `json:"limit" validate:"gte=1,lte=100"`
}

type Sorting struct {
	SortBy    string `json:"sortBy" validate:"required"`
	SortOrder string `json:"sortOrder" validate:"oneof=asc desc"`
}

type ListRequest struct {
	Filters    *Filters    `json:"filters,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Sorting    *Sorting    `json:"sorting,omitempty"`
}

type Interview struct {
	ID         string `json:"_id"`
	Name       string `json:"name"`
	Company    string `json:"company"`
	Role       string `json:"role"`
	Difficulty string `json:"difficulty"`
	Status     string `json:"status"`
	CreatedAt  string `json:"createdAt"`
}

type ListResponse struct {
	Interviews []Interview `json:"interviews"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
}

type Question struct {
	ID       string `json:"_id"`
	Question string `json:"question"`
	AudioURL string `json:"audioUrl"`
}

// AnswerData is the assessment payload stored per answered question.
type AnswerData struct {
	Display                 string               `json:"Display"`
	Confidence              float64              `json:"Confidence"`
	WordCount               int                  `json:"WordCount"`
	PronunciationAssessment pronunciation.Scores `json:"PronunciationAssessment"`
}

// AnswerFromAggregate converts an aggregated assessment into the submitted shape.
func AnswerFromAggregate(agg pronunciation.Aggregate) AnswerData {
	return AnswerData{
		Display:                 agg.Display,
		Confidence:              agg.Confidence,
		WordCount:               agg.WordCount,
		PronunciationAssessment: agg.Scores,
	}
}

type UserAnswer struct {
	QuestionID    string     `json:"questionId"`
	AttemptCount  int        `json:"attemptCount"`
	TotalAttempts int        `json:"totalAttempts"`
	Data          AnswerData `json:"data"`
}

type InterviewDetails struct {
	ID            string       `json:"_id"`
	Name          string       `json:"name"`
	Company       string       `json:"company"`
	Role          string       `json:"role"`
	Difficulty    string       `json:"difficulty"`
	Questions     []Question   `json:"questions"`
	UserAnswers   []UserAnswer `json:"userAnswers"`
	TotalAttempts int          `json:"totalAttempts"`
}

type InterviewMeta struct {
	ID         string `json:"_id"`
	Name       string `json:"name"`
	Company    string `json:"company"`
	Role       string `json:"role"`
	Difficulty string `json:"difficulty"`
}

type SubmitRequest struct {
	UserID      string     `json:"userId" validate:"required"`
	InterviewID string     `json:"interviewId" validate:"required"`
	QuestionID  string     `json:"questionId" validate:"required"`
	Data        AnswerData `json:"data"`
}

type SubmitResponse struct {
	Message string `json:"message"`
}

// Answer is one scored answer inside a final report.
type Answer struct {
	QuestionID   string   `json:"questionId"`
	Question     string   `json:"question"`
	Answer       string   `json:"answer"`
	Confidence   *float64 `json:"confidence,omitempty"`
	Accuracy     *float64 `json:"accuracy,omitempty"`
	Fluency      *float64 `json:"fluency,omitempty"`
	Completeness *float64 `json:"completeness,omitempty"`
	PronScore    *float64 `json:"pronScore,omitempty"`
	Grammar      *float64 `json:"grammar,omitempty"`
	Vocabulary   *float64 `json:"vocabulary,omitempty"`
	Structure    *float64 `json:"structure,omitempty"`
	Specificity  *float64 `json:"specificity,omitempty"`
	Relevance    *float64 `json:"relevance,omitempty"`
	Engagement   *float64 `json:"engagement,omitempty"`
}

// Report is the user's interview record as returned by /result and /retake.
type Report struct {
	ID              string   `json:"_id"`
	StudentID       string   `json:"studentId"`
	InterviewID     string   `json:"interviewId"`
	Result          bool     `json:"result"`
	Attempt         int      `json:"attempt"`
	Answers         []Answer `json:"answers"`
	Strengths       []string `json:"strengths,omitempty"`
	Weaknesses      []string `json:"weaknesses,omitempty"`
	AvgConfidence   *float64 `json:"avgConfidence,omitempty"`
	AvgAccuracy     *float64 `json:"avgAccuracy,omitempty"`
	AvgFluency      *float64 `json:"avgFluency,omitempty"`
	AvgCompleteness *float64 `json:"avgCompleteness,omitempty"`
	AvgPronScore    *float64 `json:"avgPronScore,omitempty"`
	AvgGrammar      *float64 `json:"avgGrammar,omitempty"`
	AvgVocabulary   *float64 `json:"avgVocabulary,omitempty"`
	AvgStructure    *float64 `json:"avgStructure,omitempty"`
	AvgSpecificity  *float64 `json:"avgSpecificity,omitempty"`
	AvgRelevance    *float64 `json:"avgRelevance,omitempty"`
	AvgEngagement   *float64 `json:"avgEngagement,omitempty"`
	FinalScore      *float64 `json:"finalScore,omitempty"`
}

// Metric is a named report average; Value is nil when the backend omitted it.
type Metric struct {
	Name  string
	Value *float64
}

// Metrics lists the report averages in display order.
func (r Report) Metrics() []Metric {
	return []Metric{
		{"Pronunciation", r.AvgPronScore},
		{"Grammar", r.AvgGrammar},
		{"Vocabulary", r.AvgVocabulary},
		{"Structure", r.AvgStructure},
		{"Specificity", r.AvgSpecificity},
		{"Relevance", r.AvgRelevance},
		{"Engagement", r.AvgEngagement},
		{"Accuracy", r.AvgAccuracy},
		{"Fluency", r.AvgFluency},
		{"Completeness", r.AvgCompleteness},
	}
}

type userInterviewRequest struct {
	UserID      string `json:"userId" validate:"required"`
	InterviewID string `json:"interviewId" validate:"required"`
}

type UpdateUserRequest struct {
	UserID      string   `json:"userId" validate:"required"`
	InterviewID string   `json:"interviewId" validate:"required"`
	Strengths   []string `json:"strengths,omitempty"`
	Weaknesses  []string `json:"weaknesses,omitempty"`
	FinalScore  *float64 `json:"finalScore,omitempty" validate:"omitempty,gte=0,lte=100"`
}
