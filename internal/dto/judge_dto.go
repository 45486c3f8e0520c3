package dto

import (
	"time"

	"github.com/noah-isme/uva-judge/internal/judge"
)

// UploadedFile is one file taken from a multipart submission.
type UploadedFile struct {
	Filename string
	Content  []byte
}

// JudgeRequest captures a submission to be judged.
type JudgeRequest struct {
	ProblemID string         `validate:"required,max=128"`
	Language  string         `validate:"required,max=32"`
	Files     []UploadedFile `validate:"-"`
	Debug     bool
}

// VerdictResponse is the JSON document returned for every judged submission.
type VerdictResponse struct {
	SubmissionID string  `json:"submission_id,omitempty"`
	Code         string  `json:"code"`
	Message      string  `json:"message"`
	Description  string  `json:"description,omitempty"`
	Trace        string  `json:"trace,omitempty"`
	Stdout       *string `json:"stdout,omitempty"`
	Stderr       *string `json:"stderr,omitempty"`
	Cached       bool    `json:"cached,omitempty"`
}

// NewVerdictResponse renders a verdict. Captured output is only exposed in
// debug mode.
func NewVerdictResponse(verdict judge.Verdict, debug bool) VerdictResponse {
	response := VerdictResponse{
		Code:        string(verdict.Code),
		Message:     verdict.Message(),
		Description: verdict.Description,
		Trace:       verdict.Trace,
	}
	if debug {
		stdout, stderr := verdict.Stdout, verdict.Stderr
		response.Stdout = &stdout
		response.Stderr = &stderr
	}
	return response
}

// IsSubmissionError reports whether the response rejects the submission.
func (r VerdictResponse) IsSubmissionError() bool {
	return r.Code == string(judge.SubmissionError)
}

// CaseResponse summarises one graded run in the history view.
type CaseResponse struct {
	Index      int    `json:"index"`
	State      string `json:"state"`
	Code       string `json:"code"`
	DurationMs int64  `json:"duration_ms"`
}

// SubmissionResponse is a stored verdict from the history.
type SubmissionResponse struct {
	ID          string         `json:"id"`
	ProblemID   string         `json:"problem_id"`
	Language    string         `json:"language"`
	Filename    string         `json:"filename"`
	Code        string         `json:"code"`
	Message     string         `json:"message"`
	Description string         `json:"description,omitempty"`
	Trace       string         `json:"trace,omitempty"`
	Cached      bool           `json:"cached"`
	DurationMs  int64          `json:"duration_ms"`
	Cases       []CaseResponse `json:"cases"`
	CreatedAt   time.Time      `json:"created_at"`
}

// VerdictEvent is published after every judged submission.
type VerdictEvent struct {
	SubmissionID string    `json:"submission_id"`
	ProblemID    string    `json:"problem_id"`
	Language     string    `json:"language"`
	Code         string    `json:"code"`
	Cached       bool      `json:"cached"`
	DurationMs   int64     `json:"duration_ms"`
	JudgedAt     time.Time `json:"judged_at"`
}

// ProblemListResponse lists the problems available on this judge.
type ProblemListResponse struct {
	Problems []string `json:"problems"`
}

// LanguageListResponse maps normalized languages to their accepted aliases.
type LanguageListResponse struct {
	Languages map[string][]string `json:"languages"`
}
