package judge

import "time"

// Code is the two-letter verdict code reported to clients.
type Code string

const (
	Accepted                  Code = "AC"
	AcceptedPresentationError Code = "AE"
	PresentationError         Code = "PE"
	WrongAnswer               Code = "WA"
	CompileError              Code = "CE"
	RuntimeError              Code = "RE"
	TimeLimitExceeded         Code = "TL"
	MemoryLimitExceeded       Code = "ML"
	OutputLimitExceeded       Code = "OL"
	RestrictedFunction        Code = "RF"
	SubmissionError           Code = "SE"
)

var codeMessages = map[Code]string{
	Accepted:                  "Accepted",
	AcceptedPresentationError: "Accepted with Presentation Error",
	PresentationError:         "Presentation Error",
	WrongAnswer:               "Wrong Answer",
	CompileError:              "Compile Error",
	RuntimeError:              "Runtime Error",
	TimeLimitExceeded:         "Time Limit Exceeded",
	MemoryLimitExceeded:       "Memory Limit Exceeded",
	OutputLimitExceeded:       "Output Limit Exceeded",
	RestrictedFunction:        "Restricted Function",
	SubmissionError:           "Submission Error",
}

// Message returns the human readable label for the code.
func (c Code) Message() string {
	if msg, ok := codeMessages[c]; ok {
		return msg
	}
	return string(c)
}

// Valid reports whether c is one of the known verdict codes.
func (c Code) Valid() bool {
	_, ok := codeMessages[c]
	return ok
}

// Passing reports whether the code lets aggregation continue past a case.
func (c Code) Passing() bool {
	return c == Accepted || c == AcceptedPresentationError
}

// Deterministic reports whether re-judging the same source is expected to
// produce the same code. Timing dependent codes are excluded.
func (c Code) Deterministic() bool {
	switch c {
	case Accepted, AcceptedPresentationError, PresentationError, WrongAnswer, CompileError, RestrictedFunction:
		return true
	default:
		return false
	}
}

// CaseState tracks a single test case through execution.
type CaseState string

const (
	CasePending  CaseState = "pending"
	CaseRunning  CaseState = "running"
	CaseVerified CaseState = "verified"
	CaseFailed   CaseState = "failed"
	CaseTimedOut CaseState = "timed_out"
	CaseSkipped  CaseState = "skipped"
)

// CaseVerdict is the graded outcome of one test case.
type CaseVerdict struct {
	Index    int
	State    CaseState
	Code     Code
	Stdout   string
	Stderr   string
	Trace    string
	Duration time.Duration
	// Err is the runner failure behind an RE, if any.
	Err error
}

// Verdict is the final answer for a submission.
type Verdict struct {
	Code        Code
	Description string
	Trace       string
	Stdout      string
	Stderr      string
	Cases       []CaseVerdict
	// Transient marks verdicts caused by load rather than by the source,
	// such as a compiler that ran out of time.
	Transient bool
}

// Cacheable reports whether the verdict may be reused for identical input.
func (v Verdict) Cacheable() bool {
	return !v.Transient && v.Code.Deterministic()
}

// Message returns the human readable label of the verdict code.
func (v Verdict) Message() string {
	return v.Code.Message()
}

// Reject builds a SUBMISSION_ERROR verdict with the given description.
func Reject(description string) Verdict {
	return Verdict{Code: SubmissionError, Description: description}
}
