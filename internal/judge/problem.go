package judge

import "time"

// TestCase is a single run of a problem: the stdin fed to the program and
// every output that is accepted as correct.
type TestCase struct {
	Input           string
	AcceptedOutputs []string
}

// ProblemDefinition holds everything needed to grade a problem.
type ProblemDefinition struct {
	ID        string
	TimeLimit time.Duration
	Tolerant  bool
	Runs      []TestCase
}

// LanguageDefinition is the configured toolchain for a normalized language.
type LanguageDefinition struct {
	Name       string
	Path       string
	Args       []string
	Restricted []string
	Extensions []string
	OutputFlag string
	Launcher   string
}

// Submission is a single uploaded source file.
type Submission struct {
	Filename string
	Content  []byte
}

// Request is one evaluation job.
type Request struct {
	Submission Submission
	Problem    ProblemDefinition
	Language   LanguageDefinition
	Debug      bool
}
