package judge

import (
	"bytes"
	"strings"
)

const debuggerBanner = "pydev debugger: "

// NormalizeText converts CRLF line endings to LF and drops one trailing newline.
func NormalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimSuffix(s, "\n")
}

// NormalizeOutput normalizes program stdout. A leading debugger banner is
// stripped up to and including the first blank line.
func NormalizeOutput(out []byte) string {
	out = bytes.ReplaceAll(out, []byte("\r\n"), []byte("\n"))
	if bytes.HasPrefix(out, []byte(debuggerBanner)) {
		if idx := bytes.Index(out, []byte("\n\n")); idx >= 0 {
			out = out[idx+2:]
		}
	}
	return strings.TrimSuffix(string(out), "\n")
}

// Grade compares normalized output against every accepted output and returns
// the best matching code. Strict grading only knows AC and WA.
func Grade(output string, accepted []string, tolerant bool) Code {
	best := WrongAnswer
	for _, candidate := range accepted {
		expected := NormalizeText(candidate)
		if output == expected {
			return Accepted
		}
		if !tolerant {
			continue
		}
		switch {
		case equalIgnoringTrailingSpace(output, expected):
			best = AcceptedPresentationError
		case best == WrongAnswer && equalTokens(output, expected):
			best = PresentationError
		}
	}
	return best
}

func equalIgnoringTrailingSpace(a, b string) bool {
	return strings.Join(trimLines(a), "\n") == strings.Join(trimLines(b), "\n")
}

func trimLines(s string) []string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func equalTokens(a, b string) bool {
	left, right := strings.Fields(a), strings.Fields(b)
	if len(left) != len(right) {
		return false
	}
	for i := range left {
		if left[i] != right[i] {
			return false
		}
	}
	return true
}
