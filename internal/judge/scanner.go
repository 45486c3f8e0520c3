package judge

import (
	"bytes"
	"fmt"
	"os"
)

// ScanRestricted reads the staged source and returns the first restricted
// construct, in configured order, that appears anywhere in it.
func ScanRestricted(path string, restricted []string) (string, bool, error) {
	if len(restricted) == 0 {
		return "", false, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", false, fmt.Errorf("read staged source: %w", err)
	}

	for _, construct := range restricted {
		if construct == "" {
			continue
		}
		if bytes.Contains(content, []byte(construct)) {
			return construct, true, nil
		}
	}
	return "", false, nil
}
