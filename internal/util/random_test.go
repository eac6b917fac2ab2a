package util

import (
	"strings"
	"testing"
)

func TestGenerateRandomHex(t *testing.T) {
	for _, length := range []int{0, 1, 16, 64} {
		got := GenerateRandomHex(length)
		if len(got) != length {
			t.Errorf("GenerateRandomHex(%d) length = %d", length, len(got))
		}
		for _, r := range got {
			if !strings.ContainsRune("0123456789abcdef", r) {
				t.Errorf("GenerateRandomHex(%d) contains non-hex rune %q", length, r)
			}
		}
	}
	if GenerateRandomHex(-1) != "" {
		t.Error("GenerateRandomHex(-1) should be empty")
	}
}

func TestGeneratedIDPrefixes(t *testing.T) {
	if !strings.HasPrefix(GenerateJobID(), "job_") {
		t.Error("GenerateJobID missing job_ prefix")
	}
	if !strings.HasPrefix(GenerateRetryID(), "rt_") {
		t.Error("GenerateRetryID missing rt_ prefix")
	}

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateJobID()
		if seen[id] {
			t.Fatalf("GenerateJobID produced duplicate %s", id)
		}
		seen[id] = true
	}
}
