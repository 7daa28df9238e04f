package agentloop

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"
)

// actionSignature computes a deterministic signature for a command
// (upper-cased name + hash of arguments).
func actionSignature(command string, args []string) string {
	raw, _ := json.Marshal(args)
	h := sha256.Sum256(raw)
	return fmt.Sprintf("%s:%x", strings.ToUpper(strings.TrimSpace(command)), h[:8])
}

// DetectLoop checks if the last windowSize signatures follow a repeating
// pattern of length 1, 2, or 3.
func DetectLoop(signatures []string, windowSize int) bool {
	if windowSize <= 0 || len(signatures) < windowSize {
		return false
	}
	sigs := signatures[len(signatures)-windowSize:]

	for patternLen := 1; patternLen <= 3; patternLen++ {
		if windowSize%patternLen != 0 {
			continue
		}
		pattern := sigs[:patternLen]
		allMatch := true
		for i := patternLen; i < windowSize && allMatch; i += patternLen {
			for j := 0; j < patternLen; j++ {
				if sigs[i+j] != pattern[j] {
					allMatch = false
					break
				}
			}
		}
		if allMatch {
			return true
		}
	}

	return false
}

// loopWarning is the feedback appended when a loop is detected.
func loopWarning(window int) string {
	return fmt.Sprintf("Loop detected: the last %d commands follow a repeating pattern. Stop repeating them and try a different approach.", window)
}
