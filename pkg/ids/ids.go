// Package ids generates the short task identifiers embedded in task files.
package ids

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// TaskIDLength is the number of hex characters in a generated task id.
const TaskIDLength = 6

// NewTaskID returns a random lowercase hex task id, e.g. "a7f3c2".
func NewTaskID() (string, error) {
	buf := make([]byte, (TaskIDLength+1)/2)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(buf)[:TaskIDLength], nil
}
