package catalog

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// Serial codes are human-readable labels of the form NN-XXXXXX. The
// alphabet excludes easily confused characters (0/O, 1/I). Uniqueness
// is by convention: collision probability is accepted as negligible and
// not cryptographically enforced.
const (
	serialPrefix   = "NN-"
	serialLength   = 6
	serialAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// NewSerialCode generates a fresh serial code.
func NewSerialCode() (string, error) {
	buffer := make([]byte, serialLength)
	if _, err := rand.Read(buffer); err != nil {
		return "", fmt.Errorf("catalog: serial code generation failed: %w", err)
	}
	var builder strings.Builder
	builder.WriteString(serialPrefix)
	for _, b := range buffer {
		builder.WriteByte(serialAlphabet[int(b)%len(serialAlphabet)])
	}
	return builder.String(), nil
}

// ValidSerialCode reports whether a code matches the NN-XXXXXX shape.
func ValidSerialCode(code string) bool {
	if !strings.HasPrefix(code, serialPrefix) {
		return false
	}
	suffix := strings.TrimPrefix(code, serialPrefix)
	if len(suffix) != serialLength {
		return false
	}
	for _, char := range suffix {
		if !strings.ContainsRune(serialAlphabet, char) {
			return false
		}
	}
	return true
}
