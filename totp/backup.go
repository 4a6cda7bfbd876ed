package totp

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"
)

const (
	// DefaultBackupCodeCount is the number of codes issued per enrollment.
	DefaultBackupCodeCount = 10

	backupCodeBytes = 4
)

// GenerateBackupCodes returns count distinct single-use codes, each 8
// uppercase hexadecimal characters. A nil reader uses crypto/rand.
func GenerateBackupCodes(r io.Reader, count int) ([]string, error) {
	if r == nil {
		r = rand.Reader
	}
	if count <= 0 {
		count = DefaultBackupCodeCount
	}

	codes := make([]string, 0, count)
	seen := make(map[string]struct{}, count)
	var buf [backupCodeBytes]byte
	for len(codes) < count {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
		code := strings.ToUpper(hex.EncodeToString(buf[:]))
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}

// NormalizeBackupCode canonicalizes user input so lookups are case-insensitive.
func NormalizeBackupCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// HashBackupCode returns the at-rest digest of a backup code. Plaintext codes
// are never persisted.
func HashBackupCode(code string) string {
	sum := sha256.Sum256([]byte(NormalizeBackupCode(code)))
	return hex.EncodeToString(sum[:])
}
