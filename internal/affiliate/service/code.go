package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Suffix alphabet excludes visually ambiguous characters (I, O, 0, 1).
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	codeBaseMaxLen   = 10
	codeSuffixLen    = 4
	codeMaxAttempts  = 10
	codeFallbackBase = "AFFILIATE"
)

var codePattern = regexp.MustCompile(`^[A-Z]{1,10}-[A-Z0-9]{4}$`)

// ValidCode reports whether code matches the published format.
func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}

// generateCode produces a globally unique human-readable code derived from
// the display name. After codeMaxAttempts collisions it falls back to a
// timestamp-derived suffix so a pathological collision run still terminates.
func (s *Service) generateCode(ctx context.Context, displayName string) (string, error) {
	base := normalizeCodeBase(displayName)

	for attempt := 0; attempt < codeMaxAttempts; attempt++ {
		suffix, err := randomSuffix()
		if err != nil {
			return "", err
		}
		code := base + "-" + suffix

		exists, err := s.repo.CodeExists(ctx, s.db, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}

	return base + "-" + timestampSuffix(s.clock.Now()), nil
}

// normalizeCodeBase keeps the uppercase ASCII letters of the first
// whitespace-delimited token, capped at codeBaseMaxLen.
func normalizeCodeBase(displayName string) string {
	fields := strings.Fields(displayName)
	token := ""
	if len(fields) > 0 {
		token = fields[0]
	}

	var b strings.Builder
	for _, r := range strings.ToUpper(token) {
		if r >= 'A' && r <= 'Z' {
			b.WriteRune(r)
		}
		if b.Len() >= codeBaseMaxLen {
			break
		}
	}

	if b.Len() == 0 {
		return codeFallbackBase
	}
	return b.String()
}

func randomSuffix() (string, error) {
	buf := make([]byte, codeSuffixLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate code suffix: %w", err)
	}
	for i, v := range buf {
		buf[i] = codeAlphabet[int(v)%len(codeAlphabet)]
	}
	return string(buf), nil
}

func timestampSuffix(now time.Time) string {
	n := now.UnixNano()
	out := make([]byte, codeSuffixLen)
	for i := codeSuffixLen - 1; i >= 0; i-- {
		out[i] = codeAlphabet[n%int64(len(codeAlphabet))]
		n /= int64(len(codeAlphabet))
	}
	return string(out)
}
