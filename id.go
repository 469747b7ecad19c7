package submitonce

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// IDGenerator creates request ids. A controller asks for exactly one id per
// logical submission and reuses it across every retry of that submission.
type IDGenerator interface {
	// New returns a fresh request id for email.
	New(email string) (string, error)
}

// TokenGenerator emits request ids shaped {email}-{unixMilli}-{token} where
// token is a base36 random value. Timestamp and token never contain dashes,
// so the id splits unambiguously from the right even when the email itself
// contains dashes.
type TokenGenerator struct {
	clock Clock
	rand  io.Reader
}

// NewTokenGenerator returns a TokenGenerator backed by crypto/rand.
func NewTokenGenerator(clock Clock) *TokenGenerator {
	return newTokenGeneratorWithRand(clock, rand.Reader)
}

func newTokenGeneratorWithRand(clock Clock, r io.Reader) *TokenGenerator {
	if clock == nil {
		clock = SystemClock{}
	}
	return &TokenGenerator{clock: clock, rand: r}
}

// New implements IDGenerator.
func (g *TokenGenerator) New(email string) (string, error) {
	var buf [8]byte
	if _, err := io.ReadFull(g.rand, buf[:]); err != nil {
		return "", fmt.Errorf("request id entropy: %w", err)
	}
	millis := g.clock.Now().UnixMilli()
	token := strconv.FormatUint(binary.BigEndian.Uint64(buf[:]), 36)
	return email + "-" + strconv.FormatInt(millis, 10) + "-" + token, nil
}

// ParseRequestID splits a request id into its email, issue time, and random
// token, validating each part.
func ParseRequestID(id string) (email string, issuedAt time.Time, token string, err error) {
	if id == "" {
		return "", time.Time{}, "", ErrRequestIDRequired
	}
	i := strings.LastIndexByte(id, '-')
	if i <= 0 {
		return "", time.Time{}, "", ErrRequestIDInvalid
	}
	token = id[i+1:]
	rest := id[:i]
	j := strings.LastIndexByte(rest, '-')
	if j <= 0 {
		return "", time.Time{}, "", ErrRequestIDInvalid
	}
	email = rest[:j]
	millisPart := rest[j+1:]
	if token == "" || !isBase36(token) || !isDigits(millisPart) {
		return "", time.Time{}, "", ErrRequestIDInvalid
	}
	millis, perr := strconv.ParseInt(millisPart, 10, 64)
	if perr != nil || millis <= 0 {
		return "", time.Time{}, "", ErrRequestIDInvalid
	}
	if validateEmail(email) != nil {
		return "", time.Time{}, "", ErrRequestIDInvalid
	}
	return email, time.UnixMilli(millis).UTC(), token, nil
}

// ValidateRequestID checks that id is a well-formed request id.
func ValidateRequestID(id string) error {
	_, _, _, err := ParseRequestID(id)
	return err
}

func isBase36(s string) bool {
	for _, r := range s {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') {
			continue
		}
		return false
	}
	return len(s) > 0
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
