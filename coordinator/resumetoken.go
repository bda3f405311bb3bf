package coordinator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/runledger/runledger/domain"
)

// resumeClaims is the signed payload described in §9: {run_id, minted_at,
// sequence_checkpoint}, embedding the registered claims for expiry.
type resumeClaims struct {
	RunID              string `json:"run_id"`
	SequenceCheckpoint int64  `json:"sequence_checkpoint"`
	jwt.RegisteredClaims
}

// tokenService mints and verifies resume tokens with a process-wide
// immutable HS256 secret, mirroring the signing/expiry-check shape the
// teacher used for session tokens.
type tokenService struct {
	secret []byte
	ttl    time.Duration
}

func newTokenService(secret string, ttl time.Duration) *tokenService {
	return &tokenService{secret: []byte(secret), ttl: ttl}
}

func (t *tokenService) mint(runID string, sequenceCheckpoint int64) (string, error) {
	now := time.Now()
	claims := resumeClaims{
		RunID:              runID,
		SequenceCheckpoint: sequenceCheckpoint,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   runID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("coordinator: mint resume token: %w", err)
	}
	return signed, nil
}

func (t *tokenService) verify(tokenString string) (*resumeClaims, error) {
	claims := &resumeClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, domain.ErrInvalidResumeToken
	}
	if claims.ExpiresAt == nil || claims.ExpiresAt.Before(time.Now()) {
		return nil, domain.ErrInvalidResumeToken
	}
	return claims, nil
}

// hashToken returns the token's storage fingerprint. The raw token is never
// persisted; only its hash is, so that a leaked metadata-store row cannot
// be replayed directly.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
