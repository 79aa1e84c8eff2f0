// ABOUTME: Signed tokens that let a web guest watch their own conversation stream
// ABOUTME: HS256 JWTs under a key derived from the staff secret, so the two never verify as each other

package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// StreamAudience marks a token as a conversation stream grant
const StreamAudience = "conversation-stream"

// ErrWrongConversation is returned when a valid token names another conversation
var ErrWrongConversation = errors.New("token is for another conversation")

// StreamClaims grant read access to one conversation's live stream
type StreamClaims struct {
	HotelID string `json:"hotelId"`
	jwt.RegisteredClaims
}

// StreamSigner issues and checks conversation stream tokens
type StreamSigner struct {
	key []byte
}

// NewStreamSigner derives the stream key from secret. An empty secret gets a
// random key, so tokens stay valid only for the life of the process.
func NewStreamSigner(secret []byte) (*StreamSigner, error) {
	if len(secret) == 0 {
		secret = make([]byte, MinSecretLength)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generating stream key: %w", err)
		}
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(StreamAudience))
	return &StreamSigner{key: mac.Sum(nil)}, nil
}

// Generate signs a grant for conversationID in hotelID
func (s *StreamSigner) Generate(hotelID, conversationID string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := StreamClaims{
		HotelID: hotelID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   conversationID,
			Audience:  jwt.ClaimStrings{StreamAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

// Verify checks tokenString and that it grants conversationID
func (s *StreamSigner) Verify(tokenString, conversationID string) (*StreamClaims, error) {
	claims := &StreamClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return s.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithAudience(StreamAudience))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject != conversationID {
		return nil, ErrWrongConversation
	}
	return claims, nil
}
