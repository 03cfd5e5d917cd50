// Package session holds the authenticated identity the upload path runs as.
// A Session is passed explicitly to the components that need it.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// Session errors.
var (
	ErrNoSession    = errors.New("not logged in")
	ErrExpired      = errors.New("session expired")
	ErrInvalidToken = errors.New("invalid token")
)

// Issuer is the iss claim on tokens minted by pocket.
const Issuer = "pocket"

// Session is a user id plus the bearer credential the remote accepts.
type Session struct {
	ExpiresAt   time.Time
	UserID      string
	AccessToken string
}

// Claims are the JWT claims pocket issues and verifies.
type Claims struct {
	jwt.RegisteredClaims
}

// Expired reports whether the session has a deadline that has passed.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Token implements oauth2.TokenSource so the rest client can attach the
// credential as a bearer header.
func (s Session) Token() (*oauth2.Token, error) {
	if s.AccessToken == "" {
		return nil, ErrNoSession
	}
	if s.Expired(time.Now()) {
		return nil, fmt.Errorf("%w at %s", ErrExpired, s.ExpiresAt.Format(time.RFC3339))
	}
	return &oauth2.Token{
		AccessToken: s.AccessToken,
		TokenType:   "Bearer",
		Expiry:      s.ExpiresAt,
	}, nil
}

// Issue mints an HS256 token for userID valid for ttl.
func Issue(secret []byte, userID string, ttl time.Duration, now time.Time) (Session, error) {
	if len(secret) == 0 {
		return Session{}, fmt.Errorf("%w: empty signing secret", ErrInvalidToken)
	}
	if userID == "" {
		return Session{}, fmt.Errorf("%w: empty user id", ErrInvalidToken)
	}

	expires := now.Add(ttl).Truncate(time.Second)
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    Issuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return Session{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return Session{UserID: userID, AccessToken: signed, ExpiresAt: expires}, nil
}

// Verify checks signature, issuer and expiry and returns the session the
// token describes.
func Verify(secret []byte, token string, now time.Time) (Session, error) {
	if token == "" {
		return Session{}, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return Session{}, fmt.Errorf("%w: %v", ErrExpired, err)
	}
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return Session{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return Session{
		UserID:      claims.Subject,
		AccessToken: token,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}

// Inspect reads the subject and expiry of a token without checking its
// signature. The remote still verifies every request; this only lets a
// client store a token it was handed.
func Inspect(token string) (Session, error) {
	if token == "" {
		return Session{}, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return Session{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	sess := Session{UserID: claims.Subject, AccessToken: token}
	if claims.ExpiresAt != nil {
		sess.ExpiresAt = claims.ExpiresAt.Time
	}
	return sess, nil
}
