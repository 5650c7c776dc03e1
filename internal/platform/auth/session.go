package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrSessionInvalid = errors.New("invalid or expired session")

const (
	sessionIssuer  = "redmond-dental-intake"
	sessionSubject = "admin"
)

// SessionStore tracks which session ids are still live. A token whose id
// is absent has been logged out or has lapsed.
type SessionStore interface {
	Save(ctx context.Context, id string, expiresAt time.Time) error
	Exists(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
}

// Session is a validated admin session.
type Session struct {
	ID        string
	ExpiresAt time.Time
}

// Sessions issues and checks HS256 session tokens.
type Sessions struct {
	secret []byte
	ttl    time.Duration
	store  SessionStore
	now    func() time.Time
}

func NewSessions(secret []byte, ttl time.Duration, store SessionStore) *Sessions {
	return &Sessions{
		secret: secret,
		ttl:    ttl,
		store:  store,
		now:    time.Now,
	}
}

// TTL is the lifetime of a newly issued session.
func (s *Sessions) TTL() time.Duration { return s.ttl }

// Issue signs a new token and records its id in the store.
func (s *Sessions) Issue(ctx context.Context) (string, Session, error) {
	now := s.now()
	sess := Session{ID: uuid.New().String(), ExpiresAt: now.Add(s.ttl)}
	claims := jwt.RegisteredClaims{
		ID:        sess.ID,
		Issuer:    sessionIssuer,
		Subject:   sessionSubject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", Session{}, fmt.Errorf("sign session: %w", err)
	}
	if err := s.store.Save(ctx, sess.ID, sess.ExpiresAt); err != nil {
		return "", Session{}, fmt.Errorf("save session: %w", err)
	}
	return token, sess, nil
}

// Validate checks the signature, expiry and liveness of token.
func (s *Sessions) Validate(ctx context.Context, token string) (Session, error) {
	claims, err := s.parse(token)
	if err != nil {
		return Session{}, err
	}
	ok, err := s.store.Exists(ctx, claims.ID)
	if err != nil {
		return Session{}, fmt.Errorf("look up session: %w", err)
	}
	if !ok {
		return Session{}, ErrSessionInvalid
	}
	return Session{ID: claims.ID, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Revoke ends the session carried by token. Tokens that no longer parse
// have nothing left to revoke.
func (s *Sessions) Revoke(ctx context.Context, token string) error {
	claims, err := s.parse(token)
	if err != nil {
		return nil
	}
	if err := s.store.Delete(ctx, claims.ID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *Sessions) parse(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithSubject(sessionSubject),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || claims.ID == "" {
		return nil, ErrSessionInvalid
	}
	return claims, nil
}
