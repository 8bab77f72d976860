// Package identity verifies bearer credentials and maps the verified subject
// to an internal user id.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jishnu70/Chat-app-backend/internal/repositories"
)

var (
	ErrMissingCredential = errors.New("missing or malformed authorization")
	ErrInvalidToken      = errors.New("invalid token")
)

// Subject is the verified identity carried by a credential.
type Subject struct {
	UID   string
	Email string
	Name  string
}

// Verifier checks a raw credential and returns its subject.
type Verifier interface {
	Verify(ctx context.Context, token string) (Subject, error)
}

// Resolver maps verified subjects to internal user ids.
type Resolver struct {
	users repositories.UserRepository
}

// NewResolver constructs a Resolver.
func NewResolver(users repositories.UserRepository) *Resolver {
	return &Resolver{users: users}
}

// ResolveOrCreate returns the internal id for the subject, creating the user
// record the first time the subject is seen.
func (r *Resolver) ResolveOrCreate(ctx context.Context, subject Subject) (int, error) {
	var displayName *string
	if subject.Name != "" {
		name := subject.Name
		displayName = &name
	}
	id, err := r.users.UpsertByExternalUID(ctx, subject.UID, subject.Email, displayName)
	if err != nil {
		return 0, fmt.Errorf("resolve user %q: %w", subject.UID, err)
	}
	return id, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" value.
func BearerToken(header string) (string, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", ErrMissingCredential
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", ErrMissingCredential
	}
	return token, nil
}
