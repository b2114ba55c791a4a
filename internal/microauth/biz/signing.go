package biz

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/tinyauth/microauth/internal/microauth/store"
	"github.com/tinyauth/microauth/internal/model"
	"github.com/tinyauth/microauth/pkg/signing"
)

// SigningService issues per-region/service/date/protocol signing keys
// derived from the deployment root secret. Keys are never stored; every
// request recomputes the chain.
type SigningService struct {
	store      store.Factory
	rootSecret []byte
}

// NewSigningService creates a SigningService.
func NewSigningService(factory store.Factory, rootSecret []byte) *SigningService {
	return &SigningService{
		store:      factory,
		rootSecret: rootSecret,
	}
}

// UserSigningKey derives the key a service uses to verify tokens signed on
// behalf of a user. An unknown username yields NoSuchKey.
func (s *SigningService) UserSigningKey(ctx context.Context, spec signing.KeySpec, username string) (*model.SigningKeyResult, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	user, err := s.store.Users().Get(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, credErr(CodeNoSuchKey)
		}
		return nil, fmt.Errorf("user lookup: %w", err)
	}

	key := signing.Derive(s.rootSecret, spec)
	return &model.SigningKeyResult{
		Key:      hex.EncodeToString(key),
		Identity: user.Username,
	}, nil
}

// AccessKeySigningKey derives the key a service uses to verify requests
// signed with an access key. The identity returned is the owning username.
func (s *SigningService) AccessKeySigningKey(ctx context.Context, spec signing.KeySpec, accessKeyID string) (*model.SigningKeyResult, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	key, err := s.store.AccessKeys().Get(ctx, accessKeyID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, credErr(CodeNoSuchKey)
		}
		return nil, fmt.Errorf("access key lookup: %w", err)
	}

	owner, err := s.store.Users().GetByID(ctx, key.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, credErr(CodeNoSuchKey)
		}
		return nil, fmt.Errorf("user lookup: %w", err)
	}

	derived := signing.Derive(s.rootSecret, spec)
	return &model.SigningKeyResult{
		Key:      hex.EncodeToString(derived),
		Identity: owner.Username,
	}, nil
}

// UserPolicies returns the aggregated policy set for a user as one merged
// document, for services that cache policies locally.
func (s *SigningService) UserPolicies(ctx context.Context, resolver *Resolver, username string) (map[string]any, error) {
	user, err := s.store.Users().Get(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, credErr(CodeNoSuchKey)
		}
		return nil, fmt.Errorf("user lookup: %w", err)
	}

	principal, err := resolver.load(ctx, user)
	if err != nil {
		return nil, err
	}

	statements := make([]any, 0)
	for _, doc := range principal.Policies {
		for _, stmt := range doc.Statement {
			statements = append(statements, stmt)
		}
	}
	return map[string]any{
		"Version":   "2012-10-17",
		"Statement": statements,
	}, nil
}
