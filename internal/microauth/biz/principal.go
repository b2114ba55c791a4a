package biz

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	jwtlib "github.com/golang-jwt/jwt/v4"
	"github.com/kart-io/logger"
	"golang.org/x/crypto/bcrypt"

	"github.com/tinyauth/microauth/internal/model"
	"github.com/tinyauth/microauth/internal/microauth/store"
	"github.com/tinyauth/microauth/pkg/policy"
)

// Principal is a resolved identity plus the aggregated policy set that
// applies to it. It is computed fresh per request; the policy slice is a
// read-only snapshot for the lifetime of one evaluation.
type Principal struct {
	UserID   uint64
	Username string
	Policies []policy.Document
}

// Resolver turns raw inbound credentials into a Principal.
type Resolver struct {
	store         store.Factory
	sessionSecret []byte
}

// NewResolver creates a Resolver. sessionSecret verifies JWT session tokens
// issued by get-token-for-login.
func NewResolver(factory store.Factory, sessionSecret []byte) *Resolver {
	return &Resolver{
		store:         factory,
		sessionSecret: sessionSecret,
	}
}

// ResolveAccessKey resolves an access-key/secret pair. An unknown key yields
// NoSuchKey; a known key with the wrong secret yields InvalidSignature.
func (r *Resolver) ResolveAccessKey(ctx context.Context, accessKeyID, secret string) (*Principal, error) {
	key, err := r.store.AccessKeys().Get(ctx, accessKeyID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, credErr(CodeNoSuchKey)
		}
		return nil, fmt.Errorf("access key lookup: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(key.Secret), []byte(secret)) != 1 {
		return nil, credErr(CodeInvalidSignature)
	}

	user, err := r.store.Users().GetByID(ctx, key.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Orphaned key; treat as unknown.
			return nil, credErr(CodeNoSuchKey)
		}
		return nil, fmt.Errorf("user lookup: %w", err)
	}
	return r.load(ctx, user)
}

// ResolveLogin resolves a username/password pair. Unknown usernames and
// wrong passwords both yield InvalidCredentials; this failure mode is
// deliberately separate from the access-key taxonomy.
func (r *Resolver) ResolveLogin(ctx context.Context, username, password string) (*Principal, error) {
	user, err := r.store.Users().Get(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, credErr(CodeInvalidCredentials)
		}
		return nil, fmt.Errorf("user lookup: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, credErr(CodeInvalidCredentials)
	}
	return r.load(ctx, user)
}

// ResolveToken resolves a JWT session token carrying a "user" claim. Any
// signature problem yields UnsignedRequest; so does a valid signature over a
// user that no longer exists, since signature validity does not imply
// identity validity.
func (r *Resolver) ResolveToken(ctx context.Context, tokenString string) (*Principal, error) {
	claims := jwtlib.MapClaims{}
	_, err := jwtlib.ParseWithClaims(tokenString, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return r.sessionSecret, nil
	})
	if err != nil {
		return nil, credErr(CodeUnsignedRequest)
	}

	username, _ := claims["user"].(string)
	if username == "" {
		return nil, credErr(CodeUnsignedRequest)
	}

	user, err := r.store.Users().Get(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, credErr(CodeUnsignedRequest)
		}
		return nil, fmt.Errorf("user lookup: %w", err)
	}
	return r.load(ctx, user)
}

// ResolveTokenHeaders resolves the forwarded headers of a request that was
// signed with an access key (Basic auth) or a session token (cookie). A
// request with neither is unsigned.
func (r *Resolver) ResolveTokenHeaders(ctx context.Context, headers []model.HeaderPair) (*Principal, error) {
	if id, secret, ok := basicCredentials(headers); ok {
		return r.ResolveAccessKey(ctx, id, secret)
	}
	if token, ok := cookieToken(headers); ok {
		return r.ResolveToken(ctx, token)
	}
	return nil, credErr(CodeUnsignedRequest)
}

// ResolveLoginHeaders resolves the forwarded headers of a request carrying
// username/password Basic credentials.
func (r *Resolver) ResolveLoginHeaders(ctx context.Context, headers []model.HeaderPair) (*Principal, error) {
	username, password, ok := basicCredentials(headers)
	if !ok {
		return nil, credErr(CodeInvalidCredentials)
	}
	return r.ResolveLogin(ctx, username, password)
}

// load attaches the transitive policy set: the user's own policies plus the
// policies of every group the user belongs to, deduplicated by policy ID.
func (r *Resolver) load(ctx context.Context, user *model.User) (*Principal, error) {
	records, err := r.store.Policies().ListForUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("user policies: %w", err)
	}

	groups, err := r.store.Groups().ListForUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("group memberships: %w", err)
	}
	for _, group := range groups {
		groupPolicies, err := r.store.Policies().ListForGroup(ctx, group.ID)
		if err != nil {
			return nil, fmt.Errorf("group policies: %w", err)
		}
		records = append(records, groupPolicies...)
	}

	seen := make(map[uint64]struct{}, len(records))
	docs := make([]policy.Document, 0, len(records))
	for _, record := range records {
		if _, dup := seen[record.ID]; dup {
			continue
		}
		seen[record.ID] = struct{}{}

		doc, err := record.Parse()
		if err != nil {
			// A document that validated on write but fails to parse on read
			// indicates corruption; it cannot grant anything.
			logger.Warnf("skipping unparseable policy %d (%s): %v", record.ID, record.Name, err)
			continue
		}
		docs = append(docs, *doc)
	}

	return &Principal{
		UserID:   user.ID,
		Username: user.Username,
		Policies: docs,
	}, nil
}

// basicCredentials extracts the user and password parts of a Basic
// Authorization header from the forwarded header list.
func basicCredentials(headers []model.HeaderPair) (string, string, bool) {
	for _, h := range headers {
		if !strings.EqualFold(h.Name(), "Authorization") {
			continue
		}
		return parseBasicAuth(h.Value())
	}
	return "", "", false
}

// parseBasicAuth decodes a "Basic base64(user:pass)" header value.
func parseBasicAuth(value string) (string, string, bool) {
	const prefix = "Basic "
	if len(value) < len(prefix) || !strings.EqualFold(value[:len(prefix)], prefix) {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(value[len(prefix):])
	if err != nil {
		return "", "", false
	}
	user, pass, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return "", "", false
	}
	return user, pass, true
}

// cookieToken extracts a session token from the first cookie value of a
// forwarded Cookie header. The cookie name is not significant; the token is
// self-describing.
func cookieToken(headers []model.HeaderPair) (string, bool) {
	for _, h := range headers {
		if !strings.EqualFold(h.Name(), "Cookie") {
			continue
		}
		for _, part := range strings.Split(h.Value(), ";") {
			if _, token, ok := strings.Cut(strings.TrimSpace(part), "="); ok && token != "" {
				return token, true
			}
		}
	}
	return "", false
}
