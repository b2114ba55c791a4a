package biz_test

import (
	"context"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyauth/microauth/internal/microauth/biz"
	"github.com/tinyauth/microauth/internal/model"
)

func requireCode(t *testing.T, err error, want biz.Code) {
	t.Helper()
	require.Error(t, err)
	ce, ok := biz.AsCredentialError(err)
	require.True(t, ok, "expected a credential error, got %v", err)
	assert.Equal(t, want, ce.Code)
}

func TestResolveAccessKey(t *testing.T) {
	factory := newTestFactory(t)
	alice := seedUser(t, factory, "alice", "password123")
	seedAccessKey(t, factory, alice, "AKALICE", "alicesecret")

	resolver := biz.NewResolver(factory, testSessionSecret)
	ctx := context.Background()

	principal, err := resolver.ResolveAccessKey(ctx, "AKALICE", "alicesecret")
	require.NoError(t, err)
	assert.Equal(t, "alice", principal.Username)

	_, err = resolver.ResolveAccessKey(ctx, "AKUNKNOWN", "alicesecret")
	requireCode(t, err, biz.CodeNoSuchKey)

	_, err = resolver.ResolveAccessKey(ctx, "AKALICE", "wrongsecret")
	requireCode(t, err, biz.CodeInvalidSignature)
}

func TestResolveLogin(t *testing.T) {
	factory := newTestFactory(t)
	seedUser(t, factory, "alice", "password123")

	resolver := biz.NewResolver(factory, testSessionSecret)
	ctx := context.Background()

	principal, err := resolver.ResolveLogin(ctx, "alice", "password123")
	require.NoError(t, err)
	assert.Equal(t, "alice", principal.Username)

	_, err = resolver.ResolveLogin(ctx, "alice", "wrongpassword")
	requireCode(t, err, biz.CodeInvalidCredentials)

	_, err = resolver.ResolveLogin(ctx, "nobody", "password123")
	requireCode(t, err, biz.CodeInvalidCredentials)
}

func signToken(t *testing.T, secret []byte, claims jwtlib.MapClaims) string {
	t.Helper()
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return signed
}

func TestResolveToken(t *testing.T) {
	factory := newTestFactory(t)
	seedUser(t, factory, "alice", "password123")

	resolver := biz.NewResolver(factory, testSessionSecret)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour).Unix()

	principal, err := resolver.ResolveToken(ctx, signToken(t, testSessionSecret, jwtlib.MapClaims{
		"user": "alice", "exp": exp,
	}))
	require.NoError(t, err)
	assert.Equal(t, "alice", principal.Username)

	// Wrong signing secret.
	_, err = resolver.ResolveToken(ctx, signToken(t, []byte("other-secret"), jwtlib.MapClaims{
		"user": "alice", "exp": exp,
	}))
	requireCode(t, err, biz.CodeUnsignedRequest)

	// Expired token.
	_, err = resolver.ResolveToken(ctx, signToken(t, testSessionSecret, jwtlib.MapClaims{
		"user": "alice", "exp": time.Now().Add(-time.Hour).Unix(),
	}))
	requireCode(t, err, biz.CodeUnsignedRequest)

	// Valid signature over a user that does not exist.
	_, err = resolver.ResolveToken(ctx, signToken(t, testSessionSecret, jwtlib.MapClaims{
		"user": "ghost", "exp": exp,
	}))
	requireCode(t, err, biz.CodeUnsignedRequest)

	// Missing user claim.
	_, err = resolver.ResolveToken(ctx, signToken(t, testSessionSecret, jwtlib.MapClaims{
		"exp": exp,
	}))
	requireCode(t, err, biz.CodeUnsignedRequest)

	// Not a token at all.
	_, err = resolver.ResolveToken(ctx, "garbage")
	requireCode(t, err, biz.CodeUnsignedRequest)
}

func TestResolveTokenHeaders(t *testing.T) {
	factory := newTestFactory(t)
	alice := seedUser(t, factory, "alice", "password123")
	seedAccessKey(t, factory, alice, "AKALICE", "alicesecret")

	resolver := biz.NewResolver(factory, testSessionSecret)
	ctx := context.Background()

	// Basic auth carries access-key credentials.
	principal, err := resolver.ResolveTokenHeaders(ctx, []model.HeaderPair{
		{"Authorization", basicAuth("AKALICE", "alicesecret")},
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", principal.Username)

	// Cookie carries a session token.
	token := signToken(t, testSessionSecret, jwtlib.MapClaims{
		"user": "alice", "exp": time.Now().Add(time.Hour).Unix(),
	})
	principal, err = resolver.ResolveTokenHeaders(ctx, []model.HeaderPair{
		{"Cookie", "session=" + token},
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", principal.Username)

	// Header names are case-insensitive.
	_, err = resolver.ResolveTokenHeaders(ctx, []model.HeaderPair{
		{"authorization", basicAuth("AKALICE", "alicesecret")},
	})
	require.NoError(t, err)

	// Neither credential form present.
	_, err = resolver.ResolveTokenHeaders(ctx, []model.HeaderPair{
		{"X-Custom", "value"},
	})
	requireCode(t, err, biz.CodeUnsignedRequest)

	_, err = resolver.ResolveTokenHeaders(ctx, nil)
	requireCode(t, err, biz.CodeUnsignedRequest)
}

func TestResolverSkipsUnparseablePolicies(t *testing.T) {
	factory := newTestFactory(t)
	alice := seedUser(t, factory, "alice", "password123")
	seedAccessKey(t, factory, alice, "AKALICE", "alicesecret")
	seedUserPolicy(t, factory, alice, "good", `{
		"Statement": [{"Action": "svc:Get", "Resource": "*", "Effect": "Allow"}]
	}`)

	// Bypass validation to simulate a corrupted stored document.
	bad := &model.Policy{Name: "bad", UserID: &alice.ID, Document: `{"Statement": "not json"}`}
	require.NoError(t, factory.Policies().Create(context.Background(), bad))

	resolver := biz.NewResolver(factory, testSessionSecret)
	principal, err := resolver.ResolveAccessKey(context.Background(), "AKALICE", "alicesecret")
	require.NoError(t, err)
	require.Len(t, principal.Policies, 1)
}
