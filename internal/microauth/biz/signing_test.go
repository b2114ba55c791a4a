package biz_test

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyauth/microauth/internal/microauth/biz"
	"github.com/tinyauth/microauth/pkg/signing"
)

var testRootSecret = []byte("test-root-secret")

func testKeySpec() signing.KeySpec {
	return signing.KeySpec{
		Region:   "europe",
		Service:  "storage",
		Date:     "20260901",
		Protocol: signing.ProtocolJWT,
	}
}

func TestUserSigningKey(t *testing.T) {
	factory := newTestFactory(t)
	seedUser(t, factory, "alice", "password123")

	svc := biz.NewSigningService(factory, testRootSecret)

	result, err := svc.UserSigningKey(context.Background(), testKeySpec(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", result.Identity)
	assert.Equal(t, hex.EncodeToString(signing.Derive(testRootSecret, testKeySpec())), result.Key)

	_, err = svc.UserSigningKey(context.Background(), testKeySpec(), "nobody")
	requireCode(t, err, biz.CodeNoSuchKey)

	badSpec := testKeySpec()
	badSpec.Date = "not-a-date"
	_, err = svc.UserSigningKey(context.Background(), badSpec, "alice")
	require.Error(t, err)
}

func TestAccessKeySigningKey(t *testing.T) {
	factory := newTestFactory(t)
	alice := seedUser(t, factory, "alice", "password123")
	seedAccessKey(t, factory, alice, "AKALICE", "alicesecret")

	svc := biz.NewSigningService(factory, testRootSecret)

	result, err := svc.AccessKeySigningKey(context.Background(), testKeySpec(), "AKALICE")
	require.NoError(t, err)
	// The identity is the owning user, not the key id.
	assert.Equal(t, "alice", result.Identity)
	assert.Equal(t, hex.EncodeToString(signing.Derive(testRootSecret, testKeySpec())), result.Key)

	_, err = svc.AccessKeySigningKey(context.Background(), testKeySpec(), "AKUNKNOWN")
	requireCode(t, err, biz.CodeNoSuchKey)
}

func TestUserPoliciesMergesGroups(t *testing.T) {
	factory := newTestFactory(t)
	alice := seedUser(t, factory, "alice", "password123")
	seedUserPolicy(t, factory, alice, "own", `{
		"Statement": [{"Action": "svc:Get", "Resource": "*", "Effect": "Allow"}]
	}`)
	team := seedGroup(t, factory, "team", alice)
	seedGroupPolicy(t, factory, team, "shared", `{
		"Statement": [{"Action": "svc:List", "Resource": "*", "Effect": "Allow"}]
	}`)

	svc := biz.NewSigningService(factory, testRootSecret)
	resolver := biz.NewResolver(factory, testSessionSecret)

	doc, err := svc.UserPolicies(context.Background(), resolver, "alice")
	require.NoError(t, err)
	statements, ok := doc["Statement"].([]any)
	require.True(t, ok)
	assert.Len(t, statements, 2)

	_, err = svc.UserPolicies(context.Background(), resolver, "nobody")
	requireCode(t, err, biz.CodeNoSuchKey)
}
