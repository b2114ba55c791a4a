package biz_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyauth/microauth/internal/microauth/biz"
	"github.com/tinyauth/microauth/internal/model"
	"github.com/tinyauth/microauth/pkg/policy"
)

func mustParse(t *testing.T, doc string) policy.Document {
	t.Helper()
	parsed, err := policy.Parse([]byte(doc))
	require.NoError(t, err)
	return *parsed
}

func TestEvaluate(t *testing.T) {
	allowGet := `{"Statement": [{"Action": "storage:GetObject", "Resource": "arn:storage:bucket/*", "Effect": "Allow"}]}`
	denyBucket := `{"Statement": [{"Action": "storage:*", "Resource": "arn:storage:bucket/secret", "Effect": "Deny"}]}`
	allowAll := `{"Statement": [{"Action": "*", "Resource": "*", "Effect": "Allow"}]}`

	tests := []struct {
		name         string
		docs         []string
		action       string
		resource     string
		wantEffect   policy.Effect
		wantExplicit bool
	}{
		{
			name:       "allow match",
			docs:       []string{allowGet},
			action:     "storage:GetObject",
			resource:   "arn:storage:bucket/report.csv",
			wantEffect: policy.Allow,
		},
		{
			name:       "no match is implicit deny",
			docs:       []string{allowGet},
			action:     "storage:DeleteObject",
			resource:   "arn:storage:bucket/report.csv",
			wantEffect: policy.Deny,
		},
		{
			name:       "empty policy set denies",
			docs:       nil,
			action:     "storage:GetObject",
			resource:   "arn:storage:bucket/report.csv",
			wantEffect: policy.Deny,
		},
		{
			name:         "explicit deny overrides allow",
			docs:         []string{allowAll, denyBucket},
			action:       "storage:GetObject",
			resource:     "arn:storage:bucket/secret",
			wantEffect:   policy.Deny,
			wantExplicit: true,
		},
		{
			name:         "deny wins regardless of document order",
			docs:         []string{denyBucket, allowAll},
			action:       "storage:GetObject",
			resource:     "arn:storage:bucket/secret",
			wantEffect:   policy.Deny,
			wantExplicit: true,
		},
		{
			name:       "deny on one resource leaves siblings allowed",
			docs:       []string{allowAll, denyBucket},
			action:     "storage:GetObject",
			resource:   "arn:storage:bucket/public",
			wantEffect: policy.Allow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			principal := &biz.Principal{Username: "alice"}
			for _, doc := range tt.docs {
				principal.Policies = append(principal.Policies, mustParse(t, doc))
			}
			decision := biz.Evaluate(principal, tt.action, tt.resource)
			assert.Equal(t, tt.wantEffect, decision.Effect)
			assert.Equal(t, tt.wantExplicit, decision.ExplicitDeny)
		})
	}
}

func TestAuthorizerBatchPartition(t *testing.T) {
	factory := newTestFactory(t)
	alice := seedUser(t, factory, "alice", "password123")
	seedAccessKey(t, factory, alice, "AKALICE", "alicesecret")
	seedUserPolicy(t, factory, alice, "storage-read", `{
		"Statement": [
			{"Action": "storage:Get*", "Resource": "arn:storage:bucket/*", "Effect": "Allow"},
			{"Action": "storage:DeleteObject", "Resource": "*", "Effect": "Deny"}
		]
	}`)

	authorizer := biz.NewAuthorizer(biz.NewResolver(factory, testSessionSecret))
	result, err := authorizer.AuthorizeByToken(context.Background(), &model.AuthorizeRequest{
		Region: "global",
		Permit: model.PermitMap{
			"storage:GetObject":    {"arn:storage:bucket/a", "arn:storage:bucket/b"},
			"storage:DeleteObject": {"arn:storage:bucket/a"},
			"storage:ListBuckets":  {"arn:storage:"},
		},
		Headers: []model.HeaderPair{{"Authorization", basicAuth("AKALICE", "alicesecret")}},
	})
	require.NoError(t, err)

	assert.True(t, result.Authorized)
	assert.Equal(t, "alice", result.Identity)
	assert.Empty(t, result.ErrorCode)
	assert.Equal(t, model.PermitMap{
		"storage:GetObject": {"arn:storage:bucket/a", "arn:storage:bucket/b"},
	}, result.Permitted)
	assert.Equal(t, model.PermitMap{
		"storage:DeleteObject": {"arn:storage:bucket/a"},
		"storage:ListBuckets":  {"arn:storage:"},
	}, result.NotPermitted)
}

func TestAuthorizerAllDenied(t *testing.T) {
	factory := newTestFactory(t)
	alice := seedUser(t, factory, "alice", "password123")
	seedAccessKey(t, factory, alice, "AKALICE", "alicesecret")

	authorizer := biz.NewAuthorizer(biz.NewResolver(factory, testSessionSecret))
	result, err := authorizer.AuthorizeByToken(context.Background(), &model.AuthorizeRequest{
		Region: "global",
		Permit: model.PermitMap{
			"storage:GetObject": {"arn:storage:bucket/a"},
		},
		Headers: []model.HeaderPair{{"Authorization", basicAuth("AKALICE", "alicesecret")}},
	})
	require.NoError(t, err)

	assert.False(t, result.Authorized)
	assert.Equal(t, string(biz.CodeNotPermitted), result.ErrorCode)
	assert.Equal(t, "alice", result.Identity)
	assert.Empty(t, result.Permitted)
	assert.Equal(t, model.PermitMap{"storage:GetObject": {"arn:storage:bucket/a"}}, result.NotPermitted)
}

func TestAuthorizerResolutionFailure(t *testing.T) {
	factory := newTestFactory(t)

	permit := model.PermitMap{
		"storage:GetObject": {"arn:storage:bucket/a"},
		"storage:PutObject": {"arn:storage:bucket/b"},
	}
	authorizer := biz.NewAuthorizer(biz.NewResolver(factory, testSessionSecret))
	result, err := authorizer.AuthorizeByToken(context.Background(), &model.AuthorizeRequest{
		Region:  "global",
		Permit:  permit,
		Headers: []model.HeaderPair{{"Authorization", basicAuth("AKMISSING", "whatever")}},
	})
	require.NoError(t, err)

	assert.False(t, result.Authorized)
	assert.Equal(t, string(biz.CodeNoSuchKey), result.ErrorCode)
	assert.Empty(t, result.Identity)
	assert.Empty(t, result.Permitted)
	assert.Equal(t, permit, result.NotPermitted)
}

func TestAuthorizerGroupPolicies(t *testing.T) {
	factory := newTestFactory(t)
	alice := seedUser(t, factory, "alice", "password123")
	seedAccessKey(t, factory, alice, "AKALICE", "alicesecret")

	team := seedGroup(t, factory, "storage-team", alice)
	seedGroupPolicy(t, factory, team, "storage-read", `{
		"Statement": [{"Action": "storage:GetObject", "Resource": "*", "Effect": "Allow"}]
	}`)

	authorizer := biz.NewAuthorizer(biz.NewResolver(factory, testSessionSecret))
	result, err := authorizer.AuthorizeByToken(context.Background(), &model.AuthorizeRequest{
		Region: "global",
		Permit: model.PermitMap{"storage:GetObject": {"arn:storage:bucket/a"}},
		Headers: []model.HeaderPair{
			{"Authorization", basicAuth("AKALICE", "alicesecret")},
		},
	})
	require.NoError(t, err)

	assert.True(t, result.Authorized)
	assert.Equal(t, model.PermitMap{"storage:GetObject": {"arn:storage:bucket/a"}}, result.Permitted)
}

func TestAuthorizerGroupDenyOverridesUserAllow(t *testing.T) {
	factory := newTestFactory(t)
	alice := seedUser(t, factory, "alice", "password123")
	seedAccessKey(t, factory, alice, "AKALICE", "alicesecret")
	seedUserPolicy(t, factory, alice, "allow-all", `{
		"Statement": [{"Action": "*", "Resource": "*", "Effect": "Allow"}]
	}`)

	team := seedGroup(t, factory, "restricted", alice)
	seedGroupPolicy(t, factory, team, "no-deletes", `{
		"Statement": [{"Action": "storage:DeleteObject", "Resource": "*", "Effect": "Deny"}]
	}`)

	authorizer := biz.NewAuthorizer(biz.NewResolver(factory, testSessionSecret))
	result, err := authorizer.AuthorizeByToken(context.Background(), &model.AuthorizeRequest{
		Region: "global",
		Permit: model.PermitMap{
			"storage:DeleteObject": {"arn:storage:bucket/a"},
			"storage:GetObject":    {"arn:storage:bucket/a"},
		},
		Headers: []model.HeaderPair{{"Authorization", basicAuth("AKALICE", "alicesecret")}},
	})
	require.NoError(t, err)

	assert.True(t, result.Authorized)
	assert.Equal(t, model.PermitMap{"storage:GetObject": {"arn:storage:bucket/a"}}, result.Permitted)
	assert.Equal(t, model.PermitMap{"storage:DeleteObject": {"arn:storage:bucket/a"}}, result.NotPermitted)
}

func TestAuthorizeByLogin(t *testing.T) {
	factory := newTestFactory(t)
	alice := seedUser(t, factory, "alice", "password123")
	seedUserPolicy(t, factory, alice, "allow-read", `{
		"Statement": [{"Action": "myservice:ReadThing", "Resource": "*", "Effect": "Allow"}]
	}`)

	authorizer := biz.NewAuthorizer(biz.NewResolver(factory, testSessionSecret))

	result, err := authorizer.AuthorizeByLogin(context.Background(), &model.AuthorizeRequest{
		Region:  "global",
		Permit:  model.PermitMap{"myservice:ReadThing": {"arn:myservice:thing/1"}},
		Headers: []model.HeaderPair{{"Authorization", basicAuth("alice", "password123")}},
	})
	require.NoError(t, err)
	assert.True(t, result.Authorized)

	result, err = authorizer.AuthorizeByLogin(context.Background(), &model.AuthorizeRequest{
		Region:  "global",
		Permit:  model.PermitMap{"myservice:ReadThing": {"arn:myservice:thing/1"}},
		Headers: []model.HeaderPair{{"Authorization", basicAuth("alice", "wrongpassword")}},
	})
	require.NoError(t, err)
	assert.False(t, result.Authorized)
	assert.Equal(t, string(biz.CodeInvalidCredentials), result.ErrorCode)
}

func TestToLegacy(t *testing.T) {
	tests := []struct {
		name  string
		batch *model.BatchAuthorizeResult
		want  *model.AuthorizeResult
	}{
		{
			name: "authorized",
			batch: &model.BatchAuthorizeResult{
				Authorized: true,
				Identity:   "alice",
				Permitted:  model.PermitMap{"svc:Get": {"r"}},
			},
			want: &model.AuthorizeResult{Authorized: true, Identity: "alice"},
		},
		{
			name: "denied carries 403",
			batch: &model.BatchAuthorizeResult{
				Identity:  "alice",
				ErrorCode: string(biz.CodeNotPermitted),
			},
			want: &model.AuthorizeResult{
				Identity:  "alice",
				ErrorCode: string(biz.CodeNotPermitted),
				Status:    403,
			},
		},
		{
			name: "credential failure carries 401",
			batch: &model.BatchAuthorizeResult{
				ErrorCode: string(biz.CodeNoSuchKey),
			},
			want: &model.AuthorizeResult{
				ErrorCode: string(biz.CodeNoSuchKey),
				Status:    401,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, biz.ToLegacy(tt.batch))
		})
	}
}

func TestLegacyResultSerialization(t *testing.T) {
	data, err := json.Marshal(&model.AuthorizeResult{Authorized: true, Identity: "alice"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Authorized": true, "Identity": "alice"}`, string(data))

	data, err = json.Marshal(&model.BatchAuthorizeResult{
		Authorized:   false,
		ErrorCode:    string(biz.CodeNoSuchKey),
		Permitted:    model.PermitMap{},
		NotPermitted: model.PermitMap{"svc:Get": {"r"}},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"Authorized": false,
		"ErrorCode": "NoSuchKey",
		"Permitted": {},
		"NotPermitted": {"svc:Get": ["r"]}
	}`, string(data))
}

func TestPermitPrefixRoundTrip(t *testing.T) {
	permit := model.PermitMap{"GetObject": {"arn:storage:bucket/a"}}

	prefixed := biz.PrefixPermit("storage", permit)
	assert.Equal(t, model.PermitMap{"storage:GetObject": {"arn:storage:bucket/a"}}, prefixed)

	stripped := biz.StripPermitPrefix("storage", prefixed)
	assert.Equal(t, permit, stripped)
}
