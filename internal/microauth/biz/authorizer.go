package biz

import (
	"context"
	"sort"

	"github.com/tinyauth/microauth/internal/model"
	"github.com/tinyauth/microauth/pkg/policy"
)

// Decision is the outcome of evaluating one (action, resource) pair.
type Decision struct {
	Effect policy.Effect
	// ExplicitDeny distinguishes a Deny produced by a matching Deny
	// statement from the implicit default when nothing matched.
	ExplicitDeny bool
}

// Evaluate decides Allow or Deny for one pair against the principal's policy
// set. A matching Deny statement wins over any matching Allow; with no match
// at all the default is Deny. The scan short-circuits on the first Deny
// match, which is correct because only the effect type matters, never
// statement order.
func Evaluate(principal *Principal, action, resource string) Decision {
	allowed := false
	for _, doc := range principal.Policies {
		for i := range doc.Statement {
			stmt := &doc.Statement[i]
			if !stmt.Matches(action, resource) {
				continue
			}
			if stmt.Effect == policy.Deny {
				return Decision{Effect: policy.Deny, ExplicitDeny: true}
			}
			allowed = true
		}
	}
	if allowed {
		return Decision{Effect: policy.Allow}
	}
	return Decision{Effect: policy.Deny}
}

// Authorizer fans authorization questions out across the evaluator and
// classifies the aggregate outcome.
type Authorizer struct {
	resolver *Resolver
}

// NewAuthorizer creates an Authorizer.
func NewAuthorizer(resolver *Resolver) *Authorizer {
	return &Authorizer{resolver: resolver}
}

// credentialMode selects how the forwarded headers are resolved.
type credentialMode int

const (
	byToken credentialMode = iota
	byLogin
)

// AuthorizeByToken authorizes every pair in the permit map for a request
// signed with an access key or session token. The returned error is reserved
// for persistence failures; credential failures and denials are decisions.
func (a *Authorizer) AuthorizeByToken(ctx context.Context, req *model.AuthorizeRequest) (*model.BatchAuthorizeResult, error) {
	return a.authorize(ctx, req, byToken)
}

// AuthorizeByLogin authorizes every pair in the permit map for a request
// carrying username/password credentials.
func (a *Authorizer) AuthorizeByLogin(ctx context.Context, req *model.AuthorizeRequest) (*model.BatchAuthorizeResult, error) {
	return a.authorize(ctx, req, byLogin)
}

func (a *Authorizer) authorize(ctx context.Context, req *model.AuthorizeRequest, mode credentialMode) (*model.BatchAuthorizeResult, error) {
	var principal *Principal
	var err error
	switch mode {
	case byLogin:
		principal, err = a.resolver.ResolveLoginHeaders(ctx, req.Headers)
	default:
		principal, err = a.resolver.ResolveTokenHeaders(ctx, req.Headers)
	}
	if err != nil {
		if ce, ok := AsCredentialError(err); ok {
			// Resolution failed: nothing was evaluated, every requested pair
			// is reported as not permitted.
			return &model.BatchAuthorizeResult{
				Authorized:   false,
				ErrorCode:    string(ce.Code),
				Permitted:    model.PermitMap{},
				NotPermitted: clonePermit(req.Permit),
			}, nil
		}
		return nil, err
	}

	permitted := model.PermitMap{}
	notPermitted := model.PermitMap{}
	for action, resources := range req.Permit {
		for _, resource := range resources {
			decision := Evaluate(principal, action, resource)
			if decision.Effect == policy.Allow {
				permitted[action] = append(permitted[action], resource)
			} else {
				notPermitted[action] = append(notPermitted[action], resource)
			}
		}
	}
	sortPermit(permitted)
	sortPermit(notPermitted)

	result := &model.BatchAuthorizeResult{
		Identity:     principal.Username,
		Permitted:    permitted,
		NotPermitted: notPermitted,
	}
	if len(permitted) > 0 {
		result.Authorized = true
	} else {
		result.ErrorCode = string(CodeNotPermitted)
	}
	return result, nil
}

// ToLegacy collapses a batch result into the legacy single-pair shape: a
// boolean plus, on failure, an error code and HTTP-style status. The maps
// are dropped entirely.
func ToLegacy(batch *model.BatchAuthorizeResult) *model.AuthorizeResult {
	result := &model.AuthorizeResult{
		Authorized: batch.Authorized,
		Identity:   batch.Identity,
	}
	if !batch.Authorized {
		result.ErrorCode = batch.ErrorCode
		result.Status = Code(batch.ErrorCode).Status()
	}
	return result
}

// PrefixPermit returns a copy of the permit map with every action qualified
// by the service name, matching how batch routes scope their actions.
func PrefixPermit(service string, permit model.PermitMap) model.PermitMap {
	out := make(model.PermitMap, len(permit))
	for action, resources := range permit {
		out[service+":"+action] = append([]string(nil), resources...)
	}
	return out
}

// StripPermitPrefix undoes PrefixPermit so responses echo the caller's
// action names.
func StripPermitPrefix(service string, permit model.PermitMap) model.PermitMap {
	prefix := service + ":"
	out := make(model.PermitMap, len(permit))
	for action, resources := range permit {
		name := action
		if len(action) > len(prefix) && action[:len(prefix)] == prefix {
			name = action[len(prefix):]
		}
		out[name] = resources
	}
	return out
}

func clonePermit(permit model.PermitMap) model.PermitMap {
	out := make(model.PermitMap, len(permit))
	for action, resources := range permit {
		out[action] = append([]string(nil), resources...)
	}
	return out
}

func sortPermit(permit model.PermitMap) {
	for _, resources := range permit {
		sort.Strings(resources)
	}
}
