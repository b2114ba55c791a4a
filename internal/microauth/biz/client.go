package biz

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/kart-io/logger"

	"github.com/tinyauth/microauth/internal/model"
	"github.com/tinyauth/microauth/pkg/cache"
)

// canonicalJSON serializes with sorted map keys so that equal inputs always
// produce the same fingerprint bytes.
var canonicalJSON = sonic.Config{SortMapKeys: true}.Froze()

// ClientRequest is the full input that determines an authorization decision:
// the outer service credentials, the service scope, the forwarded inner
// headers, the permit map, the region and the opaque context.
type ClientRequest struct {
	// OuterAuthorization is the raw Authorization header presented by the
	// calling service.
	OuterAuthorization string `json:"outer_authorization"`
	// Service is the service scope of a batch call; empty for legacy calls.
	Service string `json:"service"`
	// Authorize is the inner authorization question.
	Authorize *model.AuthorizeRequest `json:"authorize"`
}

// Outcome separates the two failure families at the client boundary: an
// outer credential failure (wire: HTTP 401 with an errors map) versus a
// fully-computed decision.
type Outcome struct {
	OuterError Code                        `json:"outer_error,omitempty"`
	Result     *model.BatchAuthorizeResult `json:"result,omitempty"`
}

// Client is the facade collaborators call. Local deployments evaluate
// in-process; proxy deployments forward to an upstream authoritative
// instance and cache the returned decisions.
type Client interface {
	// Authorize is the legacy single-pair operation; actions in the permit
	// map are fully qualified.
	Authorize(ctx context.Context, req *ClientRequest) (*Outcome, error)
	// AuthorizeByToken is the service-scoped batch operation.
	AuthorizeByToken(ctx context.Context, req *ClientRequest) (*Outcome, error)
	// AuthorizeByLogin authorizes against username/password credentials.
	AuthorizeByLogin(ctx context.Context, req *ClientRequest) (*Outcome, error)
}

// LocalClient evaluates against the local store.
type LocalClient struct {
	resolver   *Resolver
	authorizer *Authorizer
}

// NewLocalClient creates a LocalClient.
func NewLocalClient(resolver *Resolver, authorizer *Authorizer) *LocalClient {
	return &LocalClient{
		resolver:   resolver,
		authorizer: authorizer,
	}
}

// authenticateOuter verifies the calling service's access-key credentials.
// This is pure credential verification; policy checks on internal operations
// happen separately.
func (c *LocalClient) authenticateOuter(ctx context.Context, authorization string) (Code, error) {
	id, secret, ok := parseBasicAuth(authorization)
	if !ok {
		return CodeUnsignedRequest, nil
	}
	_, err := c.resolver.ResolveAccessKey(ctx, id, secret)
	if err != nil {
		if ce, ok := AsCredentialError(err); ok {
			return ce.Code, nil
		}
		return "", err
	}
	return "", nil
}

// Authorize implements Client. Locally the legacy operation is the batch
// pipeline over an already-qualified permit map.
func (c *LocalClient) Authorize(ctx context.Context, req *ClientRequest) (*Outcome, error) {
	return c.AuthorizeByToken(ctx, req)
}

// AuthorizeByToken implements Client.
func (c *LocalClient) AuthorizeByToken(ctx context.Context, req *ClientRequest) (*Outcome, error) {
	if code, err := c.authenticateOuter(ctx, req.OuterAuthorization); err != nil {
		return nil, err
	} else if code != "" {
		return &Outcome{OuterError: code}, nil
	}

	result, err := c.authorizer.AuthorizeByToken(ctx, req.Authorize)
	if err != nil {
		return nil, err
	}
	return &Outcome{Result: result}, nil
}

// AuthorizeByLogin implements Client.
func (c *LocalClient) AuthorizeByLogin(ctx context.Context, req *ClientRequest) (*Outcome, error) {
	if code, err := c.authenticateOuter(ctx, req.OuterAuthorization); err != nil {
		return nil, err
	} else if code != "" {
		return &Outcome{OuterError: code}, nil
	}

	result, err := c.authorizer.AuthorizeByLogin(ctx, req.Authorize)
	if err != nil {
		return nil, err
	}
	return &Outcome{Result: result}, nil
}

// ProxyClient forwards authorization calls to an upstream microauth instance
// and memoizes the returned decisions. Entries are keyed by a fingerprint of
// the full request; a hit short-circuits before any upstream call. There is
// no invalidation signal from upstream policy changes, so the TTL bounds the
// staleness window. Concurrent misses for the same fingerprint may both
// reach upstream; the duplicate work is accepted rather than coalesced.
type ProxyClient struct {
	baseURL    string
	httpClient *http.Client
	cache      cache.Cache
	ttl        time.Duration
}

// NewProxyClient creates a ProxyClient.
func NewProxyClient(baseURL string, httpClient *http.Client, decisionCache cache.Cache, ttl time.Duration) *ProxyClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &ProxyClient{
		baseURL:    baseURL,
		httpClient: httpClient,
		cache:      decisionCache,
		ttl:        ttl,
	}
}

// Authorize implements Client. The upstream legacy route is single-pair, so
// each pair is forwarded separately and the answers are merged.
func (c *ProxyClient) Authorize(ctx context.Context, req *ClientRequest) (*Outcome, error) {
	merged := &model.BatchAuthorizeResult{
		Permitted:    model.PermitMap{},
		NotPermitted: model.PermitMap{},
	}
	for action, resources := range req.Authorize.Permit {
		for _, resource := range resources {
			body := map[string]any{
				"region":   req.Authorize.Region,
				"action":   action,
				"resource": resource,
				"headers":  req.Authorize.Headers,
				"context":  req.Authorize.Context,
			}
			outcome, err := c.roundTrip(ctx, "legacy", "/api/v1/authorize", req, body, legacyDecoder(action, resource))
			if err != nil {
				return nil, err
			}
			if outcome.OuterError != "" {
				return outcome, nil
			}
			mergeBatch(merged, outcome.Result)
		}
	}
	if !merged.Authorized && merged.ErrorCode == "" {
		merged.ErrorCode = string(CodeNotPermitted)
	}
	return &Outcome{Result: merged}, nil
}

// AuthorizeByToken implements Client.
func (c *ProxyClient) AuthorizeByToken(ctx context.Context, req *ClientRequest) (*Outcome, error) {
	path := fmt.Sprintf("/api/v1/services/%s/authorize-by-token", req.Service)
	body := map[string]any{
		"region":  req.Authorize.Region,
		"permit":  StripPermitPrefix(req.Service, req.Authorize.Permit),
		"headers": req.Authorize.Headers,
		"context": req.Authorize.Context,
	}
	return c.roundTrip(ctx, "token", path, req, body, func(data []byte) (*model.BatchAuthorizeResult, error) {
		var result model.BatchAuthorizeResult
		if err := sonic.Unmarshal(data, &result); err != nil {
			return nil, err
		}
		result.Permitted = PrefixPermit(req.Service, result.Permitted)
		result.NotPermitted = PrefixPermit(req.Service, result.NotPermitted)
		return &result, nil
	})
}

// AuthorizeByLogin implements Client. The upstream login route is
// single-pair, so each pair in the permit map is forwarded separately and
// the answers are merged.
func (c *ProxyClient) AuthorizeByLogin(ctx context.Context, req *ClientRequest) (*Outcome, error) {
	merged := &model.BatchAuthorizeResult{
		Permitted:    model.PermitMap{},
		NotPermitted: model.PermitMap{},
	}
	for action, resources := range req.Authorize.Permit {
		for _, resource := range resources {
			body := map[string]any{
				"action":   action,
				"resource": resource,
				"headers":  req.Authorize.Headers,
				"context":  req.Authorize.Context,
			}
			outcome, err := c.roundTrip(ctx, "login", "/api/v1/authorize-login", req, body, legacyDecoder(action, resource))
			if err != nil {
				return nil, err
			}
			if outcome.OuterError != "" {
				return outcome, nil
			}
			mergeBatch(merged, outcome.Result)
		}
	}
	if !merged.Authorized && merged.ErrorCode == "" {
		merged.ErrorCode = string(CodeNotPermitted)
	}
	return &Outcome{Result: merged}, nil
}

// legacyDecoder lifts a legacy single-pair response into batch form.
func legacyDecoder(action, resource string) func([]byte) (*model.BatchAuthorizeResult, error) {
	return func(data []byte) (*model.BatchAuthorizeResult, error) {
		var legacy model.AuthorizeResult
		if err := sonic.Unmarshal(data, &legacy); err != nil {
			return nil, err
		}
		result := &model.BatchAuthorizeResult{
			Authorized:   legacy.Authorized,
			Identity:     legacy.Identity,
			ErrorCode:    legacy.ErrorCode,
			Permitted:    model.PermitMap{},
			NotPermitted: model.PermitMap{},
		}
		if legacy.Authorized {
			result.Permitted[action] = []string{resource}
		} else {
			result.NotPermitted[action] = []string{resource}
		}
		return result, nil
	}
}

// roundTrip performs one cached upstream exchange.
func (c *ProxyClient) roundTrip(ctx context.Context, op, path string, req *ClientRequest, body map[string]any, decode func([]byte) (*model.BatchAuthorizeResult, error)) (*Outcome, error) {
	key, err := fingerprint(op, path, req.OuterAuthorization, body)
	if err != nil {
		return nil, fmt.Errorf("fingerprint request: %w", err)
	}

	if cached, ok, err := c.cache.Get(ctx, key); err != nil {
		// A cache backend failure must not turn into a denial; fall through
		// to the upstream call.
		logger.Warnf("decision cache get failed: %v", err)
	} else if ok {
		var outcome Outcome
		if err := sonic.Unmarshal(cached, &outcome); err == nil {
			return &outcome, nil
		}
		logger.Warnf("dropping undecodable cache entry %s", key)
		_ = c.cache.Del(ctx, key)
	}

	outcome, err := c.call(ctx, path, req.OuterAuthorization, body, decode)
	if err != nil {
		return nil, err
	}

	if encoded, err := sonic.Marshal(outcome); err == nil {
		if err := c.cache.Set(ctx, key, encoded, c.ttl); err != nil {
			logger.Warnf("decision cache set failed: %v", err)
		}
	}
	return outcome, nil
}

func (c *ProxyClient) call(ctx context.Context, path, authorization string, body map[string]any, decode func([]byte) (*model.BatchAuthorizeResult, error)) (*Outcome, error) {
	payload, err := sonic.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode upstream request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", authorization)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Upstream unreachable is a transport error, never a denial.
		return nil, fmt.Errorf("upstream call: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upstream response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		result, err := decode(data)
		if err != nil {
			return nil, fmt.Errorf("decode upstream response: %w", err)
		}
		return &Outcome{Result: result}, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		var failure struct {
			Errors map[string]string `json:"errors"`
		}
		if err := sonic.Unmarshal(data, &failure); err == nil {
			if code, ok := failure.Errors["authorization"]; ok {
				return &Outcome{OuterError: Code(code)}, nil
			}
		}
		return nil, fmt.Errorf("upstream rejected request with status %d", resp.StatusCode)
	default:
		return nil, fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}
}

// fingerprint hashes every input that determines the decision. Any change to
// the outer credentials, the inner headers, the permit map, the region or
// the context must produce a different key.
func fingerprint(op, path, authorization string, body map[string]any) (string, error) {
	envelope := map[string]any{
		"op":            op,
		"path":          path,
		"authorization": authorization,
		"body":          body,
	}
	canonical, err := canonicalJSON.Marshal(envelope)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func mergeBatch(dst, src *model.BatchAuthorizeResult) {
	if src.Authorized {
		dst.Authorized = true
	}
	if dst.Identity == "" {
		dst.Identity = src.Identity
	}
	if !dst.Authorized {
		dst.ErrorCode = src.ErrorCode
	} else {
		dst.ErrorCode = ""
	}
	for action, resources := range src.Permitted {
		dst.Permitted[action] = append(dst.Permitted[action], resources...)
	}
	for action, resources := range src.NotPermitted {
		dst.NotPermitted[action] = append(dst.NotPermitted[action], resources...)
	}
}
