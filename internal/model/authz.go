package model

// PermitMap maps an action to the set of resources to authorize it against.
type PermitMap map[string][]string

// HeaderPair is one forwarded (name, value) header from the inner request
// being authorized. The wire form is a two-element JSON array.
type HeaderPair [2]string

// Name returns the header name.
func (h HeaderPair) Name() string { return h[0] }

// Value returns the header value.
func (h HeaderPair) Value() string { return h[1] }

// AuthorizeRequest is the canonical authorization question: who (headers),
// what (permit map), where (region), plus an opaque context passed through
// untouched. Single action/resource requests are the degenerate case of a
// one-entry permit map.
type AuthorizeRequest struct {
	Region  string         `json:"region"`
	Permit  PermitMap      `json:"permit"`
	Headers []HeaderPair   `json:"headers"`
	Context map[string]any `json:"context"`
}

// AuthorizeResult is the legacy single-pair response. Maps are omitted
// entirely; a credential failure carries an HTTP-style status.
type AuthorizeResult struct {
	Authorized bool   `json:"Authorized"`
	Identity   string `json:"Identity,omitempty"`
	ErrorCode  string `json:"ErrorCode,omitempty"`
	Status     int    `json:"Status,omitempty"`
}

// BatchAuthorizeResult is the batch response. Permitted and NotPermitted are
// always present, empty maps included.
type BatchAuthorizeResult struct {
	Authorized   bool      `json:"Authorized"`
	Identity     string    `json:"Identity,omitempty"`
	ErrorCode    string    `json:"ErrorCode,omitempty"`
	Permitted    PermitMap `json:"Permitted"`
	NotPermitted PermitMap `json:"NotPermitted"`
}

// TokenResult is the response to a get-token-for-login call.
type TokenResult struct {
	Token string `json:"token"`
	CSRF  string `json:"csrf,omitempty"`
}

// SigningKeyResult is the response to a signing-token request. The key is
// hex-encoded on the wire.
type SigningKeyResult struct {
	Key      string `json:"key"`
	Identity string `json:"identity"`
}
