// Package biz implements the authorization engine: principal resolution,
// policy evaluation, batch authorization, session tokens, signing keys and
// the caching client used in proxy deployments.
package biz

import (
	"errors"
	"net/http"
)

// Code is a stable, externally-visible error identifier. These names cross
// the wire and must never be renamed or merged.
type Code string

const (
	// CodeNoSuchKey means the presented access key does not exist.
	CodeNoSuchKey Code = "NoSuchKey"
	// CodeInvalidSignature means the access key exists but the secret does
	// not match.
	CodeInvalidSignature Code = "InvalidSignature"
	// CodeInvalidCredentials means a username/password login failed.
	CodeInvalidCredentials Code = "InvalidCredentials"
	// CodeUnsignedRequest means no verifiable session token was presented,
	// or the token's claimed user does not exist.
	CodeUnsignedRequest Code = "UnsignedRequest"
	// CodeNotPermitted is the authorization outcome for a denied request. It
	// is a decision, not a credential failure.
	CodeNotPermitted Code = "NotPermitted"
)

// Status returns the HTTP-style status a legacy single-pair response carries
// for this code.
func (c Code) Status() int {
	if c == CodeNotPermitted {
		return http.StatusForbidden
	}
	return http.StatusUnauthorized
}

// CredentialError is a principal-resolution failure. It aborts evaluation
// entirely; no partial decision is produced.
type CredentialError struct {
	Code Code
}

// Error implements the error interface.
func (e *CredentialError) Error() string {
	return string(e.Code)
}

// credErr builds a CredentialError for the given code.
func credErr(code Code) *CredentialError {
	return &CredentialError{Code: code}
}

// AsCredentialError unwraps err as a CredentialError, if it is one.
func AsCredentialError(err error) (*CredentialError, bool) {
	var ce *CredentialError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
