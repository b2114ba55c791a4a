// Package handler implements the HTTP API.
package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tinyauth/microauth/internal/microauth/biz"
	"github.com/tinyauth/microauth/internal/microauth/middleware"
	"github.com/tinyauth/microauth/internal/model"
)

const (
	msgMissingParameter   = "Missing required parameter in the JSON body"
	msgUnexpectedArgument = "Unexpected argument"
)

// decodeStrict decodes a JSON body while enforcing the exact field set:
// every required field must be present and no field outside required and
// optional may appear. Violations come back as a field-to-reason map, which
// short-circuits the request before any credential resolution happens.
func decodeStrict(r io.Reader, required, optional []string) (map[string]json.RawMessage, map[string]string) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, map[string]string{"body": "Expected valid JSON body"}
	}

	allowed := make(map[string]bool, len(required)+len(optional))
	for _, f := range required {
		allowed[f] = true
	}
	for _, f := range optional {
		allowed[f] = true
	}

	errs := map[string]string{}
	for _, f := range required {
		if _, ok := raw[f]; !ok {
			errs[f] = msgMissingParameter
		}
	}
	for f := range raw {
		if !allowed[f] {
			errs[f] = msgUnexpectedArgument
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return raw, nil
}

// unmarshalField decodes one field of a strict body into out, reporting a
// per-field error on type mismatch.
func unmarshalField(raw map[string]json.RawMessage, name string, out any, errs map[string]string) {
	data, ok := raw[name]
	if !ok {
		return
	}
	if err := json.Unmarshal(data, out); err != nil {
		errs[name] = "Malformed value"
	}
}

// writeFieldErrors reports malformed-input errors: HTTP 400 with the field
// map, independent of the decision taxonomy.
func writeFieldErrors(c *gin.Context, errs map[string]string) {
	c.JSON(http.StatusBadRequest, gin.H{"errors": errs})
}

// writeOuterError reports an outer credential failure.
func writeOuterError(c *gin.Context, code biz.Code) {
	c.JSON(http.StatusUnauthorized, gin.H{"errors": gin.H{"authorization": string(code)}})
}

// requestID returns the identifier attached by the request-id middleware.
func requestID(c *gin.Context) string {
	return middleware.RequestID(c)
}

// permitActions lists the actions of a permit map in stable order.
func permitActions(permit model.PermitMap) []string {
	actions := make([]string, 0, len(permit))
	for action := range permit {
		actions = append(actions, action)
	}
	sort.Strings(actions)
	return actions
}

// permitResources lists the distinct resources of a permit map in stable
// order.
func permitResources(permit model.PermitMap) []string {
	seen := map[string]bool{}
	resources := make([]string, 0)
	for _, rs := range permit {
		for _, r := range rs {
			if !seen[r] {
				seen[r] = true
				resources = append(resources, r)
			}
		}
	}
	sort.Strings(resources)
	return resources
}

// intQuery reads an integer query parameter, falling back on absence or a
// parse failure.
func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
