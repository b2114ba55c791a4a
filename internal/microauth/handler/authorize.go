package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/tinyauth/microauth/internal/microauth/audit"
	"github.com/tinyauth/microauth/internal/microauth/biz"
	"github.com/tinyauth/microauth/internal/model"
)

// AuthorizeHandler serves the authorization endpoints. All decision making
// goes through the client facade, which is local or proxying depending on
// deployment configuration.
type AuthorizeHandler struct {
	client biz.Client
	tokens *biz.TokenService
	audit  *audit.Emitter
}

// NewAuthorizeHandler creates an AuthorizeHandler.
func NewAuthorizeHandler(client biz.Client, tokens *biz.TokenService, emitter *audit.Emitter) *AuthorizeHandler {
	return &AuthorizeHandler{
		client: client,
		tokens: tokens,
		audit:  emitter,
	}
}

// Authorize handles the legacy single-pair endpoint. The action arrives
// fully qualified; the response collapses to a boolean plus error code and
// HTTP-style status, with no permit maps.
func (h *AuthorizeHandler) Authorize(c *gin.Context) {
	event := audit.NewEvent("AuthorizeByToken", requestID(c))
	event.Set("request.legacy", true)
	defer h.emit(c, event)

	req, ok := h.decodeLegacy(c, event, []string{"region", "action", "resource", "headers", "context"})
	if !ok {
		return
	}

	outcome, err := h.client.Authorize(c.Request.Context(), &biz.ClientRequest{
		OuterAuthorization: c.GetHeader("Authorization"),
		Authorize:          req,
	})
	h.writeLegacy(c, event, outcome, err)
}

// AuthorizeLogin handles the legacy endpoint authorizing username/password
// credentials. Region is optional and defaults to "global".
func (h *AuthorizeHandler) AuthorizeLogin(c *gin.Context) {
	event := audit.NewEvent("AuthorizeByLogin", requestID(c))
	defer h.emit(c, event)

	req, ok := h.decodeLegacy(c, event, []string{"action", "resource", "headers", "context"})
	if !ok {
		return
	}
	if req.Region == "" {
		req.Region = "global"
	}

	outcome, err := h.client.AuthorizeByLogin(c.Request.Context(), &biz.ClientRequest{
		OuterAuthorization: c.GetHeader("Authorization"),
		Authorize:          req,
	})
	h.writeLegacy(c, event, outcome, err)
}

// AuthorizeByToken handles the service-scoped batch endpoint. Actions in the
// permit map are relative to the service in the route and are qualified
// before evaluation.
func (h *AuthorizeHandler) AuthorizeByToken(c *gin.Context) {
	service := c.Param("service")

	event := audit.NewEvent("AuthorizeByToken", requestID(c))
	event.Set("request.service", service)
	defer h.emit(c, event)

	raw, errs := decodeStrict(c.Request.Body, []string{"region", "permit", "headers", "context"}, nil)
	if errs == nil {
		errs = map[string]string{}
		req := &model.AuthorizeRequest{}
		var permit model.PermitMap
		unmarshalField(raw, "region", &req.Region, errs)
		unmarshalField(raw, "permit", &permit, errs)
		unmarshalField(raw, "headers", &req.Headers, errs)
		unmarshalField(raw, "context", &req.Context, errs)
		if len(errs) == 0 {
			req.Permit = biz.PrefixPermit(service, permit)

			event.SetJSON("request.permit", permit)
			event.Set("request.region", req.Region)
			event.Set("request.actions", permitActions(req.Permit))
			event.Set("request.resources", permitResources(req.Permit))
			event.SetHeaders(req.Headers)
			event.Set("request.context", req.Context)

			outcome, err := h.client.AuthorizeByToken(c.Request.Context(), &biz.ClientRequest{
				OuterAuthorization: c.GetHeader("Authorization"),
				Service:            service,
				Authorize:          req,
			})
			h.writeBatch(c, event, service, outcome, err)
			return
		}
	}

	event.Set("errors", errs)
	event.Set("response.authorized", false)
	writeFieldErrors(c, errs)
}

// GetTokenForLogin exchanges a username/password for a session token and a
// CSRF token.
func (h *AuthorizeHandler) GetTokenForLogin(c *gin.Context) {
	service := c.Param("service")

	event := audit.NewEvent("GetTokenForLogin", requestID(c))
	event.Set("request.service", service)
	defer h.emit(c, event)

	raw, errs := decodeStrict(c.Request.Body, []string{"username", "password", "csrf-strategy"}, nil)
	if errs != nil {
		event.Set("errors", errs)
		writeFieldErrors(c, errs)
		return
	}

	var username, password, csrfStrategy string
	errs = map[string]string{}
	unmarshalField(raw, "username", &username, errs)
	unmarshalField(raw, "password", &password, errs)
	unmarshalField(raw, "csrf-strategy", &csrfStrategy, errs)
	if len(errs) > 0 {
		event.Set("errors", errs)
		writeFieldErrors(c, errs)
		return
	}

	event.Set("request.username", username)
	event.Set("request.csrf-strategy", csrfStrategy)

	token, csrf, err := h.tokens.SessionToken(c.Request.Context(), username, password)
	if err != nil {
		if _, ok := biz.AsCredentialError(err); ok {
			failure := gin.H{"authentication": "Invalid credentials"}
			event.Set("errors", failure)
			c.JSON(http.StatusUnauthorized, gin.H{"errors": failure})
			return
		}
		logger.Errorf("session token issuance failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"errors": gin.H{"internal": "server error"}})
		return
	}

	c.JSON(http.StatusOK, model.TokenResult{Token: token, CSRF: csrf})
}

// decodeLegacy parses the shared legacy body shape into a one-entry permit
// map and records the request audit fields.
func (h *AuthorizeHandler) decodeLegacy(c *gin.Context, event *audit.Event, required []string) (*model.AuthorizeRequest, bool) {
	raw, errs := decodeStrict(c.Request.Body, required, []string{"region"})
	if errs != nil {
		event.Set("errors", errs)
		writeFieldErrors(c, errs)
		return nil, false
	}

	errs = map[string]string{}
	req := &model.AuthorizeRequest{}
	var action, resource string
	unmarshalField(raw, "region", &req.Region, errs)
	unmarshalField(raw, "action", &action, errs)
	unmarshalField(raw, "resource", &resource, errs)
	unmarshalField(raw, "headers", &req.Headers, errs)
	unmarshalField(raw, "context", &req.Context, errs)
	if len(errs) > 0 {
		event.Set("errors", errs)
		writeFieldErrors(c, errs)
		return nil, false
	}
	req.Permit = model.PermitMap{action: {resource}}

	event.SetJSON("request.permit", req.Permit)
	event.Set("request.region", req.Region)
	event.Set("request.actions", permitActions(req.Permit))
	event.Set("request.resources", permitResources(req.Permit))
	event.SetHeaders(req.Headers)
	event.Set("request.context", req.Context)
	return req, true
}

// writeLegacy serializes a legacy outcome.
func (h *AuthorizeHandler) writeLegacy(c *gin.Context, event *audit.Event, outcome *biz.Outcome, err error) {
	if err != nil {
		h.writeTransportError(c, event, err)
		return
	}
	if outcome.OuterError != "" {
		failure := map[string]string{"authorization": string(outcome.OuterError)}
		event.Set("errors", failure)
		writeOuterError(c, outcome.OuterError)
		return
	}

	result := biz.ToLegacy(outcome.Result)
	event.Set("response.authorized", result.Authorized)
	if result.Identity != "" {
		event.Set("response.identity", result.Identity)
	}
	c.JSON(http.StatusOK, result)
}

// writeBatch serializes a batch outcome, echoing the caller's unqualified
// action names.
func (h *AuthorizeHandler) writeBatch(c *gin.Context, event *audit.Event, service string, outcome *biz.Outcome, err error) {
	if err != nil {
		h.writeTransportError(c, event, err)
		return
	}
	if outcome.OuterError != "" {
		failure := map[string]string{"authorization": string(outcome.OuterError)}
		event.Set("errors", failure)
		event.Set("response.authorized", false)
		writeOuterError(c, outcome.OuterError)
		return
	}

	result := *outcome.Result
	result.Permitted = biz.StripPermitPrefix(service, result.Permitted)
	result.NotPermitted = biz.StripPermitPrefix(service, result.NotPermitted)

	event.Set("response.authorized", result.Authorized)
	if result.Identity != "" {
		event.Set("response.identity", result.Identity)
	}
	event.SetJSON("response.permitted", result.Permitted)
	event.SetJSON("response.not-permitted", result.NotPermitted)
	c.JSON(http.StatusOK, result)
}

// writeTransportError reports a persistence or upstream failure. It is never
// expressed as a denial.
func (h *AuthorizeHandler) writeTransportError(c *gin.Context, event *audit.Event, err error) {
	logger.Errorf("authorization pipeline failed: %v", err)
	event.Set("errors", map[string]string{"internal": "server error"})
	c.JSON(http.StatusInternalServerError, gin.H{"errors": gin.H{"internal": "server error"}})
}

func (h *AuthorizeHandler) emit(c *gin.Context, event *audit.Event) {
	event.Set("http.status", c.Writer.Status())
	h.audit.Emit(event)
}
