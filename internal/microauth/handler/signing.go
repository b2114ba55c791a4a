package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/tinyauth/microauth/internal/microauth/audit"
	"github.com/tinyauth/microauth/internal/microauth/biz"
	"github.com/tinyauth/microauth/pkg/signing"
)

// SigningHandler serves signing-key derivation and service-side policy
// lookup. These operate on the local store only; proxy deployments do not
// forward them.
type SigningHandler struct {
	signing  *biz.SigningService
	resolver *biz.Resolver
	audit    *audit.Emitter
}

// NewSigningHandler creates a SigningHandler.
func NewSigningHandler(service *biz.SigningService, resolver *biz.Resolver, emitter *audit.Emitter) *SigningHandler {
	return &SigningHandler{
		signing:  service,
		resolver: resolver,
		audit:    emitter,
	}
}

// UserSigningKey derives a signing key scoped to a user identity.
//
// GET /api/v1/regions/:region/services/:service/user-signing-tokens/:username/:protocol/:date
func (h *SigningHandler) UserSigningKey(c *gin.Context) {
	event := audit.NewEvent("GetServiceUserSigningToken", requestID(c))
	defer h.emit(c, event)

	spec, ok := h.keySpec(c, event)
	if !ok {
		return
	}
	username := c.Param("username")
	event.Set("request.user", username)

	result, err := h.signing.UserSigningKey(c.Request.Context(), spec, username)
	h.writeKey(c, event, result, err)
}

// AccessKeySigningKey derives a signing key for the user owning an access
// key. The response identity is the owning username, not the key id.
//
// GET /api/v1/regions/:region/services/:service/access-key-signing-tokens/:access_key_id/:protocol/:date
func (h *SigningHandler) AccessKeySigningKey(c *gin.Context) {
	event := audit.NewEvent("GetServiceAccessKeySigningToken", requestID(c))
	defer h.emit(c, event)

	spec, ok := h.keySpec(c, event)
	if !ok {
		return
	}
	accessKeyID := c.Param("access_key_id")
	event.Set("request.access-key", accessKeyID)

	result, err := h.signing.AccessKeySigningKey(c.Request.Context(), spec, accessKeyID)
	h.writeKey(c, event, result, err)
}

// UserPolicies returns a user's merged policy document, the union of the
// statements attached to the user and to every group the user belongs to.
//
// GET /api/v1/regions/:region/services/:service/user-policies/:username
func (h *SigningHandler) UserPolicies(c *gin.Context) {
	event := audit.NewEvent("GetServiceUserPolicies", requestID(c))
	defer h.emit(c, event)

	username := c.Param("username")
	event.Set("request.region", c.Param("region"))
	event.Set("request.service", c.Param("service"))
	event.Set("request.user", username)

	doc, err := h.signing.UserPolicies(c.Request.Context(), h.resolver, username)
	if err != nil {
		if cerr, ok := biz.AsCredentialError(err); ok {
			failure := map[string]string{"authorization": string(cerr.Code)}
			event.Set("errors", failure)
			writeOuterError(c, cerr.Code)
			return
		}
		logger.Errorf("user policy lookup failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"errors": gin.H{"internal": "server error"}})
		return
	}

	c.JSON(http.StatusOK, doc)
}

// keySpec builds a KeySpec from route and query parameters and validates it.
func (h *SigningHandler) keySpec(c *gin.Context, event *audit.Event) (signing.KeySpec, bool) {
	spec := signing.KeySpec{
		Region:   c.Param("region"),
		Service:  c.Param("service"),
		Date:     c.Param("date"),
		Protocol: signing.Protocol(c.Param("protocol")),
	}

	event.Set("request.region", spec.Region)
	event.Set("request.service", spec.Service)
	event.Set("request.date", spec.Date)
	event.Set("request.protocol", string(spec.Protocol))

	if err := spec.Validate(); err != nil {
		errs := map[string]string{"spec": err.Error()}
		event.Set("errors", errs)
		writeFieldErrors(c, errs)
		return signing.KeySpec{}, false
	}
	return spec, true
}

func (h *SigningHandler) writeKey(c *gin.Context, event *audit.Event, result any, err error) {
	if err != nil {
		if cerr, ok := biz.AsCredentialError(err); ok {
			failure := map[string]string{"authorization": string(cerr.Code)}
			event.Set("errors", failure)
			writeOuterError(c, cerr.Code)
			return
		}
		logger.Errorf("signing key derivation failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"errors": gin.H{"internal": "server error"}})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *SigningHandler) emit(c *gin.Context, event *audit.Event) {
	event.Set("http.status", c.Writer.Status())
	h.audit.Emit(event)
}
