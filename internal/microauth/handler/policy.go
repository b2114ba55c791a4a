package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tinyauth/microauth/internal/microauth/audit"
	"github.com/tinyauth/microauth/internal/microauth/biz"
	"github.com/tinyauth/microauth/internal/microauth/store"
	"github.com/tinyauth/microauth/internal/model"
)

// PolicyHandler serves policy attachment for users and groups. A policy is
// addressed by its owner plus name; setting an existing name replaces the
// document.
type PolicyHandler struct {
	store  store.Factory
	client biz.Client
	audit  *audit.Emitter
}

// NewPolicyHandler creates a PolicyHandler.
func NewPolicyHandler(factory store.Factory, client biz.Client, emitter *audit.Emitter) *PolicyHandler {
	return &PolicyHandler{
		store:  factory,
		client: client,
		audit:  emitter,
	}
}

type setPolicyRequest struct {
	Policy string `json:"policy" validate:"required,policydoc"`
}

// SetUserPolicy creates or replaces a named policy on a user.
//
// PUT /api/v1/users/:username/policies/:policy
func (h *PolicyHandler) SetUserPolicy(c *gin.Context) {
	event := audit.NewEvent("SetUserPolicy", requestID(c))
	defer h.emit(c, event)

	username := c.Param("username")
	name := c.Param("policy")
	event.Set("request.username", username)
	event.Set("request.policy", name)

	var req setPolicyRequest
	if !bindValidated(c, event, &req) {
		return
	}
	if !internalAuthorize(c, h.client, event, "SetUserPolicy", userARN(username)) {
		return
	}

	user, err := h.store.Users().Get(c.Request.Context(), username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeNotFound(c, event, "user")
			return
		}
		writeStoreError(c, event, err)
		return
	}

	existing, err := h.store.Policies().GetForUser(c.Request.Context(), user.ID, name)
	switch {
	case err == nil:
		existing.Document = req.Policy
		if err := h.store.Policies().Update(c.Request.Context(), existing); err != nil {
			writeStoreError(c, event, err)
			return
		}
		c.JSON(http.StatusOK, existing)
	case errors.Is(err, store.ErrNotFound):
		p := &model.Policy{Name: name, UserID: &user.ID, Document: req.Policy}
		if err := h.store.Policies().Create(c.Request.Context(), p); err != nil {
			writeStoreError(c, event, err)
			return
		}
		c.JSON(http.StatusCreated, p)
	default:
		writeStoreError(c, event, err)
	}
}

// GetUserPolicy returns one named policy attached to a user.
//
// GET /api/v1/users/:username/policies/:policy
func (h *PolicyHandler) GetUserPolicy(c *gin.Context) {
	event := audit.NewEvent("GetUserPolicy", requestID(c))
	defer h.emit(c, event)

	username := c.Param("username")
	name := c.Param("policy")
	event.Set("request.username", username)
	event.Set("request.policy", name)

	if !internalAuthorize(c, h.client, event, "GetUserPolicy", userARN(username)) {
		return
	}

	user, err := h.store.Users().Get(c.Request.Context(), username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeNotFound(c, event, "user")
			return
		}
		writeStoreError(c, event, err)
		return
	}

	p, err := h.store.Policies().GetForUser(c.Request.Context(), user.ID, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeNotFound(c, event, "policy")
			return
		}
		writeStoreError(c, event, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// DeleteUserPolicy removes one named policy from a user.
//
// DELETE /api/v1/users/:username/policies/:policy
func (h *PolicyHandler) DeleteUserPolicy(c *gin.Context) {
	event := audit.NewEvent("DeleteUserPolicy", requestID(c))
	defer h.emit(c, event)

	username := c.Param("username")
	name := c.Param("policy")
	event.Set("request.username", username)
	event.Set("request.policy", name)

	if !internalAuthorize(c, h.client, event, "DeleteUserPolicy", userARN(username)) {
		return
	}

	user, err := h.store.Users().Get(c.Request.Context(), username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeNotFound(c, event, "user")
			return
		}
		writeStoreError(c, event, err)
		return
	}

	p, err := h.store.Policies().GetForUser(c.Request.Context(), user.ID, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeNotFound(c, event, "policy")
			return
		}
		writeStoreError(c, event, err)
		return
	}
	if err := h.store.Policies().Delete(c.Request.Context(), p.ID); err != nil {
		writeStoreError(c, event, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetGroupPolicy creates or replaces a named policy on a group.
//
// PUT /api/v1/groups/:name/policies/:policy
func (h *PolicyHandler) SetGroupPolicy(c *gin.Context) {
	event := audit.NewEvent("SetGroupPolicy", requestID(c))
	defer h.emit(c, event)

	groupName := c.Param("name")
	name := c.Param("policy")
	event.Set("request.group", groupName)
	event.Set("request.policy", name)

	var req setPolicyRequest
	if !bindValidated(c, event, &req) {
		return
	}
	if !internalAuthorize(c, h.client, event, "SetGroupPolicy", groupARN(groupName)) {
		return
	}

	group, err := h.store.Groups().Get(c.Request.Context(), groupName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeNotFound(c, event, "group")
			return
		}
		writeStoreError(c, event, err)
		return
	}

	existing, err := h.store.Policies().GetForGroup(c.Request.Context(), group.ID, name)
	switch {
	case err == nil:
		existing.Document = req.Policy
		if err := h.store.Policies().Update(c.Request.Context(), existing); err != nil {
			writeStoreError(c, event, err)
			return
		}
		c.JSON(http.StatusOK, existing)
	case errors.Is(err, store.ErrNotFound):
		p := &model.Policy{Name: name, GroupID: &group.ID, Document: req.Policy}
		if err := h.store.Policies().Create(c.Request.Context(), p); err != nil {
			writeStoreError(c, event, err)
			return
		}
		c.JSON(http.StatusCreated, p)
	default:
		writeStoreError(c, event, err)
	}
}

// GetGroupPolicy returns one named policy attached to a group.
//
// GET /api/v1/groups/:name/policies/:policy
func (h *PolicyHandler) GetGroupPolicy(c *gin.Context) {
	event := audit.NewEvent("GetGroupPolicy", requestID(c))
	defer h.emit(c, event)

	groupName := c.Param("name")
	name := c.Param("policy")
	event.Set("request.group", groupName)
	event.Set("request.policy", name)

	if !internalAuthorize(c, h.client, event, "GetGroupPolicy", groupARN(groupName)) {
		return
	}

	group, err := h.store.Groups().Get(c.Request.Context(), groupName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeNotFound(c, event, "group")
			return
		}
		writeStoreError(c, event, err)
		return
	}

	p, err := h.store.Policies().GetForGroup(c.Request.Context(), group.ID, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeNotFound(c, event, "policy")
			return
		}
		writeStoreError(c, event, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// DeleteGroupPolicy removes one named policy from a group.
//
// DELETE /api/v1/groups/:name/policies/:policy
func (h *PolicyHandler) DeleteGroupPolicy(c *gin.Context) {
	event := audit.NewEvent("DeleteGroupPolicy", requestID(c))
	defer h.emit(c, event)

	groupName := c.Param("name")
	name := c.Param("policy")
	event.Set("request.group", groupName)
	event.Set("request.policy", name)

	if !internalAuthorize(c, h.client, event, "DeleteGroupPolicy", groupARN(groupName)) {
		return
	}

	group, err := h.store.Groups().Get(c.Request.Context(), groupName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeNotFound(c, event, "group")
			return
		}
		writeStoreError(c, event, err)
		return
	}

	p, err := h.store.Policies().GetForGroup(c.Request.Context(), group.ID, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeNotFound(c, event, "policy")
			return
		}
		writeStoreError(c, event, err)
		return
	}
	if err := h.store.Policies().Delete(c.Request.Context(), p.ID); err != nil {
		writeStoreError(c, event, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *PolicyHandler) emit(c *gin.Context, event *audit.Event) {
	event.Set("http.status", c.Writer.Status())
	h.audit.Emit(event)
}
