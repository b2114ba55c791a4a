package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tinyauth/microauth/internal/microauth/audit"
	"github.com/tinyauth/microauth/internal/microauth/biz"
	"github.com/tinyauth/microauth/internal/microauth/store"
	"github.com/tinyauth/microauth/internal/model"
)

// GroupHandler serves group and group membership management.
type GroupHandler struct {
	store  store.Factory
	client biz.Client
	audit  *audit.Emitter
}

// NewGroupHandler creates a GroupHandler.
func NewGroupHandler(factory store.Factory, client biz.Client, emitter *audit.Emitter) *GroupHandler {
	return &GroupHandler{
		store:  factory,
		client: client,
		audit:  emitter,
	}
}

type createGroupRequest struct {
	Name string `json:"name" validate:"required,min=1,max=64"`
}

// Create registers a group.
//
// POST /api/v1/groups
func (h *GroupHandler) Create(c *gin.Context) {
	event := audit.NewEvent("CreateGroup", requestID(c))
	defer h.emit(c, event)

	var req createGroupRequest
	if !bindValidated(c, event, &req) {
		return
	}
	event.Set("request.group", req.Name)

	if !internalAuthorize(c, h.client, event, "CreateGroup", groupARN(req.Name)) {
		return
	}

	group := &model.Group{Name: req.Name}
	if err := h.store.Groups().Create(c.Request.Context(), group); err != nil {
		writeStoreError(c, event, err)
		return
	}
	c.JSON(http.StatusCreated, group)
}

// Get returns one group with its member usernames.
//
// GET /api/v1/groups/:name
func (h *GroupHandler) Get(c *gin.Context) {
	event := audit.NewEvent("GetGroup", requestID(c))
	defer h.emit(c, event)

	name := c.Param("name")
	event.Set("request.group", name)

	if !internalAuthorize(c, h.client, event, "GetGroup", groupARN(name)) {
		return
	}

	group, err := h.store.Groups().Get(c.Request.Context(), name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeNotFound(c, event, "group")
			return
		}
		writeStoreError(c, event, err)
		return
	}

	members := make([]string, 0, len(group.Users))
	for _, u := range group.Users {
		members = append(members, u.Username)
	}
	c.JSON(http.StatusOK, gin.H{"group": group, "members": members})
}

// List returns groups with offset/limit pagination.
//
// GET /api/v1/groups
func (h *GroupHandler) List(c *gin.Context) {
	event := audit.NewEvent("ListGroups", requestID(c))
	defer h.emit(c, event)

	if !internalAuthorize(c, h.client, event, "ListGroups", groupARN("*")) {
		return
	}

	offset, limit := pagination(c)
	total, groups, err := h.store.Groups().List(c.Request.Context(), offset, limit)
	if err != nil {
		writeStoreError(c, event, err)
		return
	}
	c.JSON(http.StatusOK, model.GroupList{TotalCount: total, Items: groups})
}

// Delete removes a group. Members are detached, never deleted.
//
// DELETE /api/v1/groups/:name
func (h *GroupHandler) Delete(c *gin.Context) {
	event := audit.NewEvent("DeleteGroup", requestID(c))
	defer h.emit(c, event)

	name := c.Param("name")
	event.Set("request.group", name)

	if !internalAuthorize(c, h.client, event, "DeleteGroup", groupARN(name)) {
		return
	}

	if err := h.store.Groups().Delete(c.Request.Context(), name); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeNotFound(c, event, "group")
			return
		}
		writeStoreError(c, event, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AddMember adds a user to a group. Adding an existing member is a no-op.
//
// PUT /api/v1/groups/:name/members/:username
func (h *GroupHandler) AddMember(c *gin.Context) {
	h.membership(c, "AddUserToGroup", store.GroupStore.AddUser)
}

// RemoveMember removes a user from a group. Removing a non-member is a
// no-op.
//
// DELETE /api/v1/groups/:name/members/:username
func (h *GroupHandler) RemoveMember(c *gin.Context) {
	h.membership(c, "RemoveUserFromGroup", store.GroupStore.RemoveUser)
}

func (h *GroupHandler) membership(c *gin.Context, action string, apply func(store.GroupStore, context.Context, uint64, uint64) error) {
	event := audit.NewEvent(action, requestID(c))
	defer h.emit(c, event)

	name := c.Param("name")
	username := c.Param("username")
	event.Set("request.group", name)
	event.Set("request.username", username)

	if !internalAuthorize(c, h.client, event, action, groupARN(name)) {
		return
	}

	group, err := h.store.Groups().Get(c.Request.Context(), name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeNotFound(c, event, "group")
			return
		}
		writeStoreError(c, event, err)
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

	if err := apply(h.store.Groups(), c.Request.Context(), group.ID, user.ID); err != nil {
		writeStoreError(c, event, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *GroupHandler) emit(c *gin.Context, event *audit.Event) {
	event.Set("http.status", c.Writer.Status())
	h.audit.Emit(event)
}

func groupARN(name string) string {
	return "arn:microauth:groups/" + name
}
