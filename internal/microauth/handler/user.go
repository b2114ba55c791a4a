package handler

import (
	"crypto/rand"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/tinyauth/microauth/internal/microauth/audit"
	"github.com/tinyauth/microauth/internal/microauth/biz"
	"github.com/tinyauth/microauth/internal/microauth/store"
	"github.com/tinyauth/microauth/internal/model"
	"github.com/tinyauth/microauth/pkg/validator"
)

// UserHandler serves user and access key management.
type UserHandler struct {
	store  store.Factory
	client biz.Client
	audit  *audit.Emitter
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(factory store.Factory, client biz.Client, emitter *audit.Emitter) *UserHandler {
	return &UserHandler{
		store:  factory,
		client: client,
		audit:  emitter,
	}
}

type createUserRequest struct {
	Username string `json:"username" validate:"required,min=1,max=64"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type updateUserRequest struct {
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// Create registers a user. The password is bcrypt-hashed before storage.
//
// POST /api/v1/users
func (h *UserHandler) Create(c *gin.Context) {
	event := audit.NewEvent("CreateUser", requestID(c))
	defer h.emit(c, event)

	var req createUserRequest
	if !bindValidated(c, event, &req) {
		return
	}
	event.Set("request.username", req.Username)

	if !internalAuthorize(c, h.client, event, "CreateUser", userARN(req.Username)) {
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeStoreError(c, event, err)
		return
	}

	user := &model.User{Username: req.Username, Password: string(hashed)}
	if err := h.store.Users().Create(c.Request.Context(), user); err != nil {
		writeStoreError(c, event, err)
		return
	}

	c.JSON(http.StatusCreated, user)
}

// Get returns one user.
//
// GET /api/v1/users/:username
func (h *UserHandler) Get(c *gin.Context) {
	event := audit.NewEvent("GetUser", requestID(c))
	defer h.emit(c, event)

	username := c.Param("username")
	event.Set("request.username", username)

	if !internalAuthorize(c, h.client, event, "GetUser", userARN(username)) {
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
	c.JSON(http.StatusOK, user)
}

// List returns users with offset/limit pagination.
//
// GET /api/v1/users
func (h *UserHandler) List(c *gin.Context) {
	event := audit.NewEvent("ListUsers", requestID(c))
	defer h.emit(c, event)

	if !internalAuthorize(c, h.client, event, "ListUsers", userARN("*")) {
		return
	}

	offset, limit := pagination(c)
	total, users, err := h.store.Users().List(c.Request.Context(), offset, limit)
	if err != nil {
		writeStoreError(c, event, err)
		return
	}
	c.JSON(http.StatusOK, model.UserList{TotalCount: total, Items: users})
}

// Update changes a user's password.
//
// PUT /api/v1/users/:username
func (h *UserHandler) Update(c *gin.Context) {
	event := audit.NewEvent("UpdateUser", requestID(c))
	defer h.emit(c, event)

	username := c.Param("username")
	event.Set("request.username", username)

	var req updateUserRequest
	if !bindValidated(c, event, &req) {
		return
	}

	if !internalAuthorize(c, h.client, event, "UpdateUser", userARN(username)) {
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

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeStoreError(c, event, err)
		return
	}
	user.Password = string(hashed)
	if err := h.store.Users().Update(c.Request.Context(), user); err != nil {
		writeStoreError(c, event, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// Delete removes a user and, through the schema, its keys and policies.
//
// DELETE /api/v1/users/:username
func (h *UserHandler) Delete(c *gin.Context) {
	event := audit.NewEvent("DeleteUser", requestID(c))
	defer h.emit(c, event)

	username := c.Param("username")
	event.Set("request.username", username)

	if !internalAuthorize(c, h.client, event, "DeleteUser", userARN(username)) {
		return
	}

	if err := h.store.Users().Delete(c.Request.Context(), username); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeNotFound(c, event, "user")
			return
		}
		writeStoreError(c, event, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CreateAccessKey mints a new access key for a user. The secret is returned
// exactly once, in this response.
//
// POST /api/v1/users/:username/keys
func (h *UserHandler) CreateAccessKey(c *gin.Context) {
	event := audit.NewEvent("CreateAccessKey", requestID(c))
	defer h.emit(c, event)

	username := c.Param("username")
	event.Set("request.username", username)

	if !internalAuthorize(c, h.client, event, "CreateAccessKey", userARN(username)) {
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

	keyID, err := randomKeyID()
	if err != nil {
		writeStoreError(c, event, err)
		return
	}
	secret, err := randomSecret()
	if err != nil {
		writeStoreError(c, event, err)
		return
	}

	key := &model.AccessKey{AccessKeyID: keyID, Secret: secret, UserID: user.ID}
	if err := h.store.AccessKeys().Create(c.Request.Context(), key); err != nil {
		writeStoreError(c, event, err)
		return
	}
	event.Set("response.access-key-id", keyID)

	c.JSON(http.StatusCreated, gin.H{
		"access_key_id":     keyID,
		"secret_access_key": secret,
	})
}

// ListAccessKeys returns the key IDs a user holds. Secrets are never listed.
//
// GET /api/v1/users/:username/keys
func (h *UserHandler) ListAccessKeys(c *gin.Context) {
	event := audit.NewEvent("ListAccessKeys", requestID(c))
	defer h.emit(c, event)

	username := c.Param("username")
	event.Set("request.username", username)

	if !internalAuthorize(c, h.client, event, "ListAccessKeys", userARN(username)) {
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

	keys, err := h.store.AccessKeys().ListForUser(c.Request.Context(), user.ID)
	if err != nil {
		writeStoreError(c, event, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"keys": keys})
}

// DeleteAccessKey revokes an access key.
//
// DELETE /api/v1/users/:username/keys/:access_key_id
func (h *UserHandler) DeleteAccessKey(c *gin.Context) {
	event := audit.NewEvent("DeleteAccessKey", requestID(c))
	defer h.emit(c, event)

	username := c.Param("username")
	keyID := c.Param("access_key_id")
	event.Set("request.username", username)
	event.Set("request.access-key-id", keyID)

	if !internalAuthorize(c, h.client, event, "DeleteAccessKey", userARN(username)) {
		return
	}

	if err := h.store.AccessKeys().Delete(c.Request.Context(), keyID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeNotFound(c, event, "key")
			return
		}
		writeStoreError(c, event, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *UserHandler) emit(c *gin.Context, event *audit.Event) {
	event.Set("http.status", c.Writer.Status())
	h.audit.Emit(event)
}

// bindValidated decodes a JSON body and validates it, writing the field
// error response on failure.
func bindValidated(c *gin.Context, event *audit.Event, out any) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		errs := map[string]string{"body": "Malformed JSON body"}
		event.Set("errors", errs)
		writeFieldErrors(c, errs)
		return false
	}
	if verrs := validator.Struct(out); verrs.HasErrors() {
		errs := verrs.ByField()
		event.Set("errors", errs)
		writeFieldErrors(c, errs)
		return false
	}
	return true
}

func userARN(username string) string {
	return "arn:microauth:users/" + username
}

const keyIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

// randomKeyID returns an AK-prefixed 20 character key identifier.
func randomKeyID() (string, error) {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	id := make([]byte, 0, 20)
	id = append(id, 'A', 'K')
	for _, b := range buf {
		id = append(id, keyIDAlphabet[int(b)%len(keyIDAlphabet)])
	}
	return string(id), nil
}

const secretAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

// randomSecret returns a 40 character secret.
func randomSecret() (string, error) {
	buf := make([]byte, 40)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	secret := make([]byte, 40)
	for i, b := range buf {
		secret[i] = secretAlphabet[int(b)%len(secretAlphabet)]
	}
	return string(secret), nil
}

// pagination reads offset and limit query parameters with sane bounds.
func pagination(c *gin.Context) (int, int) {
	offset := intQuery(c, "offset", 0)
	limit := intQuery(c, "limit", 50)
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return offset, limit
}
