// Package store defines persistence interfaces for users, groups, access
// keys and policies, with a GORM-backed implementation.
package store

import (
	"context"
	"errors"

	"github.com/tinyauth/microauth/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Factory defines the factory interface for creating stores.
type Factory interface {
	Users() UserStore
	Groups() GroupStore
	AccessKeys() AccessKeyStore
	Policies() PolicyStore
	AutoMigrate() error
	Close() error
}

// UserStore defines the user storage interface.
type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	Update(ctx context.Context, user *model.User) error
	Delete(ctx context.Context, username string) error
	Get(ctx context.Context, username string) (*model.User, error)
	GetByID(ctx context.Context, id uint64) (*model.User, error)
	List(ctx context.Context, offset, limit int) (int64, []*model.User, error)
}

// GroupStore defines the group storage interface. AddUser and RemoveUser are
// idempotent; membership holds no duplicate entries.
type GroupStore interface {
	Create(ctx context.Context, group *model.Group) error
	Update(ctx context.Context, group *model.Group) error
	Delete(ctx context.Context, name string) error
	Get(ctx context.Context, name string) (*model.Group, error)
	List(ctx context.Context, offset, limit int) (int64, []*model.Group, error)
	AddUser(ctx context.Context, groupID, userID uint64) error
	RemoveUser(ctx context.Context, groupID, userID uint64) error
	ListForUser(ctx context.Context, userID uint64) ([]*model.Group, error)
}

// AccessKeyStore defines the access key storage interface.
type AccessKeyStore interface {
	Create(ctx context.Context, key *model.AccessKey) error
	Delete(ctx context.Context, accessKeyID string) error
	Get(ctx context.Context, accessKeyID string) (*model.AccessKey, error)
	ListForUser(ctx context.Context, userID uint64) ([]*model.AccessKey, error)
}

// PolicyStore defines the policy storage interface. A policy belongs to
// exactly one user or one group.
type PolicyStore interface {
	Create(ctx context.Context, p *model.Policy) error
	Update(ctx context.Context, p *model.Policy) error
	Delete(ctx context.Context, id uint64) error
	GetForUser(ctx context.Context, userID uint64, name string) (*model.Policy, error)
	GetForGroup(ctx context.Context, groupID uint64, name string) (*model.Policy, error)
	ListForUser(ctx context.Context, userID uint64) ([]*model.Policy, error)
	ListForGroup(ctx context.Context, groupID uint64) ([]*model.Policy, error)
}
