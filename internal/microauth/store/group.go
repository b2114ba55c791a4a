package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tinyauth/microauth/internal/model"
)

type groups struct {
	db *gorm.DB
}

// Create creates a new group.
func (g *groups) Create(ctx context.Context, group *model.Group) error {
	return g.db.WithContext(ctx).Create(group).Error
}

// Update updates an existing group.
func (g *groups) Update(ctx context.Context, group *model.Group) error {
	return g.db.WithContext(ctx).Save(group).Error
}

// Delete deletes a group by name. Membership rows go with it; users do not.
func (g *groups) Delete(ctx context.Context, name string) error {
	group, err := g.Get(ctx, name)
	if err != nil {
		return err
	}
	if err := g.db.WithContext(ctx).Model(group).Association("Users").Clear(); err != nil {
		return err
	}
	return g.db.WithContext(ctx).Delete(group).Error
}

// Get retrieves a group by name, with its members.
func (g *groups) Get(ctx context.Context, name string) (*model.Group, error) {
	var group model.Group
	if err := g.db.WithContext(ctx).Preload("Users").Where("name = ?", name).First(&group).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &group, nil
}

// List lists groups with pagination.
func (g *groups) List(ctx context.Context, offset, limit int) (int64, []*model.Group, error) {
	var count int64
	var items []*model.Group

	if err := g.db.WithContext(ctx).Model(&model.Group{}).Count(&count).Error; err != nil {
		return 0, nil, err
	}

	if err := g.db.WithContext(ctx).Offset(offset).Limit(limit).Order("id").Find(&items).Error; err != nil {
		return 0, nil, err
	}

	return count, items, nil
}

// AddUser adds a user to a group. Adding an existing member is a no-op.
func (g *groups) AddUser(ctx context.Context, groupID, userID uint64) error {
	return g.db.WithContext(ctx).
		Model(&model.Group{ID: groupID}).
		Association("Users").
		Append(&model.User{ID: userID})
}

// RemoveUser removes a user from a group. Removing a non-member is a no-op.
func (g *groups) RemoveUser(ctx context.Context, groupID, userID uint64) error {
	return g.db.WithContext(ctx).
		Model(&model.Group{ID: groupID}).
		Association("Users").
		Delete(&model.User{ID: userID})
}

// ListForUser returns every group the user belongs to.
func (g *groups) ListForUser(ctx context.Context, userID uint64) ([]*model.Group, error) {
	var items []*model.Group
	err := g.db.WithContext(ctx).
		Joins("JOIN user_groups ON user_groups.group_id = groups.id").
		Where("user_groups.user_id = ?", userID).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
