package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tinyauth/microauth/internal/model"
)

type accessKeys struct {
	db *gorm.DB
}

// Create creates a new access key.
func (a *accessKeys) Create(ctx context.Context, key *model.AccessKey) error {
	return a.db.WithContext(ctx).Create(key).Error
}

// Delete deletes an access key by its public ID.
func (a *accessKeys) Delete(ctx context.Context, accessKeyID string) error {
	return a.db.WithContext(ctx).Where("access_key_id = ?", accessKeyID).Delete(&model.AccessKey{}).Error
}

// Get retrieves an access key by its public ID.
func (a *accessKeys) Get(ctx context.Context, accessKeyID string) (*model.AccessKey, error) {
	var key model.AccessKey
	if err := a.db.WithContext(ctx).Where("access_key_id = ?", accessKeyID).First(&key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &key, nil
}

// ListForUser returns the access keys owned by a user.
func (a *accessKeys) ListForUser(ctx context.Context, userID uint64) ([]*model.AccessKey, error) {
	var items []*model.AccessKey
	if err := a.db.WithContext(ctx).Where("user_id = ?", userID).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

type policies struct {
	db *gorm.DB
}

// Create creates a new policy.
func (p *policies) Create(ctx context.Context, pol *model.Policy) error {
	return p.db.WithContext(ctx).Create(pol).Error
}

// Update updates an existing policy.
func (p *policies) Update(ctx context.Context, pol *model.Policy) error {
	return p.db.WithContext(ctx).Save(pol).Error
}

// Delete deletes a policy by ID.
func (p *policies) Delete(ctx context.Context, id uint64) error {
	return p.db.WithContext(ctx).Delete(&model.Policy{}, id).Error
}

// GetForUser retrieves a named policy owned by a user.
func (p *policies) GetForUser(ctx context.Context, userID uint64, name string) (*model.Policy, error) {
	var pol model.Policy
	err := p.db.WithContext(ctx).Where("user_id = ? AND name = ?", userID, name).First(&pol).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &pol, nil
}

// GetForGroup retrieves a named policy owned by a group.
func (p *policies) GetForGroup(ctx context.Context, groupID uint64, name string) (*model.Policy, error) {
	var pol model.Policy
	err := p.db.WithContext(ctx).Where("group_id = ? AND name = ?", groupID, name).First(&pol).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &pol, nil
}

// ListForUser returns the policies owned directly by a user.
func (p *policies) ListForUser(ctx context.Context, userID uint64) ([]*model.Policy, error) {
	var items []*model.Policy
	if err := p.db.WithContext(ctx).Where("user_id = ?", userID).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// ListForGroup returns the policies owned by a group.
func (p *policies) ListForGroup(ctx context.Context, groupID uint64) ([]*model.Policy, error) {
	var items []*model.Policy
	if err := p.db.WithContext(ctx).Where("group_id = ?", groupID).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
