// Package model defines the data models for the application.
package model

import (
	"time"

	"gorm.io/gorm"
)

// User represents an identity that can hold credentials and policies.
type User struct {
	ID        uint64 `json:"id" gorm:"primaryKey;autoIncrement"`
	Username  string `json:"username" gorm:"size:64;not null;uniqueIndex:uk_username"`
	Password  string `json:"-" gorm:"size:255;not null"`
	CreatedAt int64  `json:"created_at" gorm:"autoCreateTime:milli"`
	UpdatedAt int64  `json:"updated_at" gorm:"autoUpdateTime:milli"`

	AccessKeys []AccessKey `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Groups     []*Group    `json:"-" gorm:"many2many:user_groups"`
	Policies   []Policy    `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

// UserList contains a list of users and pagination info.
type UserList struct {
	TotalCount int64   `json:"totalCount"`
	Items      []*User `json:"items"`
}

// TableName returns the table name for GORM.
func (u *User) TableName() string {
	return "users"
}

// BeforeCreate sets the CreatedAt and UpdatedAt fields.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	now := time.Now().UnixMilli()
	u.CreatedAt = now
	u.UpdatedAt = now
	return
}

// BeforeUpdate sets the UpdatedAt field.
func (u *User) BeforeUpdate(tx *gorm.DB) (err error) {
	u.UpdatedAt = time.Now().UnixMilli()
	return
}

// AccessKey is an API credential owned by exactly one user. The key ID is
// public; the secret is only ever compared, never listed back.
type AccessKey struct {
	ID          uint64 `json:"id" gorm:"primaryKey;autoIncrement"`
	AccessKeyID string `json:"access_key_id" gorm:"size:64;not null;uniqueIndex:uk_access_key_id"`
	Secret      string `json:"-" gorm:"size:255;not null"`
	UserID      uint64 `json:"-" gorm:"not null;index:idx_access_key_user"`
	CreatedAt   int64  `json:"created_at" gorm:"autoCreateTime:milli"`
}

// TableName returns the table name for GORM.
func (k *AccessKey) TableName() string {
	return "access_keys"
}
