package model

import (
	"github.com/tinyauth/microauth/pkg/policy"
)

// Policy is a named policy document attached to exactly one user or one
// group. Exactly one of UserID and GroupID is set; the document itself is
// stored as raw JSON and parsed on load.
type Policy struct {
	ID        uint64  `json:"id" gorm:"primaryKey;autoIncrement"`
	Name      string  `json:"name" gorm:"size:64;not null;index:idx_policy_name"`
	UserID    *uint64 `json:"-" gorm:"index:idx_policy_user"`
	GroupID   *uint64 `json:"-" gorm:"index:idx_policy_group"`
	Document  string  `json:"policy" gorm:"type:text;not null"`
	CreatedAt int64   `json:"created_at" gorm:"autoCreateTime:milli"`
	UpdatedAt int64   `json:"updated_at" gorm:"autoUpdateTime:milli"`
}

// TableName returns the table name for GORM.
func (p *Policy) TableName() string {
	return "policies"
}

// Parse decodes and validates the stored document.
func (p *Policy) Parse() (*policy.Document, error) {
	return policy.Parse([]byte(p.Document))
}

// PolicyList contains a list of policies.
type PolicyList struct {
	TotalCount int64     `json:"totalCount"`
	Items      []*Policy `json:"items"`
}
