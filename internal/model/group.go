package model

// Group is a named collection of users. Membership is a plain many-to-many
// relation; deleting a group never deletes its users.
type Group struct {
	ID        uint64 `json:"id" gorm:"primaryKey;autoIncrement"`
	Name      string `json:"name" gorm:"size:64;not null;uniqueIndex:uk_group_name"`
	CreatedAt int64  `json:"created_at" gorm:"autoCreateTime:milli"`
	UpdatedAt int64  `json:"updated_at" gorm:"autoUpdateTime:milli"`

	Users    []*User  `json:"-" gorm:"many2many:user_groups"`
	Policies []Policy `json:"-" gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE"`
}

// GroupList contains a list of groups and pagination info.
type GroupList struct {
	TotalCount int64    `json:"totalCount"`
	Items      []*Group `json:"items"`
}

// TableName returns the table name for GORM.
func (g *Group) TableName() string {
	return "groups"
}
