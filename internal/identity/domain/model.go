// Package domain contains the identity types shared by the session and admin layers.
package domain

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Reserved identities. Neither can be deleted.
const (
	RootID  snowflake.ID = 1
	GuestID snowflake.ID = 2
)

// User is a person (or the anonymous guest) known to the system.
type User struct {
	ID        snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Username  string       `gorm:"type:text;not null;uniqueIndex" json:"username"`
	NameShort string       `gorm:"column:name_short;type:text" json:"name_short"`
	NameFull  string       `gorm:"column:name_full;type:text" json:"name_full"`
	Image     string       `gorm:"type:text" json:"image,omitempty"`
	Deleted   bool         `gorm:"not null;index" json:"deleted"`
	CreatedAt time.Time    `gorm:"not null;autoCreateTime:false" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;autoUpdateTime:false" json:"updated_at"`

	purged bool
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// IsGuest reports whether u is the anonymous identity.
func (u *User) IsGuest() bool {
	return u != nil && u.ID == GuestID
}

// IsReserved reports whether u is one of the undeletable identities.
func (u *User) IsReserved() bool {
	return u != nil && (u.ID == GuestID || u.ID == RootID)
}

// VisibleIdent is the label shown to other users: full name, else short name, else "User #<id>".
func (u *User) VisibleIdent() string {
	if u == nil {
		return ""
	}
	if u.NameFull != "" {
		return u.NameFull
	}
	if u.NameShort != "" {
		return u.NameShort
	}
	return fmt.Sprintf("User #%d", u.ID)
}

// Lifecycle derives the current lifecycle state.
func (u *User) Lifecycle() Lifecycle {
	switch {
	case u == nil:
		return LifecycleUnsaved
	case u.purged:
		return LifecyclePurged
	case u.ID == 0:
		return LifecycleUnsaved
	case u.Deleted:
		return LifecycleSoftDeleted
	default:
		return LifecycleActive
	}
}

// MarkPurged clears the identifier after the row and everything it owned were removed.
func (u *User) MarkPurged() {
	u.ID = 0
	u.purged = true
}

// EmptyOrDeleted reports whether u carries no usable identity.
func EmptyOrDeleted(u *User) bool {
	return u == nil || u.ID == 0 || u.Deleted || u.purged
}

// Preference is one stored value of a user's per-component key/value settings.
type Preference struct {
	ID        snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	UserID    snowflake.ID `gorm:"column:user_id;not null;uniqueIndex:ux_user_preferences_key,priority:1"`
	Component string       `gorm:"type:varchar(64);not null;uniqueIndex:ux_user_preferences_key,priority:2"`
	Key       string       `gorm:"column:pref_key;type:varchar(128);not null;uniqueIndex:ux_user_preferences_key,priority:3"`
	Value     string       `gorm:"type:text;not null"`
	CreatedAt time.Time    `gorm:"not null;autoCreateTime:false"`
	UpdatedAt time.Time    `gorm:"not null;autoUpdateTime:false"`
}

// TableName sets the database table name.
func (Preference) TableName() string { return "user_preferences" }
