// Package domain contains the session record and the handler contract.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Record is one row of the sessions table. Interactive sessions and persistent login
// tokens share the table and are told apart by Persistent.
type Record struct {
	SessionID   string        `gorm:"column:session_id;primaryKey;type:varchar(128)"`
	Data        string        `gorm:"type:text;not null"`
	UserID      *snowflake.ID `gorm:"column:user_id;index"`
	ClientIP    string        `gorm:"column:client_ip;type:varchar(64)"`
	RequestURI  string        `gorm:"column:request_uri;type:text"`
	ScriptPath  string        `gorm:"column:script_path;type:text"`
	Persistent  bool          `gorm:"not null"`
	Invalidated bool          `gorm:"not null"`
	CreatedAt   time.Time     `gorm:"not null;autoCreateTime:false"`
	UpdatedAt   time.Time     `gorm:"not null;autoUpdateTime:false"`
	ExpiresAt   time.Time     `gorm:"not null;index"`
}

// TableName sets the database table name.
func (Record) TableName() string { return "sessions" }

// HasUser reports whether the record is bound to a real user.
func (r *Record) HasUser() bool {
	return r != nil && r.UserID != nil && *r.UserID > 0
}
