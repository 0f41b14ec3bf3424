// Package seed creates the identities every installation needs.
package seed

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/identity/internal/clock"
	identitydomain "github.com/smallbiznis/identity/internal/identity/domain"
	"gorm.io/gorm"
)

type reservedUser struct {
	id        snowflake.ID
	username  string
	nameShort string
	nameFull  string
}

var reservedUsers = []reservedUser{
	{id: identitydomain.RootID, username: "root", nameShort: "root", nameFull: "Administrator"},
	{id: identitydomain.GuestID, username: "guest", nameShort: "guest", nameFull: "Guest"},
}

// EnsureReservedUsers creates the root and guest users when missing. Existing rows are left alone.
func EnsureReservedUsers(ctx context.Context, db *gorm.DB, clk clock.Clock) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, r := range reservedUsers {
			if err := ensureUserTx(ctx, tx, clk, r); err != nil {
				return err
			}
		}
		return nil
	})
}

func ensureUserTx(ctx context.Context, tx *gorm.DB, clk clock.Clock, r reservedUser) error {
	var existing identitydomain.User
	err := tx.WithContext(ctx).Where("id = ?", r.id).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	now := clk.Now()
	return tx.WithContext(ctx).Create(&identitydomain.User{
		ID:        r.id,
		Username:  r.username,
		NameShort: r.nameShort,
		NameFull:  r.nameFull,
		CreatedAt: now,
		UpdatedAt: now,
	}).Error
}
