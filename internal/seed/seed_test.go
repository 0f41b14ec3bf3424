package seed

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/identity/internal/clock"
	identitydomain "github.com/smallbiznis/identity/internal/identity/domain"
	"github.com/smallbiznis/identity/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureReservedUsersIsIdempotent(t *testing.T) {
	ctx := context.Background()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&identitydomain.User{}))
	clk := clock.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	require.NoError(t, EnsureReservedUsers(ctx, conn, clk))
	require.NoError(t, conn.Model(&identitydomain.User{}).Where("id = ?", identitydomain.GuestID).Update("name_full", "Visitor").Error)
	require.NoError(t, EnsureReservedUsers(ctx, conn, clk))

	var users []identitydomain.User
	require.NoError(t, conn.Order("id").Find(&users).Error)
	require.Len(t, users, 2)
	assert.Equal(t, "root", users[0].Username)
	assert.Equal(t, identitydomain.GuestID, users[1].ID)
	assert.Equal(t, "Visitor", users[1].NameFull)
}
