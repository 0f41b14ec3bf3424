package resolver

import (
	"context"

	"github.com/bwmarrin/snowflake"
	identitydomain "github.com/smallbiznis/identity/internal/identity/domain"
	"github.com/smallbiznis/identity/internal/identity/preference"
	"github.com/smallbiznis/identity/internal/session/cookie"
	"github.com/smallbiznis/identity/internal/session/domain"
	"github.com/smallbiznis/identity/internal/session/manager"
)

// Caller is the identity a request acts as, bound to that request's session.
type Caller struct {
	User     *identitydomain.User
	LoggedIn bool
	// Strategy names how the caller was resolved.
	Strategy string
	Prefs    *preference.Cache

	session  *manager.Session
	request  domain.Request
	jar      cookie.Jar
	resolver *Resolver
}

func (c *Caller) ID() snowflake.ID {
	if c.User == nil {
		return 0
	}
	return c.User.ID
}

func (c *Caller) Session() *manager.Session { return c.session }

// Login switches the caller to userID and fires the login hooks.
// Unknown and deleted users are refused before the session is touched.
func (c *Caller) Login(ctx context.Context, userID snowflake.ID, persistent bool) error {
	user, err := c.resolver.users.Load(ctx, userID)
	if err != nil {
		return err
	}
	if user.Deleted {
		return identitydomain.ErrUserNotFound
	}
	if err := c.resolver.Login(ctx, c.session, c.jar, userID, persistent); err != nil {
		return err
	}

	c.User = user
	c.LoggedIn = isLoggedIn(user.ID)
	c.Prefs = c.resolver.prefs.For(user.ID)
	c.resolver.hooks.Login(ctx, user)
	return nil
}

// Logout ends the caller's session and falls back to the guest. It does nothing for
// callers that are not logged in.
func (c *Caller) Logout(ctx context.Context, everywhere bool) error {
	if !c.LoggedIn {
		return nil
	}
	user := c.User
	err := c.resolver.Logout(ctx, c.session, c.request, c.jar, everywhere)
	c.resolver.hooks.Logout(ctx, user)

	guest := c.resolver.loadOrGuest(ctx, identitydomain.GuestID)
	c.User = guest
	c.LoggedIn = false
	c.Strategy = StrategyGuest
	c.Prefs = c.resolver.prefs.For(guest.ID)
	return err
}
