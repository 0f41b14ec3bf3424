package manager

import "github.com/bwmarrin/snowflake"

// Session is the interactive session of one request.
type Session struct {
	ID     string
	UserID snowflake.ID
	Values map[string]any

	isNew     bool
	destroyed bool
}

func newSession(id string) *Session {
	return &Session{ID: id, Values: map[string]any{}, isNew: true}
}

// IsNew reports whether the client has not been handed this session's cookie yet.
func (s *Session) IsNew() bool { return s.isNew }

// Destroyed reports whether the session was invalidated during this request.
func (s *Session) Destroyed() bool { return s.destroyed }

func (s *Session) Get(key string) (any, bool) {
	v, ok := s.Values[key]
	return v, ok
}

func (s *Session) Set(key string, value any) {
	if s.Values == nil {
		s.Values = map[string]any{}
	}
	s.Values[key] = value
}

func (s *Session) Delete(key string) {
	delete(s.Values, key)
}

// Clear drops the bound user and every value.
func (s *Session) Clear() {
	s.UserID = 0
	s.Values = map[string]any{}
}
