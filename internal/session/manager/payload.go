package manager

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/bwmarrin/snowflake"
)

// payload is the stored form of a Session. The user id is a string so that
// 64-bit ids survive decoders that read numbers as float64.
type payload struct {
	User   string         `json:"user,omitempty"`
	Values map[string]any `json:"values,omitempty"`
}

func encodePayload(s *Session) (string, error) {
	p := payload{Values: s.Values}
	if s.UserID > 0 {
		p.User = s.UserID.String()
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode session payload: %w", err)
	}
	return string(raw), nil
}

func decodePayload(data string, s *Session) error {
	var p payload
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return fmt.Errorf("decode session payload: %w", err)
	}
	s.UserID = 0
	if p.User != "" {
		id, err := strconv.ParseInt(p.User, 10, 64)
		if err != nil {
			return fmt.Errorf("decode session user: %w", err)
		}
		s.UserID = snowflake.ID(id)
	}
	s.Values = p.Values
	if s.Values == nil {
		s.Values = map[string]any{}
	}
	return nil
}
