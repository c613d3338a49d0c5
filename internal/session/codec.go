package session

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/bowerhall/partscout/pkg/partsdb"
)

// Encode renders a session as the opaque state token handed to clients that
// keep their own state.
func Encode(s *Session) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func Decode(token string) (*Session, error) {
	data, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("invalid session state: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("invalid session state: %w", err)
	}

	if s.FetchCache == nil {
		s.FetchCache = make(map[string]*partsdb.Bundle)
	}
	return &s, nil
}
