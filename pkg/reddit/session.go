package reddit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Web5design/MediaCrusher/pkg/crypto"
)

// Session is the authenticated state reused across requests.
type Session struct {
	Cookie  string `json:"cookie"`
	Modhash string `json:"modhash"`
}

// SessionStore persists the session encrypted at rest so restarts can skip
// the login round trip.
type SessionStore struct {
	path string
	key  string
}

// NewSessionStore creates a session store at path, sealed with key.
func NewSessionStore(path, key string) *SessionStore {
	return &SessionStore{path: path, key: key}
}

// Save seals and writes the session.
func (s *SessionStore) Save(session Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	sealed, err := crypto.Seal(data, s.key)
	if err != nil {
		return fmt.Errorf("seal session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	if err := os.WriteFile(s.path, sealed, 0600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// Load reads and opens the sealed session.
func (s *SessionStore) Load() (Session, error) {
	var session Session

	data, err := os.ReadFile(s.path)
	if err != nil {
		return session, fmt.Errorf("read session: %w", err)
	}
	plain, err := crypto.Open(data, s.key)
	if err != nil {
		return session, fmt.Errorf("open session: %w", err)
	}
	if err := json.Unmarshal(plain, &session); err != nil {
		return session, fmt.Errorf("unmarshal session: %w", err)
	}
	return session, nil
}

// Clear removes the cached session file.
func (s *SessionStore) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
