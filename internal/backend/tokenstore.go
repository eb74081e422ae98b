// ==============================================================================
// FILE TOKEN STORE - internal/backend/tokenstore.go
// ==============================================================================
package backend

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"cfdclient/pkg/errors"
)

const defaultTokenFileName = "auth_token.json"

// storedToken is the on-disk credential shape.
type storedToken struct {
	Token     string `json:"token"`
	IssuedFor string `json:"issued_for"`
}

// FileTokenStore keeps the single credential in a JSON file, the local
// storage of a headless client. Reads and writes are serialized; the file is
// written owner-only.
type FileTokenStore struct {
	mu   sync.Mutex
	path string
}

// NewFileTokenStore builds a store at the given path. An empty path falls
// back to auth_token.json under the user cache directory.
func NewFileTokenStore(path string) (*FileTokenStore, error) {
	if path == "" {
		cacheDir, err := os.UserCacheDir()
		if err != nil {
			return nil, errors.Wrap(err, "resolve cache dir")
		}
		dir := filepath.Join(cacheDir, "cfdclient")
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, errors.Wrap(err, "create token dir")
		}
		path = filepath.Join(dir, defaultTokenFileName)
	}
	return &FileTokenStore{path: path}, nil
}

// Load returns the stored credential, or ErrCredentialNotFound when none
// exists.
func (s *FileTokenStore) Load() (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", "", errors.ErrCredentialNotFound
		}
		return "", "", errors.Wrap(err, "read token file")
	}

	var stored storedToken
	if err := json.Unmarshal(data, &stored); err != nil {
		// Corrupt file: treat as absent rather than wedging the session.
		return "", "", errors.ErrCredentialNotFound
	}
	if stored.Token == "" {
		return "", "", errors.ErrCredentialNotFound
	}
	return stored.Token, stored.IssuedFor, nil
}

// Save replaces the stored credential.
func (s *FileTokenStore) Save(token, issuedFor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(storedToken{Token: token, IssuedFor: issuedFor})
	if err != nil {
		return errors.Wrap(err, "marshal token")
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return errors.Wrap(err, "write token file")
	}
	return nil
}

// Clear removes the stored credential. Clearing an absent credential is not
// an error.
func (s *FileTokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove token file")
	}
	return nil
}

var _ TokenStore = (*FileTokenStore)(nil)
