package store

import (
	"encoding/base64"
	"fmt"
	"sync"
)

// Credentials is the long-lived application credential granted by the
// device owner: the app token proves the application was authorized, the
// track id identifies the authorization request it came from. There is at
// most one valid credential per installation.
type Credentials struct {
	AppToken string `json:"app_token"` // base64 at rest
	TrackID  string `json:"track_id"`
}

// CredentialStore persists the application credential across restarts.
// The token is kept base64-encoded on disk and decoded on access.
type CredentialStore struct {
	mu       sync.RWMutex
	filePath string
	creds    *Credentials // decoded form, nil when absent
}

// NewCredentialStore creates a store backed by filePath.
func NewCredentialStore(filePath string) *CredentialStore {
	return &CredentialStore{filePath: filePath}
}

// Load reads the credential from disk. A missing file leaves the store
// empty without error.
func (s *CredentialStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var onDisk Credentials
	found, err := LoadJSON(s.filePath, &onDisk)
	if err != nil {
		return err
	}
	if !found || onDisk.AppToken == "" || onDisk.TrackID == "" {
		s.creds = nil
		return nil
	}

	token, err := base64.StdEncoding.DecodeString(onDisk.AppToken)
	if err != nil {
		return fmt.Errorf("failed to decode stored app token: %w", err)
	}
	s.creds = &Credentials{AppToken: string(token), TrackID: onDisk.TrackID}
	return nil
}

// Save stores appToken and trackID durably and makes them the current
// credential.
func (s *CredentialStore) Save(appToken, trackID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	onDisk := Credentials{
		AppToken: base64.StdEncoding.EncodeToString([]byte(appToken)),
		TrackID:  trackID,
	}
	if err := SaveJSON(s.filePath, &onDisk); err != nil {
		return err
	}
	s.creds = &Credentials{AppToken: appToken, TrackID: trackID}
	return nil
}

// Clear forgets the credential in memory and on disk. Called when the
// device reports the token invalid or the authorization track ends in a
// terminal failure.
func (s *CredentialStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.creds = nil
	return Remove(s.filePath)
}

// Get returns a copy of the current credential, or nil when absent.
func (s *CredentialStore) Get() *Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.creds == nil {
		return nil
	}
	c := *s.creds
	return &c
}
