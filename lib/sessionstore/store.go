// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sessionstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/typbot/lib/ref"
	"github.com/bureau-foundation/typbot/lib/secret"
)

// ErrNotFound is returned (wrapped) by Load when no session record
// exists yet. It matches fs.ErrNotExist under errors.Is.
var ErrNotFound = fmt.Errorf("session record not found: %w", fs.ErrNotExist)

// Credentials is the login artifact needed to restore a session
// without a password.
type Credentials struct {
	HomeserverURL string     `json:"homeserver_url"`
	UserID        ref.UserID `json:"user_id"`
	AccessToken   string     `json:"access_token"`
	DeviceID      string     `json:"device_id,omitempty"`
}

// Session is a loaded session record.
type Session struct {
	Credentials Credentials
	// Cursor is the last persisted /sync token, or empty if no sync
	// has completed since login.
	Cursor string
}

// record is the on-disk shape. Credentials stay raw so that cursor
// updates never re-encode them.
type record struct {
	Credentials json.RawMessage `json:"credentials"`
	Cursor      string          `json:"cursor,omitempty"`
}

// Store reads and writes one session file.
type Store struct {
	path string
}

// New returns a Store for the session file at path. The file is not
// touched until Load, Create or PersistCursor is called.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the session file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the session record. Returns an error matching ErrNotFound
// (and fs.ErrNotExist) when the file does not exist.
func (s *Store) Load() (*Session, error) {
	stored, err := s.read()
	if err != nil {
		return nil, err
	}

	var credentials Credentials
	err = json.Unmarshal(stored.Credentials, &credentials)
	secret.Zero(stored.Credentials)
	if err != nil {
		return nil, fmt.Errorf("parsing credentials in %s: %w", s.path, err)
	}
	if credentials.AccessToken == "" {
		return nil, fmt.Errorf("session file %s has empty access token", s.path)
	}
	if credentials.UserID.IsZero() {
		return nil, fmt.Errorf("session file %s has no user_id", s.path)
	}

	return &Session{Credentials: credentials, Cursor: stored.Cursor}, nil
}

// Create writes a fresh record holding credentials and no cursor,
// replacing any existing file.
func (s *Store) Create(credentials Credentials) error {
	if credentials.AccessToken == "" {
		return fmt.Errorf("refusing to store credentials without an access token")
	}
	encoded, err := json.Marshal(credentials)
	if err != nil {
		return fmt.Errorf("marshaling credentials: %w", err)
	}
	defer secret.Zero(encoded)
	return s.write(record{Credentials: encoded})
}

// PersistCursor replaces the cursor in the stored record. The file is
// re-read on every call; the credentials are written back exactly as
// they were read.
func (s *Store) PersistCursor(cursor string) error {
	stored, err := s.read()
	if err != nil {
		return err
	}
	defer secret.Zero(stored.Credentials)

	stored.Cursor = cursor
	return s.write(stored)
}

func (s *Store) read() (record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return record{}, fmt.Errorf("reading session from %s: %w", s.path, ErrNotFound)
		}
		return record{}, fmt.Errorf("reading session from %s: %w", s.path, err)
	}
	defer secret.Zero(data)

	var stored record
	if err := json.Unmarshal(data, &stored); err != nil {
		return record{}, fmt.Errorf("parsing session from %s: %w", s.path, err)
	}
	if len(stored.Credentials) == 0 || bytes.Equal(stored.Credentials, []byte("null")) {
		return record{}, fmt.Errorf("session file %s has no credentials", s.path)
	}
	// The raw message aliases data, which is zeroed on return.
	stored.Credentials = bytes.Clone(stored.Credentials)
	return stored, nil
}

// write atomically replaces the session file with stored.
func (s *Store) write(stored record) error {
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	data = append(data, '\n')
	defer secret.Zero(data)

	temporaryPath := s.path + ".tmp"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating temporary session file: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary session file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary session file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary session file: %w", err)
	}

	if err := os.Rename(temporaryPath, s.path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming session file into place: %w", err)
	}

	// Make the rename durable. Some filesystems reject fsync on a
	// directory; the rename itself has already succeeded by then.
	parentDirectory, err := os.Open(filepath.Dir(s.path))
	if err == nil {
		parentDirectory.Sync()
		parentDirectory.Close()
	}
	return nil
}
