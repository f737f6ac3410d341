// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/typbot/lib/config"
	"github.com/bureau-foundation/typbot/lib/secret"
	"github.com/bureau-foundation/typbot/lib/sessionstore"
	"github.com/bureau-foundation/typbot/messaging"
)

// openSession restores the session from the record in store, or logs
// in with the configured credentials and creates the record when none
// exists. The returned cursor is empty after a fresh login.
func openSession(ctx context.Context, client *messaging.Client, store *sessionstore.Store, cfg *config.Config, logger *slog.Logger) (*messaging.DirectSession, string, error) {
	stored, err := store.Load()
	if errors.Is(err, sessionstore.ErrNotFound) {
		session, err := login(ctx, client, store, cfg)
		if err != nil {
			return nil, "", err
		}
		return session, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("loading session record: %w", err)
	}

	credentials := stored.Credentials
	if credentials.HomeserverURL != "" && credentials.HomeserverURL != client.HomeserverURL() {
		logger.Warn("session record was created for a different homeserver",
			"record_homeserver", credentials.HomeserverURL,
			"homeserver", client.HomeserverURL(),
		)
	}

	session, err := client.SessionFromToken(credentials.UserID, credentials.DeviceID, credentials.AccessToken)
	if err != nil {
		return nil, "", err
	}

	userID, err := session.WhoAmI(ctx)
	if err != nil {
		session.Close()
		return nil, "", fmt.Errorf("validating stored session from %s: %w", store.Path(), err)
	}
	if userID != credentials.UserID {
		session.Close()
		return nil, "", fmt.Errorf("stored session belongs to %s but the homeserver reports %s", credentials.UserID, userID)
	}

	logger.Info("session restored",
		"user_id", userID,
		"device_id", credentials.DeviceID,
		"resuming", stored.Cursor != "",
	)
	return session, stored.Cursor, nil
}

func login(ctx context.Context, client *messaging.Client, store *sessionstore.Store, cfg *config.Config) (*messaging.DirectSession, error) {
	if !cfg.HasCredentials() {
		return nil, fmt.Errorf("no session record at %s and USERNAME/PASSWORD are not set", store.Path())
	}

	password, err := readPassword(cfg)
	if err != nil {
		return nil, err
	}
	defer password.Close()

	session, err := client.Login(ctx, cfg.Username, password, cfg.Username)
	if err != nil {
		return nil, err
	}

	err = store.Create(sessionstore.Credentials{
		HomeserverURL: client.HomeserverURL(),
		UserID:        session.UserID(),
		AccessToken:   session.AccessToken(),
		DeviceID:      session.DeviceID(),
	})
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("creating session record: %w", err)
	}
	return session, nil
}

// readPassword moves the configured password into a protected buffer.
// PASSWORD_FILE wins over PASSWORD. The plain copy in cfg is cleared.
func readPassword(cfg *config.Config) (*secret.Buffer, error) {
	if cfg.PasswordFile != "" {
		password, err := secret.ReadFile(cfg.PasswordFile)
		if err != nil {
			return nil, fmt.Errorf("reading PASSWORD_FILE: %w", err)
		}
		cfg.Password = ""
		return password, nil
	}
	password, err := secret.NewFromString(cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("protecting password: %w", err)
	}
	cfg.Password = ""
	return password, nil
}
