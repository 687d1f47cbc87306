// Package remote ships backup files off the local disk.
package remote

import (
	"context"
	"errors"
	"fmt"
	"os"
)

var (
	// ErrInvalidToken is returned when the remote rejects the credentials.
	ErrInvalidToken = errors.New("invalid token")
	// ErrChatNotFound is returned when the destination chat does not exist
	// or never talked to the bot.
	ErrChatNotFound = errors.New("chat not found")
	// ErrAPI is returned for any other remote failure.
	ErrAPI = errors.New("remote API error")
)

// Transport sends a file to a remote destination.
type Transport interface {
	// Name identifies the transport in logs.
	Name() string
	// Send uploads the file at path.
	Send(ctx context.Context, path string) error
}

// statFile returns the file info of path, requiring a regular file.
func statFile(path string) (os.FileInfo, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("backup file: %w", err)
	}
	if !fi.Mode().IsRegular() {
		return nil, fmt.Errorf("backup file %s is not a regular file", path)
	}
	return fi, nil
}
