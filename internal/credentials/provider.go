// Package credentials supplies the bearer tokens used against the upstream
// portals.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrAuthFailure is returned when no usable token can be produced.
var ErrAuthFailure = errors.New("authentication failed")

// TokenSource names where one token comes from. File wins over Token when set,
// so an external login job can rotate the file while the process runs.
type TokenSource struct {
	Token string
	File  string
}

func (s TokenSource) acquire(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	token := s.Token
	if s.File != "" {
		data, err := os.ReadFile(s.File)
		if err != nil {
			return "", fmt.Errorf("%w: read %s token file: %v", ErrAuthFailure, name, err)
		}
		token = string(data)
	}

	token = strings.TrimSpace(token)
	token = strings.TrimPrefix(token, "Bearer ")
	if token == "" {
		return "", fmt.Errorf("%w: %s token is empty", ErrAuthFailure, name)
	}
	return token, nil
}

// StaticProvider hands out configured tokens. Every acquire re-reads the
// token file, if any.
type StaticProvider struct {
	apex      TokenSource
	loadEntry TokenSource
}

// NewStaticProvider creates a provider for the two upstream token sources.
func NewStaticProvider(apex, loadEntry TokenSource) *StaticProvider {
	return &StaticProvider{apex: apex, loadEntry: loadEntry}
}

// AcquireApexToken returns the token for the PO and ancillary source.
func (p *StaticProvider) AcquireApexToken(ctx context.Context) (string, error) {
	return p.apex.acquire(ctx, "apex")
}

// AcquireLoadEntryToken returns the token for the truck and wallet source.
func (p *StaticProvider) AcquireLoadEntryToken(ctx context.Context) (string, error) {
	return p.loadEntry.acquire(ctx, "load-entry")
}

// Close is a no-op; there is no login session to tear down.
func (p *StaticProvider) Close() error {
	return nil
}
