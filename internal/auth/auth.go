// Package auth holds the OAuth plumbing used by the Google calendar backend:
// token persistence and the interactive consent flow.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"golang.org/x/oauth2"
)

// TokenStore is an interface for saving and loading OAuth tokens.
type TokenStore interface {
	SaveToken(token *oauth2.Token) error
	LoadToken() (*oauth2.Token, error)
}

// FileTokenStore is a file-based implementation of token storage.
type FileTokenStore struct {
	Path string
}

// NewFileTokenStore creates a new FileTokenStore with the given path.
func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{Path: path}
}

// SaveToken saves an OAuth token to the file at store.Path.
func (store *FileTokenStore) SaveToken(token *oauth2.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	if err := os.WriteFile(store.Path, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}

	return nil
}

// LoadToken loads an OAuth token from the file at store.Path.
// Returns nil, nil if the file does not exist (no error).
func (store *FileTokenStore) LoadToken() (*oauth2.Token, error) {
	data, err := os.ReadFile(store.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}

	return &token, nil
}

// autoSaveTokenSource wraps an oauth2.TokenSource and automatically saves refreshed tokens.
type autoSaveTokenSource struct {
	source     oauth2.TokenSource
	tokenStore TokenStore
	lastToken  *oauth2.Token
}

// Token implements oauth2.TokenSource and saves the token if it was refreshed.
func (a *autoSaveTokenSource) Token() (*oauth2.Token, error) {
	token, err := a.source.Token()
	if err != nil {
		return nil, err
	}

	// Check if the token was refreshed by comparing access tokens
	if a.lastToken == nil || a.lastToken.AccessToken != token.AccessToken {
		if err := a.tokenStore.SaveToken(token); err != nil {
			return nil, fmt.Errorf("failed to save refreshed token: %w", err)
		}
		a.lastToken = token
	}

	return token, nil
}

// Flow performs OAuth 2.0 authorization against a stored token, falling back
// to the interactive consent flow on first run. Reader and Out default to
// stdin/stdout and exist so tests can script the exchange.
type Flow struct {
	Config *oauth2.Config
	Tokens TokenStore
	Reader io.Reader
	Out    io.Writer
}

// HasToken reports whether a token is already stored, without prompting.
func (f *Flow) HasToken() (bool, error) {
	token, err := f.Tokens.LoadToken()
	if err != nil {
		return false, err
	}
	return token != nil, nil
}

// Client returns an authenticated HTTP client. If no token is stored it walks
// the user through the interactive consent flow: this is the one user-facing
// prompt, and the resulting token is persisted so later calls resolve
// silently. Refreshed tokens are saved automatically.
func (f *Flow) Client(ctx context.Context) (*http.Client, error) {
	token, err := f.Tokens.LoadToken()
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}

	if token == nil {
		token, err = f.consent(ctx)
		if err != nil {
			return nil, err
		}
	}

	tokenSource := f.Config.TokenSource(ctx, token)

	autoSaveSource := &autoSaveTokenSource{
		source:     oauth2.ReuseTokenSource(token, tokenSource),
		tokenStore: f.Tokens,
		lastToken:  token,
	}

	return oauth2.NewClient(ctx, autoSaveSource), nil
}

func (f *Flow) consent(ctx context.Context) (*oauth2.Token, error) {
	in := f.Reader
	if in == nil {
		in = os.Stdin
	}
	out := f.Out
	if out == nil {
		out = os.Stdout
	}

	authURL := f.Config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)

	fmt.Fprintln(out, "Please visit the following URL to authorize the application:")
	fmt.Fprintln(out, authURL)
	fmt.Fprint(out, "Enter the authorization code: ")

	var code string
	if _, err := fmt.Fscanln(in, &code); err != nil {
		return nil, fmt.Errorf("failed to read authorization code: %w", err)
	}

	token, err := f.Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	if err := f.Tokens.SaveToken(token); err != nil {
		return nil, fmt.Errorf("failed to save token: %w", err)
	}

	return token, nil
}
