// Package googleauth loads Google API credentials and maps googleapi errors
// onto the pipeline's failure kinds.
package googleauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/samvad-hq/samvad-blog-pipeline/internal/domain"
)

// ServiceAccount returns client options for a service account key file.
func ServiceAccount(credentialsFile string, scopes ...string) ([]option.ClientOption, error) {
	if strings.TrimSpace(credentialsFile) == "" {
		return nil, errors.New("service account credentials file is required")
	}
	if _, err := os.Stat(credentialsFile); err != nil {
		return nil, fmt.Errorf("service account credentials: %w", err)
	}
	return []option.ClientOption{
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(scopes...),
	}, nil
}

// OAuthConfig reads an installed-app client secret file.
func OAuthConfig(credentialsFile string, scopes ...string) (*oauth2.Config, error) {
	raw, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth client secret: %w", err)
	}
	cfg, err := google.ConfigFromJSON(raw, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse oauth client secret: %w", err)
	}
	return cfg, nil
}

// TokenFileClient returns an HTTP client authorised with the user token in
// tokenFile. Refreshed tokens are written back to the same file.
func TokenFileClient(ctx context.Context, credentialsFile, tokenFile string, scopes ...string) (*http.Client, error) {
	cfg, err := OAuthConfig(credentialsFile, scopes...)
	if err != nil {
		return nil, err
	}
	tok, err := LoadToken(tokenFile)
	if err != nil {
		return nil, err
	}
	src := &savingSource{
		base: cfg.TokenSource(ctx, tok),
		path: tokenFile,
		last: tok.AccessToken,
	}
	return oauth2.NewClient(ctx, src), nil
}

// LoadToken reads a JSON-encoded oauth2 token.
func LoadToken(path string) (*oauth2.Token, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read oauth token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("decode oauth token: %w", err)
	}
	return &tok, nil
}

// SaveToken writes tok to path with owner-only permissions.
func SaveToken(path string, tok *oauth2.Token) error {
	raw, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("encode oauth token: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write oauth token: %w", err)
	}
	return nil
}

type savingSource struct {
	mu   sync.Mutex
	base oauth2.TokenSource
	path string
	last string
}

func (s *savingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, domain.Auth("refresh oauth token", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		// Best effort; the in-memory token is still valid.
		_ = SaveToken(s.path, tok)
	}
	return tok, nil
}

// Classify maps a Google API error onto the failure taxonomy. Errors without
// an HTTP status are treated as transient network failures.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if domain.KindOf(err) != domain.KindUnknown {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return domain.ClassifyStatus(op, gerr.Code, []byte(gerr.Message))
	}
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		return domain.Auth(op, err)
	}
	return domain.Transient(op, err)
}
