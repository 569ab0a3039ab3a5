// Command blogger-auth runs the one-time OAuth consent flow for the Blogger
// backend and stores the resulting token where the publisher expects it.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/blogger/v3"

	"github.com/samvad-hq/samvad-blog-pipeline/internal/config"
	"github.com/samvad-hq/samvad-blog-pipeline/pkg/googleauth"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "blogger auth failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.BloggerCredentialsFile == "" || cfg.BloggerTokenFile == "" {
		return errors.New("BLOGGER_CREDENTIALS_FILE and BLOGGER_TOKEN_FILE must be set")
	}

	oauthCfg, err := googleauth.OAuthConfig(cfg.BloggerCredentialsFile, blogger.BloggerScope)
	if err != nil {
		return err
	}
	if oauthCfg.RedirectURL == "" {
		oauthCfg.RedirectURL = "urn:ietf:wg:oauth:2.0:oob"
	}

	url := oauthCfg.AuthCodeURL("samvad", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Printf("Open this URL in a browser and approve access:\n\n%s\n\nPaste the authorization code: ", url)

	code, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && code == "" {
		return fmt.Errorf("read authorization code: %w", err)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return errors.New("empty authorization code")
	}

	tok, err := oauthCfg.Exchange(context.Background(), code)
	if err != nil {
		return fmt.Errorf("exchange authorization code: %w", err)
	}
	if tok.RefreshToken == "" {
		fmt.Fprintln(os.Stderr, "warning: no refresh token returned; revoke the app grant and retry")
	}
	if err := googleauth.SaveToken(cfg.BloggerTokenFile, tok); err != nil {
		return err
	}
	fmt.Printf("token saved to %s\n", cfg.BloggerTokenFile)
	return nil
}
