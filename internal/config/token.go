package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ResolveToken returns the bearer token for the feed.
//
// Order: inline token, token_file contents, GITHUB_TOKEN environment variable.
// The credential is read exactly once at startup; there is no rotation.
func (c *Config) ResolveToken() (string, error) {
	if t := strings.TrimSpace(c.GitHub.Token); t != "" {
		return t, nil
	}
	if p := strings.TrimSpace(c.GitHub.TokenFile); p != "" {
		b, err := os.ReadFile(p)
		if err != nil {
			return "", fmt.Errorf("github.token_file: %w", err)
		}
		t := strings.TrimSpace(string(b))
		if t == "" {
			return "", fmt.Errorf("github.token_file: %s is empty", p)
		}
		return t, nil
	}
	if t := strings.TrimSpace(os.Getenv("GITHUB_TOKEN")); t != "" {
		return t, nil
	}
	return "", errors.New("no github token: set github.token, github.token_file or GITHUB_TOKEN")
}
