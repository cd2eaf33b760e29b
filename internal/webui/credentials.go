package webui

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Credential is a bearer token plus a label safe to log.
type Credential struct {
	Label string
	Token string
}

// CredentialProvider yields extra tokens for chat lookups. Providers are
// re-queried on every lookup so file-backed token lists can change at runtime.
type CredentialProvider interface {
	Credentials(ctx context.Context) ([]Credential, error)
}

// StaticCredentials is a fixed token list.
type StaticCredentials []Credential

func (s StaticCredentials) Credentials(context.Context) ([]Credential, error) {
	return s, nil
}

// TokensToCredentials labels a plain token list by position.
func TokensToCredentials(prefix string, tokens []string) StaticCredentials {
	out := make(StaticCredentials, 0, len(tokens))
	for i, token := range tokens {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		out = append(out, Credential{Label: fmt.Sprintf("%s[%d]", prefix, i), Token: token})
	}
	return out
}

// UsersFile reads a JSON object mapping user names to API tokens.
// A missing file yields no credentials.
type UsersFile struct {
	Path string
}

func (u UsersFile) Credentials(context.Context) ([]Credential, error) {
	if u.Path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(u.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read users file %s: %w", u.Path, err)
	}

	var tokens map[string]string
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, fmt.Errorf("parse users file %s: %w", u.Path, err)
	}

	names := make([]string, 0, len(tokens))
	for name := range tokens {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Credential, 0, len(names))
	for _, name := range names {
		token := strings.TrimSpace(tokens[name])
		if token == "" {
			continue
		}
		out = append(out, Credential{Label: "user:" + name, Token: token})
	}
	return out, nil
}
