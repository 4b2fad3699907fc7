// Package credentials reads and writes provider API keys kept in the
// integration_tokens table, used when a key is not present in the environment.
package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"imagebot/internal/infra"
	"imagebot/internal/sqlinline"
)

const (
	ProviderOpenAI = "openai"
	ProviderArk    = "ark"
)

// Known lists the providers whose keys can be stored.
var Known = []string{ProviderOpenAI, ProviderArk}

type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// Token returns the stored key for provider, or "" when none is stored.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

// Resolve prefers the explicit key and falls back to the stored one.
func (s *Store) Resolve(ctx context.Context, provider, explicit string) (string, error) {
	if key := strings.TrimSpace(explicit); key != "" {
		return key, nil
	}
	return s.Token(ctx, provider)
}

// SetToken stores key for provider, replacing any previous value.
func (s *Store) SetToken(ctx context.Context, provider, key string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if !isKnown(provider) {
		return fmt.Errorf("unknown provider %q", provider)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%s api key is required", provider)
	}
	return s.upsert(ctx, provider, key, nil)
}

func (s *Store) upsert(ctx context.Context, provider, token string, props map[string]any) error {
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw)
	return err
}

func isKnown(provider string) bool {
	for _, p := range Known {
		if p == provider {
			return true
		}
	}
	return false
}
