package credentials

import (
	"context"
	"errors"
	"strings"

	"server/internal/infra"
	"server/internal/sqlinline"
)

// Provider names for tokens stored in the database. Database-held tokens
// override the environment so keys can be rotated without a redeploy.
const (
	ProviderReplicate = "replicate"
	ProviderDashScope = "dashscope"
	ProviderVision    = "vision"
	ProviderStripe    = "stripe"
)

type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// Token returns the stored token for a provider, or "" when none is set.
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

// TokenOr returns the stored token, falling back to the given value.
func (s *Store) TokenOr(ctx context.Context, provider, fallback string) string {
	token, err := s.Token(ctx, provider)
	if err != nil || token == "" {
		return fallback
	}
	return token
}

// SetToken stores or rotates a provider token.
func (s *Store) SetToken(ctx context.Context, provider, token string) error {
	provider = strings.TrimSpace(provider)
	token = strings.TrimSpace(token)
	if provider == "" {
		return errors.New("provider is required")
	}
	if token == "" {
		return errors.New("token is required")
	}
	_, err := s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token)
	return err
}
