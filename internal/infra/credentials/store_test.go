package credentials

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type stubExecutor struct {
	token   string
	err     error
	queried []any
	exec    struct {
		query string
		args  []any
	}
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.exec.query = query
	s.exec.args = args
	return pgconn.CommandTag{}, s.err
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	s.queried = args
	return stubRow{token: s.token, err: s.err}
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

type stubRow struct {
	token string
	err   error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	ptr, ok := dest[0].(*string)
	if !ok {
		return errors.New("invalid dest")
	}
	*ptr = r.token
	return nil
}

func TestToken(t *testing.T) {
	exec := &stubExecutor{token: " sk-test "}
	key, err := NewStore(exec).Token(context.Background(), ProviderOpenAI)
	if err != nil {
		t.Fatalf("Token error: %v", err)
	}
	if key != "sk-test" {
		t.Fatalf("expected sk-test, got %q", key)
	}
	if len(exec.queried) != 1 || exec.queried[0] != ProviderOpenAI {
		t.Fatalf("unexpected query args %v", exec.queried)
	}
}

func TestTokenNoRows(t *testing.T) {
	key, err := NewStore(&stubExecutor{err: pgx.ErrNoRows}).Token(context.Background(), ProviderArk)
	if err != nil {
		t.Fatalf("Token error: %v", err)
	}
	if key != "" {
		t.Fatalf("expected empty key, got %q", key)
	}
}

func TestResolvePrefersExplicitKey(t *testing.T) {
	exec := &stubExecutor{token: "stored"}
	key, err := NewStore(exec).Resolve(context.Background(), ProviderArk, " env-key ")
	if err != nil || key != "env-key" {
		t.Fatalf("Resolve = %q, %v", key, err)
	}
	if exec.queried != nil {
		t.Fatal("store should not be queried when an explicit key is given")
	}
	key, err = NewStore(exec).Resolve(context.Background(), ProviderArk, "")
	if err != nil || key != "stored" {
		t.Fatalf("Resolve fallback = %q, %v", key, err)
	}
}

func TestSetToken(t *testing.T) {
	exec := &stubExecutor{}
	if err := NewStore(exec).SetToken(context.Background(), "OpenAI", "secret"); err != nil {
		t.Fatalf("SetToken error: %v", err)
	}
	if len(exec.exec.args) != 3 {
		t.Fatalf("expected 3 args, got %d", len(exec.exec.args))
	}
	if v, ok := exec.exec.args[0].(string); !ok || v != ProviderOpenAI {
		t.Fatalf("expected provider openai, got %v", exec.exec.args[0])
	}
	if v, ok := exec.exec.args[1].(string); !ok || v != "secret" {
		t.Fatalf("expected secret argument, got %T %v", exec.exec.args[1], exec.exec.args[1])
	}
}

func TestSetTokenValidation(t *testing.T) {
	store := NewStore(&stubExecutor{})
	if err := store.SetToken(context.Background(), ProviderArk, " "); err == nil {
		t.Fatal("expected error for empty key")
	}
	if err := store.SetToken(context.Background(), "gemini", "k"); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
