package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"imagebot/internal/adapter/repo"
	"imagebot/internal/domain"
	"imagebot/internal/infra"
)

const usage = `usage: ledgerctl <command> [flags]

commands:
  open     -chat ID [-locale ru] [-grant N]   register a chat and print its account
  credit   -account ID -amount N [-note TEXT] add tokens to an account
  balance  -account ID                        print the current balance
  entries  -account ID [-limit N]             print recent journal rows
  migrate                                     apply the embedded schema
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}
	logger := infra.NewLogger("cli").With().Str("cmd", "ledgerctl").Logger()

	cmd, args := os.Args[1], os.Args[2:]
	if cmd == "migrate" {
		if err := infra.Migrate(dbURL, logger); err != nil {
			exitWithError(err)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)
	c := &cli{
		ledger:   repo.NewLedger(runner),
		accounts: repo.NewAccountRepository(runner),
		out:      os.Stdout,
	}
	if err := c.run(ctx, cmd, args); err != nil {
		exitWithError(err)
	}
}

type journal interface {
	domain.Ledger
	Entries(ctx context.Context, accountID int64, limit int) ([]domain.LedgerEntry, error)
}

type cli struct {
	ledger   journal
	accounts domain.AccountRepository
	out      io.Writer
}

func (c *cli) run(ctx context.Context, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	var (
		accountID int64
		chatID    int64
		amount    int64
		grant     int64
		limit     int
		note      string
		locale    string
	)
	fs.Int64Var(&accountID, "account", 0, "account ID")
	fs.Int64Var(&chatID, "chat", 0, "messenger chat ID")
	fs.Int64Var(&amount, "amount", 0, "tokens to credit")
	fs.Int64Var(&grant, "grant", 0, "signup grant for a new account")
	fs.IntVar(&limit, "limit", 20, "journal rows to print")
	fs.StringVar(&note, "note", "manual credit", "journal description")
	fs.StringVar(&locale, "locale", "ru", "account locale")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch cmd {
	case "open":
		if chatID == 0 {
			return errors.New("-chat is required")
		}
		acc, err := c.accounts.Ensure(ctx, &domain.Account{ChatID: chatID, Locale: locale, Balance: grant})
		if err != nil {
			return fmt.Errorf("open account: %w", err)
		}
		fmt.Fprintf(c.out, "account %d chat=%d locale=%s balance=%d\n", acc.ID, acc.ChatID, acc.Locale, acc.Balance)
	case "credit":
		if accountID <= 0 {
			return errors.New("-account is required")
		}
		if amount <= 0 {
			return errors.New("-amount must be positive")
		}
		balance, err := c.ledger.Credit(ctx, accountID, amount, domain.Memo{Description: note})
		if err != nil {
			return fmt.Errorf("credit account %d: %w", accountID, err)
		}
		fmt.Fprintf(c.out, "account %d credited %d, balance=%d\n", accountID, amount, balance)
	case "balance":
		if accountID <= 0 {
			return errors.New("-account is required")
		}
		balance, err := c.ledger.Balance(ctx, accountID)
		if err != nil {
			return fmt.Errorf("balance of account %d: %w", accountID, err)
		}
		fmt.Fprintf(c.out, "account %d balance=%d\n", accountID, balance)
	case "entries":
		if accountID <= 0 {
			return errors.New("-account is required")
		}
		entries, err := c.ledger.Entries(ctx, accountID, limit)
		if err != nil {
			return fmt.Errorf("entries of account %d: %w", accountID, err)
		}
		for _, e := range entries {
			task := "-"
			if e.TaskID != nil {
				task = fmt.Sprint(*e.TaskID)
			}
			fmt.Fprintf(c.out, "%s\t%-6s\t%+d\ttask=%s\t%s\n", e.CreatedAt.Format(time.RFC3339), e.Type, e.Amount, task, e.Description)
		}
	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
	return nil
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
