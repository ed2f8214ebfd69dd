// Package port defines the interfaces for external collaborators.
// Following hexagonal architecture, these ports decouple the service
// layer from the concrete ledger client and credential store.
package port

import (
	"context"

	"github.com/ferrao/bankctl-go/internal/domain"

	"github.com/shopspring/decimal"
)

// LedgerAPI is the remote authoritative ledger service. It owns
// accounts, balances, transaction history and authentication; the
// client never applies business rules locally.
type LedgerAPI interface {
	// Ping checks connectivity (GET /api).
	Ping(ctx context.Context) error

	// Login authenticates credentials and returns the user record.
	Login(ctx context.Context, form domain.LoginForm) (*domain.User, error)

	// Register creates a new user. It does not authenticate.
	Register(ctx context.Context, form domain.RegisterForm) error

	// ListAccounts returns all accounts owned by username.
	ListAccounts(ctx context.Context, username string) ([]domain.Account, error)

	// CreateAccount opens a new account and returns its account number.
	CreateAccount(ctx context.Context, username string, form domain.CreateAccountForm) (string, error)

	// ListTransactions returns the history for one account.
	ListTransactions(ctx context.Context, accountNumber string) ([]domain.Transaction, error)

	// Deposit increases the account balance and returns the new
	// server-confirmed balance.
	Deposit(ctx context.Context, accountNumber string, amount decimal.Decimal, description string) (decimal.Decimal, error)

	// Withdraw decreases the balance if funds are sufficient (enforced
	// remotely) and returns the new server-confirmed balance.
	Withdraw(ctx context.Context, accountNumber string, amount decimal.Decimal, description string) (decimal.Decimal, error)

	// Transfer moves funds between two accounts atomically.
	Transfer(ctx context.Context, form domain.TransferForm) error

	// Balance returns the current balance of one account.
	Balance(ctx context.Context, accountNumber string) (decimal.Decimal, error)
}

// CredentialStore persists the session record across restarts.
// Load returns (nil, nil) when nothing is stored; a non-nil error
// means the stored value is corrupt and should be discarded.
type CredentialStore interface {
	Save(user *domain.User) error
	Load() (*domain.User, error)
	Clear() error
}
