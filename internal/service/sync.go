// Package service provides the business layer of the banking client:
// session management, data synchronization against the remote ledger,
// and the money-movement operations.
package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/ferrao/bankctl-go/internal/domain"
	"github.com/ferrao/bankctl-go/internal/infra/lifecycle"
	"github.com/ferrao/bankctl-go/internal/infra/observability"
	"github.com/ferrao/bankctl-go/internal/port"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var syncTracer = otel.Tracer("service/sync")

// Operation names used for lifecycle tracking.
const (
	OpLogin            = "login"
	OpRegister         = "register"
	OpLoadAccounts     = "load_accounts"
	OpLoadTransactions = "load_transactions"
	OpCreateAccount    = "create_account"
	OpDeposit          = "deposit"
	OpWithdraw         = "withdraw"
	OpTransfer         = "transfer"
)

// SyncEngine owns the local reactive view of accounts, transactions and
// the account selection. Collections are only ever replaced wholesale
// from ledger responses — no field-by-field edits and no optimistic
// arithmetic. The selection is stored as an account number and
// re-resolved against the live list after every reload, never kept as
// a detached copy.
type SyncEngine struct {
	ledger  port.LedgerAPI
	tracker *lifecycle.Tracker
	metrics *observability.Metrics
	logger  *zap.Logger

	// Dedupes concurrent reloads of the same collection.
	sf singleflight.Group

	mu           sync.RWMutex
	username     string
	accounts     []domain.Account
	transactions []domain.Transaction
	selected     string // account number; "" when nothing selected
}

// NewSyncEngine creates the synchronization engine.
func NewSyncEngine(ledger port.LedgerAPI, tracker *lifecycle.Tracker, metrics *observability.Metrics, logger *zap.Logger) *SyncEngine {
	return &SyncEngine{
		ledger:  ledger,
		tracker: tracker,
		metrics: metrics,
		logger:  logger,
	}
}

// SetUser points the engine at an authenticated user. Called by the
// session manager on login/restore.
func (e *SyncEngine) SetUser(username string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.username = username
}

// Reset drops all local state. Called on logout; afterwards the
// anonymous invariant holds: no accounts, no transactions, no selection.
func (e *SyncEngine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.username = ""
	e.accounts = nil
	e.transactions = nil
	e.selected = ""
}

// LoadAccounts fetches the user's accounts and replaces the local list
// wholesale. The selection is re-resolved against the fresh list: kept
// if its account is still present, moved to the first account when
// nothing (or nothing valid) is selected. On failure the list is
// cleared rather than left stale.
func (e *SyncEngine) LoadAccounts(ctx context.Context) error {
	e.mu.RLock()
	username := e.username
	e.mu.RUnlock()
	if username == "" {
		return nil
	}

	_, err, _ := e.sf.Do("accounts", func() (any, error) {
		return nil, e.tracker.Run(ctx, OpLoadAccounts, func(ctx context.Context) error {
			ctx, span := syncTracer.Start(ctx, "SyncEngine.LoadAccounts")
			defer span.End()
			span.SetAttributes(attribute.String("username", username))

			accounts, err := e.ledger.ListAccounts(ctx, username)
			if err != nil {
				e.logger.Warn("account load failed, clearing local list", zap.Error(err))
				e.replaceAccounts(nil)
				return err
			}

			e.replaceAccounts(accounts)
			e.metrics.IncrReload("accounts")
			e.logger.Debug("accounts reloaded", zap.Int("count", len(accounts)))
			return nil
		})
	})
	return err
}

// replaceAccounts swaps in the fresh list and re-resolves the selection.
func (e *SyncEngine) replaceAccounts(accounts []domain.Account) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.accounts = accounts

	if e.selected != "" && !containsAccount(accounts, e.selected) {
		// The selected account vanished; its history is no longer valid.
		e.selected = ""
		e.transactions = nil
	}
	if e.selected == "" && len(accounts) > 0 {
		e.selected = accounts[0].AccountNumber
	}
	if len(accounts) == 0 {
		e.selected = ""
		e.transactions = nil
	}
}

func containsAccount(accounts []domain.Account, number string) bool {
	for _, a := range accounts {
		if a.AccountNumber == number {
			return true
		}
	}
	return false
}

// LoadTransactions fetches the history of the selected account and
// replaces the local list wholesale, attaching the presentation
// descriptor to each entry. No-op when nothing is selected. On failure
// the list is cleared. A result that arrives after the selection moved
// on is discarded — the list always corresponds to the live selection.
func (e *SyncEngine) LoadTransactions(ctx context.Context) error {
	e.mu.RLock()
	selected := e.selected
	e.mu.RUnlock()
	if selected == "" {
		return nil
	}

	_, err, _ := e.sf.Do("transactions:"+selected, func() (any, error) {
		return nil, e.tracker.Run(ctx, OpLoadTransactions, func(ctx context.Context) error {
			ctx, span := syncTracer.Start(ctx, "SyncEngine.LoadTransactions")
			defer span.End()
			span.SetAttributes(attribute.String("account_number", selected))

			transactions, err := e.ledger.ListTransactions(ctx, selected)

			e.mu.Lock()
			defer e.mu.Unlock()
			if e.selected != selected {
				return nil // selection moved while in flight
			}
			if err != nil {
				e.logger.Warn("transaction load failed, clearing local list", zap.Error(err))
				e.transactions = nil
				return err
			}

			for i := range transactions {
				transactions[i].Display = transactions[i].Type.Display()
			}
			e.transactions = transactions
			e.metrics.IncrReload("transactions")
			e.logger.Debug("transactions reloaded",
				zap.String("account_number", selected),
				zap.Int("count", len(transactions)),
			)
			return nil
		})
	})
	return err
}

// LoadUserData performs the full load: accounts first, then — only when
// at least one account exists — the selected account's transactions.
// The ordering is required: transaction loading depends on a selection
// that only exists once accounts are loaded. No-op when anonymous.
// Every successful mutation re-runs this; the displayed balance is only
// ever a ledger-confirmed value.
func (e *SyncEngine) LoadUserData(ctx context.Context) error {
	e.mu.RLock()
	username := e.username
	e.mu.RUnlock()
	if username == "" {
		return nil
	}

	if err := e.LoadAccounts(ctx); err != nil {
		return err
	}

	e.mu.RLock()
	hasAccounts := len(e.accounts) > 0
	e.mu.RUnlock()
	if !hasAccounts {
		return nil
	}
	return e.LoadTransactions(ctx)
}

// SelectAccount moves the selection to accountNumber (which must be in
// the current list) and reloads its transactions.
func (e *SyncEngine) SelectAccount(ctx context.Context, accountNumber string) error {
	e.mu.Lock()
	if !containsAccount(e.accounts, accountNumber) {
		e.mu.Unlock()
		return fmt.Errorf("select account: %q is not in the current account list", accountNumber)
	}
	if e.selected != accountNumber {
		e.selected = accountNumber
		e.transactions = nil // invalidated until the reload lands
	}
	e.mu.Unlock()

	return e.LoadTransactions(ctx)
}

// SelectedAccount resolves the selection to a copy of the live account,
// or nil when nothing is selected.
func (e *SyncEngine) SelectedAccount() *domain.Account {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, a := range e.accounts {
		if a.AccountNumber == e.selected {
			account := a
			return &account
		}
	}
	return nil
}

// Accounts returns a copy of the current account list.
func (e *SyncEngine) Accounts() []domain.Account {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]domain.Account, len(e.accounts))
	copy(out, e.accounts)
	return out
}

// Transactions returns a copy of the current transaction list.
func (e *SyncEngine) Transactions() []domain.Transaction {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]domain.Transaction, len(e.transactions))
	copy(out, e.transactions)
	return out
}

// TotalBalance sums the live account balances.
func (e *SyncEngine) TotalBalance() decimal.Decimal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return domain.TotalBalance(e.accounts)
}

// View is a consistent snapshot of the synchronized state for rendering.
type View struct {
	Accounts     []domain.Account     `json:"accounts"`
	Transactions []domain.Transaction `json:"transactions"`
	Selected     *domain.Account      `json:"selected_account,omitempty"`
	TotalBalance decimal.Decimal      `json:"total_balance"`
}

// Snapshot returns a copy of all synchronized state taken under one lock.
func (e *SyncEngine) Snapshot() View {
	e.mu.RLock()
	defer e.mu.RUnlock()

	v := View{
		Accounts:     make([]domain.Account, len(e.accounts)),
		Transactions: make([]domain.Transaction, len(e.transactions)),
		TotalBalance: domain.TotalBalance(e.accounts),
	}
	copy(v.Accounts, e.accounts)
	copy(v.Transactions, e.transactions)
	for _, a := range e.accounts {
		if a.AccountNumber == e.selected {
			account := a
			v.Selected = &account
			break
		}
	}
	return v
}
