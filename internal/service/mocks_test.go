package service_test

import (
	"context"
	"sync/atomic"

	"github.com/ferrao/bankctl-go/internal/domain"
	"github.com/ferrao/bankctl-go/internal/infra/lifecycle"
	"github.com/ferrao/bankctl-go/internal/infra/observability"
	"github.com/ferrao/bankctl-go/internal/service"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// mockLedger implements port.LedgerAPI with fixture fields and call
// counters so each test can script the remote side.
type mockLedger struct {
	loginUser *domain.User
	loginErr  error

	registerErr error

	accounts    []domain.Account
	accountsErr error

	transactions    map[string][]domain.Transaction
	transactionsErr error

	createdAccountNumber string
	createErr            error

	moveBalance decimal.Decimal
	moveErr     error

	transferErr error

	spotBalance decimal.Decimal
	balanceErr  error

	loginCalls        atomic.Int32
	registerCalls     atomic.Int32
	accountsCalls     atomic.Int32
	transactionsCalls atomic.Int32
	createCalls       atomic.Int32
	depositCalls      atomic.Int32
	withdrawCalls     atomic.Int32
	transferCalls     atomic.Int32

	lastTransactionsAccount string
	lastMoveAccount         string
	lastMoveAmount          decimal.Decimal
	lastTransferForm        domain.TransferForm
}

func (m *mockLedger) Ping(ctx context.Context) error { return nil }

func (m *mockLedger) Login(ctx context.Context, form domain.LoginForm) (*domain.User, error) {
	m.loginCalls.Add(1)
	if m.loginErr != nil {
		return nil, m.loginErr
	}
	return m.loginUser, nil
}

func (m *mockLedger) Register(ctx context.Context, form domain.RegisterForm) error {
	m.registerCalls.Add(1)
	return m.registerErr
}

func (m *mockLedger) ListAccounts(ctx context.Context, username string) ([]domain.Account, error) {
	m.accountsCalls.Add(1)
	if m.accountsErr != nil {
		return nil, m.accountsErr
	}
	return m.accounts, nil
}

func (m *mockLedger) CreateAccount(ctx context.Context, username string, form domain.CreateAccountForm) (string, error) {
	m.createCalls.Add(1)
	if m.createErr != nil {
		return "", m.createErr
	}
	return m.createdAccountNumber, nil
}

func (m *mockLedger) ListTransactions(ctx context.Context, accountNumber string) ([]domain.Transaction, error) {
	m.transactionsCalls.Add(1)
	m.lastTransactionsAccount = accountNumber
	if m.transactionsErr != nil {
		return nil, m.transactionsErr
	}
	return m.transactions[accountNumber], nil
}

func (m *mockLedger) Deposit(ctx context.Context, accountNumber string, amount decimal.Decimal, description string) (decimal.Decimal, error) {
	m.depositCalls.Add(1)
	m.lastMoveAccount = accountNumber
	m.lastMoveAmount = amount
	if m.moveErr != nil {
		return decimal.Zero, m.moveErr
	}
	return m.moveBalance, nil
}

func (m *mockLedger) Withdraw(ctx context.Context, accountNumber string, amount decimal.Decimal, description string) (decimal.Decimal, error) {
	m.withdrawCalls.Add(1)
	m.lastMoveAccount = accountNumber
	m.lastMoveAmount = amount
	if m.moveErr != nil {
		return decimal.Zero, m.moveErr
	}
	return m.moveBalance, nil
}

func (m *mockLedger) Transfer(ctx context.Context, form domain.TransferForm) error {
	m.transferCalls.Add(1)
	m.lastTransferForm = form
	return m.transferErr
}

func (m *mockLedger) Balance(ctx context.Context, accountNumber string) (decimal.Decimal, error) {
	if m.balanceErr != nil {
		return decimal.Zero, m.balanceErr
	}
	return m.spotBalance, nil
}

// mockStore implements port.CredentialStore in memory.
type mockStore struct {
	saved   *domain.User
	loadErr error

	saveCalls  int
	clearCalls int
}

func (s *mockStore) Save(user *domain.User) error {
	s.saveCalls++
	u := *user
	s.saved = &u
	return nil
}

func (s *mockStore) Load() (*domain.User, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	if s.saved == nil {
		return nil, nil
	}
	u := *s.saved
	return &u, nil
}

func (s *mockStore) Clear() error {
	s.clearCalls++
	s.saved = nil
	return nil
}

func newEngine(ledger *mockLedger) (*service.SyncEngine, *lifecycle.Tracker) {
	metrics := observability.NewMetrics()
	tracker := lifecycle.NewTracker(metrics, zap.NewNop())
	engine := service.NewSyncEngine(ledger, tracker, metrics, zap.NewNop())
	return engine, tracker
}

func account(number, accountType, balance string) domain.Account {
	return domain.Account{
		AccountNumber: number,
		AccountType:   accountType,
		Balance:       decimal.RequireFromString(balance),
	}
}
