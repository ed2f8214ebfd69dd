package integration_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ferrao/bankctl-go/internal/domain"
	"github.com/ferrao/bankctl-go/internal/infra/credstore"
	"github.com/ferrao/bankctl-go/internal/infra/ledger"
	"github.com/ferrao/bankctl-go/internal/infra/lifecycle"
	"github.com/ferrao/bankctl-go/internal/infra/observability"
	"github.com/ferrao/bankctl-go/internal/infra/resilience"
	"github.com/ferrao/bankctl-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// fakeLedger is an in-memory stand-in for the remote ledger service,
// speaking the same JSON dialect over the same routes.
type fakeLedger struct {
	mu       sync.Mutex
	users    map[string]string // username -> password
	balances map[string]decimal.Decimal
	history  map[string][]map[string]any
	nextAcct int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		users:    map[string]string{"admin": "password"},
		balances: map[string]decimal.Decimal{"ACC001": decimal.RequireFromString("100.00")},
		history:  map[string][]map[string]any{},
		nextAcct: 2,
	}
}

func (f *fakeLedger) router() http.Handler {
	r := chi.NewRouter()

	r.Get("/api", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"message": "Banking API running"})
	})

	r.Post("/api/login", func(w http.ResponseWriter, r *http.Request) {
		var req struct{ Username, Password string }
		json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.users[req.Username] != req.Password {
			writeJSON(w, map[string]any{"success": false, "message": "Invalid credentials"})
			return
		}
		writeJSON(w, map[string]any{
			"success": true, "username": req.Username, "user_id": 1, "role": "CUSTOMER",
		})
	})

	r.Post("/api/register", func(w http.ResponseWriter, r *http.Request) {
		var req struct{ Username, Password string }
		json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, exists := f.users[req.Username]; exists {
			writeJSON(w, map[string]any{"success": false, "message": "Username already exists"})
			return
		}
		f.users[req.Username] = req.Password
		writeJSON(w, map[string]any{"success": true, "message": "Registration successful"})
	})

	r.Get("/api/accounts", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		accounts := []map[string]any{}
		for number, balance := range f.balances {
			accounts = append(accounts, map[string]any{
				"account_number": number, "account_type": "SAVINGS", "balance": balance.InexactFloat64(),
			})
		}
		writeJSON(w, map[string]any{"success": true, "accounts": accounts})
	})

	r.Post("/api/accounts/create", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			AccountType    string  `json:"account_type"`
			InitialBalance float64 `json:"initial_balance"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		defer f.mu.Unlock()
		number := "ACC00" + string(rune('0'+f.nextAcct))
		f.nextAcct++
		f.balances[number] = decimal.NewFromFloat(req.InitialBalance)
		writeJSON(w, map[string]any{"success": true, "account_number": number})
	})

	r.Get("/api/transactions", func(w http.ResponseWriter, r *http.Request) {
		number := r.URL.Query().Get("account_number")
		f.mu.Lock()
		defer f.mu.Unlock()
		writeJSON(w, map[string]any{"success": true, "transactions": f.history[number]})
	})

	r.Post("/api/transactions/deposit", f.moveMoney(false))
	r.Post("/api/transactions/withdraw", f.moveMoney(true))

	r.Post("/api/transactions/transfer", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			FromAccount string  `json:"from_account"`
			ToAccount   string  `json:"to_account"`
			Amount      float64 `json:"amount"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		amount := decimal.NewFromFloat(req.Amount)
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.balances[req.FromAccount].LessThan(amount) {
			writeJSON(w, map[string]any{"success": false, "message": "Insufficient funds"})
			return
		}
		f.balances[req.FromAccount] = f.balances[req.FromAccount].Sub(amount)
		f.balances[req.ToAccount] = f.balances[req.ToAccount].Add(amount)
		writeJSON(w, map[string]any{"success": true, "message": "Transfer successful"})
	})

	r.Get("/api/balance", func(w http.ResponseWriter, r *http.Request) {
		number := r.URL.Query().Get("account_number")
		f.mu.Lock()
		defer f.mu.Unlock()
		writeJSON(w, map[string]any{"success": true, "balance": f.balances[number].InexactFloat64()})
	})

	return r
}

func (f *fakeLedger) moveMoney(withdraw bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			AccountNumber string  `json:"account_number"`
			Amount        float64 `json:"amount"`
			Description   string  `json:"description"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		amount := decimal.NewFromFloat(req.Amount)

		f.mu.Lock()
		defer f.mu.Unlock()
		balance, ok := f.balances[req.AccountNumber]
		if !ok {
			writeJSON(w, map[string]any{"success": false, "message": "Account not found"})
			return
		}
		txType := 0
		if withdraw {
			if balance.LessThan(amount) {
				writeJSON(w, map[string]any{"success": false, "message": "Insufficient funds"})
				return
			}
			balance = balance.Sub(amount)
			txType = 1
		} else {
			balance = balance.Add(amount)
		}
		f.balances[req.AccountNumber] = balance
		f.history[req.AccountNumber] = append(f.history[req.AccountNumber], map[string]any{
			"id":             len(f.history[req.AccountNumber]) + 1,
			"account_number": req.AccountNumber,
			"type":           txType,
			"amount":         req.Amount,
			"description":    req.Description,
			"timestamp":      time.Now().Format("2006-01-02 15:04:05"),
		})
		writeJSON(w, map[string]any{"success": true, "new_balance": balance.InexactFloat64()})
	}
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

type stack struct {
	session *service.SessionManager
	engine  *service.SyncEngine
	banking *service.BankingService
	tracker *lifecycle.Tracker
	store   *credstore.FileStore
}

func buildStack(t *testing.T, baseURL string) *stack {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	cfg := resilience.Config{MaxRetries: 1, InitialBackoff: time.Millisecond, MaxConcurrency: 8}
	cb := resilience.NewCircuitBreaker(t.Name())

	client := ledger.NewClient(&http.Client{Timeout: 5 * time.Second}, baseURL+"/api", 2*time.Second, cb, cfg, logger)
	store := credstore.New(filepath.Join(t.TempDir(), "session"), "integration-secret", logger)
	tracker := lifecycle.NewTracker(metrics, logger)
	engine := service.NewSyncEngine(client, tracker, metrics, logger)
	session := service.NewSessionManager(client, store, engine, tracker, logger)
	banking := service.NewBankingService(client, engine, session, tracker, logger)

	return &stack{session: session, engine: engine, banking: banking, tracker: tracker, store: store}
}

func TestIntegration_FullFlow(t *testing.T) {
	fake := newFakeLedger()
	srv := httptest.NewServer(fake.router())
	defer srv.Close()

	s := buildStack(t, srv.URL)
	ctx := context.Background()

	// Login with the seeded user.
	s.session.LoginForm.Username = "admin"
	s.session.LoginForm.Password = "password"
	if err := s.session.Login(ctx); err != nil {
		t.Fatalf("login: %v", err)
	}
	if !s.session.Authenticated() {
		t.Fatal("expected authenticated session")
	}

	// The full load ran: one account, auto-selected.
	selected := s.engine.SelectedAccount()
	if selected == nil || selected.AccountNumber != "ACC001" {
		t.Fatalf("expected ACC001 selected, got %+v", selected)
	}
	if !selected.Balance.Equal(decimal.RequireFromString("100.00")) {
		t.Errorf("expected starting balance 100.00, got %s", selected.Balance)
	}

	// Deposit and verify the reload picked up the ledger's new truth.
	if err := s.banking.OpenDepositModal(ctx, "ACC001"); err != nil {
		t.Fatalf("open deposit modal: %v", err)
	}
	s.banking.DepositForm.Amount = decimal.RequireFromString("50.00")
	if err := s.banking.Deposit(ctx); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	selected = s.engine.SelectedAccount()
	if !selected.Balance.Equal(decimal.RequireFromString("150.00")) {
		t.Errorf("expected balance 150.00 after deposit, got %s", selected.Balance)
	}
	transactions := s.engine.Transactions()
	if len(transactions) != 1 || transactions[0].Type != domain.TypeDeposit {
		t.Fatalf("expected one deposit in the history, got %+v", transactions)
	}
	if transactions[0].Display.Label != "Deposit" {
		t.Errorf("expected display descriptor attached, got %+v", transactions[0].Display)
	}

	// A rejected withdrawal changes nothing locally.
	if err := s.banking.OpenWithdrawModal(ctx, "ACC001"); err != nil {
		t.Fatalf("open withdraw modal: %v", err)
	}
	s.banking.WithdrawForm.Amount = decimal.NewFromInt(10000)
	err := s.banking.Withdraw(ctx)
	var remote *domain.ErrRemote
	if !errors.As(err, &remote) || remote.Message != "Insufficient funds" {
		t.Fatalf("expected insufficient funds rejection, got %v", err)
	}
	if !s.banking.ModalState().Withdraw {
		t.Error("expected withdraw modal still open")
	}
	if !s.engine.SelectedAccount().Balance.Equal(decimal.RequireFromString("150.00")) {
		t.Error("expected balance unchanged after rejection")
	}

	// Create a second account and transfer into it.
	s.banking.OpenCreateAccountModal()
	s.banking.CreateAccountForm.AccountType = "CHECKING"
	s.banking.CreateAccountForm.InitialBalance = decimal.Zero
	if err := s.banking.CreateAccount(ctx); err != nil {
		t.Fatalf("create account: %v", err)
	}
	if !strings.Contains(s.tracker.Notice("create_account"), "ACC002") {
		t.Errorf("expected notice with the new account number, got %q", s.tracker.Notice("create_account"))
	}
	if len(s.engine.Accounts()) != 2 {
		t.Fatalf("expected 2 accounts after creation, got %d", len(s.engine.Accounts()))
	}

	s.banking.OpenTransferModal()
	s.banking.TransferForm.FromAccount = "ACC001"
	s.banking.TransferForm.ToAccount = "ACC002"
	s.banking.TransferForm.Amount = decimal.NewFromInt(25)
	if err := s.banking.Transfer(ctx); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if !s.engine.TotalBalance().Equal(decimal.NewFromInt(150)) {
		t.Errorf("expected total unchanged by the transfer, got %s", s.engine.TotalBalance())
	}

	// Logout drops everything.
	s.session.Logout()
	if s.session.Authenticated() || len(s.engine.Accounts()) != 0 {
		t.Error("expected anonymous session with no local state")
	}
}

func TestIntegration_SessionRestoreAcrossRestart(t *testing.T) {
	fake := newFakeLedger()
	srv := httptest.NewServer(fake.router())
	defer srv.Close()

	logger := zap.NewNop()
	sessionFile := filepath.Join(t.TempDir(), "session")
	ctx := context.Background()

	build := func(name string) *stack {
		metrics := observability.NewMetrics()
		cfg := resilience.Config{MaxRetries: 1, InitialBackoff: time.Millisecond, MaxConcurrency: 8}
		cb := resilience.NewCircuitBreaker(name)
		client := ledger.NewClient(&http.Client{Timeout: 5 * time.Second}, srv.URL+"/api", 2*time.Second, cb, cfg, logger)
		store := credstore.New(sessionFile, "integration-secret", logger)
		tracker := lifecycle.NewTracker(metrics, logger)
		engine := service.NewSyncEngine(client, tracker, metrics, logger)
		session := service.NewSessionManager(client, store, engine, tracker, logger)
		banking := service.NewBankingService(client, engine, session, tracker, logger)
		return &stack{session: session, engine: engine, banking: banking, tracker: tracker, store: store}
	}

	first := build("restore-first")
	first.session.LoginForm.Username = "admin"
	first.session.LoginForm.Password = "password"
	if err := first.session.Login(ctx); err != nil {
		t.Fatalf("login: %v", err)
	}

	// A fresh stack sharing the session file picks the session back up.
	second := build("restore-second")
	second.session.Restore(ctx)
	if !second.session.Authenticated() {
		t.Fatal("expected session restored from disk")
	}
	if second.session.Username() != "admin" {
		t.Errorf("expected username admin, got %q", second.session.Username())
	}
	if len(second.engine.Accounts()) == 0 {
		t.Error("expected data loaded after restore")
	}
}

func TestIntegration_RegisterThenLogin(t *testing.T) {
	fake := newFakeLedger()
	srv := httptest.NewServer(fake.router())
	defer srv.Close()

	s := buildStack(t, srv.URL)
	ctx := context.Background()

	s.session.SetAuthMode(service.AuthModeRegister)
	s.session.RegisterForm.Username = "newuser"
	s.session.RegisterForm.Password = "secret"
	s.session.RegisterForm.FullName = "New User"
	if err := s.session.Register(ctx); err != nil {
		t.Fatalf("register: %v", err)
	}
	if s.session.AuthMode() != service.AuthModeLogin {
		t.Fatal("expected auth surface switched to login")
	}

	s.session.LoginForm.Username = "newuser"
	s.session.LoginForm.Password = "secret"
	if err := s.session.Login(ctx); err != nil {
		t.Fatalf("login after register: %v", err)
	}
	if !s.session.Authenticated() {
		t.Fatal("expected authenticated session")
	}
}
