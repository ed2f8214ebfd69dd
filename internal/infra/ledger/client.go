// Package ledger implements the HTTP client for the remote ledger
// service (JSON over HTTP, base path /api). The ledger is the sole
// source of truth for accounts, balances and transaction history; this
// client only transports and classifies.
//
// Failure classification follows a fixed taxonomy: unreachable server
// or non-2xx without a usable body → domain.ErrTransport; unparsable
// body → domain.ErrBadResponse; well-formed body declaring failure →
// domain.ErrRemote with the server's message. Read calls are retried
// with backoff; mutating calls get exactly one attempt because the
// protocol has no idempotency key.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ferrao/bankctl-go/internal/domain"
	"github.com/ferrao/bankctl-go/internal/infra/resilience"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("ledger")

// Client talks to the remote ledger service.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	callTimeout time.Duration
	cb          *gobreaker.CircuitBreaker
	cfg         resilience.Config
	bulkhead    *resilience.Bulkhead
	logger      *zap.Logger
}

// NewClient creates a ledger client. baseURL includes the /api prefix.
func NewClient(httpClient *http.Client, baseURL string, callTimeout time.Duration, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Client {
	maxConc := cfg.MaxConcurrency
	if maxConc <= 0 {
		maxConc = 8
	}
	return &Client{
		httpClient:  httpClient,
		baseURL:     strings.TrimRight(baseURL, "/"),
		callTimeout: callTimeout,
		cb:          cb,
		cfg:         cfg,
		bulkhead:    resilience.NewBulkhead(maxConc),
		logger:      logger,
	}
}

// envelope is the common declared-outcome shape of ledger responses.
type envelope struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
	ErrText string `json:"error"`
}

func (e envelope) failed() bool {
	return e.Success != nil && !*e.Success
}

func (e envelope) failureMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return e.ErrText
}

// doRequest executes one HTTP round trip with a bounded deadline and
// classifies the outcome. It returns the raw body on 2xx.
func (c *Client) doRequest(ctx context.Context, op, method, path string, reqBody any) ([]byte, error) {
	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}

	if err := c.bulkhead.Acquire(ctx); err != nil {
		return nil, c.transportErr(op, err)
	}
	defer c.bulkhead.Release()

	var body io.Reader
	if reqBody != nil {
		raw, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("encode %s request: %w", op, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("ledger: request failed",
			zap.String("op", op),
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, c.transportErr(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportErr(op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("ledger: non-2xx response",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(raw)),
		)
		// Prefer the server's declared message when the body carries one.
		var env envelope
		if jsonErr := json.Unmarshal(raw, &env); jsonErr == nil && env.failureMessage() != "" {
			return nil, &domain.ErrRemote{Op: op, Message: env.failureMessage()}
		}
		return nil, &domain.ErrTransport{Op: op, Err: fmt.Errorf("ledger returned status %d", resp.StatusCode)}
	}

	c.logger.Debug("ledger: request OK",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)

	return raw, nil
}

func (c *Client) transportErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.ErrTimeout{Op: op}
	}
	return &domain.ErrTransport{Op: op, Err: err}
}

// decode unmarshals body into out, which embeds envelope so callers
// can check the declared outcome afterwards.
func decode(op string, body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return &domain.ErrBadResponse{Op: op, Err: err}
	}
	return nil
}

// execRead runs a read call through the breaker with retry. A declared
// remote failure stops the retry loop and does not count against the
// breaker — the service answered.
func (c *Client) execRead(ctx context.Context, op string, fn func(context.Context) error) error {
	var remoteErr error
	_, cbErr := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			err := fn(ctx)
			var remote *domain.ErrRemote
			if errors.As(err, &remote) {
				remoteErr = err
				return nil
			}
			return err
		})
	})
	if cbErr != nil {
		return c.classifyBreaker(op, cbErr)
	}
	return remoteErr
}

// execWrite runs a mutating call through the breaker: one attempt only.
func (c *Client) execWrite(ctx context.Context, op string, fn func(context.Context) error) error {
	var remoteErr error
	_, cbErr := c.cb.Execute(func() (any, error) {
		err := fn(ctx)
		var remote *domain.ErrRemote
		if errors.As(err, &remote) {
			remoteErr = err
			return nil, nil
		}
		return nil, err
	})
	if cbErr != nil {
		return c.classifyBreaker(op, cbErr)
	}
	return remoteErr
}

func (c *Client) classifyBreaker(op string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &domain.ErrCircuitOpen{Service: "ledger"}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.ErrTimeout{Op: op}
	}
	return err
}

// parseDecimal coerces a raw JSON value (number, quoted number, null or
// garbage) to a decimal, defaulting to zero when unparsable.
func parseDecimal(raw json.RawMessage) decimal.Decimal {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ============================================================
// Health
// ============================================================

// Ping checks connectivity with GET /api.
func (c *Client) Ping(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Ledger.Ping")
	defer span.End()

	return c.execRead(ctx, "ping", func(ctx context.Context) error {
		_, err := c.doRequest(ctx, "ping", http.MethodGet, "", nil)
		return err
	})
}

// ============================================================
// Auth
// ============================================================

type loginResponse struct {
	envelope
	Username string        `json:"username"`
	UserID   domain.FlexID `json:"user_id"`
	Role     string        `json:"role"`
}

// Login authenticates with POST /api/login.
func (c *Client) Login(ctx context.Context, form domain.LoginForm) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Ledger.Login")
	defer span.End()
	span.SetAttributes(attribute.String("username", form.Username))

	var out loginResponse
	err := c.execWrite(ctx, "login", func(ctx context.Context) error {
		body, err := c.doRequest(ctx, "login", http.MethodPost, "/login", form)
		if err != nil {
			return err
		}
		if err := decode("login", body, &out); err != nil {
			return err
		}
		if out.failed() {
			msg := out.failureMessage()
			if msg == "" {
				msg = "Login failed"
			}
			return &domain.ErrRemote{Op: "login", Message: msg}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &domain.User{
		Username: out.Username,
		UserID:   out.UserID,
		Role:     out.Role,
	}, nil
}

// Register creates a new user with POST /api/register.
func (c *Client) Register(ctx context.Context, form domain.RegisterForm) error {
	ctx, span := tracer.Start(ctx, "Ledger.Register")
	defer span.End()
	span.SetAttributes(attribute.String("username", form.Username))

	return c.execWrite(ctx, "register", func(ctx context.Context) error {
		body, err := c.doRequest(ctx, "register", http.MethodPost, "/register", form)
		if err != nil {
			return err
		}
		var out struct{ envelope }
		if err := decode("register", body, &out); err != nil {
			return err
		}
		if out.failed() {
			msg := out.failureMessage()
			if msg == "" {
				msg = "Registration failed"
			}
			return &domain.ErrRemote{Op: "register", Message: msg}
		}
		return nil
	})
}

// ============================================================
// Accounts
// ============================================================

type wireAccount struct {
	AccountNumber string          `json:"account_number"`
	AccountType   string          `json:"account_type"`
	Balance       json.RawMessage `json:"balance"`
}

type accountsResponse struct {
	envelope
	Accounts []wireAccount `json:"accounts"`
}

// ListAccounts fetches the user's accounts with GET /api/accounts.
func (c *Client) ListAccounts(ctx context.Context, username string) ([]domain.Account, error) {
	ctx, span := tracer.Start(ctx, "Ledger.ListAccounts")
	defer span.End()
	span.SetAttributes(attribute.String("username", username))

	var out accountsResponse
	err := c.execRead(ctx, "accounts", func(ctx context.Context) error {
		path := "/accounts?username=" + url.QueryEscape(username)
		body, err := c.doRequest(ctx, "accounts", http.MethodGet, path, nil)
		if err != nil {
			return err
		}
		out = accountsResponse{}
		if err := decode("accounts", body, &out); err != nil {
			return err
		}
		if out.failed() {
			return &domain.ErrRemote{Op: "accounts", Message: out.failureMessage()}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	accounts := make([]domain.Account, 0, len(out.Accounts))
	for _, a := range out.Accounts {
		accounts = append(accounts, domain.Account{
			AccountNumber: a.AccountNumber,
			AccountType:   a.AccountType,
			Balance:       parseDecimal(a.Balance),
		})
	}
	return accounts, nil
}

type createAccountRequest struct {
	Username       string  `json:"username"`
	AccountType    string  `json:"account_type"`
	InitialBalance float64 `json:"initial_balance"`
}

type createAccountResponse struct {
	envelope
	AccountNumber string `json:"account_number"`
}

// CreateAccount opens a new account with POST /api/accounts/create.
func (c *Client) CreateAccount(ctx context.Context, username string, form domain.CreateAccountForm) (string, error) {
	ctx, span := tracer.Start(ctx, "Ledger.CreateAccount")
	defer span.End()
	span.SetAttributes(
		attribute.String("username", username),
		attribute.String("account_type", form.AccountType),
	)

	var out createAccountResponse
	err := c.execWrite(ctx, "create_account", func(ctx context.Context) error {
		req := createAccountRequest{
			Username:       username,
			AccountType:    form.AccountType,
			InitialBalance: form.InitialBalance.InexactFloat64(),
		}
		body, err := c.doRequest(ctx, "create_account", http.MethodPost, "/accounts/create", req)
		if err != nil {
			return err
		}
		if err := decode("create_account", body, &out); err != nil {
			return err
		}
		if out.failed() {
			msg := out.failureMessage()
			if msg == "" {
				msg = "Account creation failed"
			}
			return &domain.ErrRemote{Op: "create_account", Message: msg}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return out.AccountNumber, nil
}

// ============================================================
// Transactions
// ============================================================

type wireTransaction struct {
	ID            domain.FlexID          `json:"id"`
	AccountNumber string                 `json:"account_number"`
	Type          domain.TransactionType `json:"type"`
	Amount        json.RawMessage        `json:"amount"`
	Description   string                 `json:"description"`
	Timestamp     string                 `json:"timestamp"`
}

type transactionsResponse struct {
	envelope
	Transactions []wireTransaction `json:"transactions"`
}

// ListTransactions fetches one account's history with GET /api/transactions.
func (c *Client) ListTransactions(ctx context.Context, accountNumber string) ([]domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Ledger.ListTransactions")
	defer span.End()
	span.SetAttributes(attribute.String("account_number", accountNumber))

	var out transactionsResponse
	err := c.execRead(ctx, "transactions", func(ctx context.Context) error {
		path := "/transactions?account_number=" + url.QueryEscape(accountNumber)
		body, err := c.doRequest(ctx, "transactions", http.MethodGet, path, nil)
		if err != nil {
			return err
		}
		out = transactionsResponse{}
		if err := decode("transactions", body, &out); err != nil {
			return err
		}
		if out.failed() {
			return &domain.ErrRemote{Op: "transactions", Message: out.failureMessage()}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	transactions := make([]domain.Transaction, 0, len(out.Transactions))
	for _, t := range out.Transactions {
		transactions = append(transactions, domain.Transaction{
			ID:            t.ID,
			AccountNumber: t.AccountNumber,
			Type:          t.Type,
			Amount:        parseDecimal(t.Amount),
			Description:   t.Description,
			Timestamp:     t.Timestamp,
		})
	}
	return transactions, nil
}

type moneyRequest struct {
	AccountNumber string  `json:"account_number"`
	Amount        float64 `json:"amount"`
	Description   string  `json:"description"`
}

type balanceResponse struct {
	envelope
	NewBalance json.RawMessage `json:"new_balance"`
}

// Deposit posts a deposit and returns the server-confirmed new balance.
func (c *Client) Deposit(ctx context.Context, accountNumber string, amount decimal.Decimal, description string) (decimal.Decimal, error) {
	return c.moveMoney(ctx, "deposit", "/transactions/deposit", accountNumber, amount, description)
}

// Withdraw posts a withdrawal and returns the server-confirmed new
// balance. Sufficient funds are enforced remotely.
func (c *Client) Withdraw(ctx context.Context, accountNumber string, amount decimal.Decimal, description string) (decimal.Decimal, error) {
	return c.moveMoney(ctx, "withdraw", "/transactions/withdraw", accountNumber, amount, description)
}

func (c *Client) moveMoney(ctx context.Context, op, path, accountNumber string, amount decimal.Decimal, description string) (decimal.Decimal, error) {
	ctx, span := tracer.Start(ctx, "Ledger."+op)
	defer span.End()
	span.SetAttributes(attribute.String("account_number", accountNumber))

	var out balanceResponse
	err := c.execWrite(ctx, op, func(ctx context.Context) error {
		req := moneyRequest{
			AccountNumber: accountNumber,
			Amount:        amount.InexactFloat64(),
			Description:   description,
		}
		body, err := c.doRequest(ctx, op, http.MethodPost, path, req)
		if err != nil {
			return err
		}
		if err := decode(op, body, &out); err != nil {
			return err
		}
		if out.failed() {
			msg := out.failureMessage()
			if msg == "" {
				msg = op + " failed"
			}
			return &domain.ErrRemote{Op: op, Message: msg}
		}
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return parseDecimal(out.NewBalance), nil
}

type transferRequest struct {
	FromAccount string  `json:"from_account"`
	ToAccount   string  `json:"to_account"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
}

// Transfer moves funds between two accounts with POST /api/transactions/transfer.
// Atomicity is the ledger's responsibility.
func (c *Client) Transfer(ctx context.Context, form domain.TransferForm) error {
	ctx, span := tracer.Start(ctx, "Ledger.Transfer")
	defer span.End()
	span.SetAttributes(
		attribute.String("from_account", form.FromAccount),
		attribute.String("to_account", form.ToAccount),
	)

	return c.execWrite(ctx, "transfer", func(ctx context.Context) error {
		req := transferRequest{
			FromAccount: form.FromAccount,
			ToAccount:   form.ToAccount,
			Amount:      form.Amount.InexactFloat64(),
			Description: form.Description,
		}
		body, err := c.doRequest(ctx, "transfer", http.MethodPost, "/transactions/transfer", req)
		if err != nil {
			return err
		}
		var out struct{ envelope }
		if err := decode("transfer", body, &out); err != nil {
			return err
		}
		if out.failed() {
			msg := out.failureMessage()
			if msg == "" {
				msg = "Transfer failed"
			}
			return &domain.ErrRemote{Op: "transfer", Message: msg}
		}
		return nil
	})
}

type spotBalanceResponse struct {
	envelope
	Balance json.RawMessage `json:"balance"`
}

// Balance fetches one account's current balance with GET /api/balance.
// Display-only; local state is never patched from this value.
func (c *Client) Balance(ctx context.Context, accountNumber string) (decimal.Decimal, error) {
	ctx, span := tracer.Start(ctx, "Ledger.Balance")
	defer span.End()
	span.SetAttributes(attribute.String("account_number", accountNumber))

	var out spotBalanceResponse
	err := c.execRead(ctx, "balance", func(ctx context.Context) error {
		path := "/balance?account_number=" + url.QueryEscape(accountNumber)
		body, err := c.doRequest(ctx, "balance", http.MethodGet, path, nil)
		if err != nil {
			return err
		}
		out = spotBalanceResponse{}
		if err := decode("balance", body, &out); err != nil {
			return err
		}
		if out.failed() {
			return &domain.ErrRemote{Op: "balance", Message: out.failureMessage()}
		}
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return parseDecimal(out.Balance), nil
}
