package domain

import "github.com/shopspring/decimal"

// Form buffers are ephemeral staging structures for user input. They
// are never persisted and reset to their defaults after a successful
// submission; on failure they keep their values so the user can retry.

// LoginForm stages credentials for POST /api/login.
type LoginForm struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (f *LoginForm) Reset() { *f = LoginForm{} }

// RegisterForm stages profile fields for POST /api/register.
type RegisterForm struct {
	Username string `json:"username"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
}

func (f *RegisterForm) Reset() { *f = RegisterForm{} }

// CreateAccountForm stages input for POST /api/accounts/create.
type CreateAccountForm struct {
	AccountType    string          `json:"account_type"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
}

func (f *CreateAccountForm) Reset() {
	*f = CreateAccountForm{AccountType: "SAVINGS", InitialBalance: decimal.Zero}
}

// DepositForm stages input for POST /api/transactions/deposit.
type DepositForm struct {
	Amount decimal.Decimal `json:"amount"`
}

func (f *DepositForm) Reset() { *f = DepositForm{Amount: decimal.Zero} }

// WithdrawForm stages input for POST /api/transactions/withdraw.
type WithdrawForm struct {
	Amount decimal.Decimal `json:"amount"`
}

func (f *WithdrawForm) Reset() { *f = WithdrawForm{Amount: decimal.Zero} }

// TransferForm stages input for POST /api/transactions/transfer.
type TransferForm struct {
	FromAccount string          `json:"from_account"`
	ToAccount   string          `json:"to_account"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

func (f *TransferForm) Reset() { *f = TransferForm{Amount: decimal.Zero} }
