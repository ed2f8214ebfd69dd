// Package domain holds the data model shared by the session, sync and
// banking layers: the authenticated user, accounts, transactions, form
// buffers and the typed errors used across the client.
package domain

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// FlexID is an identifier that the ledger may send either as a JSON
// string or as a number. It always normalizes to its string form.
type FlexID string

func (f *FlexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexID(n.String())
	return nil
}

func (f FlexID) String() string { return string(f) }

// User is the record of the currently authenticated user.
type User struct {
	Username string `json:"username"`
	UserID   FlexID `json:"user_id"`
	Role     string `json:"role,omitempty"`
}

// Account is one bank account as reported by the ledger. Accounts are
// replaced wholesale on every reload and never patched field-by-field.
type Account struct {
	AccountNumber string          `json:"account_number"`
	AccountType   string          `json:"account_type"`
	Balance       decimal.Decimal `json:"balance"`
}

// Transaction is one ledger entry scoped to a single account.
type Transaction struct {
	ID            FlexID          `json:"id"`
	AccountNumber string          `json:"account_number"`
	Type          TransactionType `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	Timestamp     string          `json:"timestamp"`
	Display       TypeDisplay     `json:"type_display"`
}

// TotalBalance sums the balances of the given accounts.
func TotalBalance(accounts []Account) decimal.Decimal {
	total := decimal.Zero
	for _, a := range accounts {
		total = total.Add(a.Balance)
	}
	return total
}
