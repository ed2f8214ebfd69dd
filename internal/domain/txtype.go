package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// TransactionType is the ledger's numeric transaction-type code.
type TransactionType int

const (
	TypeDeposit TransactionType = iota
	TypeWithdrawal
	TypeTransfer
	TypePayment
	TypeFee

	// TypeUnknown covers any code outside 0..4. Unrecognized codes must
	// render, never fail.
	TypeUnknown TransactionType = -1
)

// TypeDisplay is the presentation descriptor for a transaction type.
type TypeDisplay struct {
	Label string `json:"label"`
	Icon  string `json:"icon"`
	Class string `json:"class"`
}

var typeDisplays = map[TransactionType]TypeDisplay{
	TypeDeposit:    {Label: "Deposit", Icon: "💰", Class: "text-green-600 bg-green-50"},
	TypeWithdrawal: {Label: "Withdrawal", Icon: "💸", Class: "text-red-600 bg-red-50"},
	TypeTransfer:   {Label: "Transfer", Icon: "🔄", Class: "text-blue-600 bg-blue-50"},
	TypePayment:    {Label: "Payment", Icon: "💳", Class: "text-purple-600 bg-purple-50"},
	TypeFee:        {Label: "Fee", Icon: "📋", Class: "text-orange-600 bg-orange-50"},
}

var unknownDisplay = TypeDisplay{Label: "Unknown", Icon: "❓", Class: "text-gray-600 bg-gray-50"}

// Display returns the presentation descriptor for t. Total over all
// inputs: anything outside the known codes gets the Unknown descriptor.
func (t TransactionType) Display() TypeDisplay {
	if d, ok := typeDisplays[t]; ok {
		return d
	}
	return unknownDisplay
}

// Label is a shorthand for Display().Label.
func (t TransactionType) Label() string { return t.Display().Label }

// ParseTransactionType accepts a type code as an int, a float, a
// json.Number or its string form ("2") and returns TypeUnknown for
// anything it cannot recognize.
func ParseTransactionType(v any) TransactionType {
	switch n := v.(type) {
	case TransactionType:
		return normalizeType(int(n))
	case int:
		return normalizeType(n)
	case int64:
		return normalizeType(int(n))
	case float64:
		if n == float64(int(n)) {
			return normalizeType(int(n))
		}
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return normalizeType(int(i))
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return normalizeType(i)
		}
	}
	return TypeUnknown
}

func normalizeType(code int) TransactionType {
	t := TransactionType(code)
	if _, ok := typeDisplays[t]; ok {
		return t
	}
	return TypeUnknown
}

// UnmarshalJSON tolerates both the canonical numeric code and its
// quoted string form; anything else decodes to TypeUnknown.
func (t *TransactionType) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	var s string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			*t = TypeUnknown
			return nil
		}
	} else {
		s = string(data)
	}
	*t = ParseTransactionType(s)
	return nil
}
