package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ferrao/bankctl-go/internal/domain"
	"github.com/ferrao/bankctl-go/internal/infra/lifecycle"
	"github.com/ferrao/bankctl-go/internal/port"
	"github.com/ferrao/bankctl-go/internal/service"

	"github.com/shopspring/decimal"
)

const usage = `commands:
  login <username> <password>
  register <username> <password> <email> <full name...>
  logout
  accounts                       list accounts and total balance
  select <account_number>        focus an account and load its history
  tx                             show transactions for the selection
  create <type> <initial>        open an account (SAVINGS/CHECKING/BUSINESS)
  deposit <amount>               deposit into the selected account
  withdraw <amount>              withdraw from the selected account
  transfer <from> <to> <amount> [description...]
  balance [account_number]       spot balance from the ledger
  status                         session + in-flight call status
  quit`

// runLoop reads commands until EOF, "quit", or context cancellation.
// Pure presentation: every command maps onto one service call and then
// prints the resulting snapshot.
func runLoop(ctx context.Context, in io.Reader, session *service.SessionManager, engine *service.SyncEngine, banking *service.BankingService, ledgerAPI port.LedgerAPI, tracker *lifecycle.Tracker) {
	fmt.Println("bankctl — personal banking terminal. Type 'help' for commands.")
	scanner := bufio.NewScanner(in)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		if ctx.Err() != nil {
			return
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		cmd, args := fields[0], fields[1:]

		switch cmd {
		case "help":
			fmt.Println(usage)

		case "quit", "exit":
			return

		case "login":
			if len(args) < 2 {
				fmt.Println("usage: login <username> <password>")
				continue
			}
			session.LoginForm = domain.LoginForm{Username: args[0], Password: args[1]}
			if err := session.Login(ctx); err != nil {
				fmt.Println("error:", domain.FailureMessage(err))
				continue
			}
			fmt.Println(tracker.Notice(service.OpLogin))
			printAccounts(engine)

		case "register":
			if len(args) < 4 {
				fmt.Println("usage: register <username> <password> <email> <full name...>")
				continue
			}
			session.RegisterForm = domain.RegisterForm{
				Username: args[0],
				Password: args[1],
				Email:    args[2],
				FullName: strings.Join(args[3:], " "),
			}
			if err := session.Register(ctx); err != nil {
				fmt.Println("error:", domain.FailureMessage(err))
				continue
			}
			fmt.Println(tracker.Notice(service.OpRegister))

		case "logout":
			session.Logout()
			fmt.Println(tracker.Notice(service.OpLogin))

		case "accounts":
			if err := engine.LoadAccounts(ctx); err != nil {
				fmt.Println("error:", domain.FailureMessage(err))
				continue
			}
			printAccounts(engine)

		case "select":
			if len(args) != 1 {
				fmt.Println("usage: select <account_number>")
				continue
			}
			if err := engine.SelectAccount(ctx, args[0]); err != nil {
				fmt.Println("error:", domain.FailureMessage(err))
				continue
			}
			printTransactions(engine)

		case "tx":
			if err := engine.LoadTransactions(ctx); err != nil {
				fmt.Println("error:", domain.FailureMessage(err))
				continue
			}
			printTransactions(engine)

		case "create":
			if len(args) != 2 {
				fmt.Println("usage: create <type> <initial>")
				continue
			}
			initial, err := decimal.NewFromString(args[1])
			if err != nil {
				fmt.Println("error: bad amount:", args[1])
				continue
			}
			banking.OpenCreateAccountModal()
			banking.CreateAccountForm = domain.CreateAccountForm{
				AccountType:    strings.ToUpper(args[0]),
				InitialBalance: initial,
			}
			if err := banking.CreateAccount(ctx); err != nil {
				fmt.Println("error:", domain.FailureMessage(err))
				continue
			}
			fmt.Println(tracker.Notice(service.OpCreateAccount))
			printAccounts(engine)

		case "deposit", "withdraw":
			if len(args) != 1 {
				fmt.Println("usage:", cmd, "<amount>")
				continue
			}
			amount, err := decimal.NewFromString(args[0])
			if err != nil {
				fmt.Println("error: bad amount:", args[0])
				continue
			}
			selected := engine.SelectedAccount()
			if selected == nil {
				fmt.Println("error: no account selected")
				continue
			}
			var op string
			if cmd == "deposit" {
				if err := banking.OpenDepositModal(ctx, selected.AccountNumber); err != nil {
					fmt.Println("error:", domain.FailureMessage(err))
					continue
				}
				banking.DepositForm.Amount = amount
				err = banking.Deposit(ctx)
				op = service.OpDeposit
			} else {
				if err := banking.OpenWithdrawModal(ctx, selected.AccountNumber); err != nil {
					fmt.Println("error:", domain.FailureMessage(err))
					continue
				}
				banking.WithdrawForm.Amount = amount
				err = banking.Withdraw(ctx)
				op = service.OpWithdraw
			}
			if err != nil {
				fmt.Println("error:", domain.FailureMessage(err))
				continue
			}
			fmt.Println(tracker.Notice(op))
			printAccounts(engine)

		case "transfer":
			if len(args) < 3 {
				fmt.Println("usage: transfer <from> <to> <amount> [description...]")
				continue
			}
			amount, err := decimal.NewFromString(args[2])
			if err != nil {
				fmt.Println("error: bad amount:", args[2])
				continue
			}
			banking.OpenTransferModal()
			banking.TransferForm = domain.TransferForm{
				FromAccount: args[0],
				ToAccount:   args[1],
				Amount:      amount,
				Description: strings.Join(args[3:], " "),
			}
			if err := banking.Transfer(ctx); err != nil {
				fmt.Println("error:", domain.FailureMessage(err))
				continue
			}
			fmt.Println(tracker.Notice(service.OpTransfer))
			printAccounts(engine)

		case "balance":
			number := ""
			if len(args) == 1 {
				number = args[0]
			} else if selected := engine.SelectedAccount(); selected != nil {
				number = selected.AccountNumber
			}
			if number == "" {
				fmt.Println("error: no account selected")
				continue
			}
			balance, err := ledgerAPI.Balance(ctx, number)
			if err != nil {
				fmt.Println("error:", domain.FailureMessage(err))
				continue
			}
			fmt.Printf("%s: $%s\n", number, balance.StringFixed(2))

		case "status":
			printStatus(session, engine, tracker)

		default:
			fmt.Println("unknown command; type 'help'")
		}
	}
}

func printAccounts(engine *service.SyncEngine) {
	view := engine.Snapshot()
	if len(view.Accounts) == 0 {
		fmt.Println("no accounts")
		return
	}
	for _, a := range view.Accounts {
		marker := " "
		if view.Selected != nil && view.Selected.AccountNumber == a.AccountNumber {
			marker = "*"
		}
		fmt.Printf("%s %-16s %-10s $%s\n", marker, a.AccountNumber, a.AccountType, a.Balance.StringFixed(2))
	}
	fmt.Printf("  total: $%s\n", view.TotalBalance.StringFixed(2))
}

func printTransactions(engine *service.SyncEngine) {
	view := engine.Snapshot()
	if view.Selected == nil {
		fmt.Println("no account selected")
		return
	}
	if len(view.Transactions) == 0 {
		fmt.Println("no transactions for", view.Selected.AccountNumber)
		return
	}
	for _, t := range view.Transactions {
		fmt.Printf("%s %-12s $%-12s %s %s\n",
			t.Display.Icon, t.Display.Label, t.Amount.StringFixed(2), t.Timestamp, t.Description)
	}
}

func printStatus(session *service.SessionManager, engine *service.SyncEngine, tracker *lifecycle.Tracker) {
	if user := session.CurrentUser(); user != nil {
		fmt.Printf("logged in as %s (id %s)\n", user.Username, user.UserID)
	} else {
		fmt.Println("anonymous")
	}
	view := engine.Snapshot()
	fmt.Printf("accounts: %d, total: $%s\n", len(view.Accounts), view.TotalBalance.StringFixed(2))

	ops := []string{
		service.OpLogin, service.OpRegister,
		service.OpLoadAccounts, service.OpLoadTransactions,
		service.OpCreateAccount, service.OpDeposit, service.OpWithdraw, service.OpTransfer,
	}
	for _, op := range ops {
		st := tracker.Status(op)
		if st.Loading || st.LastError != "" || st.Notice != "" {
			fmt.Printf("  %-18s loading=%v err=%q notice=%q\n", op, st.Loading, st.LastError, st.Notice)
		}
	}
}
