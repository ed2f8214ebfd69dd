package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ferrao/bankctl-go/internal/domain"
	"github.com/ferrao/bankctl-go/internal/infra/lifecycle"
	"github.com/ferrao/bankctl-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var bankTracer = otel.Tracer("service/banking")

// Notice lifetimes. Account creation shows its new account number, so
// it stays up a little longer.
const (
	mutationNoticeTTL      = 3 * time.Second
	createAccountNoticeTTL = 5 * time.Second
)

// ErrNoSelection is returned when a money-movement operation is
// triggered with no account selected.
var ErrNoSelection = errors.New("no account selected")

// Modals mirrors which input surface is currently open.
type Modals struct {
	CreateAccount bool `json:"create_account"`
	Deposit       bool `json:"deposit"`
	Withdraw      bool `json:"withdraw"`
	Transfer      bool `json:"transfer"`
}

// BankingService executes the user-initiated money-movement operations:
// deposit, withdraw, transfer and account creation. Each issues exactly
// one remote call through the lifecycle tracker's single-flight gate
// and, only on a declared success, closes its modal, publishes a
// self-clearing notice, resets its form buffer and reconciles by
// reloading all user data. On failure none of that happens: the modal
// stays open and the form keeps its values for retry.
//
// No amount validation happens here; sufficient funds and account
// validity are the ledger's business rules, surfaced as error messages.
type BankingService struct {
	ledger  port.LedgerAPI
	engine  *SyncEngine
	session *SessionManager
	tracker *lifecycle.Tracker
	logger  *zap.Logger

	mu     sync.Mutex
	modals Modals

	CreateAccountForm domain.CreateAccountForm
	DepositForm       domain.DepositForm
	WithdrawForm      domain.WithdrawForm
	TransferForm      domain.TransferForm
}

// NewBankingService creates the banking operations service.
func NewBankingService(ledger port.LedgerAPI, engine *SyncEngine, session *SessionManager, tracker *lifecycle.Tracker, logger *zap.Logger) *BankingService {
	s := &BankingService{
		ledger:  ledger,
		engine:  engine,
		session: session,
		tracker: tracker,
		logger:  logger,
	}
	s.CreateAccountForm.Reset()
	s.DepositForm.Reset()
	s.WithdrawForm.Reset()
	s.TransferForm.Reset()
	return s
}

// ModalState returns which input surfaces are open.
func (s *BankingService) ModalState() Modals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modals
}

// ============================================================
// Modal helpers
// ============================================================

// OpenCreateAccountModal resets the form and opens the surface.
func (s *BankingService) OpenCreateAccountModal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CreateAccountForm.Reset()
	s.modals.CreateAccount = true
}

// OpenDepositModal selects the target account and opens the surface.
func (s *BankingService) OpenDepositModal(ctx context.Context, accountNumber string) error {
	if err := s.engine.SelectAccount(ctx, accountNumber); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DepositForm.Reset()
	s.modals.Deposit = true
	return nil
}

// OpenWithdrawModal selects the target account and opens the surface.
func (s *BankingService) OpenWithdrawModal(ctx context.Context, accountNumber string) error {
	if err := s.engine.SelectAccount(ctx, accountNumber); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.WithdrawForm.Reset()
	s.modals.Withdraw = true
	return nil
}

// OpenTransferModal opens the surface with the source account defaulted
// to the current selection.
func (s *BankingService) OpenTransferModal() {
	from := ""
	if selected := s.engine.SelectedAccount(); selected != nil {
		from = selected.AccountNumber
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TransferForm.Reset()
	s.TransferForm.FromAccount = from
	s.modals.Transfer = true
}

// CloseModals closes all input surfaces without submitting.
func (s *BankingService) CloseModals() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modals = Modals{}
}

// ============================================================
// Mutation operations
// ============================================================

// CreateAccount opens a new account for the authenticated user.
func (s *BankingService) CreateAccount(ctx context.Context) error {
	ctx, span := bankTracer.Start(ctx, "BankingService.CreateAccount")
	defer span.End()

	username := s.session.Username()
	s.mu.Lock()
	form := s.CreateAccountForm
	s.mu.Unlock()
	span.SetAttributes(attribute.String("account_type", form.AccountType))

	return s.tracker.RunExclusive(ctx, OpCreateAccount, func(ctx context.Context) error {
		accountNumber, err := s.ledger.CreateAccount(ctx, username, form)
		if err != nil {
			s.logger.Warn("account creation failed", zap.Error(err))
			return err
		}

		s.mu.Lock()
		s.modals.CreateAccount = false
		s.CreateAccountForm.Reset()
		s.mu.Unlock()

		s.tracker.SetNotice(OpCreateAccount,
			fmt.Sprintf("Account created successfully! Account Number: %s", accountNumber),
			createAccountNoticeTTL,
		)
		s.logger.Info("account created",
			zap.String("username", username),
			zap.String("account_number", accountNumber),
		)

		s.reconcile(ctx, OpCreateAccount)
		return nil
	})
}

// Deposit credits the selected account and reconciles.
func (s *BankingService) Deposit(ctx context.Context) error {
	ctx, span := bankTracer.Start(ctx, "BankingService.Deposit")
	defer span.End()

	selected := s.engine.SelectedAccount()
	s.mu.Lock()
	form := s.DepositForm
	s.mu.Unlock()

	return s.tracker.RunExclusive(ctx, OpDeposit, func(ctx context.Context) error {
		if selected == nil {
			return ErrNoSelection
		}
		span.SetAttributes(attribute.String("account_number", selected.AccountNumber))

		newBalance, err := s.ledger.Deposit(ctx, selected.AccountNumber, form.Amount, "Deposit")
		if err != nil {
			s.logger.Warn("deposit failed",
				zap.String("account_number", selected.AccountNumber),
				zap.Error(err),
			)
			return err
		}

		s.mu.Lock()
		s.modals.Deposit = false
		s.DepositForm.Reset()
		s.mu.Unlock()

		s.tracker.SetNotice(OpDeposit,
			fmt.Sprintf("Deposit successful! New balance: $%s", newBalance.StringFixed(2)),
			mutationNoticeTTL,
		)
		s.logger.Info("deposit confirmed",
			zap.String("account_number", selected.AccountNumber),
			zap.String("new_balance", newBalance.String()),
		)

		s.reconcile(ctx, OpDeposit)
		return nil
	})
}

// Withdraw debits the selected account and reconciles. Sufficient
// funds are enforced remotely; a rejection surfaces as the error
// message and leaves the modal and form untouched.
func (s *BankingService) Withdraw(ctx context.Context) error {
	ctx, span := bankTracer.Start(ctx, "BankingService.Withdraw")
	defer span.End()

	selected := s.engine.SelectedAccount()
	s.mu.Lock()
	form := s.WithdrawForm
	s.mu.Unlock()

	return s.tracker.RunExclusive(ctx, OpWithdraw, func(ctx context.Context) error {
		if selected == nil {
			return ErrNoSelection
		}
		span.SetAttributes(attribute.String("account_number", selected.AccountNumber))

		newBalance, err := s.ledger.Withdraw(ctx, selected.AccountNumber, form.Amount, "Withdrawal")
		if err != nil {
			s.logger.Warn("withdrawal failed",
				zap.String("account_number", selected.AccountNumber),
				zap.Error(err),
			)
			return err
		}

		s.mu.Lock()
		s.modals.Withdraw = false
		s.WithdrawForm.Reset()
		s.mu.Unlock()

		s.tracker.SetNotice(OpWithdraw,
			fmt.Sprintf("Withdrawal successful! New balance: $%s", newBalance.StringFixed(2)),
			mutationNoticeTTL,
		)
		s.logger.Info("withdrawal confirmed",
			zap.String("account_number", selected.AccountNumber),
			zap.String("new_balance", newBalance.String()),
		)

		s.reconcile(ctx, OpWithdraw)
		return nil
	})
}

// Transfer moves funds between two accounts and reconciles.
func (s *BankingService) Transfer(ctx context.Context) error {
	ctx, span := bankTracer.Start(ctx, "BankingService.Transfer")
	defer span.End()

	s.mu.Lock()
	form := s.TransferForm
	s.mu.Unlock()
	if form.Description == "" {
		form.Description = "Transfer"
	}
	span.SetAttributes(
		attribute.String("from_account", form.FromAccount),
		attribute.String("to_account", form.ToAccount),
	)

	return s.tracker.RunExclusive(ctx, OpTransfer, func(ctx context.Context) error {
		if err := s.ledger.Transfer(ctx, form); err != nil {
			s.logger.Warn("transfer failed",
				zap.String("from_account", form.FromAccount),
				zap.String("to_account", form.ToAccount),
				zap.Error(err),
			)
			return err
		}

		s.mu.Lock()
		s.modals.Transfer = false
		s.TransferForm.Reset()
		s.mu.Unlock()

		s.tracker.SetNotice(OpTransfer, "Transfer successful!", mutationNoticeTTL)
		s.logger.Info("transfer confirmed",
			zap.String("from_account", form.FromAccount),
			zap.String("to_account", form.ToAccount),
		)

		s.reconcile(ctx, OpTransfer)
		return nil
	})
}

// reconcile re-fetches all user data after a confirmed mutation. The
// mutation itself already succeeded; a reload failure is logged and
// retryable, not an operation failure.
func (s *BankingService) reconcile(ctx context.Context, op string) {
	if err := s.engine.LoadUserData(ctx); err != nil {
		s.logger.Warn("reconciliation reload failed",
			zap.String("operation", op),
			zap.Error(err),
		)
	}
}
