package service

import (
	"context"
	"sync"
	"time"

	"github.com/ferrao/bankctl-go/internal/domain"
	"github.com/ferrao/bankctl-go/internal/infra/lifecycle"
	"github.com/ferrao/bankctl-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var sessionTracer = otel.Tracer("service/session")

// Auth modes for the login/register surface.
const (
	AuthModeLogin    = "login"
	AuthModeRegister = "register"
)

const noticeTTL = 3 * time.Second

// SessionManager owns the anonymous ↔ authenticated state machine:
// login, registration, logout and restoring a persisted session at
// startup. A successful login or restore triggers the full data load.
//
// Remote failures are recorded on the lifecycle tracker (the error
// channel the presentation layer polls) and additionally returned to
// the immediate caller; they never escalate past this boundary.
type SessionManager struct {
	ledger  port.LedgerAPI
	store   port.CredentialStore
	engine  *SyncEngine
	tracker *lifecycle.Tracker
	logger  *zap.Logger

	mu       sync.RWMutex
	user     *domain.User
	authMode string

	LoginForm    domain.LoginForm
	RegisterForm domain.RegisterForm
}

// NewSessionManager creates the session manager.
func NewSessionManager(ledger port.LedgerAPI, store port.CredentialStore, engine *SyncEngine, tracker *lifecycle.Tracker, logger *zap.Logger) *SessionManager {
	return &SessionManager{
		ledger:   ledger,
		store:    store,
		engine:   engine,
		tracker:  tracker,
		logger:   logger,
		authMode: AuthModeLogin,
	}
}

// Authenticated reports whether a user is logged in.
func (m *SessionManager) Authenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user != nil
}

// CurrentUser returns a copy of the authenticated user, or nil.
func (m *SessionManager) CurrentUser() *domain.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return nil
	}
	user := *m.user
	return &user
}

// Username returns the authenticated username, or "" when anonymous.
func (m *SessionManager) Username() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return ""
	}
	return m.user.Username
}

// AuthMode returns the current auth surface mode (login or register).
func (m *SessionManager) AuthMode() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.authMode
}

// SetAuthMode switches the auth surface between login and register.
func (m *SessionManager) SetAuthMode(mode string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authMode = mode
}

// Login sends the staged credentials to the ledger. On success it
// establishes the session, persists it, resets the form and triggers
// the full data load. On failure the session stays anonymous and the
// message lands in the tracker's error slot for the operation.
func (m *SessionManager) Login(ctx context.Context) error {
	ctx, span := sessionTracer.Start(ctx, "SessionManager.Login")
	defer span.End()

	m.mu.RLock()
	form := m.LoginForm
	m.mu.RUnlock()
	span.SetAttributes(attribute.String("username", form.Username))

	return m.tracker.RunExclusive(ctx, OpLogin, func(ctx context.Context) error {
		user, err := m.ledger.Login(ctx, form)
		if err != nil {
			m.logger.Warn("login failed",
				zap.String("username", form.Username),
				zap.Error(err),
			)
			return err
		}

		m.mu.Lock()
		m.user = user
		m.LoginForm.Reset()
		m.mu.Unlock()

		if err := m.store.Save(user); err != nil {
			// The session is live either way; persistence is best effort.
			m.logger.Warn("could not persist session", zap.Error(err))
		}

		m.engine.SetUser(user.Username)
		m.tracker.SetNotice(OpLogin, "Login successful!", noticeTTL)
		m.logger.Info("user logged in",
			zap.String("username", user.Username),
			zap.String("user_id", user.UserID.String()),
		)

		if err := m.engine.LoadUserData(ctx); err != nil {
			// Session is established; the load can be retried.
			m.logger.Warn("initial data load failed", zap.Error(err))
		}
		return nil
	})
}

// Register sends the staged profile to the ledger. On success it resets
// the form and switches the auth surface to login; it does not
// authenticate.
func (m *SessionManager) Register(ctx context.Context) error {
	ctx, span := sessionTracer.Start(ctx, "SessionManager.Register")
	defer span.End()

	m.mu.RLock()
	form := m.RegisterForm
	m.mu.RUnlock()
	span.SetAttributes(attribute.String("username", form.Username))

	return m.tracker.RunExclusive(ctx, OpRegister, func(ctx context.Context) error {
		if err := m.ledger.Register(ctx, form); err != nil {
			m.logger.Warn("registration failed",
				zap.String("username", form.Username),
				zap.Error(err),
			)
			return err
		}

		m.mu.Lock()
		m.RegisterForm.Reset()
		m.authMode = AuthModeLogin
		m.mu.Unlock()

		m.tracker.SetNotice(OpRegister, "Registration successful! Please login.", noticeTTL)
		m.logger.Info("user registered", zap.String("username", form.Username))
		return nil
	})
}

// Logout clears the session, all synchronized state and the persisted
// credential store. No remote call; it always succeeds.
func (m *SessionManager) Logout() {
	m.mu.Lock()
	username := ""
	if m.user != nil {
		username = m.user.Username
	}
	m.user = nil
	m.authMode = AuthModeLogin
	m.mu.Unlock()

	m.engine.Reset()
	if err := m.store.Clear(); err != nil {
		m.logger.Warn("could not clear persisted session", zap.Error(err))
	}

	m.tracker.SetNotice(OpLogin, "Logged out successfully!", noticeTTL)
	if username != "" {
		m.logger.Info("user logged out", zap.String("username", username))
	}
}

// Restore reads the persisted session at startup. A well-formed record
// re-establishes the session and triggers the data load; a corrupt one
// is discarded and the client stays anonymous. Restore never returns a
// parse failure to the caller.
func (m *SessionManager) Restore(ctx context.Context) {
	ctx, span := sessionTracer.Start(ctx, "SessionManager.Restore")
	defer span.End()

	user, err := m.store.Load()
	if err != nil {
		m.logger.Warn("discarding corrupt persisted session", zap.Error(err))
		if clearErr := m.store.Clear(); clearErr != nil {
			m.logger.Warn("could not clear persisted session", zap.Error(clearErr))
		}
		return
	}
	if user == nil {
		return
	}

	m.mu.Lock()
	m.user = user
	m.mu.Unlock()

	m.engine.SetUser(user.Username)
	m.logger.Info("session restored", zap.String("username", user.Username))

	if err := m.engine.LoadUserData(ctx); err != nil {
		m.logger.Warn("data load after restore failed", zap.Error(err))
	}
}
