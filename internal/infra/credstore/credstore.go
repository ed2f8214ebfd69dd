// Package credstore persists the session record across restarts.
//
// The record is written as an HS256-signed token rather than raw JSON,
// so a truncated, edited or otherwise corrupt file fails verification
// at restore time instead of being half-trusted. The session manager
// treats any load error as "no session" and clears the file.
package credstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ferrao/bankctl-go/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// FileStore stores the signed session record in a single file.
type FileStore struct {
	path   string
	secret []byte
	mu     sync.Mutex
	logger *zap.Logger
}

// New creates a file-backed credential store at path.
func New(path, secret string, logger *zap.Logger) *FileStore {
	return &FileStore{path: path, secret: []byte(secret), logger: logger}
}

// Save signs and writes the session record, replacing any previous one.
func (s *FileStore) Save(user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	claims := jwt.MapClaims{
		"username": user.Username,
		"user_id":  string(user.UserID),
	}
	if user.Role != "" {
		claims["role"] = user.Role
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return fmt.Errorf("sign session: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(token), 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}

	s.logger.Debug("session persisted", zap.String("path", s.path))
	return nil
}

// Load reads and verifies the stored record. Returns (nil, nil) when
// nothing is stored; any verification failure is returned as an error
// so the caller can discard the file.
func (s *FileStore) Load() (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}

	token, err := jwt.Parse(strings.TrimSpace(string(raw)), func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse session: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("session claims malformed")
	}

	username, _ := claims["username"].(string)
	userID, _ := claims["user_id"].(string)
	role, _ := claims["role"].(string)
	if username == "" {
		return nil, errors.New("session missing username")
	}

	return &domain.User{
		Username: username,
		UserID:   domain.FlexID(userID),
		Role:     role,
	}, nil
}

// Clear removes the stored record. Missing file is not an error.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}
