// Package verification реализует выдачу и проверку одноразовых кодов подтверждения
// доступа к заявке по паре (номер заявки, email).
package verification

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nfsuisse/intake/internal/validation"
)

const (
	// CodeTTL - срок действия кода.
	CodeTTL = 10 * time.Minute
	// MaxAttempts - максимальное число попыток ввода кода.
	MaxAttempts = 5

	codeSpace = 1000000
)

var (
	// ErrNoCode возвращается, если код для пары не выдавался или уже удалён.
	ErrNoCode = errors.New("no code sent")
	// ErrExpired возвращается для просроченного кода.
	ErrExpired = errors.New("code expired")
	// ErrTooManyAttempts возвращается, если попытки исчерпаны.
	ErrTooManyAttempts = errors.New("too many attempts")
	// ErrInvalidCode возвращается при несовпадении кода.
	ErrInvalidCode = errors.New("invalid code")
	// ErrMalformedCode возвращается, если код не состоит из шести цифр.
	ErrMalformedCode = errors.New("malformed code")
)

// InvalidCodeError сообщает о неверном коде и количестве оставшихся попыток.
type InvalidCodeError struct {
	Remaining int
}

func (e *InvalidCodeError) Error() string {
	return fmt.Sprintf("invalid code, %d attempts remaining", e.Remaining)
}

// Is позволяет сравнивать ошибку с ErrInvalidCode через errors.Is.
func (e *InvalidCodeError) Is(target error) bool {
	return target == ErrInvalidCode
}

// Entry - сохранённый код подтверждения.
type Entry struct {
	Reference string
	Email     string
	Code      string
	ExpiresAt time.Time
	Attempts  int
	Verified  bool
}

// Store хранит коды подтверждения.
type Store interface {
	Save(ctx context.Context, key string, e Entry) error
	// Load возвращает ErrNoCode, если записи нет.
	Load(ctx context.Context, key string) (*Entry, error)
	Delete(ctx context.Context, key string) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// Manager выдаёт и проверяет коды подтверждения.
type Manager struct {
	// Сериализует чтение-изменение-запись счётчика попыток.
	mu     sync.Mutex
	store  Store
	logger *zap.Logger
	now    func() time.Time
	random io.Reader
}

// NewManager создаёт менеджер кодов поверх указанного хранилища.
func NewManager(store Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:  store,
		logger: logger,
		now:    time.Now,
		random: rand.Reader,
	}
}

// WithClock подменяет источник времени, используется в тестах.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	if now != nil {
		m.now = now
	}
	return m
}

// Key строит ключ хранения по номеру заявки и email.
func Key(reference, email string) string {
	return strings.ToLower(strings.TrimSpace(reference)) + "|" + validation.NormalizeEmail(email)
}

// Issue выдаёт новый шестизначный код, заменяя ранее выданный для той же пары.
func (m *Manager) Issue(ctx context.Context, reference, email string) (string, error) {
	n, err := rand.Int(m.random, big.NewInt(codeSpace))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	code := fmt.Sprintf("%06d", n.Int64())

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if removed, err := m.store.DeleteExpired(ctx, now); err != nil {
		m.logger.Warn("verification sweep failed", zap.Error(err))
	} else if removed > 0 {
		m.logger.Debug("expired verification codes removed", zap.Int("count", removed))
	}

	entry := Entry{
		Reference: strings.TrimSpace(reference),
		Email:     validation.NormalizeEmail(email),
		Code:      code,
		ExpiresAt: now.Add(CodeTTL),
	}
	if err := m.store.Save(ctx, Key(reference, email), entry); err != nil {
		return "", fmt.Errorf("save code: %w", err)
	}

	return code, nil
}

// Verify проверяет код. Просроченная запись и запись с исчерпанными попытками удаляются.
// После успешной проверки запись сохраняется до истечения срока, чтобы IsAuthorized
// видел признак подтверждения.
func (m *Manager) Verify(ctx context.Context, reference, email, code string) error {
	code = strings.TrimSpace(code)
	if !validation.IsVerificationCode(code) {
		return ErrMalformedCode
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := Key(reference, email)
	entry, err := m.store.Load(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNoCode) {
			return ErrNoCode
		}
		return fmt.Errorf("load code: %w", err)
	}

	if !m.now().Before(entry.ExpiresAt) {
		m.delete(ctx, key)
		return ErrExpired
	}

	if entry.Attempts >= MaxAttempts {
		m.delete(ctx, key)
		return ErrTooManyAttempts
	}

	entry.Attempts++

	if subtle.ConstantTimeCompare([]byte(code), []byte(entry.Code)) != 1 {
		remaining := MaxAttempts - entry.Attempts
		if remaining <= 0 {
			m.delete(ctx, key)
			return &InvalidCodeError{Remaining: 0}
		}
		if err := m.store.Save(ctx, key, *entry); err != nil {
			return fmt.Errorf("save attempts: %w", err)
		}
		return &InvalidCodeError{Remaining: remaining}
	}

	entry.Verified = true
	if err := m.store.Save(ctx, key, *entry); err != nil {
		return fmt.Errorf("save verified code: %w", err)
	}
	return nil
}

// IsAuthorized сообщает, подтверждён ли доступ к заявке для указанного email.
func (m *Manager) IsAuthorized(ctx context.Context, reference, email string) bool {
	entry, err := m.store.Load(ctx, Key(reference, email))
	if err != nil {
		if !errors.Is(err, ErrNoCode) {
			m.logger.Warn("load verification code failed", zap.Error(err))
		}
		return false
	}
	return entry.Verified && m.now().Before(entry.ExpiresAt)
}

// Sweep удаляет просроченные коды.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.DeleteExpired(ctx, m.now())
}

func (m *Manager) delete(ctx context.Context, key string) {
	if err := m.store.Delete(ctx, key); err != nil {
		m.logger.Warn("delete verification code failed", zap.Error(err))
	}
}
