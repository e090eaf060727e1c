package spam

import (
	"strings"
	"time"
)

// Причины блокировки отправки.
const (
	ReasonHoneypot     = "honeypot"
	ReasonRateLimit    = "rate_limit"
	ReasonTooFast      = "too_fast"
	ReasonTokenExpired = "token_expired"
)

const (
	// MinFillDuration - минимальное время заполнения формы человеком.
	MinFillDuration = 3000 * time.Millisecond
	// MaxFormAge - максимальный возраст загруженной формы.
	MaxFormAge = 30 * time.Minute
)

// CheckHoneypot сообщает, заполнено ли скрытое поле формы.
func CheckHoneypot(value string) bool {
	return strings.TrimSpace(value) != ""
}

// CheckTimestamp проверяет время, прошедшее с загрузки формы.
// Отсутствующая метка времени не считается признаком спама.
func CheckTimestamp(formLoadedAt, now time.Time) (bool, string) {
	if formLoadedAt.IsZero() {
		return false, ""
	}

	elapsed := now.Sub(formLoadedAt)
	switch {
	case elapsed < MinFillDuration:
		return true, ReasonTooFast
	case elapsed > MaxFormAge:
		return true, ReasonTokenExpired
	default:
		return false, ""
	}
}

// FromUnixMilli переводит метку времени клиента в миллисекундах во время.
// Неположительное значение означает отсутствие метки.
func FromUnixMilli(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
