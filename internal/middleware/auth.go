// Package middleware содержит HTTP middleware сервиса приёма заявок.
package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// SessionCookieName - имя cookie с сессией доступа к сайту.
	SessionCookieName = "nf_session"
	// SessionTTL - срок жизни сессии.
	SessionTTL = 7 * 24 * time.Hour

	// AdminPasswordHeader - заголовок с паролем администратора.
	AdminPasswordHeader = "x-admin-password"
	adminKeyParam       = "key"

	sessionSubject = "site"
)

const unauthorizedMessage = "Accès non autorisé"

// SessionAuth защищает сайт общим паролем. После ввода пароля клиент получает
// подписанный JWT в HttpOnly cookie.
type SessionAuth struct {
	password  string
	secretKey []byte
	now       func() time.Time
}

// NewSessionAuth создаёт проверку по общему паролю. Пустой пароль отключает проверку.
// Если секрет не задан, генерируется случайный ключ и сессии не переживают перезапуск.
func NewSessionAuth(password, secret string) *SessionAuth {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte(password)
		}
	}

	return &SessionAuth{
		password:  password,
		secretKey: key,
		now:       time.Now,
	}
}

// WithClock подменяет источник времени, используется в тестах.
func (a *SessionAuth) WithClock(now func() time.Time) *SessionAuth {
	if now != nil {
		a.now = now
	}
	return a
}

// Enabled сообщает, включена ли защита паролем.
func (a *SessionAuth) Enabled() bool {
	return a.password != ""
}

// CheckPassword сравнивает пароль с общим паролем сайта за постоянное время.
func (a *SessionAuth) CheckPassword(password string) bool {
	if !a.Enabled() {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(a.password)) == 1
}

// SetSessionCookie выдаёт cookie сессии.
func (a *SessionAuth) SetSessionCookie(w http.ResponseWriter, secure bool) error {
	now := a.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sessionSubject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(SessionTTL)),
	})

	signed, err := token.SignedString(a.secretKey)
	if err != nil {
		return fmt.Errorf("sign session token: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    signed,
		Path:     "/",
		Expires:  now.Add(SessionTTL),
		MaxAge:   int(SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// ClearSessionCookie удаляет cookie сессии.
func (a *SessionAuth) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// Authenticated сообщает, есть ли у запроса действующая сессия. При отключённой
// защите всегда true.
func (a *SessionAuth) Authenticated(r *http.Request) bool {
	if !a.Enabled() {
		return true
	}

	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return false
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(cookie.Value, claims, func(*jwt.Token) (any, error) {
		return a.secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return false
	}

	return claims.Subject == sessionSubject
}

// Middleware пропускает запрос только при действующей сессии.
func (a *SessionAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Authenticated(r) {
			writeError(w, http.StatusUnauthorized, unauthorizedMessage)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AdminAuth проверяет общий пароль администратора из заголовка x-admin-password
// или параметра key. Без настроенного пароля доступ закрыт.
type AdminAuth struct {
	password string
}

// NewAdminAuth создаёт проверку пароля администратора.
func NewAdminAuth(password string) *AdminAuth {
	return &AdminAuth{password: password}
}

// Authorized сообщает, предъявлен ли верный пароль администратора.
func (a *AdminAuth) Authorized(r *http.Request) bool {
	if a.password == "" {
		return false
	}

	got := r.Header.Get(AdminPasswordHeader)
	if got == "" {
		got = r.URL.Query().Get(adminKeyParam)
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(a.password)) == 1
}

// Middleware пропускает запрос только с верным паролем администратора.
func (a *AdminAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Authorized(r) {
			writeError(w, http.StatusUnauthorized, unauthorizedMessage)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
