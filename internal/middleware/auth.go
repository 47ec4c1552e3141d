// Package middleware содержит HTTP middleware сервиса лояльности.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type contextKey string

const adminKey contextKey = "admin"

const (
	authCookieName = "admin_token"
	authCookieTTL  = 12 * time.Hour
)

// AuthMiddleware пускает в админские маршруты по подписанному cookie.
type AuthMiddleware struct {
	secret    []byte
	secretKey []byte
	now       func() time.Time
}

// NewAuthMiddleware создаёт AuthMiddleware. Пустой секрет отключает вход в админку.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &AuthMiddleware{
		secret:    []byte(secret),
		secretKey: key,
		now:       time.Now,
	}
}

// CheckSecret сравнивает предъявленный секрет с настроенным.
func (a *AuthMiddleware) CheckSecret(secret string) bool {
	if len(a.secret) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(a.secret, []byte(secret)) == 1
}

// Middleware проверяет cookie и добавляет имя администратора в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(authCookieName)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		admin, ok := a.parseCookie(cookie.Value)
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), adminKey, admin)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SetAuthCookie выдаёт cookie администратору с указанным именем.
func (a *AuthMiddleware) SetAuthCookie(w http.ResponseWriter, admin string) {
	issued := a.now()

	cookie := &http.Cookie{
		Name:     authCookieName,
		Value:    a.sign(admin, issued.Unix()),
		Path:     "/api/admin",
		Expires:  issued.Add(authCookieTTL),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}

	http.SetCookie(w, cookie)
}

// значение cookie: имя.время-выдачи.подпись
func (a *AuthMiddleware) sign(admin string, issuedAt int64) string {
	payload := admin + "." + strconv.FormatInt(issuedAt, 10)
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(payload))
	return payload + "." + hex.EncodeToString(mac.Sum(nil))
}

func (a *AuthMiddleware) parseCookie(value string) (string, bool) {
	parts := strings.Split(value, ".")
	if len(parts) != 3 || parts[0] == "" {
		return "", false
	}

	issuedAt, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", false
	}

	expected := a.sign(parts[0], issuedAt)
	if !hmac.Equal([]byte(value), []byte(expected)) {
		return "", false
	}

	if a.now().Sub(time.Unix(issuedAt, 0)) > authCookieTTL {
		return "", false
	}

	return parts[0], true
}

// GetAdminFromContext извлекает имя администратора из контекста запроса.
func GetAdminFromContext(ctx context.Context) (string, bool) {
	admin, ok := ctx.Value(adminKey).(string)
	return admin, ok
}
