package middleware

import (
	"crypto/subtle"
	"net/http"
)

// APIKeyHeader заголовок, в котором сервис оформления заказов передаёт ключ.
const APIKeyHeader = "X-API-Key"

// APIKeyMiddleware пускает в служебные маршруты по общему ключу сервиса.
type APIKeyMiddleware struct {
	key []byte
}

// NewAPIKeyMiddleware создаёт APIKeyMiddleware. Пустой ключ закрывает маршруты для всех.
func NewAPIKeyMiddleware(key string) *APIKeyMiddleware {
	return &APIKeyMiddleware{key: []byte(key)}
}

// Middleware проверяет ключ из заголовка X-API-Key.
func (a *APIKeyMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.valid(r.Header.Get(APIKeyHeader)) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *APIKeyMiddleware) valid(key string) bool {
	if a == nil || len(a.key) == 0 || key == "" {
		return false
	}
	return subtle.ConstantTimeCompare(a.key, []byte(key)) == 1
}
