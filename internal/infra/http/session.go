package http

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

type ctxKey int

const userIDKey ctxKey = iota

// SessionToken формирует подписанный токен для пользователя.
// Формат: "<userID>:<hex(hmac-sha256(userID, secret))>".
func SessionToken(userID int64, secret string) string {
	id := strconv.FormatInt(userID, 10)
	return id + ":" + signUserID(id, secret)
}

// SessionAuthMiddleware проверяет подписанный токен сессии из заголовка
// X-Session и кладёт идентификатор пользователя в контекст запроса.
// Управление сессиями и выдача токенов живут во внешнем слое авторизации.
func SessionAuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get("X-Session")
			if token == "" {
				WriteError(w, http.StatusUnauthorized, "сессия отсутствует")
				return
			}
			userID, ok := validateSessionToken(token, secret)
			if !ok {
				WriteError(w, http.StatusUnauthorized, "подпись недействительна")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
		})
	}
}

// UserIDFromContext возвращает идентификатор пользователя из контекста.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}

func validateSessionToken(token, secret string) (int64, bool) {
	parts := strings.SplitN(token, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	expected := signUserID(parts[0], secret)
	if !hmac.Equal([]byte(expected), []byte(parts[1])) {
		return 0, false
	}
	userID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || userID <= 0 {
		return 0, false
	}
	return userID, true
}

func signUserID(id, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	fmt.Fprint(h, id)
	return hex.EncodeToString(h.Sum(nil))
}
