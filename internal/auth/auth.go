package auth

import (
	"crypto/subtle"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Граница аутентификации: внешний шлюз уже проверил вызывающего и
// передает его идентификатор в заголовках. Здесь только извлечение.

// ClientID возвращает идентификатор клиента из заголовка X-Client-ID.
// Пустая строка означает неидентифицированного клиента — тогда
// ограничение запросов выполняется по IP.
func ClientID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Client-ID"))
}

// ClientIP извлекает IP клиента с учетом прокси
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// VerifyAdmin проверяет административный токен запроса
func VerifyAdmin(r *http.Request, adminToken string) (string, error) {
	if adminToken == "" {
		return "", fmt.Errorf("admin access is not configured")
	}
	token := r.Header.Get("X-Admin-Token")
	if token == "" {
		return "", fmt.Errorf("no admin token provided")
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(adminToken)) != 1 {
		return "", fmt.Errorf("invalid admin token")
	}
	admin := ClientID(r)
	if admin == "" {
		admin = "admin"
	}
	return admin, nil
}
