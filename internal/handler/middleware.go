package handler

import (
	"net/http"
	"strconv"

	"novaupdate/internal/auth"
	"novaupdate/internal/ratelimit"
)

// RateLimitMiddleware ограничивает частоту запросов категории эндпоинтов.
// Заголовки X-RateLimit-* выставляются на каждый ответ, успешный и нет.
func RateLimitMiddleware(limiter *ratelimit.Limiter, category ratelimit.Category) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := limiter.CheckAndConsume(r.Context(), auth.ClientID(r), auth.ClientIP(r), category)

			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.Itoa(decision.ResetSeconds()))

			if !decision.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(decision.ResetSeconds()))
				writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
					"error":               "rate_limited",
					"message":             decision.Message,
					"retry_after_seconds": decision.ResetSeconds(),
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
