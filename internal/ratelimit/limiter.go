package ratelimit

import (
	"context"
	"fmt"
	"log"
	"time"

	"novaupdate/internal/config"
)

// Category — категория эндпоинтов со своим профилем стоимости
type Category string

const (
	CategoryMetadata      Category = "metadata"
	CategoryCompatibility Category = "compatibility"
	CategoryDelta         Category = "delta"
)

// Decision — результат проверки лимита для одного запроса
type Decision struct {
	Allowed   bool          `json:"allowed"`
	Remaining int           `json:"remaining"`
	ResetIn   time.Duration `json:"-"`
	Message   string        `json:"message,omitempty"`
}

// ResetSeconds возвращает время до сброса окна в целых секундах (не меньше 1)
func (d Decision) ResetSeconds() int {
	s := int(d.ResetIn / time.Second)
	if d.ResetIn%time.Second > 0 || s == 0 {
		s++
	}
	return s
}

// Store хранит счетчики фиксированных окон. Incr атомарно начинает новое
// окно либо увеличивает счетчик текущего и возвращает новое значение вместе
// с остатком окна.
type Store interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, remaining time.Duration, err error)
}

// Limiter ограничивает частоту запросов по (клиент, категория).
// Категории настраиваются независимо: генерация дельты дорогая,
// чтение метаданных дешевое.
type Limiter struct {
	store Store
	rules map[Category]config.CategoryLimit
}

func NewLimiter(store Store, cfg config.RateLimitConfig) *Limiter {
	return &Limiter{
		store: store,
		rules: map[Category]config.CategoryLimit{
			CategoryMetadata:      cfg.Metadata,
			CategoryCompatibility: cfg.Compatibility,
			CategoryDelta:         cfg.Delta,
		},
	}
}

// CheckAndConsume проверяет и расходует одну единицу лимита.
// Идентификация по clientID, при его отсутствии по IP. При отказе хранилища
// счетчиков поведение определяется политикой категории: дорогие категории
// закрываются (fail closed), дешевые пропускают (fail open).
func (l *Limiter) CheckAndConsume(ctx context.Context, clientID, clientIP string, category Category) Decision {
	rule, ok := l.rules[category]
	if !ok {
		return Decision{Allowed: false, Message: fmt.Sprintf("unknown endpoint category: %s", category)}
	}

	ident := clientID
	if ident == "" {
		ident = clientIP
	}
	key := fmt.Sprintf("%s:%s:%s", ident, clientIP, category)

	count, remaining, err := l.store.Incr(ctx, key, rule.Window())
	if err != nil {
		log.Printf("[RateLimit] Store error for %s: %v (fail open=%v)", key, err, rule.FailOpen)
		if rule.FailOpen {
			return Decision{Allowed: true, Remaining: rule.Limit, ResetIn: rule.Window()}
		}
		return Decision{
			Allowed: false,
			ResetIn: rule.Window(),
			Message: "rate limiter unavailable, request rejected",
		}
	}

	if count > int64(rule.Limit) {
		return Decision{
			Allowed: false,
			ResetIn: remaining,
			Message: fmt.Sprintf("rate limit of %d requests per %s exceeded for %s endpoints, retry later",
				rule.Limit, rule.Window(), category),
		}
	}

	return Decision{
		Allowed:   true,
		Remaining: rule.Limit - int(count),
		ResetIn:   remaining,
	}
}
