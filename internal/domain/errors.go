package domain

import "errors"

// Определение общих ошибок движка обновлений. Хендлеры сопоставляют их
// с HTTP статусами через errors.Is.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrRateLimited = errors.New("rate limit exceeded")
	ErrBadInput    = errors.New("malformed input")
	ErrStorage     = errors.New("storage operation failed")
)
