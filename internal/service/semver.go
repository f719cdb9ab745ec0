package service

import (
	"fmt"

	"github.com/Masterminds/semver/v3"

	"novaupdate/internal/domain"
)

// parseVersion разбирает строку версии. Неразборчивая строка — ошибка
// входных данных, а не внутренняя: клиенты присылают версии в запросах.
func parseVersion(s string) (*semver.Version, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty version string", domain.ErrBadInput)
	}
	v, err := semver.NewVersion(s)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid version string %q: %v", domain.ErrBadInput, s, err)
	}
	return v, nil
}
