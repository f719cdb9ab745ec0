package service

import (
	"context"
	"fmt"

	"novaupdate/internal/domain"
)

// CompatibilityService оценивает совместимость клиента с целевой версией.
// Оценка — чистая функция от состояния каталога и заявленного окружения,
// никаких побочных эффектов и сохраняемого состояния.
type CompatibilityService struct {
	versions VersionStore
}

func NewCompatibilityService(versions VersionStore) *CompatibilityService {
	return &CompatibilityService{versions: versions}
}

// Evaluate вычисляет вердикт совместимости для пары (целевая версия, окружение)
func (s *CompatibilityService) Evaluate(ctx context.Context, targetVersion string, env domain.ClientEnvironment) (*domain.CompatibilityResult, error) {
	target, err := s.versions.GetByNumber(ctx, targetVersion)
	if err != nil {
		return nil, err
	}

	client, err := parseVersion(env.ClientVersion)
	if err != nil {
		return nil, err
	}

	result := &domain.CompatibilityResult{
		TargetVersion:     target.VersionNumber,
		ClientVersion:     env.ClientVersion,
		MinClientVersion:  target.MinClientVersion,
		RuntimeCompatible: true,
		OSCompatible:      true,
	}

	// Проверка минимальной версии клиента: слишком старый клиент не может
	// обновляться напрямую
	if target.MinClientVersion != "" {
		min, err := parseVersion(target.MinClientVersion)
		if err != nil {
			return nil, fmt.Errorf("catalog contains invalid min client version %q: %w", target.MinClientVersion, err)
		}
		if client.LessThan(min) {
			result.Issues = append(result.Issues, domain.CompatibilityIssue{
				Dimension: "client",
				Severity:  domain.WarningBlocking,
				Message: fmt.Sprintf("client version %s is older than minimum supported %s",
					env.ClientVersion, target.MinClientVersion),
			})
			result.Recommendations = append(result.Recommendations,
				fmt.Sprintf("upgrade to an intermediate version >= %s first", target.MinClientVersion))
		}
	}

	// Проверка версии среды выполнения
	if target.MinRuntimeVersion != "" {
		if env.RuntimeVersion == "" {
			result.RuntimeCompatible = false
			result.Issues = append(result.Issues, domain.CompatibilityIssue{
				Dimension: "runtime",
				Severity:  domain.WarningMajor,
				Message:   fmt.Sprintf("runtime version not reported, version %s requires %s+", target.VersionNumber, target.MinRuntimeVersion),
			})
			result.Recommendations = append(result.Recommendations,
				fmt.Sprintf("verify runtime version %s or newer is installed", target.MinRuntimeVersion))
		} else {
			minRuntime, errMin := parseVersion(target.MinRuntimeVersion)
			runtime, errEnv := parseVersion(env.RuntimeVersion)
			if errMin == nil && errEnv == nil && runtime.LessThan(minRuntime) {
				result.RuntimeCompatible = false
				result.Issues = append(result.Issues, domain.CompatibilityIssue{
					Dimension: "runtime",
					Severity:  domain.WarningMajor,
					Message: fmt.Sprintf("runtime %s is older than required %s+",
						env.RuntimeVersion, target.MinRuntimeVersion),
				})
				result.Recommendations = append(result.Recommendations,
					fmt.Sprintf("update the runtime to %s or newer before upgrading", target.MinRuntimeVersion))
			}
		}
	}

	// Проверка операционной системы: неподдерживаемая ОС блокирует обновление
	if env.OSName != "" && !target.SupportsOS(env.OSName) {
		result.OSCompatible = false
		result.Issues = append(result.Issues, domain.CompatibilityIssue{
			Dimension: "os",
			Severity:  domain.WarningBlocking,
			Message: fmt.Sprintf("operating system %q is not supported by version %s (supported: %v)",
				env.OSName, target.VersionNumber, []string(target.SupportedOS)),
		})
		result.Recommendations = append(result.Recommendations,
			"stay on the current version, this release does not support your operating system")
	}

	// Архитектура — консультативная проверка
	if env.Arch != "" && !target.SupportsArch(env.Arch) {
		result.Issues = append(result.Issues, domain.CompatibilityIssue{
			Dimension: "arch",
			Severity:  domain.WarningMinor,
			Message:   fmt.Sprintf("architecture %q is not in the tested set %v", env.Arch, []string(target.SupportedArch)),
		})
	}

	// Агрегация: уровень предупреждения — максимум по всем измерениям,
	// продолжать можно только без блокирующих проблем
	result.WarningLevel = domain.WarningNone
	for _, issue := range result.Issues {
		if issue.Severity > result.WarningLevel {
			result.WarningLevel = issue.Severity
		}
	}
	result.CanProceed = result.WarningLevel < domain.WarningBlocking
	result.Compatible = len(result.Issues) == 0

	return result, nil
}
