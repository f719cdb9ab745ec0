package domain

// WarningLevel — уровень серьезности результата проверки совместимости
type WarningLevel int

const (
	WarningNone WarningLevel = iota
	WarningMinor
	WarningMajor
	WarningBlocking
)

func (w WarningLevel) String() string {
	switch w {
	case WarningNone:
		return "none"
	case WarningMinor:
		return "minor"
	case WarningMajor:
		return "major"
	case WarningBlocking:
		return "blocking"
	default:
		return "unknown"
	}
}

func (w WarningLevel) MarshalJSON() ([]byte, error) {
	return []byte(`"` + w.String() + `"`), nil
}

// ClientEnvironment описывает окружение клиента, заявленное при проверке
type ClientEnvironment struct {
	ClientVersion  string `json:"client_version"`
	RuntimeVersion string `json:"runtime_version"`
	OSName         string `json:"os_name"`
	OSVersion      string `json:"os_version"`
	Arch           string `json:"arch"`
}

// CompatibilityIssue — одна обнаруженная проблема совместимости
type CompatibilityIssue struct {
	Dimension string       `json:"dimension"`
	Severity  WarningLevel `json:"severity"`
	Message   string       `json:"message"`
}

// CompatibilityResult — вычисляемый результат проверки совместимости.
// Нигде не сохраняется: чистая функция от состояния каталога и окружения.
type CompatibilityResult struct {
	Compatible        bool                 `json:"compatible"`
	TargetVersion     string               `json:"target_version"`
	ClientVersion     string               `json:"client_version"`
	MinClientVersion  string               `json:"min_client_version"`
	RuntimeCompatible bool                 `json:"runtime_compatible"`
	OSCompatible      bool                 `json:"os_compatible"`
	Issues            []CompatibilityIssue `json:"issues"`
	Recommendations   []string             `json:"recommendations"`
	CanProceed        bool                 `json:"can_proceed"`
	WarningLevel      WarningLevel         `json:"warning_level"`
}
