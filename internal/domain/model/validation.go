package model

// Reason — причина отрицательного результата валидации.
type Reason string

const (
	// ReasonNotFound — пакета с таким id нет
	ReasonNotFound Reason = "not_found"
	// ReasonInvalid — пакет уже помечен как недействительный
	ReasonInvalid Reason = "invalid_link"
	// ReasonExpired — срок пакета истёк; сообщается только при переходе
	ReasonExpired Reason = "expired"
)

// ValidationResult — результат валидации пакета.
// При Valid = true заполнен Package, иначе — Reason.
type ValidationResult struct {
	Valid   bool           `json:"valid"`
	Reason  Reason         `json:"reason,omitempty"`
	Package *PackageRecord `json:"package,omitempty"`
}

// Accepted формирует положительный результат.
func Accepted(rec *PackageRecord) *ValidationResult {
	return &ValidationResult{Valid: true, Package: rec}
}

// Rejected формирует отрицательный результат с причиной.
func Rejected(reason Reason) *ValidationResult {
	return &ValidationResult{Valid: false, Reason: reason}
}
