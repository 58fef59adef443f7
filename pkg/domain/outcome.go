package domain

import dErrors "zerotrust/pkg/domain-errors"

// Outcome is a compliance verdict.
type Outcome string

const (
	OutcomePass          Outcome = "pass"
	OutcomeFail          Outcome = "fail"
	OutcomeIndeterminate Outcome = "indeterminate"
)

// ParseOutcome validates a serialized outcome.
func ParseOutcome(s string) (Outcome, error) {
	switch o := Outcome(s); o {
	case OutcomePass, OutcomeFail, OutcomeIndeterminate:
		return o, nil
	}
	return "", dErrors.New(dErrors.CodeInvalidInput, "unknown outcome")
}

func (o Outcome) String() string { return string(o) }
