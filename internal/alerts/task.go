// Package alerts implements the price-alert scheduler: a periodic
// check engine over a persisted task set, guarded by a file-heartbeat
// protocol so at most one active checker runs across cooperating
// processes.
package alerts

import (
	"fmt"
	"time"
)

// Comparator is a threshold comparison operator.
type Comparator string

// Supported comparators.
const (
	CompGT Comparator = ">"
	CompGE Comparator = ">="
	CompLT Comparator = "<"
	CompLE Comparator = "<="
)

// Valid reports whether c is a supported operator.
func (c Comparator) Valid() bool {
	switch c {
	case CompGT, CompGE, CompLT, CompLE:
		return true
	}
	return false
}

// Eval applies the comparison of value against threshold.
func (c Comparator) Eval(value, threshold float64) bool {
	switch c {
	case CompGT:
		return value > threshold
	case CompGE:
		return value >= threshold
	case CompLT:
		return value < threshold
	case CompLE:
		return value <= threshold
	}
	return false
}

// Task is one persisted price alert. Enabled flips to false the first
// time the condition evaluates true; an update re-enables it.
type Task struct {
	ID           string     `json:"id"`
	Symbol       string     `json:"symbol"`
	Comparator   Comparator `json:"comparator"`
	Threshold    float64    `json:"threshold"`
	NotifyTarget string     `json:"notify_target,omitempty"`
	Enabled      bool       `json:"enabled"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Condition renders the alert condition for logs and notifications.
func (t Task) Condition() string {
	return fmt.Sprintf("%s %s %.2f", t.Symbol, t.Comparator, t.Threshold)
}

// Validate checks the fields a caller must supply.
func (t Task) Validate() error {
	if t.Symbol == "" {
		return fmt.Errorf("alert task: symbol is required")
	}
	if !t.Comparator.Valid() {
		return fmt.Errorf("alert task: invalid comparator %q (valid: >, >=, <, <=)", t.Comparator)
	}
	if t.Threshold <= 0 {
		return fmt.Errorf("alert task: threshold must be a positive absolute price, got %v", t.Threshold)
	}
	return nil
}
