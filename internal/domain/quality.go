package domain

import (
	"strings"
	"time"
)

// RuleKind identifies a data-quality check.
type RuleKind string

// Rule kinds.
const (
	RuleNotNull   RuleKind = "NOT_NULL"
	RulePattern   RuleKind = "PATTERN"
	RuleRange     RuleKind = "RANGE"
	RuleLength    RuleKind = "LENGTH"
	RuleDateRange RuleKind = "DATE_RANGE"
	RuleCustom    RuleKind = "CUSTOM"
)

// Severity levels, ordered from least to most severe.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// Rejects reports whether a violation of this severity removes the row
// under REJECT mode.
func (s Severity) Rejects() bool {
	return s == SeverityError || s == SeverityCritical
}

// Action is what happens to a row that fails a rule. It doubles as the
// validator-wide mode.
type Action string

const (
	ActionLog      Action = "LOG"
	ActionWarn     Action = "WARN"
	ActionReject   Action = "REJECT"
	ActionFix      Action = "FIX"
	ActionContinue Action = "CONTINUE"
)

// ParseRuleKind normalizes a rule kind string (case-insensitive, '-' or '_').
func ParseRuleKind(s string) (RuleKind, error) {
	k := RuleKind(strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), "-", "_"))
	switch k {
	case RuleNotNull, RulePattern, RuleRange, RuleLength, RuleDateRange, RuleCustom:
		return k, nil
	}
	return "", ErrValidation("unknown rule kind %q", s)
}

// ParseSeverity normalizes a severity string. Empty means ERROR.
func ParseSeverity(s string) (Severity, error) {
	v := Severity(strings.ToUpper(strings.TrimSpace(s)))
	switch v {
	case "":
		return SeverityError, nil
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return v, nil
	}
	return "", ErrValidation("unknown severity %q", s)
}

// ParseAction normalizes an action string. Empty means REJECT.
func ParseAction(s string) (Action, error) {
	v := Action(strings.ToUpper(strings.TrimSpace(s)))
	switch v {
	case "":
		return ActionReject, nil
	case ActionLog, ActionWarn, ActionReject, ActionFix, ActionContinue:
		return v, nil
	}
	return "", ErrValidation("unknown action %q", s)
}

// DataQualityRule is one declared check against a mapping's output.
type DataQualityRule struct {
	ID             int64
	TableMappingID int64
	Code           string
	Kind           RuleKind
	Column         string
	Definition     string // regex for PATTERN, expression for CUSTOM
	MinValue       *string
	MaxValue       *string
	MinLength      *int
	MaxLength      *int
	Severity       Severity
	Action         Action
	IsActive       bool
}

// ValidationResult describes one violated rule instance on one row.
type ValidationResult struct {
	RowIndex int
	RowID    string
	RuleID   int64
	RuleCode string
	Column   string
	Value    any
	Severity Severity
	Action   Action
	Message  string
}

// QualityViolation is the persisted form of a ValidationResult.
type QualityViolation struct {
	ID          int64
	ExecutionID string
	RuleID      *int64
	RuleCode    string
	SourceTable string
	RowID       string
	Column      *string
	Value       *string
	Message     string
	Severity    Severity
	Action      Action
	CreatedAt   time.Time
}
