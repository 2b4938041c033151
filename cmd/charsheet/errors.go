package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/arthur-debert/charsheet/charsheet/persist"
	"github.com/arthur-debert/charsheet/charsheet/section"
)

// CLIError represents a user-friendly CLI error with context and suggestions
type CLIError struct {
	Operation   string   // The operation that failed (e.g., "set", "import")
	Cause       string   // The underlying cause (e.g., "section not found")
	Details     string   // Additional technical details
	Suggestions []string // Helpful suggestions for the user
	Underlying  error    // Original error for debugging
}

// Error implements the error interface
func (e *CLIError) Error() string {
	var msg strings.Builder

	if e.Operation != "" {
		msg.WriteString(fmt.Sprintf("Failed to %s", e.Operation))
	} else {
		msg.WriteString("Operation failed")
	}
	if e.Cause != "" {
		msg.WriteString(fmt.Sprintf(": %s", e.Cause))
	}
	if e.Details != "" {
		msg.WriteString(fmt.Sprintf(" (%s)", e.Details))
	}
	if len(e.Suggestions) > 0 {
		msg.WriteString("\n\nSuggestions:")
		for i, suggestion := range e.Suggestions {
			msg.WriteString(fmt.Sprintf("\n  %d. %s", i+1, suggestion))
		}
	}
	return msg.String()
}

// Unwrap returns the underlying error for error chain compatibility
func (e *CLIError) Unwrap() error {
	return e.Underlying
}

// NewValidationError creates an error for validation failures
func NewValidationError(operation, field, value string, suggestions ...string) *CLIError {
	return &CLIError{
		Operation:   operation,
		Cause:       fmt.Sprintf("invalid %s: %q", field, value),
		Suggestions: suggestions,
	}
}

// NewConfigError creates an error for configuration issues
func NewConfigError(operation string, underlying error, suggestions ...string) *CLIError {
	return &CLIError{
		Operation:   operation,
		Cause:       "configuration error",
		Details:     underlying.Error(),
		Suggestions: suggestions,
		Underlying:  underlying,
	}
}

// WrapError wraps an existing error with CLI-friendly context
func WrapError(operation string, err error, suggestions ...string) error {
	if err == nil {
		return nil
	}

	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		if cliErr.Operation == "" {
			cliErr.Operation = operation
		}
		return cliErr
	}

	cause := "operation failed"
	switch {
	case errors.Is(err, section.ErrUnknownSection):
		cause = "no such section"
		suggestions = append(suggestions, CommonSuggestions.ListSections)
	case errors.Is(err, persist.ErrNotObject), errors.Is(err, persist.ErrEmptyImport):
		cause = "invalid character data"
		suggestions = append(suggestions, CommonSuggestions.CheckImport)
	case strings.Contains(strings.ToLower(err.Error()), "permission denied"):
		cause = "insufficient permissions to access the character store"
		suggestions = append(suggestions, CommonSuggestions.CheckPerms)
	case strings.Contains(err.Error(), "failed to acquire lock"):
		cause = "the character store is locked by another process"
	}

	return &CLIError{
		Operation:   operation,
		Cause:       cause,
		Details:     err.Error(),
		Suggestions: suggestions,
		Underlying:  err,
	}
}

// Common suggestions
var CommonSuggestions = struct {
	ListSections string
	CheckImport  string
	CheckPerms   string
	CheckConfig  string
	RunHelp      string
}{
	ListSections: "Run 'charsheet section list' to see the available sections",
	CheckImport:  "Import a JSON object such as the output of 'charsheet export'",
	CheckPerms:   "Check file permissions and directory access",
	CheckConfig:  "Check your configuration file or CHARSHEET_* environment variables",
	RunHelp:      "Run command with --help for usage information",
}
