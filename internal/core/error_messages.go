// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support reference.
// Failed rows in an import result carry the code of their error, and fatal
// import errors are returned to API callers with theirs.
//
// Error codes are grouped by category:
//
// # Archive Errors (ARC001-ARC099)
//
//	ARC001 - Malformed archive: the upload is not a readable zip file
//	         Patterns: "malformed archive"
//	ARC002 - Missing manifest: the archive has no manifest.json or manifest.yaml
//	         Patterns: "missing manifest"
//	ARC003 - Unsupported version: the snapshot was written by a newer exporter
//	         Patterns: "unsupported snapshot version"
//	ARC004 - Too large: the archive or one of its entries exceeds the size limit
//	         Patterns: "archive too large", "archive entry too large"
//	ARC005 - Unreadable table: a table's text could not be decoded
//	         Patterns: "unreadable table"
//
// # Owner Errors (OWN001-OWN099)
//
//	OWN001 - Owner not found: the importing user does not exist
//	         Patterns: "owner not found"
//
// # Import Run Errors (IMP001-IMP099)
//
//	IMP001 - Busy: too many imports are running
//	         Patterns: "too many concurrent imports"
//	IMP002 - Timed out: the run used its whole time budget
//	         Patterns: "import timed out"
//	IMP003 - Cancelled: the request was cancelled
//	         Patterns: "context canceled"
//	IMP004 - Deadline: the request deadline passed
//	         Patterns: "context deadline exceeded"
//
// # Row Errors (ROW001-ROW099)
//
//	ROW001 - Invalid number        Patterns: "invalid number"
//	ROW002 - Invalid date or time  Patterns: "invalid date", "invalid time"
//	ROW003 - Required value        Patterns: "required field", "missing required column"
//	ROW004 - Unresolved parent     Patterns: "unresolved parent"
//	ROW005 - Invalid enum          Patterns: "invalid enum"
//	ROW006 - Invalid boolean       Patterns: "invalid boolean"
//	ROW007 - Malformed row         Patterns: "malformed row"
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate: a row with this natural key already exists
//	        Patterns: "duplicate key", "unique constraint"
//	DB002 - Foreign key: referenced row does not exist
//	        Patterns: "foreign key"
//	DB003 - Connection refused     Patterns: "connection refused"
//	DB004 - Busy: locked or deadlocked
//	        Patterns: "deadlock", "database is locked"
//	DB005 - Timeout                Patterns: "timeout"
//
// # Rate Limiting (RATE001-RATE099)
//
//	RATE001 - Rate limited         Patterns: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when no specific pattern matches. Check application logs for the
// original technical error.
//
// # Pattern Matching
//
// Error patterns are matched case-insensitively using strings.Contains.
// The first matching pattern wins, so more specific patterns should be
// defined before general ones.
package core

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// The first matching pattern wins, so order matters:
//   - More specific patterns should come before general ones
//   - Multiple patterns can map to the same error code
var errorPatterns = []errorPattern{
	// =========================================================================
	// Archive Errors (ARC001-ARC005)
	// =========================================================================
	{
		pattern: "malformed archive",
		msg: UserMessage{
			Message: "The archive could not be read",
			Action:  "Upload the zip file produced by the journal export",
			Code:    "ARC001",
		},
	},
	{
		pattern: "missing manifest",
		msg: UserMessage{
			Message: "The archive has no manifest",
			Action:  "Re-export the snapshot; the manifest is written automatically",
			Code:    "ARC002",
		},
	},
	{
		pattern: "unsupported snapshot version",
		msg: UserMessage{
			Message: "The snapshot was created by a newer version",
			Action:  "Update the importer before importing this snapshot",
			Code:    "ARC003",
		},
	},
	{
		pattern: "archive too large",
		msg: UserMessage{
			Message: "The archive exceeds the maximum upload size",
			Action:  "Export fewer accounts per snapshot",
			Code:    "ARC004",
		},
	},
	{
		pattern: "archive entry too large",
		msg: UserMessage{
			Message: "A file inside the archive exceeds the size limit",
			Action:  "Remove oversized attachments from the snapshot",
			Code:    "ARC004",
		},
	},
	{
		pattern: "unreadable table",
		msg: UserMessage{
			Message: "A table in the archive could not be decoded",
			Action:  "Check that the table is comma-separated UTF-8 text",
			Code:    "ARC005",
		},
	},

	// =========================================================================
	// Owner Errors (OWN001)
	// =========================================================================
	{
		pattern: "owner not found",
		msg: UserMessage{
			Message: "The importing user does not exist",
			Action:  "Sign in again or contact support",
			Code:    "OWN001",
		},
	},

	// =========================================================================
	// Import Run Errors (IMP001-IMP004)
	// =========================================================================
	{
		pattern: "too many concurrent imports",
		msg: UserMessage{
			Message: "The system is busy processing other imports",
			Action:  "Please wait a moment and try again",
			Code:    "IMP001",
		},
	},
	{
		pattern: "import timed out",
		msg: UserMessage{
			Message: "The import ran out of time",
			Action:  "Import the same archive again; finished rows are skipped",
			Code:    "IMP002",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "IMP003",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try again or check your connection",
			Code:    "IMP004",
		},
	},

	// =========================================================================
	// Row Errors (ROW001-ROW007)
	// These errors are recorded per failed row; the rest of the import continues.
	// =========================================================================
	{
		pattern: "invalid number",
		msg: UserMessage{
			Message: "Invalid number format detected",
			Action:  "Fix the number in the exported table",
			Code:    "ROW001",
		},
	},
	{
		pattern: "invalid date",
		msg: UserMessage{
			Message: "Invalid date format detected",
			Action:  "Use YYYY-MM-DD or DD/MM/YYYY",
			Code:    "ROW002",
		},
	},
	{
		pattern: "invalid time",
		msg: UserMessage{
			Message: "Invalid timestamp format detected",
			Action:  "Use RFC 3339 or DD/MM/YYYY HH:MM:SS",
			Code:    "ROW002",
		},
	},
	{
		pattern: "required field",
		msg: UserMessage{
			Message: "Required field is empty",
			Action:  "Ensure all required columns have values",
			Code:    "ROW003",
		},
	},
	{
		pattern: "missing required column",
		msg: UserMessage{
			Message: "Required column is missing from the table",
			Action:  "Check that the table was exported completely",
			Code:    "ROW003",
		},
	},
	{
		pattern: "unresolved parent",
		msg: UserMessage{
			Message: "The row belongs to a record that was not imported",
			Action:  "Check the failed rows of the parent table",
			Code:    "ROW004",
		},
	},
	{
		pattern: "invalid enum",
		msg: UserMessage{
			Message: "Value is not in the allowed list",
			Action:  "Check the allowed values for this field",
			Code:    "ROW005",
		},
	},
	{
		pattern: "invalid boolean",
		msg: UserMessage{
			Message: "Invalid yes/no value",
			Action:  "Use true/false, yes/no or 1/0",
			Code:    "ROW006",
		},
	},
	{
		pattern: "malformed row",
		msg: UserMessage{
			Message: "The row could not be parsed",
			Action:  "Check the row for unbalanced quotes",
			Code:    "ROW007",
		},
	},

	// =========================================================================
	// Database Errors (DB001-DB005)
	// =========================================================================
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with the same key already exists",
			Action:  "No action needed; the existing record was kept",
			Code:    "DB001",
		},
	},
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "A record with the same key already exists",
			Action:  "No action needed; the existing record was kept",
			Code:    "DB001",
		},
	},
	{
		pattern: "foreign key",
		msg: UserMessage{
			Message: "Referenced record does not exist",
			Action:  "Check the failed rows of the parent table",
			Code:    "DB002",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB003",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB004",
		},
	},
	{
		pattern: "database is locked",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB004",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Please try again later",
			Code:    "DB005",
		},
	},

	// =========================================================================
	// Rate Limiting (RATE001)
	// =========================================================================
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It searches through known error patterns (case-insensitive) and returns
// the first match. If no pattern matches, a generic fallback message with
// code ERR000 is returned.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern rather than the
// generic ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError wraps a technical error with a user-friendly message.
// The original error is preserved for logging while providing a clean message for users.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError creates a UserError by mapping a technical error to a user-friendly message.
// Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
