package importer

// messages.go translates technical errors into messages an operator can act
// on. Each message carries a code that support staff can look up here.
//
// # File errors (FILE001-FILE099)
//
//	FILE001 - File too large          patterns: "file too large"
//	FILE002 - Malformed CSV            patterns: "invalid csv"
//	FILE003 - No file selected         patterns: "no file provided"
//	FILE004 - No header row            patterns: "no header row"
//	FILE005 - Unreadable spreadsheet   patterns: "unsupported file", "open workbook", "invalid xlsx"
//
// # Validation errors (VAL001-VAL099)
//
//	VAL001 - Required value missing    patterns: "missing or invalid required fields"
//	VAL002 - Column mapped twice       patterns: "mapped more than once"
//	VAL003 - Required field unmapped   patterns: "required field not mapped"
//	VAL004 - Malformed request         patterns: "invalid request"
//	VAL005 - Unknown profile           patterns: "unknown import profile"
//
// # Database errors (DB001-DB099)
//
//	DB001 - Unique value exists        patterns: "already exists", "unique constraint"
//	DB002 - Missing reference          patterns: "foreign key"
//	DB003 - Database unavailable       patterns: "connection refused", "connection reset"
//	DB004 - Database busy              patterns: "deadlock"
//
// # Run errors (RUN001-RUN099)
//
//	RUN001 - System busy               patterns: "too many imports"
//	RUN002 - Run expired               patterns: "import run not found"
//	RUN003 - Import cancelled          patterns: "import cancelled", "context canceled"
//	RUN004 - Import timed out          patterns: "context deadline exceeded", "timeout"
//	RUN005 - Nothing to import         patterns: "no rows to import"
//
// # Rate limiting
//
//	RATE001 - Too many requests        patterns: "rate limit"
//
// ERR000 is the fallback; check the server log for the technical error.

import (
	"fmt"
	"strings"
)

// UserMessage is the operator-facing form of an error.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns are matched case-insensitively in order; the first hit wins,
// so specific patterns precede general ones.
var errorPatterns = []errorPattern{
	{"file too large", UserMessage{"The file exceeds the maximum upload size", "Split the file into smaller sheets", "FILE001"}},
	{"unsupported file", UserMessage{"This file type is not supported", "Upload a .csv or .xlsx file", "FILE005"}},
	{"open workbook", UserMessage{"The spreadsheet could not be opened", "Re-save the workbook as .xlsx or export it to CSV", "FILE005"}},
	{"no file provided", UserMessage{"No file was selected", "Choose a CSV or XLSX file to import", "FILE003"}},
	{"no header row", UserMessage{"The file has no header row", "Add a header row naming each column", "FILE004"}},
	{"invalid xlsx", UserMessage{"The spreadsheet could not be read", "Re-save the workbook as .xlsx or export it to CSV", "FILE005"}},
	{"invalid csv", UserMessage{"The file is not a valid CSV", "Check quoting and save the sheet as comma-separated values", "FILE002"}},

	{"missing or invalid required fields", UserMessage{"A required value is missing or invalid", "Fill in every required column for this row", "VAL001"}},
	{"mapped more than once", UserMessage{"Two columns are mapped to the same field", "Map each field from a single column", "VAL002"}},
	{"required field not mapped", UserMessage{"A required field has no column", "Map a column to every required field", "VAL003"}},
	{"invalid request", UserMessage{"The request could not be read", "Reload the page and try again", "VAL004"}},
	{"unknown import profile", UserMessage{"This import profile does not exist", "Choose one of the listed profiles", "VAL005"}},

	{"already exists", UserMessage{"A unique value is already in use", "Remove or change the duplicate pallet number or SKU", "DB001"}},
	{"unique constraint", UserMessage{"A unique value is already in use", "Remove or change the duplicate pallet number or SKU", "DB001"}},
	{"foreign key", UserMessage{"A referenced record does not exist", "Check that the client and item exist", "DB002"}},
	{"connection refused", UserMessage{"The database is unavailable", "Please try again in a few moments", "DB003"}},
	{"connection reset", UserMessage{"The database connection was interrupted", "Please try again", "DB003"}},
	{"deadlock", UserMessage{"The database was busy with a conflicting operation", "Please try again", "DB004"}},

	{"too many imports", UserMessage{"Too many imports are running", "Wait a moment and try again", "RUN001"}},
	{"import run not found", UserMessage{"This import is no longer available", "Start a new import", "RUN002"}},
	{"import cancelled", UserMessage{"The import was cancelled", "Start a new import when ready", "RUN003"}},
	{"context canceled", UserMessage{"The request was cancelled", "Please try again", "RUN003"}},
	{"context deadline exceeded", UserMessage{"The import took too long", "Split the file into smaller sheets", "RUN004"}},
	{"timeout", UserMessage{"The operation timed out", "Please try again", "RUN004"}},
	{"no rows to import", UserMessage{"There are no rows to import", "Check that the file has data rows", "RUN005"}},

	{"rate limit", UserMessage{"Too many requests", "Wait a moment before trying again", "RATE001"}},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError returns the operator-facing message for err.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	text := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(text, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError renders err as "Message (Code: X). Action".
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}
	msg := MapError(err)
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message.
func IsUserFacing(err error) bool {
	return err != nil && MapError(err).Code != defaultMessage.Code
}
