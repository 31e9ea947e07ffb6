package core

// error_messages.go maps technical errors to user-facing messages with codes.
//
// # Error Codes Reference
//
// Users can quote the code to support staff for faster diagnosis.
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: File exceeds the upload size limit
//	          Patterns: "file too large", "request body too large"
//
//	FILE002 - Invalid CSV: File is not a valid CSV
//	          Patterns: "invalid csv"
//
//	FILE003 - Unreadable workbook: Spreadsheet could not be opened
//	          Patterns: "zip: not a valid zip file", "not a valid xls"
//
//	FILE004 - No file: No valid file was provided
//	          Patterns: "no file provided", "invalid filename"
//
//	FILE005 - Empty file: The file has no header row
//	          Patterns: "empty file"
//
//	FILE006 - Unsupported type: Only .csv, .xlsx and .xls are accepted
//	          Patterns: "unsupported file type"
//
//	FILE007 - Missing file: The file is not in the uploads area
//	          Patterns: "file not found", "no such file"
//
// # Processing Errors (PROC001-PROC099)
//
//	PROC001 - Column not found: The chosen column is not in the file
//	          Patterns: "column not found"
//
//	PROC002 - System busy: Too many files are being processed
//	          Patterns: "too many processing runs"
//
//	PROC003 - Unregistered: The file has no metadata record
//	          Patterns: "file not registered"
//
// # Request Errors (REQ001, UPL004-UPL005)
//
//	REQ001 - Bad request: The request body or parameters are malformed
//	         Patterns: "invalid request"
//
//	UPL004 - Request cancelled
//	         Patterns: "context canceled"
//
//	UPL005 - Request timeout
//	         Patterns: "context deadline exceeded"
//
// # Storage Errors (STORE001-STORE099)
//
//	STORE001 - Metadata unavailable: File metadata could not be saved or read
//	           Patterns: "metadata store", "connection refused"
//
// # Default Error (ERR000)
//
// Fallback when no specific pattern matches. Check the logs for the original
// technical error.
//
// Patterns are matched case-insensitively with strings.Contains and the first
// match wins, so specific patterns come before general ones.

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

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var (
	msgTooLarge = UserMessage{
		Message: "File exceeds the upload size limit",
		Action:  "Split the file into smaller files",
		Code:    "FILE001",
	}
	msgNoFile = UserMessage{
		Message: "No valid file was provided",
		Action:  "Select a .csv, .xlsx or .xls file with a visible name",
		Code:    "FILE004",
	}
	msgUnreadableWorkbook = UserMessage{
		Message: "The spreadsheet could not be opened",
		Action:  "Re-save the workbook in Excel and upload it again",
		Code:    "FILE003",
	}
	msgMissingFile = UserMessage{
		Message: "The file is not in the uploads area",
		Action:  "Upload the file again",
		Code:    "FILE007",
	}
	msgStore = UserMessage{
		Message: "File metadata could not be saved or read",
		Action:  "Please try again in a few moments",
		Code:    "STORE001",
	}
)

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// Order matters: the first match wins.
var errorPatterns = []errorPattern{
	// File errors
	{pattern: "file too large", msg: msgTooLarge},
	{pattern: "request body too large", msg: msgTooLarge},
	{
		pattern: "unsupported file type",
		msg: UserMessage{
			Message: "Unsupported file type",
			Action:  "Upload a .csv, .xlsx or .xls file",
			Code:    "FILE006",
		},
	},
	{
		pattern: "invalid csv",
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Ensure file is comma-separated with a header row",
			Code:    "FILE002",
		},
	},
	{pattern: "zip: not a valid zip file", msg: msgUnreadableWorkbook},
	{pattern: "not a valid xls", msg: msgUnreadableWorkbook},
	{pattern: "no file provided", msg: msgNoFile},
	{pattern: "invalid filename", msg: msgNoFile},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The file has no header row",
			Action:  "Upload a file whose first row names the columns",
			Code:    "FILE005",
		},
	},

	// Processing errors
	{
		pattern: "column not found",
		msg: UserMessage{
			Message: "The chosen column is not in the file",
			Action:  "Pick one of the listed columns or use automatic detection",
			Code:    "PROC001",
		},
	},
	{
		pattern: "too many processing runs",
		msg: UserMessage{
			Message: "System is busy processing other files",
			Action:  "Please wait a moment and reprocess the file",
			Code:    "PROC002",
		},
	},
	{
		pattern: "file not registered",
		msg: UserMessage{
			Message: "The file has no metadata record",
			Action:  "Upload the file again",
			Code:    "PROC003",
		},
	},

	{
		pattern: "invalid request",
		msg: UserMessage{
			Message: "The request could not be understood",
			Action:  `Send a body like {"mode":"column","column":"order_date"}`,
			Code:    "REQ001",
		},
	},

	// Missing files come after "file not registered" style messages.
	{pattern: "file not found", msg: msgMissingFile},
	{pattern: "no such file", msg: msgMissingFile},

	// Request lifecycle
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "UPL004",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or raise PROCESS_TIMEOUT",
			Code:    "UPL005",
		},
	},

	// Storage
	{pattern: "metadata store", msg: msgStore},
	{pattern: "connection refused", msg: msgStore},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// If no pattern matches, a generic fallback with code ERR000 is returned.
//
// Example:
//
//	msg := MapError(&UnsupportedFormatError{Ext: ".pdf"})
//	// msg.Code == "FILE006"
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
// ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
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

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
