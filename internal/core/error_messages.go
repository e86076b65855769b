package core

// # Error Codes Reference
//
// User-facing errors carry a code that users can quote to support staff.
// Codes are grouped by category:
//
// # Column Errors (COL001-COL099)
//
//	COL001 - Column not found: a requested column is not in the current file
//	         Action: Pick a column from the list; the file may have changed
//	         Match: apperr.ErrColumnNotFound
//
//	COL002 - Invalid column kind: the column cannot be used this way
//	         Action: Choose a numeric value column and a text group-by column
//	         Match: apperr.ErrInvalidColumnKind
//
// # Chart Errors (CHART001-CHART099)
//
//	CHART001 - Invalid chart input: the data does not suit the chart type
//	           Action: Try another chart type or adjust the filters
//	           Match: apperr.ErrInvalidChartInput
//
// # External Service Errors (EXT001-EXT099)
//
//	EXT001 - Service unavailable: file storage or the assistant failed
//	         Action: Please try again in a few moments
//	         Match: apperr.ErrExternalService
//
//	EXT002 - Assistant disabled: no API key is configured
//	         Action: Ask an administrator to configure the assistant
//	         Match: qa.ErrDisabled
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large          storage.ErrTooLarge, "file too large"
//	FILE002 - Unsupported file type   storage.ErrUnsupportedType, table.ErrUnsupportedFormat
//	FILE003 - Unreadable file         "invalid csv", "invalid excel workbook"
//	FILE004 - No file selected        "no file provided"
//	FILE005 - Empty file              table.ErrEmptyFile
//	FILE006 - File not found          storage.ErrNotFound
//	FILE007 - Invalid file name       storage.ErrInvalidName
//	FILE008 - Sheet not found         table.ErrSheetNotFound
//	FILE009 - Legacy workbook         table.ErrLegacyWorkbook
//
// # Access Errors (AUTH001-AUTH099)
//
//	AUTH001 - Wrong password          ErrBadCredentials
//	AUTH002 - Login required          ErrUnauthorized
//	AUTH003 - Admin not configured    rendered by the login page
//
// # Request Errors (REQ001-REQ099, RATE001, BUSY001)
//
//	REQ001  - Request cancelled       context.Canceled
//	REQ002  - Request timed out       context.DeadlineExceeded, "timeout"
//	REQ003  - Invalid request         built by the web layer as a UserError
//	RATE001 - Too many requests       "rate limit"
//	BUSY001 - Assistant busy          ErrBusy
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Please try again or contact support
//
// # Matching
//
// Sentinels are matched first with errors.Is, in table order. Errors that
// match no sentinel fall back to case-insensitive substring patterns; the
// first match wins. When users report ERR000, check the logs for the
// original technical error.

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/insights/internal/apperr"
	"github.com/JonMunkholm/insights/internal/qa"
	"github.com/JonMunkholm/insights/internal/storage"
	"github.com/JonMunkholm/insights/internal/table"
)

var (
	// ErrUnauthorized is returned when an admin-only action has no valid session.
	ErrUnauthorized = errors.New("admin login required")

	// ErrBadCredentials is returned for a wrong admin password.
	ErrBadCredentials = errors.New("invalid admin password")
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorTarget struct {
	target error
	msg    UserMessage
}

// errorTargets is checked with errors.Is before any pattern.
// Disabled and busy come before ErrExternalService so their specific
// message wins; timeouts come before it for the same reason.
var errorTargets = []errorTarget{
	{qa.ErrDisabled, UserMessage{
		Message: "The assistant is not configured",
		Action:  "Ask an administrator to set the assistant API key",
		Code:    "EXT002",
	}},
	{ErrBusy, UserMessage{
		Message: "The assistant is busy answering other questions",
		Action:  "Please wait a moment and ask again",
		Code:    "BUSY001",
	}},
	{apperr.ErrColumnNotFound, UserMessage{
		Message: "A selected column is not in this file",
		Action:  "Pick a column from the list; the file may have changed",
		Code:    "COL001",
	}},
	{apperr.ErrInvalidColumnKind, UserMessage{
		Message: "That column cannot be used for this chart",
		Action:  "Choose a numeric value column and a text group-by column",
		Code:    "COL002",
	}},
	{apperr.ErrInvalidChartInput, UserMessage{
		Message: "The data cannot be drawn as this chart type",
		Action:  "Try another chart type or adjust the filters",
		Code:    "CHART001",
	}},
	{storage.ErrTooLarge, UserMessage{
		Message: "File exceeds the maximum upload size",
		Action:  "Split the file into smaller files",
		Code:    "FILE001",
	}},
	{storage.ErrUnsupportedType, UserMessage{
		Message: "Unsupported file type",
		Action:  "Upload a .csv, .xlsx or .xls file",
		Code:    "FILE002",
	}},
	{table.ErrUnsupportedFormat, UserMessage{
		Message: "Unsupported file type",
		Action:  "Upload a .csv, .xlsx or .xls file",
		Code:    "FILE002",
	}},
	{table.ErrEmptyFile, UserMessage{
		Message: "The file is empty",
		Action:  "Upload a file with a header row and data rows",
		Code:    "FILE005",
	}},
	{storage.ErrNotFound, UserMessage{
		Message: "File not found",
		Action:  "It may have been deleted; pick another file",
		Code:    "FILE006",
	}},
	{storage.ErrInvalidName, UserMessage{
		Message: "Invalid file name",
		Action:  "Pick a file from the list",
		Code:    "FILE007",
	}},
	{table.ErrLegacyWorkbook, UserMessage{
		Message: "Excel 97-2003 workbooks cannot be read",
		Action:  "Re-save the file as .xlsx or export it as CSV",
		Code:    "FILE009",
	}},
	{table.ErrSheetNotFound, UserMessage{
		Message: "Sheet not found in the workbook",
		Action:  "Pick a sheet from the list",
		Code:    "FILE008",
	}},
	{ErrBadCredentials, UserMessage{
		Message: "Incorrect password",
		Action:  "Check the admin password and try again",
		Code:    "AUTH001",
	}},
	{ErrUnauthorized, UserMessage{
		Message: "Admin login required",
		Action:  "Log in as admin to manage files",
		Code:    "AUTH002",
	}},
	{context.DeadlineExceeded, UserMessage{
		Message: "Request timed out",
		Action:  "Please try again; large files and questions take longer",
		Code:    "REQ002",
	}},
	{context.Canceled, UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "REQ001",
	}},
	{apperr.ErrExternalService, UserMessage{
		Message: "A backing service is unavailable",
		Action:  "Please try again in a few moments",
		Code:    "EXT001",
	}},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns catches errors from libraries that expose no sentinel.
// Patterns are matched using strings.Contains on the lower-cased message;
// more specific patterns come first.
var errorPatterns = []errorPattern{
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum upload size",
			Action:  "Split the file into smaller files",
			Code:    "FILE001",
		},
	},
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "File exceeds the maximum upload size",
			Action:  "Split the file into smaller files",
			Code:    "FILE001",
		},
	},
	{
		pattern: "invalid excel workbook",
		msg: UserMessage{
			Message: "The workbook could not be read",
			Action:  "Re-save the file as .xlsx or export it as CSV",
			Code:    "FILE003",
		},
	},
	{
		pattern: "invalid csv",
		msg: UserMessage{
			Message: "The file could not be read",
			Action:  "Ensure the file is comma-separated with a header row",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a CSV or Excel file to upload",
			Code:    "FILE004",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Please try again; large files and questions take longer",
			Code:    "REQ002",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Known sentinels are matched with errors.Is, then message patterns
// (case-insensitive). If nothing matches, a generic fallback message with
// code ERR000 is returned.
//
// Example:
//
//	_, err := pipeline.Aggregate(t, "region", "region")
//	msg := MapError(err)
//	// msg.Code == "COL002"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var ue *UserError
	if errors.As(err, &ue) {
		return ue.User
	}

	for _, et := range errorTargets {
		if errors.Is(err, et.target) {
			return et.msg
		}
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

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with the message shown for it.
// The original error is preserved for logging via Unwrap.
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

// NewUserError creates a UserError by mapping a technical error to a
// user-friendly message. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
