package core

// error_messages.go: Error Codes Reference
//
// This file defines user-friendly error messages with codes for support reference.
// When users encounter errors, they can quote the error code to support staff
// for faster diagnosis.
//
// Error codes are grouped by category:
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: File exceeds the maximum upload size
//	          Patterns: "file too large", "input exceeds size limit"
//	FILE002 - Invalid type: Only CSV files are accepted
//	          Patterns: "invalid file type", "unsupported media type"
//	FILE003 - Encoding error: File contains invalid characters
//	          Patterns: "invalid utf-8"
//	FILE004 - Invalid CSV: File is not a valid CSV
//	          Patterns: "invalid csv"
//	FILE005 - No file: No file was selected
//	          Patterns: "no file provided"
//	FILE006 - Empty file: The uploaded file is empty
//	          Patterns: "empty file"
//	FILE007 - File not found: Stored file does not exist
//	          Patterns: "file not found"
//
// # Conversation Errors (VAL001-VAL099, SES001-SES099)
//
//	VAL001 - Empty question: Question is blank
//	         Patterns: "empty question"
//	VAL002 - No data: No CSV has been loaded
//	         Patterns: "validation failed: no data"
//	VAL003 - Bad request: The request body could not be read
//	         Patterns: "invalid request body"
//	SES001 - Busy: A previous question is still being answered
//	         Patterns: "request already in flight"
//	SES002 - Session expired: Session not found
//	         Patterns: "session not found", "session disposed"
//	SES003 - Capacity: Too many open sessions
//	         Patterns: "too many sessions"
//
// # Answer Service Errors (ANS001-ANS099)
//
//	ANS001 - Unreachable: Answer Service could not be reached
//	         Patterns: "connection refused", "no such host"
//	ANS002 - Decode: Answer Service sent an unexpected response
//	         Patterns: "answer decode failed"
//	ANS003 - Failed: Answer Service returned an error
//	         Patterns: "answer request failed", "llm request failed"
//
// # Request Errors (UPL001-UPL099)
//
//	UPL001 - System busy: Too many uploads in progress
//	         Patterns: "too many uploads"
//	UPL002 - Request cancelled
//	         Patterns: "context canceled"
//	UPL003 - Request timeout
//	         Patterns: "context deadline exceeded", "timeout"
//
// # Rate Limiting (RATE001-RATE099)
//
//	RATE001 - Rate limited: Too many requests
//	          Patterns: "rate limit"
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//
// # Pattern Matching
//
// Error patterns are matched case-insensitively using strings.Contains.
// The first matching pattern wins, so more specific patterns are defined
// before general ones. A ParseError caused by bad encoding reads
// "invalid csv: ... invalid UTF-8 ...", so FILE003 must precede FILE004.

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
// The first matching pattern wins, so order matters.
var errorPatterns = []errorPattern{
	// =========================================================================
	// File Errors (FILE001-FILE007)
	// =========================================================================
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum upload size",
			Action:  "Upload a smaller file or remove unused columns",
			Code:    "FILE001",
		},
	},
	{
		pattern: "input exceeds size limit",
		msg: UserMessage{
			Message: "File exceeds the maximum upload size",
			Action:  "Upload a smaller file or remove unused columns",
			Code:    "FILE001",
		},
	},
	{
		pattern: "invalid file type",
		msg: UserMessage{
			Message: "Only CSV files are accepted",
			Action:  "Export your sheet as .csv and try again",
			Code:    "FILE002",
		},
	},
	{
		pattern: "unsupported media type",
		msg: UserMessage{
			Message: "Only CSV files are accepted",
			Action:  "Export your sheet as .csv and try again",
			Code:    "FILE002",
		},
	},
	{
		pattern: "invalid utf-8",
		msg: UserMessage{
			Message: "File contains invalid characters",
			Action:  "Save the file with UTF-8 encoding",
			Code:    "FILE003",
		},
	},
	{
		pattern: "invalid csv",
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Check for unbalanced quotes and make sure the first line holds the headers",
			Code:    "FILE004",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a CSV file to upload",
			Code:    "FILE005",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "Please upload a CSV file with a header row",
			Code:    "FILE006",
		},
	},
	{
		pattern: "file not found",
		msg: UserMessage{
			Message: "File not found",
			Action:  "Refresh the file list and try again",
			Code:    "FILE007",
		},
	},

	// =========================================================================
	// Conversation Errors (VAL001-VAL003, SES001-SES003)
	// =========================================================================
	{
		pattern: "empty question",
		msg: UserMessage{
			Message: "Your question is empty",
			Action:  "Type a question about your data",
			Code:    "VAL001",
		},
	},
	{
		pattern: "validation failed: no data",
		msg: UserMessage{
			Message: "No data has been uploaded yet",
			Action:  "Upload a CSV file before asking questions",
			Code:    "VAL002",
		},
	},
	{
		pattern: "invalid request body",
		msg: UserMessage{
			Message: "The request could not be read",
			Action:  "Send a JSON body with the expected fields",
			Code:    "VAL003",
		},
	},
	{
		pattern: "request already in flight",
		msg: UserMessage{
			Message: "Still working on your previous question",
			Action:  "Wait for the answer before asking again",
			Code:    "SES001",
		},
	},
	{
		pattern: "session not found",
		msg: UserMessage{
			Message: "Session not found",
			Action:  "The session may have expired. Please start a new one",
			Code:    "SES002",
		},
	},
	{
		pattern: "session disposed",
		msg: UserMessage{
			Message: "Session has ended",
			Action:  "Please start a new session",
			Code:    "SES002",
		},
	},
	{
		pattern: "too many sessions",
		msg: UserMessage{
			Message: "Too many open sessions",
			Action:  "Please wait a moment and try again",
			Code:    "SES003",
		},
	},

	// =========================================================================
	// Answer Service Errors (ANS001-ANS003)
	// =========================================================================
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to reach the Answer Service",
			Action:  "Please try again in a few moments",
			Code:    "ANS001",
		},
	},
	{
		pattern: "no such host",
		msg: UserMessage{
			Message: "Unable to reach the Answer Service",
			Action:  "Check ANSWER_SERVICE_URL",
			Code:    "ANS001",
		},
	},
	{
		pattern: "answer decode failed",
		msg: UserMessage{
			Message: "The Answer Service sent an unexpected response",
			Action:  "Please try again",
			Code:    "ANS002",
		},
	},
	{
		pattern: "answer request failed",
		msg: UserMessage{
			Message: "The Answer Service could not answer",
			Action:  "Please try again",
			Code:    "ANS003",
		},
	},
	{
		pattern: "llm request failed",
		msg: UserMessage{
			Message: "The language model could not answer",
			Action:  "Please try again",
			Code:    "ANS003",
		},
	},

	// =========================================================================
	// Request Errors (UPL001-UPL003)
	// =========================================================================
	{
		pattern: "too many uploads",
		msg: UserMessage{
			Message: "System is busy processing other uploads",
			Action:  "Please wait a moment and try again",
			Code:    "UPL001",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "UPL002",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or check your connection",
			Code:    "UPL003",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or check your connection",
			Code:    "UPL003",
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
// This is the fallback for unexpected errors. Support staff should check
// application logs for the original technical error when users report ERR000.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It searches through known error patterns (case-insensitive) and returns
// the first match. If no pattern matches, a generic fallback message with
// code ERR000 is returned.
//
// Example:
//
//	msg := MapError(&ValidationError{Reason: ReasonEmptyQuestion})
//	// msg.Code == "VAL001"
//	// msg.Message == "Your question is empty"
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
//
// Example output: "The uploaded file is empty (Code: FILE006). Please upload a CSV file with a header row"
//
// This is the primary function for displaying errors to end users.
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing checks if an error matches a known pattern and should be shown to users.
// Returns true if the error matches a specific pattern (not the generic ERR000 fallback).
// Use this to decide whether to show the raw error or the mapped user message.
//
// Example:
//
//	if IsUserFacing(err) {
//	    showToUser(FormatUserError(err))
//	} else {
//	    log.Error(err) // Log technical error
//	    showToUser("An error occurred. Please try again.")
//	}
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	msg := MapError(err)
	return msg.Code != defaultMessage.Code
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
// The returned UserError preserves the original technical error for logging via Unwrap(),
// while providing a clean user message via Error().
//
// Returns nil if err is nil.
//
// Example:
//
//	ue := NewUserError(parseErr)
//	log.Error(ue.Technical)          // Log original error
//	fmt.Println(ue.Error())           // Show "File is not a valid CSV"
//	fmt.Println(ue.User.Code)         // Show "FILE004"
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
