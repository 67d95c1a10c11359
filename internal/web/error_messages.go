package web

// error_messages.go maps technical errors to user-facing messages with a
// code support staff can look up.
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: the upload exceeds the request size limit
//	          Patterns: "file too large", "request body too large"
//	FILE002 - Invalid delimiter: the chosen delimiter cannot split fields
//	          Patterns: "invalid delimiter"
//	FILE003 - Encoding error: the named encoding is not supported
//	          Patterns: "unsupported encoding"
//	FILE004 - No file: no file was selected
//	          Patterns: "no file provided", "no file selected"
//	FILE005 - Unreadable file: the file could not be opened or decompressed
//	          Patterns: "gzip", "xz", "spool"
//
// # Session Errors (SES001-SES099)
//
//	SES001 - Session not found: the session expired or never existed
//	         Patterns: "session not found"
//	SES002 - Too many sessions: the server has no room for another session
//	         Patterns: "too many sessions"
//
// # Request Errors (REQ001-REQ099)
//
//	REQ001 - Invalid request body
//	         Patterns: "invalid options"
//
// # Capacity Errors (UPL002-UPL005)
//
//	UPL002 - System busy: every preview slot is taken
//	         Patterns: "too many concurrent previews"
//	UPL004 - Request cancelled
//	         Patterns: "context canceled"
//	UPL005 - Request timeout
//	         Patterns: "context deadline exceeded"
//
// # Rate Limiting (RATE001)
//
//	RATE001 - Too many requests from one client
//	          Patterns: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when nothing matches; check the server log for the technical
// error, correlated by request_id.
//
// Patterns are matched case-insensitively with strings.Contains and the
// first match wins.

import (
	"fmt"
	"strings"
)

// UserMessage is a user-friendly error with guidance.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// File errors
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum upload size",
			Action:  "Upload a smaller file or split it into parts",
			Code:    "FILE001",
		},
	},
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "File exceeds the maximum upload size",
			Action:  "Upload a smaller file or split it into parts",
			Code:    "FILE001",
		},
	},
	{
		pattern: "invalid delimiter",
		msg: UserMessage{
			Message: "The chosen delimiter cannot be used",
			Action:  "Pick one of the offered delimiters",
			Code:    "FILE002",
		},
	},
	{
		pattern: "unsupported encoding",
		msg: UserMessage{
			Message: "The file encoding is not supported",
			Action:  "Leave encoding empty to detect it, or save the file as UTF-8",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a CSV file to preview",
			Code:    "FILE004",
		},
	},
	{
		pattern: "no file selected",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a CSV file to preview",
			Code:    "FILE004",
		},
	},
	{
		pattern: "spool",
		msg: UserMessage{
			Message: "The file could not be stored for previewing",
			Action:  "Please try again",
			Code:    "FILE005",
		},
	},
	{
		pattern: "gzip",
		msg: UserMessage{
			Message: "The compressed file is damaged",
			Action:  "Re-create the archive or upload the plain CSV",
			Code:    "FILE005",
		},
	},
	{
		pattern: "xz",
		msg: UserMessage{
			Message: "The compressed file is damaged",
			Action:  "Re-create the archive or upload the plain CSV",
			Code:    "FILE005",
		},
	},

	// Session errors
	{
		pattern: "session not found",
		msg: UserMessage{
			Message: "Preview session not found",
			Action:  "The session may have expired. Please start a new one",
			Code:    "SES001",
		},
	},
	{
		pattern: "too many sessions",
		msg: UserMessage{
			Message: "Too many open preview sessions",
			Action:  "Close unused sessions or try again later",
			Code:    "SES002",
		},
	},

	// Request errors
	{
		pattern: "invalid options",
		msg: UserMessage{
			Message: "The parse options could not be read",
			Action:  `Send a JSON object like {"delimiter": ";"}`,
			Code:    "REQ001",
		},
	},

	// Capacity errors
	{
		pattern: "too many concurrent previews",
		msg: UserMessage{
			Message: "System is busy processing other previews",
			Action:  "Please wait a moment and try again",
			Code:    "UPL002",
		},
	},
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
			Action:  "Try a smaller file or check your connection",
			Code:    "UPL005",
		},
	},

	// Rate limiting
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message. Unknown
// errors map to ERR000.
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

// FormatUserError renders err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}
