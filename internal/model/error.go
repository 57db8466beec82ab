package model

import "fmt"

// AppError is the structured payload carried by every typed error in this
// module. The HTTP API returns it verbatim; the CLI logs it as fields.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Stage   string `json:"stage"`

	URL     string `json:"url,omitempty"`
	Line    int    `json:"line,omitempty"`    // 1-based; 0 means "not set"
	Snippet string `json:"snippet,omitempty"` // truncated to 200 chars
	Hint    string `json:"hint,omitempty"`
}

type ErrorResponse struct {
	Error AppError `json:"error"`
}

// FormatError renders the common "CODE: message: cause" string.
func FormatError(app AppError, cause error) string {
	if cause == nil {
		return fmt.Sprintf("%s: %s", app.Code, app.Message)
	}
	return fmt.Sprintf("%s: %s: %v", app.Code, app.Message, cause)
}

// Snippet strips newlines and truncates s to max bytes.
func Snippet(s string, max int) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\r' || s[i] == '\n' {
			continue
		}
		out = append(out, s[i])
	}
	if max <= 0 {
		return ""
	}
	if len(out) > max {
		out = out[:max]
	}
	return string(out)
}
