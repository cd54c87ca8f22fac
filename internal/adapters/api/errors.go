package api

import "fmt"

// ApiError is the typed error every terminal ApiClient failure surfaces.
// Code is the application error code when the upstream payload carried one,
// else the HTTP status. A bare-string error payload is normalized to
// {code: httpStatus, message: string, data: {}}.
type ApiError struct {
	Code    int
	Message string
	Data    map[string]interface{}
}

func (e *ApiError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Code, e.Message)
}

// IsRateLimited reports whether this error represents a 429.
func (e *ApiError) IsRateLimited() bool {
	return e.Code == 429
}

// IsServerTransient reports whether this error represents a retryable
// server-side fault (status >= 500, or an application code in the same
// class).
func (e *ApiError) IsServerTransient() bool {
	return e.Code >= 500
}
