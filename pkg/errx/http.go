package errx

import "net/http"

// HTTPErrorResponse is the JSON body written for a failed request
type HTTPErrorResponse struct {
	Error     string         `json:"error"`
	Code      string         `json:"code"`
	Type      string         `json:"type"`
	Status    int            `json:"status"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// ToHTTPResponse converts an Error to an HTTPErrorResponse
func (e *Error) ToHTTPResponse() HTTPErrorResponse {
	resp := HTTPErrorResponse{
		Error:  e.Message,
		Code:   e.Code,
		Type:   string(e.Type),
		Status: e.HTTPStatus,
	}
	if len(e.Details) > 0 {
		resp.Details = e.Details
	}
	return resp
}

// Response maps any error to a status and body. Errors outside the errx
// hierarchy are reported as an opaque internal error.
func Response(err error) (int, HTTPErrorResponse) {
	var e *Error
	if As(err, &e) {
		return e.HTTPStatus, e.ToHTTPResponse()
	}
	return http.StatusInternalServerError, HTTPErrorResponse{
		Error:  "An unexpected error occurred",
		Code:   "INTERNAL_ERROR",
		Type:   string(TypeInternal),
		Status: http.StatusInternalServerError,
	}
}
