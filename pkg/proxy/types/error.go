package types

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// StatusRequestTimeout is the non-standard status used when the origin does
// not answer within the request timeout.
const StatusRequestTimeout = 480

// Messages used in forwarder-generated bodies and raw status lines.
const (
	MessageTimeout        = "Failed to process request in time. Please try again."
	MessageBadGateway     = "Bad Gateway"
	MessageInternalError  = "Internal Server Error"
	MessageUnsupported    = "Only HTTP and HTTPS protocols are currently supported"
	MessageEstablished    = "Connection Established"
	MessageAuthRequired   = "Proxy Authentication Required"
	MessageRateLimited    = "Too Many Requests"
	MessagePong           = "Pong!"
	ContentTypeJSONHeader = "application/json; charset=utf-8"
)

// ErrorResponse is the JSON body of every forwarder-generated error.
type ErrorResponse struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

// MessageResponse is the JSON body of informational answers such as ping.
type MessageResponse struct {
	Message string `json:"message"`
}

// NewErrorResponse builds an error body for status.
func NewErrorResponse(status int, message string) *ErrorResponse {
	return &ErrorResponse{StatusCode: status, Message: message}
}

// securityHeaders are attached to every JSON answer.
var securityHeaders = map[string]string{
	"Cache-Control":          "no-cache, no-store, must-revalidate",
	"Pragma":                 "no-cache",
	"Expires":                "0",
	"X-Content-Type-Options": "nosniff",
	"X-Frame-Options":        "DENY",
	"Referrer-Policy":        "no-referrer",
}

// WriteJSON writes body as a JSON answer with status. extra headers are
// applied after the defaults and may override them. Nothing is written if
// the headers were already sent.
func WriteJSON(w http.ResponseWriter, status int, body any, extra http.Header) error {
	if tw, ok := w.(*ResponseWriter); ok && tw.HeadersSent() {
		return ErrHeadersSent
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	h := w.Header()
	for k, v := range extra {
		h[k] = append([]string(nil), v...)
	}
	for k, v := range securityHeaders {
		h.Set(k, v)
	}
	h.Set("Content-Type", ContentTypeJSONHeader)
	h.Del("Content-Encoding")
	h.Del("Transfer-Encoding")
	h.Set("Content-Length", strconv.Itoa(len(payload)))

	w.WriteHeader(status)
	_, err = w.Write(payload)
	return err
}

// WriteError writes an ErrorResponse for status.
func WriteError(w http.ResponseWriter, status int, message string, extra http.Header) error {
	return WriteJSON(w, status, NewErrorResponse(status, message), extra)
}
