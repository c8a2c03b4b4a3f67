// Package response writes the JSON envelope every endpoint answers with:
//
//	{"success": true,  "data": ...}
//	{"success": false, "error": {"code": "SLOT_UNAVAILABLE", "message": "...", "requestId": "..."}}
package response

import "github.com/gin-gonic/gin"

// RequestIDKey is where the request id middleware stores the id in the gin context.
const RequestIDKey = "request_id"

type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBody carries a machine-readable code (SLOT_NOT_FOUND, PAYMENT_GATEWAY_ERROR, ...)
// and a message safe to show to the customer.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, Envelope{Success: true, Data: data})
}

func Error(c *gin.Context, statusCode int, code string, message string) {
	ErrorWithDetails(c, statusCode, code, message, nil)
}

// AbortError writes the error envelope and stops the handler chain.
func AbortError(c *gin.Context, statusCode int, code string, message string) {
	Error(c, statusCode, code, message)
	c.Abort()
}

func ErrorWithDetails(c *gin.Context, statusCode int, code string, message string, details any) {
	c.JSON(statusCode, Envelope{
		Success: false,
		Error: &ErrorBody{
			Code:      code,
			Message:   message,
			Details:   details,
			RequestID: c.GetString(RequestIDKey),
		},
	})
}
