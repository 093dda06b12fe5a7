// Package reliability classifies failures for the renderer. Nothing here
// retries on its own; a retryable failure only tells the visitor that a
// manual retry may help.
package reliability

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
