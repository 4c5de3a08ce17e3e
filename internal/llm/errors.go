package llm

import (
	"fmt"
	"strings"
)

// APIError is a non-200 response from an OpenAI-compatible backend. The raw
// body is kept so callers can inspect provider-specific failure reasons.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Body)
}

// TranslateError converts technical provider/system errors into user-friendly messages.
// It prioritizes actionable advice and hides cryptic backend details.
func TranslateError(err error) string {
	if err == nil {
		return ""
	}

	errMsg := err.Error()

	// 1. Authentication errors
	if strings.Contains(errMsg, "401") || strings.Contains(errMsg, "Unauthorized") || strings.Contains(errMsg, "invalid_api_key") {
		return "Authentication error: check your API key in providers.yaml or the environment."
	}

	// 2. Rate limits
	if strings.Contains(errMsg, "429") || strings.Contains(errMsg, "Rate limit") || strings.Contains(errMsg, "Too Many Requests") {
		return "Rate limit exceeded: wait a moment or switch to a different provider/model."
	}

	// 3. Context window / max tokens errors
	if strings.Contains(errMsg, "max_tokens") || strings.Contains(errMsg, "context_length") || strings.Contains(errMsg, "too many tokens") {
		return "Context full: too much data for this model. Reduce the document set or pick a larger model."
	}

	// 4. Invalid model
	if strings.Contains(errMsg, "model_not_found") || strings.Contains(errMsg, "404") && strings.Contains(errMsg, "model") {
		return "Model not found: check the model name or ensure it is available for your API key."
	}

	// 5. Network errors
	if strings.Contains(errMsg, "deadline exceeded") || strings.Contains(errMsg, "timeout") {
		return "Connection timeout: check your network or the provider's status page."
	}
	if strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "no such host") {
		return "Network error: cannot reach the provider. Check your internet or proxy settings."
	}

	// 6. Insufficient balance (OpenRouter/DeepSeek specific)
	if strings.Contains(errMsg, "insufficient_balance") || strings.Contains(errMsg, "credit") {
		return "Insufficient balance: check your provider account credits."
	}

	// 7. General provider errors
	if strings.Contains(errMsg, "API error 5") || strings.Contains(errMsg, "Internal Server Error") {
		return "Provider error: the backend is temporarily unavailable. Try again later."
	}

	return fmt.Sprintf("An error occurred: %s", errMsg)
}
