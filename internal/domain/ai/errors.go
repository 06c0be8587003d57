package ai

import "errors"

// ErrQuotaExceeded indicates the AI provider returned a quota/limit error (HTTP 429 or similar).
var ErrQuotaExceeded = errors.New("ai quota exceeded")

// ErrUnauthorized indicates the provider rejected or did not receive the API credential.
var ErrUnauthorized = errors.New("ai credential rejected")
