package storage

import "errors"

var (
	// ErrProviderNotFound is returned when a provider is not found
	ErrProviderNotFound = errors.New("provider not found")

	// ErrRuleNotFound is returned when a routing rule is not found
	ErrRuleNotFound = errors.New("routing rule not found")

	// ErrPolicyNotFound is returned when a safety policy is not found
	ErrPolicyNotFound = errors.New("safety policy not found")

	// ErrFallbackPolicyNotFound is returned when a fallback policy is not found
	ErrFallbackPolicyNotFound = errors.New("fallback policy not found")

	// ErrModelNotFound is returned when a model is not found
	ErrModelNotFound = errors.New("model not found")
)
