// Package errs defines the typed error taxonomy of spec §7. Components
// wrap the underlying cause with %w and callers discriminate with
// errors.As, never by string-matching messages.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigurationError marks a missing/invalid configuration value.
type ConfigurationError struct {
	Field string
	cause error
}

func NewConfigurationError(msg string) *ConfigurationError {
	return &ConfigurationError{cause: errors.New(msg)}
}

func NewConfigurationFieldError(field string, err error) *ConfigurationError {
	return &ConfigurationError{Field: field, cause: err}
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %v", e.cause)
	}
	return fmt.Sprintf("configuration error: field %q: %v", e.Field, e.cause)
}

func (e *ConfigurationError) Unwrap() error { return e.cause }

// TransientChainError marks an RPC timeout, nonce collision, or reorg
// detection — retryable by the Execution Service with backoff.
type TransientChainError struct {
	cause error
}

func NewTransientChainError(err error) *TransientChainError {
	return &TransientChainError{cause: err}
}

func (e *TransientChainError) Error() string { return fmt.Sprintf("transient chain error: %v", e.cause) }
func (e *TransientChainError) Unwrap() error { return e.cause }

// PermanentChainError marks a revert, insufficient balance, or gas-too-high
// failure. Reported; the position is re-evaluated on the next poll rather
// than retried immediately.
type PermanentChainError struct {
	cause error
}

func NewPermanentChainError(err error) *PermanentChainError {
	return &PermanentChainError{cause: err}
}

func (e *PermanentChainError) Error() string { return fmt.Sprintf("permanent chain error: %v", e.cause) }
func (e *PermanentChainError) Unwrap() error { return e.cause }

// InvalidPriceDataError marks a non-finite, non-positive, or implausibly
// large (> 1,000,000) price reading. The affected swap is skipped; this
// error never propagates upward as a fatal condition.
type InvalidPriceDataError struct {
	Token string
	Value float64
	cause error
}

func NewInvalidPriceDataError(token string, value float64) *InvalidPriceDataError {
	return &InvalidPriceDataError{Token: token, Value: value, cause: fmt.Errorf("price %v for %s is not usable", value, token)}
}

func (e *InvalidPriceDataError) Error() string { return fmt.Sprintf("invalid price data: %v", e.cause) }
func (e *InvalidPriceDataError) Unwrap() error { return e.cause }

// NumericOverflowError marks a big.Int<->float64 conversion that would
// lose precision beyond what the USD boundary tolerates (spec §9). Fatal
// for the estimation call in progress.
type NumericOverflowError struct {
	cause error
}

func NewNumericOverflowError(err error) *NumericOverflowError {
	return &NumericOverflowError{cause: err}
}

func (e *NumericOverflowError) Error() string { return fmt.Sprintf("numeric overflow: %v", e.cause) }
func (e *NumericOverflowError) Unwrap() error { return e.cause }

// RouteNotFoundError marks the absence of a usable V3 pool path between
// two tokens. The swap is declined without raising an error flag on the
// liquidation result (spec §7).
type RouteNotFoundError struct {
	TokenIn  string
	TokenOut string
}

func NewRouteNotFoundError(tokenIn, tokenOut string) *RouteNotFoundError {
	return &RouteNotFoundError{TokenIn: tokenIn, TokenOut: tokenOut}
}

func (e *RouteNotFoundError) Error() string {
	return fmt.Sprintf("route not found: %s -> %s", e.TokenIn, e.TokenOut)
}

// IsCritical reports whether err should trip the Liquidation Engine's
// circuit breaker immediately rather than counting toward its rolling
// error-rate window (spec's strategy_api-derived critical/non-critical
// classification, carried into internal/engine's CircuitBreaker).
func IsCritical(err error) bool {
	var cfg *ConfigurationError
	var overflow *NumericOverflowError
	return errors.As(err, &cfg) || errors.As(err, &overflow)
}

// ClassifyChainError wraps a raw chain/RPC error as Transient or
// Permanent based on common go-ethereum/JSON-RPC failure signatures.
// Unrecognized errors default to Transient so the Execution Service
// gets a chance to retry rather than silently dropping the position.
func ClassifyChainError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range permanentSignatures {
		if strings.Contains(msg, sig) {
			return NewPermanentChainError(err)
		}
	}
	return NewTransientChainError(err)
}

var permanentSignatures = []string{
	"execution reverted",
	"insufficient funds",
	"insufficient balance",
	"gas required exceeds allowance",
	"max fee per gas less than block base fee",
	"nonce too low",
	"already known",
	"transaction underpriced",
}
