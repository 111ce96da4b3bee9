package errors

// Error codes for categorizing failures across the client.
const (
	// CodeContextUnavailable indicates no compatible execution context was
	// found at startup; ledger operations are disabled for the session.
	CodeContextUnavailable = "CONTEXT_UNAVAILABLE"

	// CodeNetworkUnsupported indicates the registry contract is not deployed
	// on the connected network.
	CodeNetworkUnsupported = "NETWORK_UNSUPPORTED"

	// CodeFetchFailure indicates a count or per-entry query failed during
	// catalog load.
	CodeFetchFailure = "FETCH_FAILURE"

	// CodeStorageFailure indicates the content upload step failed.
	CodeStorageFailure = "STORAGE_FAILURE"

	// CodeTxRejected indicates a contract call was rejected before acceptance.
	CodeTxRejected = "TX_REJECTED"

	// CodeValidation indicates input validation failed.
	CodeValidation = "VALIDATION_ERROR"

	// CodeConfig indicates a configuration error.
	CodeConfig = "CONFIG_ERROR"

	// CodeCache indicates the local catalog cache failed.
	CodeCache = "CACHE_ERROR"

	// CodeInternal indicates an internal error.
	CodeInternal = "INTERNAL"
)

// ErrorCategory represents a high-level error category.
type ErrorCategory string

const (
	// CategoryAdvisory groups the non-fatal, feature-disabling outcomes:
	// the user sees a warning and the affected feature stays unavailable.
	CategoryAdvisory ErrorCategory = "ADVISORY"

	// CategoryWorkflow groups failures of a single user-triggered workflow:
	// the action is terminal and the user must re-trigger it.
	CategoryWorkflow ErrorCategory = "WORKFLOW_ERROR"

	// CategoryClient indicates a caller mistake (bad input).
	CategoryClient ErrorCategory = "CLIENT_ERROR"

	// CategoryInternal indicates everything else.
	CategoryInternal ErrorCategory = "INTERNAL_ERROR"
)

// GetCategory returns the category for an error code.
func GetCategory(code string) ErrorCategory {
	switch code {
	case CodeContextUnavailable, CodeNetworkUnsupported:
		return CategoryAdvisory
	case CodeFetchFailure, CodeStorageFailure, CodeTxRejected:
		return CategoryWorkflow
	case CodeValidation:
		return CategoryClient
	default:
		return CategoryInternal
	}
}

// IsRetryable reports whether an operation failing with this code should be
// retried automatically. No failure in this client is: every failure is a
// terminal outcome for its user action, requiring the user to re-trigger it.
func IsRetryable(code string) bool {
	return false
}

// IsAdvisory reports whether the code maps to a non-fatal advisory outcome.
func IsAdvisory(code string) bool {
	return GetCategory(code) == CategoryAdvisory
}
