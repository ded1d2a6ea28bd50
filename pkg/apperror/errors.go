package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
// Every rejection aborts its whole unit of work; there is no
// recoverable-vs-fatal distinction at this layer.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Vault Business Logic (VLT) ----

func ErrInvalidRecipient() *AppError {
	return New("VLT_001", "Invalid recipient", http.StatusBadRequest)
}

func ErrBelowMinimumOrder() *AppError {
	return New("VLT_002", "Amount below minimum order size", http.StatusBadRequest)
}

func ErrInsufficientShares() *AppError {
	return New("VLT_003", "Insufficient share balance", http.StatusUnprocessableEntity)
}

func ErrHoldPeriodActive() *AppError {
	return New("VLT_004", "Minimum holding period has not elapsed", http.StatusForbidden)
}

func ErrSlippage() *AppError {
	return New("VLT_005", "Minimum output not met", http.StatusUnprocessableEntity)
}

func ErrAssetNotActive(asset string) *AppError {
	return New("VLT_006", fmt.Sprintf("Asset %s is not active", asset), http.StatusBadRequest)
}

func ErrSupplyDust() *AppError {
	return New("VLT_007", "Share supply below dust threshold", http.StatusUnprocessableEntity)
}

func ErrSupplyFloor() *AppError {
	return New("VLT_008", "Effective supply would breach the redeemable floor", http.StatusUnprocessableEntity)
}

func ErrBaselineMismatch() *AppError {
	return New("VLT_009", "Receipt baseline mismatch", http.StatusConflict)
}

func ErrAssetNotRecoverable(asset string) *AppError {
	return New("VLT_010", fmt.Sprintf("Asset %s is not on the recovery allow-list", asset), http.StatusForbidden)
}

func ErrAssetCapReached() *AppError {
	return New("VLT_011", "Active asset registry is full", http.StatusUnprocessableEntity)
}

func ErrVaultLocked() *AppError {
	return New("VLT_012", "Vault is locked", http.StatusForbidden)
}

func ErrDuplicateReceipt() *AppError {
	return New("VLT_013", "Cross-replica transfer already applied", http.StatusConflict)
}

func ErrNotFound(entity string) *AppError {
	return New("VLT_014", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrInvalidAmount() *AppError {
	return New("VLT_015", "Invalid amount", http.StatusBadRequest)
}

func ErrInvalidParameters(reason string) *AppError {
	return New("VLT_016", fmt.Sprintf("Invalid vault parameters: %s", reason), http.StatusBadRequest)
}

func ErrTransferNotRefundable() *AppError {
	return New("VLT_017", "Transfer is not eligible for recovery", http.StatusBadRequest)
}

func ErrNotAllowlisted() *AppError {
	return New("VLT_018", "Caller is not on the participation allow-list", http.StatusForbidden)
}

// ---- Transport & Authentication (SEC) ----

func ErrInvalidReplicaKey() *AppError {
	return New("SEC_001", "Invalid replica access key", http.StatusUnauthorized)
}

func ErrInvalidSignature() *AppError {
	return New("SEC_002", "Invalid signature", http.StatusUnauthorized)
}

func ErrTimestampExpired() *AppError {
	return New("SEC_003", "Request timestamp expired", http.StatusForbidden)
}

func ErrNonceUsed() *AppError {
	return New("SEC_004", "Nonce has already been used", http.StatusForbidden)
}

// ---- Operator Authentication (AUTH) ----

func ErrInvalidCredentials() *AppError {
	return New("AUTH_001", "Invalid credentials", http.StatusUnauthorized)
}

func ErrInvalidToken() *AppError {
	return New("AUTH_002", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrCapabilityDenied() *AppError {
	return New("AUTH_003", "Caller lacks the capability for this operation", http.StatusForbidden)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

func ErrMutationInProgress() *AppError {
	return New("SYS_002", "Another mutation is in progress for this vault", http.StatusConflict)
}

func ErrCollaboratorFailure(err error) *AppError {
	return Wrap("SYS_003", "External collaborator failure", http.StatusBadGateway, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a VLT_015-style validation error.
func Validation(message string) *AppError {
	return New("VLT_015", message, http.StatusBadRequest)
}
