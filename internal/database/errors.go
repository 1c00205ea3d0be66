package database

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

type ErrorClass int

const (
	ErrorClassPermanent ErrorClass = iota
	ErrorClassTransient
	ErrorClassDeadlock
	ErrorClassSerialization
)

const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeNotNullViolation     = "23502"
	codeCheckViolation       = "23514"
)

func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassPermanent
	}

	// A colliding order number is resolved by running checkout again.
	if errors.Is(err, ErrOrderNumberTaken) {
		return ErrorClassTransient
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeSerializationFailure:
			return ErrorClassSerialization
		case codeDeadlockDetected:
			return ErrorClassDeadlock
		case codeLockNotAvailable:
			return ErrorClassTransient
		case codeUniqueViolation, codeForeignKeyViolation, codeNotNullViolation, codeCheckViolation:
			return ErrorClassPermanent
		}
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrorClassPermanent
	}

	return ErrorClassPermanent
}

func IsRetryable(err error) bool {
	class := ClassifyError(err)
	return class == ErrorClassTransient ||
		class == ErrorClassDeadlock ||
		class == ErrorClassSerialization
}

// IsUniqueViolation reports whether err is a unique violation on the named
// constraint. An empty constraint matches any unique violation.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != codeUniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

func IsForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == codeForeignKeyViolation
}

// IsCheckViolation reports whether err violates the named CHECK constraint.
func IsCheckViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != codeCheckViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// Not found.
var (
	ErrUserNotFound         = errors.New("user not found")
	ErrProductNotFound      = errors.New("product not found")
	ErrVariantNotFound      = errors.New("variant not found")
	ErrOrderNotFound        = errors.New("order not found")
	ErrCartItemNotFound     = errors.New("cart item not found")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrDeviceNotFound       = errors.New("device token not found")
)

// Business rule violations.
var (
	ErrCartEmpty          = errors.New("cart is empty")
	ErrItemUnavailable    = errors.New("item unavailable")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidQuantity    = errors.New("quantity must be positive")
	ErrInvalidStatus      = errors.New("invalid order status")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrWrongStatus        = errors.New("order status does not allow this operation")
	ErrDeadlinePassed     = errors.New("cancellation deadline has passed")
	ErrOrderNotCancelled  = errors.New("only cancelled orders can be deleted")
	ErrNothingToUpdate    = errors.New("no fields to update")
	ErrDuplicateVariant   = errors.New("variant with this size and concentration already exists")
	ErrVariantInUse       = errors.New("variant is referenced by orders")
	ErrDuplicateSlug      = errors.New("product slug already exists")
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrOrderNumberTaken   = errors.New("order number already taken")
	ErrLockTimeout        = errors.New("lock timeout")
	ErrInvalidCursor      = errors.New("invalid cursor")
	ErrInvalidPageRequest = errors.New("invalid page request")
)
