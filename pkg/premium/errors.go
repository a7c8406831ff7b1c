package premium

import "errors"

var (
	// ErrStatusNotFound is returned by Storage when a user has no premium record
	ErrStatusNotFound = errors.New("premium status not found")

	// ErrPurchaseExists is returned by Storage when a transaction id was already recorded
	ErrPurchaseExists = errors.New("purchase already recorded")

	// ErrPurchaseOwnership is returned when a transaction belongs to another user
	ErrPurchaseOwnership = errors.New("purchase belongs to another user")

	// ErrUnknownProduct is returned for products without an expiry rule
	ErrUnknownProduct = errors.New("unknown product")

	// ErrInvalidUser is returned for empty user ids
	ErrInvalidUser = errors.New("invalid user id")

	// ErrStorageUnavailable is returned when storage is unavailable
	ErrStorageUnavailable = errors.New("storage unavailable")
)
