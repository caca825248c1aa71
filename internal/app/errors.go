package app

import "errors"

// The loan engine maps every failure to one of these kinds. Handlers
// translate them 1:1 to response statuses; nothing below retries.
var (
	// ErrNotFound means a referenced user, book, or loan is absent.
	ErrNotFound = errors.New("user, loan or book not found")

	// ErrBadRequest covers malformed input and downstream writes that
	// failed in a way attributable to the request.
	ErrBadRequest = errors.New("bad request")

	// ErrInternal is a persistence failure unattributable to the caller.
	ErrInternal = errors.New("internal error")

	// ErrLoanReturned is an operation attempted on an already-closed
	// loan. Returning twice is a client error, not a no-op.
	ErrLoanReturned = errors.New("loan already returned")

	// ErrBookAlreadyLoaned rejects loan creation on an unavailable book.
	ErrBookAlreadyLoaned = errors.New("book is already loaned")

	// ErrBookLoanStatus means the availability compare-and-swap did not
	// apply: the flag no longer matched the expected prior value.
	ErrBookLoanStatus = errors.New("book loan status update did not apply")

	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailAlreadyExists = errors.New("email already exists")
	ErrPasswordHash       = errors.New("error hashing password")
	ErrUserCreation       = errors.New("error creating user")
)

var appErrors = []error{
	ErrNotFound,
	ErrBadRequest,
	ErrInternal,
	ErrLoanReturned,
	ErrBookAlreadyLoaned,
	ErrBookLoanStatus,
	ErrInvalidCredentials,
	ErrEmailAlreadyExists,
	ErrPasswordHash,
	ErrUserCreation,
}

// asAppError passes through a recognized error kind and collapses
// anything else (driver errors, commit failures) to ErrInternal.
func asAppError(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range appErrors {
		if errors.Is(err, kind) {
			return err
		}
	}
	return ErrInternal
}
