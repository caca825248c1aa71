// Package validate holds the predicate gates the loan engine runs
// before mutating anything: entity existence, availability, and field
// well-formedness.
package validate

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"libralend/internal/store"
)

var (
	// ErrLoanNotFound is returned by AlreadyReturned when the loan
	// cannot be resolved. Lookup failures are collapsed into it as
	// well, so the caller sees a single not-found outcome.
	ErrLoanNotFound = errors.New("loan not found")

	// ErrBookNotFound is returned by IsBookLoaned when the book does
	// not exist.
	ErrBookNotFound = errors.New("book not found")
)

// Gate answers existence and state questions against the store. Its
// methods never propagate raw store errors to callers; each collapses
// failure to the documented conservative answer.
type Gate struct {
	store store.Store
}

// NewGate builds a gate over the given store.
func NewGate(s store.Store) *Gate {
	return &Gate{store: s}
}

// UserExists reports whether a live (not soft-deleted) user with the
// id exists. Any fetch failure counts as absent.
func (g *Gate) UserExists(ctx context.Context, id string) bool {
	user, ok, err := g.store.GetUserByID(ctx, id)
	if err != nil || !ok {
		return false
	}
	return !user.IsDeleted
}

// BookExists reports whether a book with the id exists. Any fetch
// failure counts as absent.
func (g *Gate) BookExists(ctx context.Context, id int) bool {
	_, ok, err := g.store.GetBook(ctx, id)
	return err == nil && ok
}

// IsBookLoaned reports the book's current availability. Fetch failures
// propagate rather than defaulting to available: a book whose state
// cannot be read must not be loaned out.
func (g *Gate) IsBookLoaned(ctx context.Context, id int) (bool, error) {
	book, ok, err := g.store.GetBook(ctx, id)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrBookNotFound
	}
	return book.IsLoaned, nil
}

// AlreadyReturned reports whether the loan is closed. A missing loan
// or a lookup failure both yield ErrLoanNotFound.
func (g *Gate) AlreadyReturned(ctx context.Context, id string) (bool, error) {
	loan, ok, err := g.store.GetLoan(ctx, id)
	if err != nil || !ok {
		return false, ErrLoanNotFound
	}
	return loan.IsReturned, nil
}

// IsEmpty reports whether the field is empty after trimming. Empty
// search terms are rejected before any query is dispatched.
func IsEmpty(field string) bool {
	return strings.TrimSpace(field) == ""
}

// Email reports whether the address parses as a bare RFC 5322 address.
func Email(address string) bool {
	address = strings.TrimSpace(address)
	if address == "" {
		return false
	}
	parsed, err := mail.ParseAddress(address)
	return err == nil && parsed.Address == address
}
