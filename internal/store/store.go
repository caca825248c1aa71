package store

import (
	"context"

	"libralend/pkg/domain"
)

// BookSearchField selects the catalog column substring searches run against.
type BookSearchField string

const (
	SearchByTitle     BookSearchField = "title"
	SearchByAuthor    BookSearchField = "authors"
	SearchByPublisher BookSearchField = "publisher"
)

// SetLoanedResult is the outcome of the compare-and-swap on a book's
// loaned flag.
type SetLoanedResult int

const (
	// SetLoanedApplied means the flag was flipped from the expected
	// prior value to the new one.
	SetLoanedApplied SetLoanedResult = iota
	// SetLoanedConflict means the book exists but its flag did not
	// match the expected prior value, so nothing was written.
	SetLoanedConflict
	// SetLoanedNotFound means no such book exists.
	SetLoanedNotFound
)

// Store defines persistence operations for users, books, and loans.
//
// The ForUpdate getters take a row lock that lasts until the enclosing
// Transact call returns; outside a transaction they behave like the
// plain getters.
type Store interface {
	// users
	SaveUser(ctx context.Context, u domain.User) error
	GetUserByID(ctx context.Context, id string) (domain.User, bool, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error)
	HasUserEmail(ctx context.Context, email string) (bool, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	SoftDeleteUser(ctx context.Context, id string) (int64, error)

	// books
	SaveBook(ctx context.Context, b domain.Book) error
	GetBook(ctx context.Context, id int) (domain.Book, bool, error)
	GetBookForUpdate(ctx context.Context, id int) (domain.Book, bool, error)
	ListBooks(ctx context.Context) ([]domain.Book, error)
	SearchBooks(ctx context.Context, field BookSearchField, query string) ([]domain.Book, error)
	SetLoaned(ctx context.Context, id int, expectedPrior, value bool) (SetLoanedResult, error)

	// loans
	CreateLoan(ctx context.Context, bookID int, userID string) (domain.Loan, error)
	GetLoan(ctx context.Context, id string) (domain.Loan, bool, error)
	GetLoanForUpdate(ctx context.Context, id string) (domain.Loan, bool, error)
	ListLoans(ctx context.Context) ([]domain.Loan, error)
	ListLoansForUser(ctx context.Context, userID string) ([]domain.Loan, error)
	MarkReturned(ctx context.Context, id string) (int64, error)

	// Transact runs fn inside one transaction. Operations on the Store
	// passed to fn share that transaction, and row locks taken through
	// the ForUpdate getters are held until fn returns.
	Transact(ctx context.Context, fn func(tx Store) error) error
}

// SessionStore issues and validates session tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}
