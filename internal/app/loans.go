package app

import (
	"context"
	"fmt"

	"libralend/internal/store"
	"libralend/internal/util"
	"libralend/pkg/domain"
)

// CreateLoan opens a loan for the book and user. The availability
// check and flip plus the loan insert run in one transaction holding a
// row lock on the book, so two concurrent calls for the same book
// cannot both succeed.
func (a *App) CreateLoan(ctx context.Context, bookID int, userID string) (domain.Loan, error) {
	logger := util.LoggerFromContext(ctx)

	if !a.gate.UserExists(ctx, userID) || !a.gate.BookExists(ctx, bookID) {
		return domain.Loan{}, ErrNotFound
	}

	// Cheap pre-check before taking the lock; the in-transaction check
	// below is authoritative.
	loaned, err := a.gate.IsBookLoaned(ctx, bookID)
	if err != nil {
		logger.Warn("book availability read failed", "book_id", bookID, "err", err)
		return domain.Loan{}, asAppError(err)
	}
	if loaned {
		return domain.Loan{}, ErrBookAlreadyLoaned
	}

	var loan domain.Loan
	err = a.store.Transact(ctx, func(tx store.Store) error {
		book, ok, err := tx.GetBookForUpdate(ctx, bookID)
		if err != nil {
			logger.Error("lock book row", "book_id", bookID, "err", err)
			return ErrInternal
		}
		if !ok {
			return ErrNotFound
		}
		if book.IsLoaned {
			return ErrBookAlreadyLoaned
		}

		res, err := tx.SetLoaned(ctx, bookID, false, true)
		if err != nil {
			logger.Error("set book loaned", "book_id", bookID, "err", err)
			return ErrBadRequest
		}
		switch res {
		case store.SetLoanedConflict:
			return ErrBookLoanStatus
		case store.SetLoanedNotFound:
			return ErrNotFound
		}

		loan, err = tx.CreateLoan(ctx, bookID, userID)
		if err != nil {
			logger.Error("insert loan", "book_id", bookID, "user_id", userID, "err", err)
			return ErrInternal
		}
		return nil
	})
	if err != nil {
		return domain.Loan{}, asAppError(err)
	}
	return loan, nil
}

// ReturnLoan closes the loan and frees its book. The read, the
// returned flip, and the availability flip run in one transaction with
// a row lock on the loan.
func (a *App) ReturnLoan(ctx context.Context, loanID string) error {
	logger := util.LoggerFromContext(ctx)

	err := a.store.Transact(ctx, func(tx store.Store) error {
		loan, ok, err := tx.GetLoanForUpdate(ctx, loanID)
		if err != nil || !ok {
			return ErrNotFound
		}
		if loan.IsReturned {
			return ErrLoanReturned
		}

		n, err := tx.MarkReturned(ctx, loanID)
		if err != nil {
			logger.Error("mark loan returned", "loan_id", loanID, "err", err)
			return ErrInternal
		}
		if n == 0 {
			return ErrNotFound
		}

		// Re-read the loan for its book id rather than trusting the
		// pre-update copy.
		fresh, ok, err := tx.GetLoan(ctx, loanID)
		if err != nil || !ok {
			return ErrNotFound
		}

		res, err := tx.SetLoaned(ctx, fresh.BookID, true, false)
		if err != nil {
			logger.Error("free book", "book_id", fresh.BookID, "err", err)
			return ErrBadRequest
		}
		switch res {
		case store.SetLoanedConflict:
			return ErrBookLoanStatus
		case store.SetLoanedNotFound:
			return ErrBadRequest
		}
		return nil
	})
	return asAppError(err)
}

// CheckStatus reports how many days remain until, or have passed
// since, the loan's return deadline. Closed loans refuse status checks
// with ErrLoanReturned.
func (a *App) CheckStatus(ctx context.Context, loanID string) (string, error) {
	returned, err := a.gate.AlreadyReturned(ctx, loanID)
	if err != nil {
		return "", ErrNotFound
	}
	if returned {
		return "", ErrLoanReturned
	}

	loan, ok, err := a.store.GetLoan(ctx, loanID)
	if err != nil || !ok {
		return "", ErrNotFound
	}

	today := domain.DateOf(a.now())
	if today.After(loan.ReturnDeadline) {
		overtime := domain.DaysBetween(loan.ReturnDeadline, today)
		return fmt.Sprintf("You are late returning a book. Days overtime: %d", overtime), nil
	}
	return fmt.Sprintf("Days until deadline: %d", domain.DaysBetween(today, loan.ReturnDeadline)), nil
}

// ListLoans returns every loan, open and closed.
func (a *App) ListLoans(ctx context.Context) ([]domain.Loan, error) {
	loans, err := a.store.ListLoans(ctx)
	if err != nil {
		return nil, ErrInternal
	}
	return loans, nil
}

// ListLoansForUser returns all loans of one user. The user must exist;
// an unknown id fails with ErrNotFound before any loan query runs.
func (a *App) ListLoansForUser(ctx context.Context, userID string) ([]domain.Loan, error) {
	if !a.gate.UserExists(ctx, userID) {
		return nil, ErrNotFound
	}
	loans, err := a.store.ListLoansForUser(ctx, userID)
	if err != nil {
		return nil, ErrNotFound
	}
	return loans, nil
}

// GetLoan fetches a single loan.
func (a *App) GetLoan(ctx context.Context, loanID string) (domain.Loan, error) {
	loan, ok, err := a.store.GetLoan(ctx, loanID)
	if err != nil {
		return domain.Loan{}, ErrInternal
	}
	if !ok {
		return domain.Loan{}, ErrNotFound
	}
	return loan, nil
}
