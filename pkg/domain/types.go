package domain

import "time"

// Book is a catalog entry. IsLoaned is true while the book has an
// active (unreturned) loan; only the loan engine flips it.
type Book struct {
	ID              int       `json:"id"`
	Title           string    `json:"title"`
	Authors         string    `json:"authors"`
	ISBN            string    `json:"isbn"`
	LanguageCode    string    `json:"languageCode"`
	NumPages        int       `json:"numPages"`
	PublicationDate time.Time `json:"publicationDate"`
	Publisher       string    `json:"publisher"`
	IsLoaned        bool      `json:"isLoaned"`
}

// Loan records one borrowing of a book. The only permitted mutation is
// IsReturned false -> true; after that the record is terminal.
type Loan struct {
	ID             string    `json:"id"`
	BookID         int       `json:"bookId"`
	UserID         string    `json:"userId"`
	LoanDate       time.Time `json:"loanDate"`
	ReturnDeadline time.Time `json:"returnDeadline"`
	IsReturned     bool      `json:"isReturned"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Active reports whether the loan is still open.
func (l Loan) Active() bool {
	return !l.IsReturned
}

// User is a registered borrower. Deletion is soft (IsDeleted) so
// historical loans stay resolvable.
type User struct {
	ID           string    `json:"id"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsAdmin      bool      `json:"isAdmin"`
	IsDeleted    bool      `json:"isDeleted"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
