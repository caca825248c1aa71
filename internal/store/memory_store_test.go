package store

import (
	"context"
	"testing"
	"time"

	"libralend/pkg/domain"
)

func TestMemoryStoreSetLoanedCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.SaveBook(ctx, domain.Book{ID: 1, Title: "Dune"}); err != nil {
		t.Fatalf("save book: %v", err)
	}

	res, err := s.SetLoaned(ctx, 1, false, true)
	if err != nil || res != SetLoanedApplied {
		t.Fatalf("expected applied, got res=%v err=%v", res, err)
	}

	// prior no longer matches
	res, err = s.SetLoaned(ctx, 1, false, true)
	if err != nil || res != SetLoanedConflict {
		t.Fatalf("expected conflict, got res=%v err=%v", res, err)
	}

	res, err = s.SetLoaned(ctx, 99, false, true)
	if err != nil || res != SetLoanedNotFound {
		t.Fatalf("expected not found, got res=%v err=%v", res, err)
	}
}

func TestMemoryStoreCreateLoanComputesDeadline(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	fixed := time.Date(2026, 3, 10, 17, 45, 0, 0, time.UTC)
	s.SetNow(func() time.Time { return fixed })

	loan, err := s.CreateLoan(ctx, 1, "user-1")
	if err != nil {
		t.Fatalf("create loan: %v", err)
	}
	wantDate := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	if !loan.LoanDate.Equal(wantDate) {
		t.Fatalf("loan date = %v, want %v", loan.LoanDate, wantDate)
	}
	if !loan.ReturnDeadline.Equal(wantDate.AddDate(0, 0, DefaultLoanPeriodDays)) {
		t.Fatalf("deadline = %v, want loan date + %d days", loan.ReturnDeadline, DefaultLoanPeriodDays)
	}
	if loan.IsReturned {
		t.Fatalf("new loan must start unreturned")
	}
	if loan.ID == "" {
		t.Fatalf("expected generated loan id")
	}
}

func TestMemoryStoreMarkReturnedAffectsOneRowOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	loan, err := s.CreateLoan(ctx, 1, "user-1")
	if err != nil {
		t.Fatalf("create loan: %v", err)
	}

	n, err := s.MarkReturned(ctx, loan.ID)
	if err != nil || n != 1 {
		t.Fatalf("first return: n=%d err=%v", n, err)
	}
	n, err = s.MarkReturned(ctx, loan.ID)
	if err != nil || n != 0 {
		t.Fatalf("second return should affect zero rows, got n=%d err=%v", n, err)
	}
	n, err = s.MarkReturned(ctx, "missing")
	if err != nil || n != 0 {
		t.Fatalf("missing loan should affect zero rows, got n=%d err=%v", n, err)
	}
}

func TestMemoryStoreSoftDeleteUser(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.SaveUser(ctx, domain.User{ID: "u1", Email: "a@example.com"}); err != nil {
		t.Fatalf("save user: %v", err)
	}
	n, err := s.SoftDeleteUser(ctx, "u1")
	if err != nil || n != 1 {
		t.Fatalf("soft delete: n=%d err=%v", n, err)
	}
	u, ok, err := s.GetUserByID(ctx, "u1")
	if err != nil || !ok {
		t.Fatalf("user row should survive soft delete")
	}
	if !u.IsDeleted {
		t.Fatalf("expected IsDeleted set")
	}
	n, err = s.SoftDeleteUser(ctx, "u1")
	if err != nil || n != 0 {
		t.Fatalf("second delete should affect zero rows, got n=%d err=%v", n, err)
	}
}

func TestMemoryStoreSearchBooks(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	books := []domain.Book{
		{ID: 1, Title: "The Left Hand of Darkness", Authors: "Ursula K. Le Guin", Publisher: "Ace"},
		{ID: 2, Title: "A Wizard of Earthsea", Authors: "Ursula K. Le Guin", Publisher: "Parnassus"},
		{ID: 3, Title: "Neuromancer", Authors: "William Gibson", Publisher: "Ace"},
	}
	for _, b := range books {
		if err := s.SaveBook(ctx, b); err != nil {
			t.Fatalf("save book: %v", err)
		}
	}

	byAuthor, err := s.SearchBooks(ctx, SearchByAuthor, "le guin")
	if err != nil {
		t.Fatalf("search by author: %v", err)
	}
	if len(byAuthor) != 2 {
		t.Fatalf("expected 2 Le Guin books, got %d", len(byAuthor))
	}

	byPublisher, err := s.SearchBooks(ctx, SearchByPublisher, "Ace")
	if err != nil {
		t.Fatalf("search by publisher: %v", err)
	}
	if len(byPublisher) != 2 {
		t.Fatalf("expected 2 Ace books, got %d", len(byPublisher))
	}

	byTitle, err := s.SearchBooks(ctx, SearchByTitle, "earthsea")
	if err != nil {
		t.Fatalf("search by title: %v", err)
	}
	if len(byTitle) != 1 || byTitle[0].ID != 2 {
		t.Fatalf("expected book 2 for earthsea, got %v", byTitle)
	}
}
