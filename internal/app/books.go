package app

import (
	"context"

	"libralend/internal/store"
	"libralend/internal/validate"
	"libralend/pkg/domain"
)

// ListBooks returns the whole catalog.
func (a *App) ListBooks(ctx context.Context) ([]domain.Book, error) {
	books, err := a.store.ListBooks(ctx)
	if err != nil {
		return nil, ErrInternal
	}
	return books, nil
}

// GetBook fetches one catalog entry.
func (a *App) GetBook(ctx context.Context, id int) (domain.Book, error) {
	book, ok, err := a.store.GetBook(ctx, id)
	if err != nil {
		return domain.Book{}, ErrInternal
	}
	if !ok {
		return domain.Book{}, ErrNotFound
	}
	return book, nil
}

// SearchBooks runs a substring search on one catalog column. Empty
// queries are rejected before the store is touched.
func (a *App) SearchBooks(ctx context.Context, field store.BookSearchField, query string) ([]domain.Book, error) {
	if validate.IsEmpty(query) {
		return nil, ErrBadRequest
	}
	books, err := a.store.SearchBooks(ctx, field, query)
	if err != nil {
		return nil, ErrInternal
	}
	return books, nil
}

// AddBook inserts a catalog entry. Catalog ingestion sits outside the
// loan engine; this exists for administration and seeding.
func (a *App) AddBook(ctx context.Context, book domain.Book) error {
	if validate.IsEmpty(book.Title) {
		return ErrBadRequest
	}
	if err := a.store.SaveBook(ctx, book); err != nil {
		return ErrInternal
	}
	return nil
}
