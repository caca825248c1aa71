package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"libralend/pkg/domain"
)

// DefaultLoanPeriodDays is the loan period applied when none is configured.
const DefaultLoanPeriodDays = 14

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db             *gorm.DB
	loanPeriodDays int
	now            func() time.Time
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string, loanPeriodDays int) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&UserModel{}, &BookModel{}, &LoanModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	if loanPeriodDays <= 0 {
		loanPeriodDays = DefaultLoanPeriodDays
	}
	return &GormStore{db: db, loanPeriodDays: loanPeriodDays, now: time.Now}, nil
}

// SaveUser inserts or updates a user row.
func (s *GormStore) SaveUser(ctx context.Context, u domain.User) error {
	model := userToModel(u)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"first_name", "last_name", "email", "password_hash", "is_admin", "is_deleted", "updated_at"}),
	}).Create(&model).Error
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(ctx context.Context, id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// HasUserEmail checks whether the email is already registered.
func (s *GormStore) HasUserEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListUsers returns all users ordered by created_at.
func (s *GormStore) ListUsers(ctx context.Context) ([]domain.User, error) {
	var models []UserModel
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.User, 0, len(models))
	for _, m := range models {
		res = append(res, userFromModel(m))
	}
	return res, nil
}

// SoftDeleteUser flags the user deleted and reports affected rows.
func (s *GormStore) SoftDeleteUser(ctx context.Context, id string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&UserModel{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(map[string]any{"is_deleted": true, "updated_at": s.now().UTC()})
	return res.RowsAffected, res.Error
}

// SaveBook inserts or updates a catalog entry.
func (s *GormStore) SaveBook(ctx context.Context, b domain.Book) error {
	model := bookToModel(b)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "authors", "isbn", "language_code", "num_pages", "publication_date", "publisher", "is_loaned"}),
	}).Create(&model).Error
}

// GetBook retrieves a book.
func (s *GormStore) GetBook(ctx context.Context, id int) (domain.Book, bool, error) {
	return s.getBook(ctx, id, false)
}

// GetBookForUpdate retrieves a book holding a row lock for the
// remainder of the enclosing transaction.
func (s *GormStore) GetBookForUpdate(ctx context.Context, id int) (domain.Book, bool, error) {
	return s.getBook(ctx, id, true)
}

func (s *GormStore) getBook(ctx context.Context, id int, forUpdate bool) (domain.Book, bool, error) {
	tx := s.db.WithContext(ctx)
	if forUpdate {
		tx = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var model BookModel
	if err := tx.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Book{}, false, nil
		}
		return domain.Book{}, false, err
	}
	return bookFromModel(model), true, nil
}

// ListBooks returns the catalog ordered by id.
func (s *GormStore) ListBooks(ctx context.Context) ([]domain.Book, error) {
	var models []BookModel
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Book, 0, len(models))
	for _, m := range models {
		res = append(res, bookFromModel(m))
	}
	return res, nil
}

// SearchBooks runs a case-insensitive substring match on one catalog column.
func (s *GormStore) SearchBooks(ctx context.Context, field BookSearchField, query string) ([]domain.Book, error) {
	column, ok := searchColumn(field)
	if !ok {
		return nil, fmt.Errorf("unsupported search field %q", field)
	}
	pattern := "%" + strings.TrimSpace(query) + "%"
	var models []BookModel
	if err := s.db.WithContext(ctx).
		Where(column+" ILIKE ?", pattern).
		Order("id ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Book, 0, len(models))
	for _, m := range models {
		res = append(res, bookFromModel(m))
	}
	return res, nil
}

func searchColumn(field BookSearchField) (string, bool) {
	switch field {
	case SearchByTitle:
		return "title", true
	case SearchByAuthor:
		return "authors", true
	case SearchByPublisher:
		return "publisher", true
	default:
		return "", false
	}
}

// SetLoaned flips is_loaned only when it currently matches expectedPrior.
func (s *GormStore) SetLoaned(ctx context.Context, id int, expectedPrior, value bool) (SetLoanedResult, error) {
	res := s.db.WithContext(ctx).Model(&BookModel{}).
		Where("id = ? AND is_loaned = ?", id, expectedPrior).
		Update("is_loaned", value)
	if res.Error != nil {
		return SetLoanedConflict, res.Error
	}
	if res.RowsAffected == 1 {
		return SetLoanedApplied, nil
	}
	_, found, err := s.GetBook(ctx, id)
	if err != nil {
		return SetLoanedConflict, err
	}
	if !found {
		return SetLoanedNotFound, nil
	}
	return SetLoanedConflict, nil
}

// CreateLoan inserts a fresh loan for the book and user. The loan date
// is today and the deadline is loanPeriodDays later, both at day
// resolution in UTC.
func (s *GormStore) CreateLoan(ctx context.Context, bookID int, userID string) (domain.Loan, error) {
	now := s.now().UTC()
	loanDate := domain.DateOf(now)
	model := LoanModel{
		ID:             uuid.NewString(),
		BookID:         bookID,
		UserID:         userID,
		LoanDate:       loanDate,
		ReturnDeadline: loanDate.AddDate(0, 0, s.loanPeriodDays),
		IsReturned:     false,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.Loan{}, err
	}
	return loanFromModel(model), nil
}

// GetLoan retrieves a loan by id.
func (s *GormStore) GetLoan(ctx context.Context, id string) (domain.Loan, bool, error) {
	return s.getLoan(ctx, id, false)
}

// GetLoanForUpdate retrieves a loan holding a row lock for the
// remainder of the enclosing transaction.
func (s *GormStore) GetLoanForUpdate(ctx context.Context, id string) (domain.Loan, bool, error) {
	return s.getLoan(ctx, id, true)
}

func (s *GormStore) getLoan(ctx context.Context, id string, forUpdate bool) (domain.Loan, bool, error) {
	tx := s.db.WithContext(ctx)
	if forUpdate {
		tx = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var model LoanModel
	if err := tx.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Loan{}, false, nil
		}
		return domain.Loan{}, false, err
	}
	return loanFromModel(model), true, nil
}

// ListLoans returns all loans, newest first.
func (s *GormStore) ListLoans(ctx context.Context) ([]domain.Loan, error) {
	return s.listLoans(ctx)
}

// ListLoansForUser returns the loans of one user, newest first.
func (s *GormStore) ListLoansForUser(ctx context.Context, userID string) ([]domain.Loan, error) {
	return s.listLoans(ctx, "user_id = ?", userID)
}

func (s *GormStore) listLoans(ctx context.Context, conds ...any) ([]domain.Loan, error) {
	tx := s.db.WithContext(ctx).Order("created_at DESC")
	if len(conds) > 0 {
		tx = tx.Where(conds[0], conds[1:]...)
	}
	var models []LoanModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Loan, 0, len(models))
	for _, m := range models {
		res = append(res, loanFromModel(m))
	}
	return res, nil
}

// MarkReturned closes the loan and reports affected rows. An already
// returned loan matches zero rows.
func (s *GormStore) MarkReturned(ctx context.Context, id string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&LoanModel{}).
		Where("id = ? AND is_returned = ?", id, false).
		Updates(map[string]any{"is_returned": true, "updated_at": s.now().UTC()})
	return res.RowsAffected, res.Error
}

// Transact runs fn inside one database transaction.
func (s *GormStore) Transact(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx, loanPeriodDays: s.loanPeriodDays, now: s.now})
	})
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		IsAdmin:      u.IsAdmin,
		IsDeleted:    u.IsDeleted,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		FirstName:    m.FirstName,
		LastName:     m.LastName,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		IsAdmin:      m.IsAdmin,
		IsDeleted:    m.IsDeleted,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func bookToModel(b domain.Book) BookModel {
	return BookModel{
		ID:              b.ID,
		Title:           b.Title,
		Authors:         b.Authors,
		ISBN:            b.ISBN,
		LanguageCode:    b.LanguageCode,
		NumPages:        b.NumPages,
		PublicationDate: b.PublicationDate,
		Publisher:       b.Publisher,
		IsLoaned:        b.IsLoaned,
	}
}

func bookFromModel(m BookModel) domain.Book {
	return domain.Book{
		ID:              m.ID,
		Title:           m.Title,
		Authors:         m.Authors,
		ISBN:            m.ISBN,
		LanguageCode:    m.LanguageCode,
		NumPages:        m.NumPages,
		PublicationDate: m.PublicationDate,
		Publisher:       m.Publisher,
		IsLoaned:        m.IsLoaned,
	}
}

func loanFromModel(m LoanModel) domain.Loan {
	return domain.Loan{
		ID:             m.ID,
		BookID:         m.BookID,
		UserID:         m.UserID,
		LoanDate:       m.LoanDate,
		ReturnDeadline: m.ReturnDeadline,
		IsReturned:     m.IsReturned,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}
