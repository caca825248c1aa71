package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"libralend/pkg/domain"
)

// MemoryStore keeps all rows in-process. It backs unit tests and local
// development; Transact serializes on the store mutex so transactional
// callers observe the same isolation the Postgres store provides via
// row locks.
type MemoryStore struct {
	mu             sync.Mutex
	users          map[string]domain.User
	books          map[int]domain.Book
	loans          map[string]domain.Loan
	userOrder      []string
	loanOrder      []string
	loanPeriodDays int
	nowFn          func() time.Time
	failErr        error
}

// NewMemoryStore initializes an empty in-memory store with the default
// loan period.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:          make(map[string]domain.User),
		books:          make(map[int]domain.Book),
		loans:          make(map[string]domain.Loan),
		loanPeriodDays: DefaultLoanPeriodDays,
		nowFn:          time.Now,
	}
}

// SetNow overrides the store clock. Test hook.
func (m *MemoryStore) SetNow(now func() time.Time) {
	m.mu.Lock()
	m.nowFn = now
	m.mu.Unlock()
}

// SetLoanPeriodDays overrides the loan period. Test hook.
func (m *MemoryStore) SetLoanPeriodDays(days int) {
	m.mu.Lock()
	m.loanPeriodDays = days
	m.mu.Unlock()
}

// FailWith makes every subsequent operation return err until called
// with nil. Test hook for exercising store-failure paths.
func (m *MemoryStore) FailWith(err error) {
	m.mu.Lock()
	m.failErr = err
	m.mu.Unlock()
}

func (m *MemoryStore) SaveUser(_ context.Context, u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveUser(u)
}

func (m *MemoryStore) GetUserByID(_ context.Context, id string) (domain.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getUserByID(id)
}

func (m *MemoryStore) GetUserByEmail(_ context.Context, email string) (domain.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getUserByEmail(email)
}

func (m *MemoryStore) HasUserEmail(_ context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok, err := m.getUserByEmail(email)
	return ok, err
}

func (m *MemoryStore) ListUsers(_ context.Context) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listUsers()
}

func (m *MemoryStore) SoftDeleteUser(_ context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.softDeleteUser(id)
}

func (m *MemoryStore) SaveBook(_ context.Context, b domain.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveBook(b)
}

func (m *MemoryStore) GetBook(_ context.Context, id int) (domain.Book, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getBook(id)
}

func (m *MemoryStore) GetBookForUpdate(ctx context.Context, id int) (domain.Book, bool, error) {
	return m.GetBook(ctx, id)
}

func (m *MemoryStore) ListBooks(_ context.Context) ([]domain.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listBooks()
}

func (m *MemoryStore) SearchBooks(_ context.Context, field BookSearchField, query string) ([]domain.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.searchBooks(field, query)
}

func (m *MemoryStore) SetLoaned(_ context.Context, id int, expectedPrior, value bool) (SetLoanedResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setLoaned(id, expectedPrior, value)
}

func (m *MemoryStore) CreateLoan(_ context.Context, bookID int, userID string) (domain.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLoan(bookID, userID)
}

func (m *MemoryStore) GetLoan(_ context.Context, id string) (domain.Loan, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLoan(id)
}

func (m *MemoryStore) GetLoanForUpdate(ctx context.Context, id string) (domain.Loan, bool, error) {
	return m.GetLoan(ctx, id)
}

func (m *MemoryStore) ListLoans(_ context.Context) ([]domain.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listLoans("")
}

func (m *MemoryStore) ListLoansForUser(_ context.Context, userID string) ([]domain.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listLoans(userID)
}

func (m *MemoryStore) MarkReturned(_ context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markReturned(id)
}

// Transact holds the store mutex for the duration of fn, giving it the
// same all-or-nothing view a row-locked DB transaction would (writes
// are not rolled back on error; tests that need rollback semantics use
// a fresh store per case).
func (m *MemoryStore) Transact(_ context.Context, fn func(tx Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&memoryTx{s: m})
}

// memoryTx exposes the unlocked core to transactional callers while
// the outer mutex is held.
type memoryTx struct {
	s *MemoryStore
}

func (t *memoryTx) SaveUser(_ context.Context, u domain.User) error { return t.s.saveUser(u) }
func (t *memoryTx) GetUserByID(_ context.Context, id string) (domain.User, bool, error) {
	return t.s.getUserByID(id)
}
func (t *memoryTx) GetUserByEmail(_ context.Context, email string) (domain.User, bool, error) {
	return t.s.getUserByEmail(email)
}
func (t *memoryTx) HasUserEmail(_ context.Context, email string) (bool, error) {
	_, ok, err := t.s.getUserByEmail(email)
	return ok, err
}
func (t *memoryTx) ListUsers(_ context.Context) ([]domain.User, error) { return t.s.listUsers() }
func (t *memoryTx) SoftDeleteUser(_ context.Context, id string) (int64, error) {
	return t.s.softDeleteUser(id)
}
func (t *memoryTx) SaveBook(_ context.Context, b domain.Book) error { return t.s.saveBook(b) }
func (t *memoryTx) GetBook(_ context.Context, id int) (domain.Book, bool, error) {
	return t.s.getBook(id)
}
func (t *memoryTx) GetBookForUpdate(_ context.Context, id int) (domain.Book, bool, error) {
	return t.s.getBook(id)
}
func (t *memoryTx) ListBooks(_ context.Context) ([]domain.Book, error) { return t.s.listBooks() }
func (t *memoryTx) SearchBooks(_ context.Context, field BookSearchField, query string) ([]domain.Book, error) {
	return t.s.searchBooks(field, query)
}
func (t *memoryTx) SetLoaned(_ context.Context, id int, expectedPrior, value bool) (SetLoanedResult, error) {
	return t.s.setLoaned(id, expectedPrior, value)
}
func (t *memoryTx) CreateLoan(_ context.Context, bookID int, userID string) (domain.Loan, error) {
	return t.s.createLoan(bookID, userID)
}
func (t *memoryTx) GetLoan(_ context.Context, id string) (domain.Loan, bool, error) {
	return t.s.getLoan(id)
}
func (t *memoryTx) GetLoanForUpdate(_ context.Context, id string) (domain.Loan, bool, error) {
	return t.s.getLoan(id)
}
func (t *memoryTx) ListLoans(_ context.Context) ([]domain.Loan, error) { return t.s.listLoans("") }
func (t *memoryTx) ListLoansForUser(_ context.Context, userID string) ([]domain.Loan, error) {
	return t.s.listLoans(userID)
}
func (t *memoryTx) MarkReturned(_ context.Context, id string) (int64, error) {
	return t.s.markReturned(id)
}
func (t *memoryTx) Transact(_ context.Context, fn func(tx Store) error) error { return fn(t) }

// unlocked core; callers hold m.mu.

func (m *MemoryStore) saveUser(u domain.User) error {
	if m.failErr != nil {
		return m.failErr
	}
	if _, exists := m.users[u.ID]; !exists {
		m.userOrder = append(m.userOrder, u.ID)
	}
	m.users[u.ID] = u
	return nil
}

func (m *MemoryStore) getUserByID(id string) (domain.User, bool, error) {
	if m.failErr != nil {
		return domain.User{}, false, m.failErr
	}
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) getUserByEmail(email string) (domain.User, bool, error) {
	if m.failErr != nil {
		return domain.User{}, false, m.failErr
	}
	for _, u := range m.users {
		if u.Email == email {
			return u, true, nil
		}
	}
	return domain.User{}, false, nil
}

func (m *MemoryStore) listUsers() ([]domain.User, error) {
	if m.failErr != nil {
		return nil, m.failErr
	}
	res := make([]domain.User, 0, len(m.userOrder))
	for _, id := range m.userOrder {
		if u, ok := m.users[id]; ok {
			res = append(res, u)
		}
	}
	return res, nil
}

func (m *MemoryStore) softDeleteUser(id string) (int64, error) {
	if m.failErr != nil {
		return 0, m.failErr
	}
	u, ok := m.users[id]
	if !ok || u.IsDeleted {
		return 0, nil
	}
	u.IsDeleted = true
	u.UpdatedAt = m.nowFn().UTC()
	m.users[id] = u
	return 1, nil
}

func (m *MemoryStore) saveBook(b domain.Book) error {
	if m.failErr != nil {
		return m.failErr
	}
	m.books[b.ID] = b
	return nil
}

func (m *MemoryStore) getBook(id int) (domain.Book, bool, error) {
	if m.failErr != nil {
		return domain.Book{}, false, m.failErr
	}
	b, ok := m.books[id]
	return b, ok, nil
}

func (m *MemoryStore) listBooks() ([]domain.Book, error) {
	if m.failErr != nil {
		return nil, m.failErr
	}
	ids := make([]int, 0, len(m.books))
	for id := range m.books {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	res := make([]domain.Book, 0, len(ids))
	for _, id := range ids {
		res = append(res, m.books[id])
	}
	return res, nil
}

func (m *MemoryStore) searchBooks(field BookSearchField, query string) ([]domain.Book, error) {
	if m.failErr != nil {
		return nil, m.failErr
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	all, err := m.listBooks()
	if err != nil {
		return nil, err
	}
	res := make([]domain.Book, 0)
	for _, b := range all {
		var haystack string
		switch field {
		case SearchByTitle:
			haystack = b.Title
		case SearchByAuthor:
			haystack = b.Authors
		case SearchByPublisher:
			haystack = b.Publisher
		}
		if strings.Contains(strings.ToLower(haystack), needle) {
			res = append(res, b)
		}
	}
	return res, nil
}

func (m *MemoryStore) setLoaned(id int, expectedPrior, value bool) (SetLoanedResult, error) {
	if m.failErr != nil {
		return SetLoanedConflict, m.failErr
	}
	b, ok := m.books[id]
	if !ok {
		return SetLoanedNotFound, nil
	}
	if b.IsLoaned != expectedPrior {
		return SetLoanedConflict, nil
	}
	b.IsLoaned = value
	m.books[id] = b
	return SetLoanedApplied, nil
}

func (m *MemoryStore) createLoan(bookID int, userID string) (domain.Loan, error) {
	if m.failErr != nil {
		return domain.Loan{}, m.failErr
	}
	now := m.nowFn().UTC()
	loanDate := domain.DateOf(now)
	loan := domain.Loan{
		ID:             uuid.NewString(),
		BookID:         bookID,
		UserID:         userID,
		LoanDate:       loanDate,
		ReturnDeadline: loanDate.AddDate(0, 0, m.loanPeriodDays),
		IsReturned:     false,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.loans[loan.ID] = loan
	m.loanOrder = append(m.loanOrder, loan.ID)
	return loan, nil
}

func (m *MemoryStore) getLoan(id string) (domain.Loan, bool, error) {
	if m.failErr != nil {
		return domain.Loan{}, false, m.failErr
	}
	l, ok := m.loans[id]
	return l, ok, nil
}

func (m *MemoryStore) listLoans(userID string) ([]domain.Loan, error) {
	if m.failErr != nil {
		return nil, m.failErr
	}
	res := make([]domain.Loan, 0, len(m.loanOrder))
	for i := len(m.loanOrder) - 1; i >= 0; i-- {
		l, ok := m.loans[m.loanOrder[i]]
		if !ok {
			continue
		}
		if userID != "" && l.UserID != userID {
			continue
		}
		res = append(res, l)
	}
	return res, nil
}

func (m *MemoryStore) markReturned(id string) (int64, error) {
	if m.failErr != nil {
		return 0, m.failErr
	}
	l, ok := m.loans[id]
	if !ok || l.IsReturned {
		return 0, nil
	}
	l.IsReturned = true
	l.UpdatedAt = m.nowFn().UTC()
	m.loans[id] = l
	return 1, nil
}
