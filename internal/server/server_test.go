package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"libralend/internal/app"
	"libralend/internal/ratelimit"
	"libralend/internal/store"
	"libralend/pkg/domain"
)

type testEnv struct {
	srv   *httptest.Server
	app   *app.App
	store *store.MemoryStore
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	mem := store.NewMemoryStore()
	a, err := app.New(app.Config{
		Store:     mem,
		JWTSecret: "test-secret",
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	cfg.App = a
	srv := httptest.NewServer(New(cfg).Router())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, app: a, store: mem}
}

// registerAndLogin creates an account through the app layer and
// returns its bearer token.
func (e *testEnv) registerAndLogin(t *testing.T, email string, admin bool) (domain.User, string) {
	t.Helper()
	ctx := context.Background()
	user, err := e.app.Register(ctx, "Test", "User", email, "Password1", false)
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	if admin {
		user.IsAdmin = true
		if err := e.store.SaveUser(ctx, user); err != nil {
			t.Fatalf("promote %s: %v", email, err)
		}
	}
	_, token, err := e.app.Login(ctx, email, "Password1")
	if err != nil {
		t.Fatalf("login %s: %v", email, err)
	}
	return user, token
}

func (e *testEnv) seedBook(t *testing.T, id int, title string) {
	t.Helper()
	book := domain.Book{ID: id, Title: title, Authors: "Author", Publisher: "Publisher"}
	if err := e.store.SaveBook(context.Background(), book); err != nil {
		t.Fatalf("seed book: %v", err)
	}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestLoanLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t, Config{})
	_, token := env.registerAndLogin(t, "member@example.com", false)
	env.seedBook(t, 1, "Leviathan Wakes")

	resp := env.do(t, http.MethodPost, "/loans", token, map[string]any{"bookId": 1})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create loan expected 201, got %d", resp.StatusCode)
	}
	loan := decodeJSON[domain.Loan](t, resp)
	if loan.ID == "" || loan.BookID != 1 {
		t.Fatalf("unexpected loan payload %+v", loan)
	}

	resp = env.do(t, http.MethodGet, "/loans/"+loan.ID+"/status", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status expected 200, got %d", resp.StatusCode)
	}
	status := decodeJSON[map[string]string](t, resp)
	if status["message"] != "Days until deadline: 14" {
		t.Fatalf("unexpected status message %q", status["message"])
	}

	// a second loan for the same book is rejected
	resp = env.do(t, http.MethodPost, "/loans", token, map[string]any{"bookId": 1})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("second loan expected 400, got %d", resp.StatusCode)
	}

	resp = env.do(t, http.MethodPost, "/loans/"+loan.ID+"/return", token, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("return expected 204, got %d", resp.StatusCode)
	}

	// double return and status on a closed loan are client errors
	resp = env.do(t, http.MethodPost, "/loans/"+loan.ID+"/return", token, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("double return expected 400, got %d", resp.StatusCode)
	}
	resp = env.do(t, http.MethodGet, "/loans/"+loan.ID+"/status", token, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status on closed loan expected 400, got %d", resp.StatusCode)
	}

	// the book is available again
	resp = env.do(t, http.MethodPost, "/loans", token, map[string]any{"bookId": 1})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("loan after return expected 201, got %d", resp.StatusCode)
	}
}

func TestLoanEndpointsRequireAuth(t *testing.T) {
	env := newTestEnv(t, Config{})
	resp := env.do(t, http.MethodPost, "/loans", "", map[string]any{"bookId": 1})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	resp = env.do(t, http.MethodGet, "/loans/some-id/status", "bogus-token", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", resp.StatusCode)
	}
}

func TestLoanVisibilityIsOwnerOrAdmin(t *testing.T) {
	env := newTestEnv(t, Config{})
	_, ownerToken := env.registerAndLogin(t, "owner@example.com", false)
	_, otherToken := env.registerAndLogin(t, "other@example.com", false)
	_, adminToken := env.registerAndLogin(t, "admin@example.com", true)
	env.seedBook(t, 1, "Caliban's War")

	resp := env.do(t, http.MethodPost, "/loans", ownerToken, map[string]any{"bookId": 1})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create loan expected 201, got %d", resp.StatusCode)
	}
	loan := decodeJSON[domain.Loan](t, resp)

	if resp := env.do(t, http.MethodGet, "/loans/"+loan.ID, otherToken, nil); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("stranger read expected 403, got %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodGet, "/loans/"+loan.ID, adminToken, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("admin read expected 200, got %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodGet, "/loans", ownerToken, nil); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("member loan listing expected 403, got %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodGet, "/loans", adminToken, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("admin loan listing expected 200, got %d", resp.StatusCode)
	}
}

func TestUserEndpointsAdminGuards(t *testing.T) {
	env := newTestEnv(t, Config{})
	member, memberToken := env.registerAndLogin(t, "member@example.com", false)
	_, adminToken := env.registerAndLogin(t, "admin@example.com", true)

	if resp := env.do(t, http.MethodGet, "/users", memberToken, nil); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("member user listing expected 403, got %d", resp.StatusCode)
	}
	resp := env.do(t, http.MethodGet, "/users", adminToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin user listing expected 200, got %d", resp.StatusCode)
	}

	// members read their own loan history, admins anyone's
	if resp := env.do(t, http.MethodGet, "/users/"+member.ID+"/loans", memberToken, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("own loan history expected 200, got %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodDelete, "/users/"+member.ID, memberToken, nil); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("member delete expected 403, got %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodDelete, "/users/"+member.ID, adminToken, nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("admin delete expected 204, got %d", resp.StatusCode)
	}

	// the deleted member's token stops working
	if resp := env.do(t, http.MethodGet, "/users/"+member.ID+"/loans", memberToken, nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("deleted member token expected 401, got %d", resp.StatusCode)
	}
}

func TestBookEndpoints(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.seedBook(t, 1, "The Left Hand of Darkness")
	env.seedBook(t, 2, "The Word for World Is Forest")

	resp := env.do(t, http.MethodGet, "/books", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list books expected 200, got %d", resp.StatusCode)
	}
	listing := decodeJSON[struct {
		Count int           `json:"count"`
		Items []domain.Book `json:"items"`
	}](t, resp)
	if listing.Count != 2 {
		t.Fatalf("expected 2 books, got %d", listing.Count)
	}

	if resp := env.do(t, http.MethodGet, "/books/1", "", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("get book expected 200, got %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodGet, "/books/999", "", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown book expected 404, got %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodGet, "/books/not-a-number", "", nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed book id expected 400, got %d", resp.StatusCode)
	}

	resp = env.do(t, http.MethodGet, "/books/search/title?q=forest", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("search expected 200, got %d", resp.StatusCode)
	}
	found := decodeJSON[struct {
		Count int           `json:"count"`
		Items []domain.Book `json:"items"`
	}](t, resp)
	if found.Count != 1 || found.Items[0].ID != 2 {
		t.Fatalf("unexpected search result %+v", found)
	}

	if resp := env.do(t, http.MethodGet, "/books/search/title", "", nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty query expected 400, got %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodGet, "/books/search/isbn?q=x", "", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown search field expected 404, got %d", resp.StatusCode)
	}
}

func TestAddBookIsAdminOnly(t *testing.T) {
	env := newTestEnv(t, Config{})
	_, memberToken := env.registerAndLogin(t, "member@example.com", false)
	_, adminToken := env.registerAndLogin(t, "admin@example.com", true)

	book := map[string]any{"id": 7, "title": "Annihilation", "authors": "Jeff VanderMeer"}
	if resp := env.do(t, http.MethodPost, "/books", "", book); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous add expected 401, got %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodPost, "/books", memberToken, book); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("member add expected 403, got %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodPost, "/books", adminToken, book); resp.StatusCode != http.StatusCreated {
		t.Fatalf("admin add expected 201, got %d", resp.StatusCode)
	}
}

func TestRegisterEndpointValidation(t *testing.T) {
	env := newTestEnv(t, Config{})

	resp := env.do(t, http.MethodPost, "/auth/register", "", map[string]any{
		"firstName": "Ann", "lastName": "Leckie",
		"email": "ann@example.com", "password": "Ancillary1",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register expected 201, got %d", resp.StatusCode)
	}
	user := decodeJSON[domain.User](t, resp)
	if user.PasswordHash != "" {
		t.Fatalf("password hash must not appear in responses")
	}

	resp = env.do(t, http.MethodPost, "/auth/register", "", map[string]any{
		"firstName": "Ann", "lastName": "Leckie",
		"email": "ann@example.com", "password": "Ancillary1",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("duplicate email expected 400, got %d", resp.StatusCode)
	}

	resp = env.do(t, http.MethodPost, "/auth/register", "", map[string]any{
		"firstName": "Ann", "lastName": "Leckie",
		"email": "weak@example.com", "password": "short",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("weak password expected 400, got %d", resp.StatusCode)
	}
}

func TestRegisterRateLimit(t *testing.T) {
	limiter, err := ratelimit.NewMemoryFixedWindowLimiter(2, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	env := newTestEnv(t, Config{RegisterLimiter: limiter})

	for i := 0; i < 2; i++ {
		resp := env.do(t, http.MethodPost, "/auth/register", "", map[string]any{
			"firstName": "A", "lastName": "B",
			"email": fmt.Sprintf("u%d@example.com", i), "password": "Password1",
		})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("register %d expected 201, got %d", i, resp.StatusCode)
		}
	}
	resp := env.do(t, http.MethodPost, "/auth/register", "", map[string]any{
		"firstName": "A", "lastName": "B",
		"email": "u3@example.com", "password": "Password1",
	})
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("register over quota expected 429, got %d", resp.StatusCode)
	}
}

func TestLogoutRevokesTokenOverHTTP(t *testing.T) {
	env := newTestEnv(t, Config{})
	member, token := env.registerAndLogin(t, "member@example.com", false)

	if resp := env.do(t, http.MethodGet, "/users/"+member.ID+"/loans", token, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("authenticated request expected 200, got %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodPost, "/auth/logout", token, nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout expected 204, got %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodGet, "/users/"+member.ID+"/loans", token, nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("revoked token expected 401, got %d", resp.StatusCode)
	}
}
