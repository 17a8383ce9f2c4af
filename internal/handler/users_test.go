package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/tablebill/api/internal/auth"
	"github.com/tablebill/api/internal/database"
	"github.com/tablebill/api/internal/enum"
	"github.com/tablebill/api/internal/handler"
	"github.com/tablebill/api/internal/middleware"
	"golang.org/x/crypto/bcrypt"
)

// --- Mock store ---

type mockUserStore struct {
	users map[uuid.UUID]database.User // keyed by user ID
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{users: make(map[uuid.UUID]database.User)}
}

func (m *mockUserStore) ListUsersByBusiness(_ context.Context, businessID uuid.UUID) ([]database.User, error) {
	var result []database.User
	for _, u := range m.users {
		if u.BusinessID == businessID && u.IsActive {
			result = append(result, u)
		}
	}
	return result, nil
}

func (m *mockUserStore) CreateUser(_ context.Context, arg database.CreateUserParams) (database.User, error) {
	// Simulates the unique constraint on users.email
	for _, existing := range m.users {
		if existing.Email == arg.Email {
			return database.User{}, &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}
		}
	}
	u := database.User{
		ID:             uuid.New(),
		BusinessID:     arg.BusinessID,
		Email:          arg.Email,
		HashedPassword: arg.HashedPassword,
		FullName:       arg.FullName,
		Role:           arg.Role,
		IsActive:       true,
	}
	m.users[u.ID] = u
	return u, nil
}

func (m *mockUserStore) UpdateUser(_ context.Context, arg database.UpdateUserParams) (database.User, error) {
	u, ok := m.users[arg.ID]
	if !ok || u.BusinessID != arg.BusinessID || !u.IsActive {
		return database.User{}, pgx.ErrNoRows
	}
	for _, existing := range m.users {
		if existing.Email == arg.Email && existing.ID != arg.ID {
			return database.User{}, &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}
		}
	}
	u.Email = arg.Email
	u.FullName = arg.FullName
	u.Role = arg.Role
	m.users[u.ID] = u
	return u, nil
}

func (m *mockUserStore) DeactivateUser(_ context.Context, arg database.DeactivateUserParams) (uuid.UUID, error) {
	u, ok := m.users[arg.ID]
	if !ok || u.BusinessID != arg.BusinessID || !u.IsActive {
		return uuid.Nil, pgx.ErrNoRows
	}
	u.IsActive = false
	m.users[u.ID] = u
	return u.ID, nil
}

func (m *mockUserStore) seed(businessID uuid.UUID, email, role string) database.User {
	u := database.User{
		ID:             uuid.New(),
		BusinessID:     businessID,
		Email:          email,
		HashedPassword: "$2a$10$somehash",
		FullName:       "Staff " + role,
		Role:           role,
		IsActive:       true,
	}
	m.users[u.ID] = u
	return u
}

// --- Helpers ---

func setupUserRouter(store *mockUserStore) *chi.Mux {
	h := handler.NewUserHandler(store)
	r := chi.NewRouter()
	r.Use(middleware.Authenticate(testJWTSecret))
	r.Route("/businesses/{bid}/users", func(r chi.Router) {
		r.Use(middleware.RequireBusiness)
		r.Use(middleware.RequireRole(enum.UserRoleOwner))
		h.RegisterRoutes(r)
	})
	return r
}

func ownerClaims(businessID uuid.UUID) *auth.Claims {
	return &auth.Claims{
		UserID:     uuid.New(),
		BusinessID: businessID,
		Role:       enum.UserRoleOwner,
	}
}

func usersPath(businessID uuid.UUID) string {
	return "/businesses/" + businessID.String() + "/users"
}

func decodeUserListResponse(t *testing.T, rr *httptest.ResponseRecorder) []map[string]interface{} {
	t.Helper()
	var resp []map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

// --- List tests ---

func TestListUsers_ReturnsBusinessStaff(t *testing.T) {
	store := newMockUserStore()
	businessID := uuid.New()
	store.seed(businessID, "a@test.com", enum.UserRoleCashier)
	store.seed(uuid.New(), "b@test.com", enum.UserRoleManager)

	router := setupUserRouter(store)
	rr := doAuthRequest(t, router, "GET", usersPath(businessID), nil, ownerClaims(businessID))

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	resp := decodeUserListResponse(t, rr)
	if len(resp) != 1 {
		t.Fatalf("expected 1 user, got %d", len(resp))
	}
	if resp[0]["email"] != "a@test.com" {
		t.Errorf("expected a@test.com, got %v", resp[0]["email"])
	}
	if _, ok := resp[0]["hashed_password"]; ok {
		t.Error("response must not include hashed_password")
	}
}

func TestListUsers_Empty(t *testing.T) {
	businessID := uuid.New()
	router := setupUserRouter(newMockUserStore())

	rr := doAuthRequest(t, router, "GET", usersPath(businessID), nil, ownerClaims(businessID))

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	if resp := decodeUserListResponse(t, rr); len(resp) != 0 {
		t.Errorf("expected empty list, got %d items", len(resp))
	}
}

func TestUsers_RequireOwner(t *testing.T) {
	businessID := uuid.New()
	router := setupUserRouter(newMockUserStore())

	for _, role := range []string{enum.UserRoleManager, enum.UserRoleCashier} {
		t.Run(role, func(t *testing.T) {
			claims := &auth.Claims{UserID: uuid.New(), BusinessID: businessID, Role: role}
			rr := doAuthRequest(t, router, "GET", usersPath(businessID), nil, claims)
			if rr.Code != http.StatusForbidden {
				t.Fatalf("status: got %d, want %d", rr.Code, http.StatusForbidden)
			}
		})
	}
}

func TestUsers_OtherBusinessForbidden(t *testing.T) {
	router := setupUserRouter(newMockUserStore())

	rr := doAuthRequest(t, router, "GET", usersPath(uuid.New()), nil, ownerClaims(uuid.New()))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusForbidden)
	}
}

// --- Create tests ---

func TestCreateUser_Valid(t *testing.T) {
	store := newMockUserStore()
	businessID := uuid.New()
	router := setupUserRouter(store)

	rr := doAuthRequest(t, router, "POST", usersPath(businessID), map[string]interface{}{
		"email":     "  Cashier@Test.com ",
		"password":  "password123",
		"full_name": "Chidi Eze",
		"role":      enum.UserRoleCashier,
	}, ownerClaims(businessID))

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}

	resp := decodeOrderResponse(t, rr)
	if resp["email"] != "cashier@test.com" {
		t.Errorf("email: got %v, want normalized cashier@test.com", resp["email"])
	}
	if resp["business_id"] != businessID.String() {
		t.Errorf("business_id: got %v, want %s", resp["business_id"], businessID)
	}
	if _, ok := resp["hashed_password"]; ok {
		t.Error("response must not include hashed_password")
	}

	id := uuid.MustParse(resp["id"].(string))
	stored := store.users[id]
	if err := bcrypt.CompareHashAndPassword([]byte(stored.HashedPassword), []byte("password123")); err != nil {
		t.Errorf("stored password is not a bcrypt hash of the input: %v", err)
	}
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	store := newMockUserStore()
	businessID := uuid.New()
	store.seed(businessID, "dup@test.com", enum.UserRoleCashier)
	router := setupUserRouter(store)

	rr := doAuthRequest(t, router, "POST", usersPath(businessID), map[string]interface{}{
		"email":     "dup@test.com",
		"password":  "password123",
		"full_name": "Dup",
		"role":      enum.UserRoleCashier,
	}, ownerClaims(businessID))

	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusConflict, rr.Body.String())
	}
}

func TestCreateUser_InvalidInput(t *testing.T) {
	businessID := uuid.New()
	router := setupUserRouter(newMockUserStore())

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing email", map[string]interface{}{"password": "password123", "full_name": "X", "role": enum.UserRoleCashier}},
		{"bad email", map[string]interface{}{"email": "nope", "password": "password123", "full_name": "X", "role": enum.UserRoleCashier}},
		{"short password", map[string]interface{}{"email": "x@test.com", "password": "short", "full_name": "X", "role": enum.UserRoleCashier}},
		{"unknown role", map[string]interface{}{"email": "x@test.com", "password": "password123", "full_name": "X", "role": "KITCHEN"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doAuthRequest(t, router, "POST", usersPath(businessID), tt.body, ownerClaims(businessID))
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusBadRequest, rr.Body.String())
			}
		})
	}
}

// --- Update tests ---

func TestUpdateUser_ChangesRole(t *testing.T) {
	store := newMockUserStore()
	businessID := uuid.New()
	u := store.seed(businessID, "staff@test.com", enum.UserRoleCashier)
	router := setupUserRouter(store)

	rr := doAuthRequest(t, router, "PUT", usersPath(businessID)+"/"+u.ID.String(), map[string]interface{}{
		"email":     "staff@test.com",
		"full_name": "Promoted",
		"role":      enum.UserRoleManager,
	}, ownerClaims(businessID))

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	if store.users[u.ID].Role != enum.UserRoleManager {
		t.Errorf("role: got %s, want %s", store.users[u.ID].Role, enum.UserRoleManager)
	}
}

func TestUpdateUser_CannotDemoteSelf(t *testing.T) {
	store := newMockUserStore()
	businessID := uuid.New()
	owner := store.seed(businessID, "owner@test.com", enum.UserRoleOwner)
	router := setupUserRouter(store)

	claims := ownerClaims(businessID)
	claims.UserID = owner.ID
	rr := doAuthRequest(t, router, "PUT", usersPath(businessID)+"/"+owner.ID.String(), map[string]interface{}{
		"email":     "owner@test.com",
		"full_name": "Owner",
		"role":      enum.UserRoleCashier,
	}, claims)

	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusConflict, rr.Body.String())
	}
	if store.users[owner.ID].Role != enum.UserRoleOwner {
		t.Error("owner role must be unchanged")
	}
}

func TestUpdateUser_NotFoundInOtherBusiness(t *testing.T) {
	store := newMockUserStore()
	businessID := uuid.New()
	other := store.seed(uuid.New(), "other@test.com", enum.UserRoleCashier)
	router := setupUserRouter(store)

	rr := doAuthRequest(t, router, "PUT", usersPath(businessID)+"/"+other.ID.String(), map[string]interface{}{
		"email":     "other@test.com",
		"full_name": "Other",
		"role":      enum.UserRoleManager,
	}, ownerClaims(businessID))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

// --- Delete tests ---

func TestDeleteUser_Deactivates(t *testing.T) {
	store := newMockUserStore()
	businessID := uuid.New()
	u := store.seed(businessID, "gone@test.com", enum.UserRoleCashier)
	router := setupUserRouter(store)

	rr := doAuthRequest(t, router, "DELETE", usersPath(businessID)+"/"+u.ID.String(), nil, ownerClaims(businessID))

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusNoContent, rr.Body.String())
	}
	if store.users[u.ID].IsActive {
		t.Error("user should be inactive")
	}

	rr = doAuthRequest(t, router, "DELETE", usersPath(businessID)+"/"+u.ID.String(), nil, ownerClaims(businessID))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("second delete: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestDeleteUser_CannotDeactivateSelf(t *testing.T) {
	store := newMockUserStore()
	businessID := uuid.New()
	owner := store.seed(businessID, "owner@test.com", enum.UserRoleOwner)
	router := setupUserRouter(store)

	claims := ownerClaims(businessID)
	claims.UserID = owner.ID
	rr := doAuthRequest(t, router, "DELETE", usersPath(businessID)+"/"+owner.ID.String(), nil, claims)

	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusConflict)
	}
	if !store.users[owner.ID].IsActive {
		t.Error("owner must stay active")
	}
}

func TestDeleteUser_InvalidID(t *testing.T) {
	businessID := uuid.New()
	router := setupUserRouter(newMockUserStore())

	rr := doAuthRequest(t, router, "DELETE", usersPath(businessID)+"/not-a-uuid", nil, ownerClaims(businessID))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}
