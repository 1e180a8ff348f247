package webapp

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/feshchenko/giftmarket-bot/internal/storage"
)

func newTestServer(t *testing.T) (*Server, *storage.Storage) {
	t.Helper()

	store, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(store, log), store
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestCreateListing(t *testing.T) {
	s, store := newTestServer(t)

	_, err := store.GetOrCreateUser(100, "seller", "Seller", "", nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/listings", strings.NewReader(
		`{"seller_id": 100, "gift_id": "gift-1", "gift_title": "Gift #1", "price": 10.0}`,
	))
	rec := httptest.NewRecorder()
	s.handleCreateListing(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "Gift #1", body["gift_title"])

	listings, err := store.PendingListingsForReferrer(100)
	require.NoError(t, err)
	assert.Empty(t, listings, "own listings are not in the seller's moderation queue")

	listing, err := store.GetListing(int64(body["id"].(float64)))
	require.NoError(t, err)
	assert.Equal(t, int64(100), listing.SellerID)
}

func TestCreateListingValidation(t *testing.T) {
	s, store := newTestServer(t)

	_, err := store.GetOrCreateUser(100, "seller", "Seller", "", nil)
	require.NoError(t, err)

	cases := []struct {
		name string
		body string
		code int
	}{
		{"garbage", `{`, http.StatusBadRequest},
		{"missing seller", `{"gift_id": "g", "gift_title": "G", "price": 1}`, http.StatusBadRequest},
		{"zero price", `{"seller_id": 100, "gift_id": "g", "gift_title": "G", "price": 0}`, http.StatusBadRequest},
		{"negative price", `{"seller_id": 100, "gift_id": "g", "gift_title": "G", "price": -5}`, http.StatusBadRequest},
		{"unknown seller", `{"seller_id": 999, "gift_id": "g", "gift_title": "G", "price": 1}`, http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/listings", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			s.handleCreateListing(rec, req)
			assert.Equal(t, tc.code, rec.Code)
		})
	}
}

func TestCreateDeposit(t *testing.T) {
	s, store := newTestServer(t)

	_, err := store.GetOrCreateUser(100, "user", "User", "", nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/deposits", strings.NewReader(
		`{"user_id": 100, "amount": 25.0, "amount_rub": 7500}`,
	))
	rec := httptest.NewRecorder()
	s.handleCreateDeposit(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, 25.0, body["amount"])

	d, err := store.GetDepositRequest(int64(body["id"].(float64)))
	require.NoError(t, err)
	assert.Equal(t, storage.StatusPending, d.Status)
}

func TestCreateDepositValidation(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/deposits", strings.NewReader(
		`{"user_id": 100, "amount": -1}`,
	))
	rec := httptest.NewRecorder()
	s.handleCreateDeposit(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/deposits", strings.NewReader(
		`{"user_id": 999, "amount": 5}`,
	))
	rec = httptest.NewRecorder()
	s.handleCreateDeposit(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetUser(t *testing.T) {
	s, store := newTestServer(t)

	u, err := store.GetOrCreateUser(100, "alice", "Alice", "", nil)
	require.NoError(t, err)
	require.NoError(t, store.AddGift(100, "gift-1"))

	req := httptest.NewRequest(http.MethodGet, "/api/users/100", nil)
	rec := httptest.NewRecorder()
	s.handleUsers(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "alice", body["username"])
	assert.Equal(t, u.ReferralCode, body["referral_code"])
	assert.Equal(t, []any{"gift-1"}, body["gifts"])

	req = httptest.NewRequest(http.MethodGet, "/api/users/999", nil)
	rec = httptest.NewRecorder()
	s.handleUsers(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/users/abc", nil)
	rec = httptest.NewRecorder()
	s.handleUsers(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetTransactions(t *testing.T) {
	s, store := newTestServer(t)

	_, err := store.GetOrCreateUser(100, "alice", "Alice", "", nil)
	require.NoError(t, err)
	require.NoError(t, store.CreateTransaction(100, storage.TxTypeDeposit, "Пополнение через карту", 25.0, nil, nil))

	req := httptest.NewRequest(http.MethodGet, "/api/users/100/transactions", nil)
	rec := httptest.NewRecorder()
	s.handleUsers(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	txs := body["transactions"].([]any)
	require.Len(t, txs, 1)
	tx := txs[0].(map[string]any)
	assert.Equal(t, "deposit", tx["type"])
	assert.Equal(t, 25.0, tx["amount"])
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/listings", nil)
	rec := httptest.NewRecorder()
	s.handleCreateListing(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/users/100", nil)
	rec = httptest.NewRecorder()
	s.handleUsers(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
