package webapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/feshchenko/giftmarket-bot/internal/storage"
)

// Server exposes the HTTP API used by the marketplace web app: it is the
// intake side of the moderation workflow (listings and deposit requests
// enter here, workers settle them through the bot).
type Server struct {
	storage *storage.Storage
	log     *slog.Logger

	server *http.Server
}

// NewServer creates a new API server
func NewServer(store *storage.Storage, log *slog.Logger) *Server {
	return &Server{
		storage: store,
		log:     log,
	}
}

// Start starts the API server and blocks until it stops
func (s *Server) Start(ctx context.Context, port int) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/listings", s.handleCreateListing)
	mux.HandleFunc("/api/deposits", s.handleCreateDeposit)
	mux.HandleFunc("/api/users/", s.handleUsers)
	mux.HandleFunc("/health", s.handleHealth)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.log.Info("starting api server", "port", port)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	return s.server.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

type createListingRequest struct {
	SellerID  int64   `json:"seller_id"`
	GiftID    string  `json:"gift_id"`
	GiftTitle string  `json:"gift_title"`
	GiftImage string  `json:"gift_image"`
	Price     float64 `json:"price"`
}

func (s *Server) handleCreateListing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req createListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	if req.SellerID == 0 || req.GiftID == "" || req.GiftTitle == "" {
		s.writeError(w, http.StatusBadRequest, "seller_id, gift_id and gift_title are required")
		return
	}
	if req.Price <= 0 {
		s.writeError(w, http.StatusBadRequest, "price must be positive")
		return
	}

	if _, err := s.storage.GetUser(req.SellerID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "seller not found")
			return
		}
		s.log.Error("get seller", "seller_id", req.SellerID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	listing, err := s.storage.CreateListing(req.SellerID, req.GiftID, req.GiftTitle, req.GiftImage, req.Price)
	if err != nil {
		s.log.Error("create listing", "seller_id", req.SellerID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.log.Info("listing created",
		"listing_id", listing.ID,
		"seller_id", listing.SellerID,
		"gift", listing.GiftTitle,
		"price", listing.Price,
	)

	s.writeJSON(w, http.StatusCreated, listingResponse(listing))
}

type createDepositRequest struct {
	UserID    int64   `json:"user_id"`
	Amount    float64 `json:"amount"`
	AmountRUB float64 `json:"amount_rub"`
}

func (s *Server) handleCreateDeposit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req createDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	if req.UserID == 0 {
		s.writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if req.Amount <= 0 {
		s.writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	if _, err := s.storage.GetUser(req.UserID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "user not found")
			return
		}
		s.log.Error("get user", "user_id", req.UserID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	deposit, err := s.storage.CreateDepositRequest(req.UserID, req.Amount, req.AmountRUB)
	if err != nil {
		s.log.Error("create deposit request", "user_id", req.UserID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.log.Info("deposit request created",
		"request_id", deposit.ID,
		"user_id", deposit.UserID,
		"amount", deposit.Amount,
	)

	s.writeJSON(w, http.StatusCreated, depositResponse(deposit))
}

// handleUsers routes /api/users/{id} and /api/users/{id}/transactions
func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/users/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	userID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	switch {
	case len(parts) == 1:
		s.handleGetUser(w, userID)
	case len(parts) == 2 && parts[1] == "transactions":
		s.handleGetTransactions(w, userID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *Server) handleGetUser(w http.ResponseWriter, userID int64) {
	user, err := s.storage.GetUser(userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "user not found")
			return
		}
		s.log.Error("get user", "user_id", userID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	gifts, err := s.storage.GiftsForUser(userID)
	if err != nil {
		s.log.Error("gifts for user", "user_id", userID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"id":            user.ID,
		"username":      user.Username,
		"first_name":    user.FirstName,
		"avatar_url":    user.AvatarURL,
		"referral_code": user.ReferralCode,
		"balance":       user.Balance,
		"gifts":         gifts,
	})
}

func (s *Server) handleGetTransactions(w http.ResponseWriter, userID int64) {
	txs, err := s.storage.TransactionsForUser(userID)
	if err != nil {
		s.log.Error("transactions for user", "user_id", userID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]map[string]any, 0, len(txs))
	for _, t := range txs {
		tx := map[string]any{
			"id":         t.ID,
			"type":       t.Type,
			"title":      t.Title,
			"amount":     t.Amount,
			"created_at": t.CreatedAt.Unix(),
		}
		if t.GiftID != nil {
			tx["gift_id"] = *t.GiftID
		}
		if t.GiftTitle != nil {
			tx["gift_title"] = *t.GiftTitle
		}
		out = append(out, tx)
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"transactions": out})
}

func listingResponse(l *storage.Listing) map[string]any {
	return map[string]any{
		"id":         l.ID,
		"seller_id":  l.SellerID,
		"gift_id":    l.GiftID,
		"gift_title": l.GiftTitle,
		"gift_image": l.GiftImage,
		"price":      l.Price,
		"status":     l.Status,
		"created_at": l.CreatedAt.Unix(),
	}
}

func depositResponse(d *storage.DepositRequest) map[string]any {
	return map[string]any{
		"id":         d.ID,
		"user_id":    d.UserID,
		"amount":     d.Amount,
		"amount_rub": d.AmountRUB,
		"status":     d.Status,
		"created_at": d.CreatedAt.Unix(),
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
