package market

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/feshchenko/giftmarket-bot/internal/storage"
)

var (
	// ErrNotFound is returned when the target record does not exist
	ErrNotFound = storage.ErrNotFound
	// ErrNotPending is returned when the record was already settled
	ErrNotPending = storage.ErrNotPending
	// ErrNegativeBalance is returned for direct adjustments below zero
	ErrNegativeBalance = errors.New("balance cannot be negative")
)

// Stats are the per-worker counters watched by the notification loop
type Stats struct {
	Referrals int
	Listings  int
	Deposits  int
}

// Service implements the approval workflow and the balance ledger: it
// settles listings and deposit requests from a worker's referrals and is
// the only writer of user balances.
type Service struct {
	store *storage.Storage
	log   *slog.Logger

	// mu serializes settlements and credits. The balance update is a
	// read-modify-write against the store, not a compare-and-swap, and the
	// pending check must stay coupled to the mutation that follows it.
	mu sync.Mutex
}

// New creates a new Service
func New(store *storage.Storage, log *slog.Logger) *Service {
	return &Service{
		store: store,
		log:   log,
	}
}

// ApproveListing sells a pending listing: the gift leaves the seller's
// collection, the price is credited to the seller, a sell transaction is
// recorded and the listing row is deleted. Returns the pre-settlement
// listing snapshot.
func (s *Service) ApproveListing(listingID int64) (*storage.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	listing, err := s.store.GetListing(listingID)
	if err != nil {
		return nil, err
	}
	if listing.Status != storage.StatusPending {
		return nil, ErrNotPending
	}

	seller, err := s.store.GetUser(listing.SellerID)
	if err != nil {
		return nil, fmt.Errorf("get seller %d: %w", listing.SellerID, err)
	}

	// The sale proceeds even if the gift cannot be removed from the
	// collection: the seller getting paid wins over inventory consistency.
	if err := s.store.RemoveGift(listing.SellerID, listing.GiftID); err != nil {
		s.log.Error("remove gift from collection",
			"listing_id", listing.ID,
			"gift_id", listing.GiftID,
			"error", err,
		)
	}

	newBalance, err := s.credit(listing.SellerID, listing.Price)
	if err != nil {
		return nil, fmt.Errorf("credit seller: %w", err)
	}

	title := "Продажа: " + listing.GiftTitle
	err = s.store.CreateTransaction(listing.SellerID, storage.TxTypeSell, title,
		listing.Price, &listing.GiftID, &listing.GiftTitle)
	if err != nil {
		s.log.Error("create sell transaction", "listing_id", listing.ID, "error", err)
	}

	// Deleted last: a failure before this point leaves the listing pending
	// and the operation retryable
	if err := s.store.DeleteListing(listing.ID); err != nil {
		return nil, fmt.Errorf("delete listing %d: %w", listing.ID, err)
	}

	s.log.Info("listing sold",
		"listing_id", listing.ID,
		"seller_id", listing.SellerID,
		"gift", listing.GiftTitle,
		"price", listing.Price,
		"balance_before", seller.Balance,
		"balance_after", newBalance,
	)

	return listing, nil
}

// RejectListing deletes a pending listing without any balance effect.
// Returns the pre-settlement listing snapshot.
func (s *Service) RejectListing(listingID int64) (*storage.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	listing, err := s.store.GetListing(listingID)
	if err != nil {
		return nil, err
	}
	if listing.Status != storage.StatusPending {
		return nil, ErrNotPending
	}

	if err := s.store.DeleteListing(listing.ID); err != nil {
		return nil, fmt.Errorf("delete listing %d: %w", listing.ID, err)
	}

	s.log.Info("listing rejected", "listing_id", listing.ID, "seller_id", listing.SellerID)

	return listing, nil
}

// ApproveDeposit credits a pending deposit request to the requester's
// balance, records a deposit transaction and marks the request approved,
// stamped with who processed it. The request row is retained.
func (s *Service) ApproveDeposit(requestID, approverID int64) (*storage.DepositRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, err := s.store.GetDepositRequest(requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != storage.StatusPending {
		return nil, ErrNotPending
	}

	user, err := s.store.GetUser(req.UserID)
	if err != nil {
		return nil, fmt.Errorf("get requester %d: %w", req.UserID, err)
	}

	newBalance, err := s.credit(req.UserID, req.Amount)
	if err != nil {
		return nil, fmt.Errorf("credit requester: %w", err)
	}

	err = s.store.CreateTransaction(req.UserID, storage.TxTypeDeposit,
		"Пополнение через карту", req.Amount, nil, nil)
	if err != nil {
		s.log.Error("create deposit transaction", "request_id", req.ID, "error", err)
	}

	if err := s.store.SetDepositStatus(req.ID, storage.StatusApproved, approverID); err != nil {
		return nil, fmt.Errorf("approve deposit %d: %w", req.ID, err)
	}

	s.log.Info("deposit approved",
		"request_id", req.ID,
		"user_id", req.UserID,
		"amount", req.Amount,
		"approved_by", approverID,
		"balance_before", user.Balance,
		"balance_after", newBalance,
	)

	return req, nil
}

// RejectDeposit marks a pending deposit request rejected, stamped with who
// processed it. No balance effect; the request row is retained.
func (s *Service) RejectDeposit(requestID, rejectorID int64) (*storage.DepositRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, err := s.store.GetDepositRequest(requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != storage.StatusPending {
		return nil, ErrNotPending
	}

	if err := s.store.SetDepositStatus(req.ID, storage.StatusRejected, rejectorID); err != nil {
		return nil, fmt.Errorf("reject deposit %d: %w", req.ID, err)
	}

	s.log.Info("deposit rejected", "request_id", req.ID, "user_id", req.UserID, "rejected_by", rejectorID)

	return req, nil
}

// Credit adjusts a user's balance by delta and returns the new balance.
// Callers pair every credit with exactly one transaction append; the
// ledger itself does not enforce the pairing.
func (s *Service) Credit(userID int64, delta float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credit(userID, delta)
}

func (s *Service) credit(userID int64, delta float64) (float64, error) {
	user, err := s.store.GetUser(userID)
	if err != nil {
		return 0, err
	}

	newBalance := user.Balance + delta
	if err := s.store.UpdateUserBalance(userID, newBalance); err != nil {
		return 0, err
	}

	return newBalance, nil
}

// SetBalance writes an absolute balance for a user, used by workers to
// adjust their referrals directly. Negative balances are rejected.
func (s *Service) SetBalance(userID int64, balance float64) error {
	if balance < 0 {
		return ErrNegativeBalance
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.UpdateUserBalance(userID, balance); err != nil {
		return err
	}

	s.log.Info("balance set", "user_id", userID, "balance", balance)
	return nil
}

// Referrals returns the users referred by the given user (one level)
func (s *Service) Referrals(userID int64) ([]storage.User, error) {
	return s.store.GetReferrals(userID)
}

// Stats recomputes the live worker counters from the store
func (s *Service) Stats(userID int64) (Stats, error) {
	referrals, err := s.store.GetReferrals(userID)
	if err != nil {
		return Stats{}, fmt.Errorf("get referrals: %w", err)
	}

	listings, err := s.store.PendingListingsForReferrer(userID)
	if err != nil {
		return Stats{}, fmt.Errorf("pending listings: %w", err)
	}

	deposits, err := s.store.PendingDepositsForReferrer(userID)
	if err != nil {
		return Stats{}, fmt.Errorf("pending deposits: %w", err)
	}

	return Stats{
		Referrals: len(referrals),
		Listings:  len(listings),
		Deposits:  len(deposits),
	}, nil
}
