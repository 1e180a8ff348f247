package storage

import "time"

// Settlement states for listings and deposit requests
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Transaction types
const (
	TxTypeSell    = "sell"
	TxTypeDeposit = "deposit"
)

// Well-known settings keys
const (
	SettingSupportUsername = "support_username"
	SettingCardNumber      = "card_number"
	SettingCardHolder      = "card_holder"
	SettingCardBank        = "card_bank"
)

// User represents a marketplace user. Every user is also a worker
// moderating the users they referred.
type User struct {
	ID           int64
	Username     string
	FirstName    string
	AvatarURL    string
	ReferralCode string
	ReferrerID   *int64
	Balance      float64
	CreatedAt    time.Time
}

// Listing represents a gift offered for sale by a referral.
// A listing row only exists while pending: settlement deletes it.
type Listing struct {
	ID        int64
	SellerID  int64
	GiftID    string
	GiftTitle string
	GiftImage string
	Price     float64
	Status    string
	CreatedAt time.Time
}

// DepositRequest represents a balance top-up awaiting manual confirmation.
// Unlike listings, the row is kept after settlement as an audit trail.
type DepositRequest struct {
	ID          int64
	UserID      int64
	Amount      float64
	AmountRUB   float64
	Status      string
	ProcessedBy *int64
	ProcessedAt *time.Time
	CreatedAt   time.Time
}

// Transaction is an append-only balance history row.
type Transaction struct {
	ID        int64
	UserID    int64
	Type      string
	Title     string
	Amount    float64
	GiftID    *string
	GiftTitle *string
	CreatedAt time.Time
}
