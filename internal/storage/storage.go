package storage

import (
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrNotPending = errors.New("not pending")
)

// Storage handles all database operations
type Storage struct {
	db *sql.DB
}

// New creates a new Storage instance and initializes the database
func New(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	s := &Storage{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY,
			username TEXT NOT NULL DEFAULT '',
			first_name TEXT NOT NULL DEFAULT '',
			avatar_url TEXT NOT NULL DEFAULT '',
			referral_code TEXT NOT NULL UNIQUE,
			referrer_id INTEGER,
			balance REAL NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_referrer_id ON users(referrer_id)`,

		`CREATE TABLE IF NOT EXISTS listings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			seller_id INTEGER NOT NULL,
			gift_id TEXT NOT NULL,
			gift_title TEXT NOT NULL,
			gift_image TEXT NOT NULL DEFAULT '',
			price REAL NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_listings_seller_id ON listings(seller_id)`,

		`CREATE TABLE IF NOT EXISTS deposit_requests (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			amount REAL NOT NULL,
			amount_rub REAL NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			processed_by INTEGER,
			processed_at INTEGER,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_deposit_requests_user_id ON deposit_requests(user_id)`,

		`CREATE TABLE IF NOT EXISTS transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			type TEXT NOT NULL,
			title TEXT NOT NULL,
			amount REAL NOT NULL,
			gift_id TEXT,
			gift_title TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_user_id ON transactions(user_id)`,

		`CREATE TABLE IF NOT EXISTS user_gifts (
			user_id INTEGER NOT NULL,
			gift_id TEXT NOT NULL,
			PRIMARY KEY (user_id, gift_id)
		)`,

		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_by INTEGER,
			updated_at INTEGER NOT NULL
		)`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}

	return nil
}

// ReferralCode derives the referral code for a user id
func ReferralCode(userID int64) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%d", userID)))
	return strings.ToUpper(hex.EncodeToString(sum[:])[:8])
}

// --- Users ---

const userColumns = `id, username, first_name, avatar_url, referral_code, referrer_id, balance, created_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	var referrerID sql.NullInt64
	var createdAt int64

	err := row.Scan(&u.ID, &u.Username, &u.FirstName, &u.AvatarURL,
		&u.ReferralCode, &referrerID, &u.Balance, &createdAt)
	if err != nil {
		return nil, err
	}

	if referrerID.Valid {
		u.ReferrerID = &referrerID.Int64
	}
	u.CreatedAt = time.Unix(createdAt, 0)
	return &u, nil
}

// GetUser returns a user by ID
func (s *Storage) GetUser(userID int64) (*User, error) {
	row := s.db.QueryRow(
		`SELECT `+userColumns+` FROM users WHERE id = ?`, userID,
	)

	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetOrCreateUser returns an existing user or creates one on first contact.
// The referrer is recorded once at creation and never changes afterwards.
func (s *Storage) GetOrCreateUser(userID int64, username, firstName, avatarURL string, referrerID *int64) (*User, error) {
	u, err := s.GetUser(userID)
	if err == nil {
		return u, nil
	}
	if err != ErrNotFound {
		return nil, err
	}

	now := time.Now().Unix()
	code := ReferralCode(userID)

	var refID sql.NullInt64
	if referrerID != nil {
		refID = sql.NullInt64{Int64: *referrerID, Valid: true}
	}

	_, err = s.db.Exec(
		`INSERT INTO users (id, username, first_name, avatar_url, referral_code, referrer_id, balance, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
		userID, username, firstName, avatarURL, code, refID, now,
	)
	if err != nil {
		return nil, err
	}

	return &User{
		ID:           userID,
		Username:     username,
		FirstName:    firstName,
		AvatarURL:    avatarURL,
		ReferralCode: code,
		ReferrerID:   referrerID,
		CreatedAt:    time.Unix(now, 0),
	}, nil
}

// GetUserByReferralCode returns the user owning a referral code
func (s *Storage) GetUserByReferralCode(code string) (*User, error) {
	row := s.db.QueryRow(
		`SELECT `+userColumns+` FROM users WHERE referral_code = ?`, code,
	)

	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetReferrals returns all users referred by the given user (one level)
func (s *Storage) GetReferrals(userID int64) ([]User, error) {
	rows, err := s.db.Query(
		`SELECT `+userColumns+` FROM users WHERE referrer_id = ? ORDER BY created_at`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}

	return users, rows.Err()
}

// UpdateUserBalance writes a new absolute balance for a user
func (s *Storage) UpdateUserBalance(userID int64, balance float64) error {
	result, err := s.db.Exec(
		"UPDATE users SET balance = ? WHERE id = ?",
		balance, userID,
	)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Storage) referralIDs(userID int64) ([]int64, error) {
	rows, err := s.db.Query("SELECT id FROM users WHERE referrer_id = ?", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// --- Listings ---

const listingColumns = `id, seller_id, gift_id, gift_title, gift_image, price, status, created_at`

func scanListing(row interface{ Scan(...any) error }) (*Listing, error) {
	var l Listing
	var createdAt int64

	err := row.Scan(&l.ID, &l.SellerID, &l.GiftID, &l.GiftTitle, &l.GiftImage,
		&l.Price, &l.Status, &createdAt)
	if err != nil {
		return nil, err
	}

	l.CreatedAt = time.Unix(createdAt, 0)
	return &l, nil
}

// CreateListing creates a pending sale listing for a gift
func (s *Storage) CreateListing(sellerID int64, giftID, giftTitle, giftImage string, price float64) (*Listing, error) {
	now := time.Now().Unix()
	result, err := s.db.Exec(
		`INSERT INTO listings (seller_id, gift_id, gift_title, gift_image, price, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sellerID, giftID, giftTitle, giftImage, price, StatusPending, now,
	)
	if err != nil {
		return nil, err
	}

	id, _ := result.LastInsertId()
	return &Listing{
		ID:        id,
		SellerID:  sellerID,
		GiftID:    giftID,
		GiftTitle: giftTitle,
		GiftImage: giftImage,
		Price:     price,
		Status:    StatusPending,
		CreatedAt: time.Unix(now, 0),
	}, nil
}

// GetListing returns a listing by ID
func (s *Storage) GetListing(listingID int64) (*Listing, error) {
	row := s.db.QueryRow(
		`SELECT `+listingColumns+` FROM listings WHERE id = ?`, listingID,
	)

	l, err := scanListing(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

// PendingListingsForReferrer returns pending listings created by the user's referrals
func (s *Storage) PendingListingsForReferrer(referrerID int64) ([]Listing, error) {
	ids, err := s.referralIDs(referrerID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, StatusPending)

	rows, err := s.db.Query(
		`SELECT `+listingColumns+` FROM listings
		 WHERE seller_id IN (`+placeholders(len(ids))+`) AND status = ?
		 ORDER BY created_at DESC, id DESC`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, *l)
	}

	return listings, rows.Err()
}

// DeleteListing removes a listing row, but only while it is still pending.
// Deletion is the terminal state for listings.
func (s *Storage) DeleteListing(listingID int64) error {
	result, err := s.db.Exec(
		"DELETE FROM listings WHERE id = ? AND status = ?",
		listingID, StatusPending,
	)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotPending
	}
	return nil
}

// --- Deposit requests ---

const depositColumns = `id, user_id, amount, amount_rub, status, processed_by, processed_at, created_at`

func scanDeposit(row interface{ Scan(...any) error }) (*DepositRequest, error) {
	var d DepositRequest
	var processedBy sql.NullInt64
	var processedAt sql.NullInt64
	var createdAt int64

	err := row.Scan(&d.ID, &d.UserID, &d.Amount, &d.AmountRUB, &d.Status,
		&processedBy, &processedAt, &createdAt)
	if err != nil {
		return nil, err
	}

	if processedBy.Valid {
		d.ProcessedBy = &processedBy.Int64
	}
	if processedAt.Valid {
		t := time.Unix(processedAt.Int64, 0)
		d.ProcessedAt = &t
	}
	d.CreatedAt = time.Unix(createdAt, 0)
	return &d, nil
}

// CreateDepositRequest creates a pending deposit request
func (s *Storage) CreateDepositRequest(userID int64, amount, amountRUB float64) (*DepositRequest, error) {
	now := time.Now().Unix()
	result, err := s.db.Exec(
		`INSERT INTO deposit_requests (user_id, amount, amount_rub, status, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		userID, amount, amountRUB, StatusPending, now,
	)
	if err != nil {
		return nil, err
	}

	id, _ := result.LastInsertId()
	return &DepositRequest{
		ID:        id,
		UserID:    userID,
		Amount:    amount,
		AmountRUB: amountRUB,
		Status:    StatusPending,
		CreatedAt: time.Unix(now, 0),
	}, nil
}

// GetDepositRequest returns a deposit request by ID
func (s *Storage) GetDepositRequest(requestID int64) (*DepositRequest, error) {
	row := s.db.QueryRow(
		`SELECT `+depositColumns+` FROM deposit_requests WHERE id = ?`, requestID,
	)

	d, err := scanDeposit(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// PendingDepositsForReferrer returns pending deposit requests from the user's
// referrals, newest first
func (s *Storage) PendingDepositsForReferrer(referrerID int64) ([]DepositRequest, error) {
	ids, err := s.referralIDs(referrerID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, StatusPending)

	rows, err := s.db.Query(
		`SELECT `+depositColumns+` FROM deposit_requests
		 WHERE user_id IN (`+placeholders(len(ids))+`) AND status = ?
		 ORDER BY created_at DESC, id DESC`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deposits []DepositRequest
	for rows.Next() {
		d, err := scanDeposit(rows)
		if err != nil {
			return nil, err
		}
		deposits = append(deposits, *d)
	}

	return deposits, rows.Err()
}

// SetDepositStatus transitions a deposit request out of pending, stamping who
// processed it and when. Only pending rows transition; the row is retained.
func (s *Storage) SetDepositStatus(requestID int64, status string, processedBy int64) error {
	result, err := s.db.Exec(
		`UPDATE deposit_requests SET status = ?, processed_by = ?, processed_at = ?
		 WHERE id = ? AND status = ?`,
		status, processedBy, time.Now().Unix(), requestID, StatusPending,
	)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotPending
	}
	return nil
}

// --- Transactions ---

// CreateTransaction appends a balance history row. Rows are never updated
// or deleted.
func (s *Storage) CreateTransaction(userID int64, txType, title string, amount float64, giftID, giftTitle *string) error {
	_, err := s.db.Exec(
		`INSERT INTO transactions (user_id, type, title, amount, gift_id, gift_title, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		userID, txType, title, amount, giftID, giftTitle, time.Now().Unix(),
	)
	return err
}

// TransactionsForUser returns a user's balance history, newest first
func (s *Storage) TransactionsForUser(userID int64) ([]Transaction, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, type, title, amount, gift_id, gift_title, created_at
		 FROM transactions WHERE user_id = ? ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []Transaction
	for rows.Next() {
		var t Transaction
		var giftID, giftTitle sql.NullString
		var createdAt int64

		err := rows.Scan(&t.ID, &t.UserID, &t.Type, &t.Title, &t.Amount,
			&giftID, &giftTitle, &createdAt)
		if err != nil {
			return nil, err
		}

		if giftID.Valid {
			t.GiftID = &giftID.String
		}
		if giftTitle.Valid {
			t.GiftTitle = &giftTitle.String
		}
		t.CreatedAt = time.Unix(createdAt, 0)
		txs = append(txs, t)
	}

	return txs, rows.Err()
}

// --- Gifts ---

// AddGift adds a gift to a user's collection
func (s *Storage) AddGift(userID int64, giftID string) error {
	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO user_gifts (user_id, gift_id) VALUES (?, ?)",
		userID, giftID,
	)
	return err
}

// RemoveGift removes a gift from a user's collection. Removing a gift the
// user does not own is a no-op.
func (s *Storage) RemoveGift(userID int64, giftID string) error {
	_, err := s.db.Exec(
		"DELETE FROM user_gifts WHERE user_id = ? AND gift_id = ?",
		userID, giftID,
	)
	return err
}

// GiftsForUser returns the gift IDs a user owns
func (s *Storage) GiftsForUser(userID int64) ([]string, error) {
	rows, err := s.db.Query(
		"SELECT gift_id FROM user_gifts WHERE user_id = ?", userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var gifts []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}
		gifts = append(gifts, g)
	}

	return gifts, rows.Err()
}

// --- Settings ---

// GetSetting returns a setting value, or "" when the key is not set
func (s *Storage) GetSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow(
		"SELECT value FROM settings WHERE key = ?", key,
	).Scan(&value)

	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// SetSetting writes a setting value, recording who changed it
func (s *Storage) SetSetting(key, value string, updatedBy int64) error {
	_, err := s.db.Exec(
		`INSERT INTO settings (key, value, updated_by, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_by = excluded.updated_by,
			updated_at = excluded.updated_at`,
		key, value, updatedBy, time.Now().Unix(),
	)
	return err
}

// AllSettings returns every setting as a key-value map
func (s *Storage) AllSettings() (map[string]string, error) {
	rows, err := s.db.Query("SELECT key, value FROM settings")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		settings[k] = v
	}

	return settings, rows.Err()
}
