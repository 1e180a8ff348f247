package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

func TestReferralCode(t *testing.T) {
	code := ReferralCode(123456)

	assert.Len(t, code, 8)
	assert.Equal(t, code, ReferralCode(123456), "code must be deterministic")
	assert.NotEqual(t, code, ReferralCode(654321))

	for _, r := range code {
		assert.True(t, (r >= '0' && r <= '9') || (r >= 'A' && r <= 'F'),
			"code must be uppercase hex, got %q", code)
	}
}

func TestGetOrCreateUser(t *testing.T) {
	s := newTestStorage(t)

	u, err := s.GetOrCreateUser(100, "alice", "Alice", "", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(100), u.ID)
	assert.Equal(t, ReferralCode(100), u.ReferralCode)
	assert.Nil(t, u.ReferrerID)
	assert.Zero(t, u.Balance)

	// Second contact returns the existing row and ignores the new referrer
	refID := int64(999)
	again, err := s.GetOrCreateUser(100, "alice", "Alice", "", &refID)
	require.NoError(t, err)
	assert.Nil(t, again.ReferrerID, "referrer is set once at creation only")
}

func TestGetUserByReferralCode(t *testing.T) {
	s := newTestStorage(t)

	u, err := s.GetOrCreateUser(100, "alice", "Alice", "", nil)
	require.NoError(t, err)

	found, err := s.GetUserByReferralCode(u.ReferralCode)
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)

	_, err = s.GetUserByReferralCode("NOPE1234")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetReferrals(t *testing.T) {
	s := newTestStorage(t)

	worker, err := s.GetOrCreateUser(1, "worker", "Worker", "", nil)
	require.NoError(t, err)

	for id := int64(2); id <= 4; id++ {
		_, err := s.GetOrCreateUser(id, "", "Ref", "", &worker.ID)
		require.NoError(t, err)
	}
	_, err = s.GetOrCreateUser(5, "", "Stranger", "", nil)
	require.NoError(t, err)

	refs, err := s.GetReferrals(worker.ID)
	require.NoError(t, err)
	assert.Len(t, refs, 3)

	refs, err = s.GetReferrals(5)
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestUpdateUserBalance(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.GetOrCreateUser(100, "", "Alice", "", nil)
	require.NoError(t, err)

	require.NoError(t, s.UpdateUserBalance(100, 42.5))

	u, err := s.GetUser(100)
	require.NoError(t, err)
	assert.Equal(t, 42.5, u.Balance)

	assert.ErrorIs(t, s.UpdateUserBalance(999, 1.0), ErrNotFound)
}

func TestListingLifecycle(t *testing.T) {
	s := newTestStorage(t)

	l, err := s.CreateListing(100, "gift-1", "Gift #1", "", 10.0)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, l.Status)

	got, err := s.GetListing(l.ID)
	require.NoError(t, err)
	assert.Equal(t, "Gift #1", got.GiftTitle)
	assert.Equal(t, 10.0, got.Price)

	require.NoError(t, s.DeleteListing(l.ID))

	_, err = s.GetListing(l.ID)
	assert.ErrorIs(t, err, ErrNotFound, "deletion is the terminal state")

	assert.ErrorIs(t, s.DeleteListing(l.ID), ErrNotPending, "second delete must fail")
}

func TestPendingListingsForReferrer(t *testing.T) {
	s := newTestStorage(t)

	worker, err := s.GetOrCreateUser(1, "", "Worker", "", nil)
	require.NoError(t, err)
	_, err = s.GetOrCreateUser(2, "", "Ref", "", &worker.ID)
	require.NoError(t, err)
	_, err = s.GetOrCreateUser(3, "", "Stranger", "", nil)
	require.NoError(t, err)

	mine, err := s.CreateListing(2, "gift-1", "Mine", "", 5.0)
	require.NoError(t, err)
	_, err = s.CreateListing(3, "gift-2", "Other", "", 7.0)
	require.NoError(t, err)

	listings, err := s.PendingListingsForReferrer(worker.ID)
	require.NoError(t, err)
	require.Len(t, listings, 1, "only listings from own referrals are visible")
	assert.Equal(t, mine.ID, listings[0].ID)

	// Settled listings disappear from the pending view
	require.NoError(t, s.DeleteListing(mine.ID))
	listings, err = s.PendingListingsForReferrer(worker.ID)
	require.NoError(t, err)
	assert.Empty(t, listings)

	// Worker with no referrals sees nothing
	listings, err = s.PendingListingsForReferrer(3)
	require.NoError(t, err)
	assert.Empty(t, listings)
}

func TestDepositStatusTransition(t *testing.T) {
	s := newTestStorage(t)

	d, err := s.CreateDepositRequest(100, 25.0, 7500)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, d.Status)
	assert.Nil(t, d.ProcessedBy)

	require.NoError(t, s.SetDepositStatus(d.ID, StatusApproved, 1))

	got, err := s.GetDepositRequest(d.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, got.Status)
	require.NotNil(t, got.ProcessedBy)
	assert.Equal(t, int64(1), *got.ProcessedBy)
	assert.NotNil(t, got.ProcessedAt)

	// Settled rows never transition again
	assert.ErrorIs(t, s.SetDepositStatus(d.ID, StatusRejected, 2), ErrNotPending)

	// The row itself is retained after settlement
	got, err = s.GetDepositRequest(d.ID)
	require.NoError(t, err)
	assert.Equal(t, 25.0, got.Amount)
}

func TestPendingDepositsForReferrer(t *testing.T) {
	s := newTestStorage(t)

	worker, err := s.GetOrCreateUser(1, "", "Worker", "", nil)
	require.NoError(t, err)
	_, err = s.GetOrCreateUser(2, "", "Ref", "", &worker.ID)
	require.NoError(t, err)

	d, err := s.CreateDepositRequest(2, 10.0, 3000)
	require.NoError(t, err)

	deposits, err := s.PendingDepositsForReferrer(worker.ID)
	require.NoError(t, err)
	require.Len(t, deposits, 1)
	assert.Equal(t, d.ID, deposits[0].ID)

	require.NoError(t, s.SetDepositStatus(d.ID, StatusRejected, worker.ID))

	deposits, err = s.PendingDepositsForReferrer(worker.ID)
	require.NoError(t, err)
	assert.Empty(t, deposits)
}

func TestTransactions(t *testing.T) {
	s := newTestStorage(t)

	giftID := "gift-1"
	giftTitle := "Gift #1"
	require.NoError(t, s.CreateTransaction(100, TxTypeSell, "Продажа: Gift #1", 10.0, &giftID, &giftTitle))
	require.NoError(t, s.CreateTransaction(100, TxTypeDeposit, "Пополнение через карту", 25.0, nil, nil))

	txs, err := s.TransactionsForUser(100)
	require.NoError(t, err)
	require.Len(t, txs, 2)

	// Newest first
	assert.Equal(t, TxTypeDeposit, txs[0].Type)
	assert.Nil(t, txs[0].GiftID)
	assert.Equal(t, TxTypeSell, txs[1].Type)
	require.NotNil(t, txs[1].GiftID)
	assert.Equal(t, giftID, *txs[1].GiftID)
}

func TestGifts(t *testing.T) {
	s := newTestStorage(t)

	require.NoError(t, s.AddGift(100, "gift-1"))
	require.NoError(t, s.AddGift(100, "gift-1"), "double add is a no-op")
	require.NoError(t, s.AddGift(100, "gift-2"))

	gifts, err := s.GiftsForUser(100)
	require.NoError(t, err)
	assert.Len(t, gifts, 2)

	require.NoError(t, s.RemoveGift(100, "gift-1"))
	require.NoError(t, s.RemoveGift(100, "missing"), "removing an unowned gift is a no-op")

	gifts, err = s.GiftsForUser(100)
	require.NoError(t, err)
	assert.Equal(t, []string{"gift-2"}, gifts)
}

func TestSettings(t *testing.T) {
	s := newTestStorage(t)

	v, err := s.GetSetting(SettingCardNumber)
	require.NoError(t, err)
	assert.Empty(t, v, "absent key reads as empty")

	require.NoError(t, s.SetSetting(SettingCardNumber, "1234567890123456", 1))
	require.NoError(t, s.SetSetting(SettingCardBank, "Сбербанк", 1))

	v, err = s.GetSetting(SettingCardNumber)
	require.NoError(t, err)
	assert.Equal(t, "1234567890123456", v)

	// Upsert overwrites
	require.NoError(t, s.SetSetting(SettingCardNumber, "9999888877776666", 2))
	v, err = s.GetSetting(SettingCardNumber)
	require.NoError(t, err)
	assert.Equal(t, "9999888877776666", v)

	all, err := s.AllSettings()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		SettingCardNumber: "9999888877776666",
		SettingCardBank:   "Сбербанк",
	}, all)
}
