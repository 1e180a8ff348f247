package telegram

import (
	"fmt"

	"github.com/go-telegram/bot/models"
	"github.com/feshchenko/giftmarket-bot/internal/storage"
)

// WebAppKeyboard returns the marketplace button shown on /start
func WebAppKeyboard(url string) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "🌐 Открыть маркетплейс", WebApp: &models.WebAppInfo{URL: url}},
			},
		},
	}
}

// WorkerKeyboard returns the worker panel keyboard with live counters
func WorkerKeyboard(deposits, listings int, referralLink string) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "👥 Мои рефералы", CallbackData: "my_referrals"},
			},
			{
				{Text: fmt.Sprintf("💰 Заявки на пополнение (%d)", deposits), CallbackData: "pending_deposits"},
			},
			{
				{Text: fmt.Sprintf("🛍️ Листинги (%d)", listings), CallbackData: "pending_listings"},
			},
			{
				{Text: "🔄 Обновить", CallbackData: "refresh_worker"},
			},
			{
				{Text: "📋 Копировать ссылку", URL: referralLink},
			},
		},
	}
}

// ReferralsKeyboard returns a button per referral plus a back button
func ReferralsKeyboard(referrals []storage.User) *models.InlineKeyboardMarkup {
	var rows [][]models.InlineKeyboardButton

	for _, ref := range referrals {
		rows = append(rows, []models.InlineKeyboardButton{
			{
				Text:         fmt.Sprintf("%s - %.2f TON", displayName(&ref), ref.Balance),
				CallbackData: fmt.Sprintf("ref_%d", ref.ID),
			},
		})
	}

	rows = append(rows, []models.InlineKeyboardButton{
		{Text: "◀️ Назад", CallbackData: "back_to_worker"},
	})

	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// ReferralProfileKeyboard returns actions for a referral profile
func ReferralProfileKeyboard(refID int64) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "💰 Изменить баланс", CallbackData: fmt.Sprintf("change_balance_%d", refID)},
			},
			{
				{Text: "◀️ Назад к рефералам", CallbackData: "my_referrals"},
			},
		},
	}
}

// ListingsKeyboard returns a button per pending listing
func ListingsKeyboard(listings []storage.Listing, sellerNames map[int64]string) *models.InlineKeyboardMarkup {
	var rows [][]models.InlineKeyboardButton

	for _, l := range listings {
		rows = append(rows, []models.InlineKeyboardButton{
			{
				Text:         fmt.Sprintf("%s - %.2f TON от %s", l.GiftTitle, l.Price, sellerNames[l.SellerID]),
				CallbackData: fmt.Sprintf("listing_%d", l.ID),
			},
		})
	}

	rows = append(rows, []models.InlineKeyboardButton{
		{Text: "◀️ Назад", CallbackData: "back_to_worker"},
	})

	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// ListingDetailKeyboard returns settle/reject actions for a listing
func ListingDetailKeyboard(listingID int64) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "✅ Продать", CallbackData: fmt.Sprintf("approve_%d", listingID)},
			},
			{
				{Text: "❌ Отклонить", CallbackData: fmt.Sprintf("reject_%d", listingID)},
			},
			{
				{Text: "◀️ К листингам", CallbackData: "pending_listings"},
			},
		},
	}
}

// BackToListingsKeyboard returns a single back button to the listing list
func BackToListingsKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "◀️ К листингам", CallbackData: "pending_listings"},
			},
		},
	}
}

// DepositsKeyboard returns a button per pending deposit request
func DepositsKeyboard(deposits []storage.DepositRequest, userNames map[int64]string) *models.InlineKeyboardMarkup {
	var rows [][]models.InlineKeyboardButton

	for _, d := range deposits {
		rows = append(rows, []models.InlineKeyboardButton{
			{
				Text:         fmt.Sprintf("%s - %.2f TON (%.0f₽)", userNames[d.UserID], d.Amount, d.AmountRUB),
				CallbackData: fmt.Sprintf("deposit_%d", d.ID),
			},
		})
	}

	rows = append(rows, []models.InlineKeyboardButton{
		{Text: "◀️ Назад", CallbackData: "back_to_worker"},
	})

	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// DepositDetailKeyboard returns settle/reject actions for a deposit request
func DepositDetailKeyboard(requestID int64) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "✅ Подтвердить", CallbackData: fmt.Sprintf("approve_deposit_%d", requestID)},
			},
			{
				{Text: "❌ Отклонить", CallbackData: fmt.Sprintf("reject_deposit_%d", requestID)},
			},
			{
				{Text: "◀️ К заявкам", CallbackData: "pending_deposits"},
			},
		},
	}
}

// BackToDepositsKeyboard returns a single back button to the deposit list
func BackToDepositsKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "◀️ К заявкам", CallbackData: "pending_deposits"},
			},
		},
	}
}

// BackToWorkerKeyboard returns a single back button to the worker panel
func BackToWorkerKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "◀️ Назад", CallbackData: "back_to_worker"},
			},
		},
	}
}

// AdminKeyboard returns the settings panel keyboard
func AdminKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "👤 Изменить ник поддержки", CallbackData: "admin_support"},
			},
			{
				{Text: "💳 Изменить номер карты", CallbackData: "admin_card_number"},
			},
			{
				{Text: "👨 Изменить имя держателя", CallbackData: "admin_card_holder"},
			},
			{
				{Text: "🏦 Изменить название банка", CallbackData: "admin_card_bank"},
			},
		},
	}
}

// SupportKeyboard returns the support contact button
func SupportKeyboard(link string) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "💬 Написать в поддержку", URL: link},
			},
		},
	}
}
