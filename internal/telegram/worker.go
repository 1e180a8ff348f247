package telegram

import (
	"context"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/feshchenko/giftmarket-bot/internal/market"
	"github.com/feshchenko/giftmarket-bot/internal/storage"
)

// workerHandler opens the worker panel and subscribes the worker to
// change notifications
func (b *Bot) workerHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	from := update.Message.From

	user, err := b.store.GetOrCreateUser(from.ID, from.Username, from.FirstName, "", nil)
	if err != nil {
		b.log.Error("get or create user", "user_id", from.ID, "error", err)
		b.sendMessage(ctx, update.Message.Chat.ID, "❌ Ошибка получения данных.", nil)
		return
	}

	stats, err := b.market.Stats(user.ID)
	if err != nil {
		b.log.Error("worker stats", "user_id", user.ID, "error", err)
		b.sendMessage(ctx, update.Message.Chat.ID, "❌ Ошибка получения данных.", nil)
		return
	}

	sent, err := b.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      update.Message.Chat.ID,
		Text:        b.workerPanelText(user, stats),
		ParseMode:   models.ParseModeHTML,
		ReplyMarkup: WorkerKeyboard(stats.Deposits, stats.Listings, b.referralLink(user)),
	})
	if err != nil {
		b.log.Error("send worker panel", "user_id", user.ID, "error", err)
		return
	}

	// Subscribe to change notifications; the current counters become the
	// baseline, so only changes from now on are announced
	b.registry.Register(user.ID, update.Message.Chat.ID, sent.ID, stats)
}

// showWorkerPanel redraws the panel in place and resets the notification
// baseline (back_to_worker and refresh_worker callbacks)
func (b *Bot) showWorkerPanel(ctx context.Context, cb *models.CallbackQuery) {
	user, err := b.store.GetUser(cb.From.ID)
	if err != nil {
		b.log.Error("get user", "user_id", cb.From.ID, "error", err)
		b.editMessage(ctx, cb.Message, "❌ Ошибка получения данных.", nil)
		return
	}

	stats, err := b.market.Stats(user.ID)
	if err != nil {
		b.log.Error("worker stats", "user_id", user.ID, "error", err)
		b.editMessage(ctx, cb.Message, "❌ Ошибка получения данных.", nil)
		return
	}

	b.editMessage(ctx, cb.Message, b.workerPanelText(user, stats),
		WorkerKeyboard(stats.Deposits, stats.Listings, b.referralLink(user)))

	if cb.Message.Message != nil {
		b.registry.Register(user.ID, cb.Message.Message.Chat.ID, cb.Message.Message.ID, stats)
	}
}

func (b *Bot) workerPanelText(user *storage.User, stats market.Stats) string {
	return fmt.Sprintf(
		"👨‍💼 <b>Меню воркера</b>\n\n"+
			"🔗 <b>Реферальная ссылка:</b>\n"+
			"<code>%s</code>\n\n"+
			"👥 Всего рефералов: <b>%d</b>\n"+
			"💰 Заявок на пополнение: <b>%d</b>\n"+
			"🛍️ Листингов на продажу: <b>%d</b>\n\n"+
			"🕐 Обновлено: %s\n"+
			"🔔 Уведомления: <b>Включены</b>",
		b.referralLink(user),
		stats.Referrals, stats.Deposits, stats.Listings,
		time.Now().Format("15:04:05"),
	)
}

// --- Referrals ---

func (b *Bot) showReferrals(ctx context.Context, cb *models.CallbackQuery) {
	referrals, err := b.market.Referrals(cb.From.ID)
	if err != nil {
		b.log.Error("get referrals", "user_id", cb.From.ID, "error", err)
		return
	}

	if len(referrals) == 0 {
		b.editMessage(ctx, cb.Message,
			"👥 <b>Мои рефералы</b>\n\nУ вас пока нет рефералов.",
			BackToWorkerKeyboard())
		return
	}

	text := fmt.Sprintf(
		"👥 <b>Мои рефералы</b>\n\n"+
			"Всего: <b>%d</b>\n"+
			"Выберите реферала для просмотра профиля:",
		len(referrals),
	)

	b.editMessage(ctx, cb.Message, text, ReferralsKeyboard(referrals))
}

func (b *Bot) showReferralProfile(ctx context.Context, cb *models.CallbackQuery, data string) {
	refID, err := parseCallbackID(data, "ref_")
	if err != nil {
		return
	}

	ref, err := b.store.GetUser(refID)
	if err != nil {
		b.answerAlert(ctx, cb, "❌ Пользователь не найден")
		return
	}

	username := "Нет username"
	if ref.Username != "" {
		username = "@" + ref.Username
	}

	text := fmt.Sprintf(
		"👤 <b>Профиль реферала</b>\n\n"+
			"<b>Имя:</b> %s\n"+
			"<b>Username:</b> %s\n"+
			"<b>ID:</b> <code>%d</code>\n"+
			"<b>Баланс:</b> %.2f TON\n"+
			"<b>Дата регистрации:</b> %s",
		displayName(ref), username, ref.ID, ref.Balance,
		ref.CreatedAt.Format("2006-01-02"),
	)

	b.editMessage(ctx, cb.Message, text, ReferralProfileKeyboard(refID))
}

func (b *Bot) askBalance(ctx context.Context, cb *models.CallbackQuery, data string) {
	refID, err := parseCallbackID(data, "change_balance_")
	if err != nil {
		return
	}

	b.states.Set(cb.From.ID, StateWaitBalance, map[string]any{"ref_id": refID})

	b.editMessage(ctx, cb.Message,
		"💰 <b>Изменение баланса</b>\n\n"+
			"Введите новый баланс (число):\n"+
			"Например: <code>100.50</code>\n\n"+
			"Или отправьте /cancel для отмены",
		nil)
}

// --- Listings ---

func (b *Bot) showPendingListings(ctx context.Context, cb *models.CallbackQuery) {
	listings, err := b.store.PendingListingsForReferrer(cb.From.ID)
	if err != nil {
		b.log.Error("pending listings", "user_id", cb.From.ID, "error", err)
		return
	}

	if len(listings) == 0 {
		b.editMessage(ctx, cb.Message,
			"🛍️ <b>Листинги на продажу</b>\n\n"+
				"Нет ожидающих листингов от ваших рефералов.",
			BackToWorkerKeyboard())
		return
	}

	text := fmt.Sprintf(
		"🛍️ <b>Листинги на продажу</b>\n\n"+
			"Ваши рефералы выставили <b>%d</b> подарков на продажу.\n"+
			"Выберите листинг для просмотра:",
		len(listings),
	)

	b.editMessage(ctx, cb.Message, text, ListingsKeyboard(listings, b.sellerNames(listings)))
}

func (b *Bot) sellerNames(listings []storage.Listing) map[int64]string {
	names := make(map[int64]string, len(listings))
	for _, l := range listings {
		if _, ok := names[l.SellerID]; ok {
			continue
		}
		if seller, err := b.store.GetUser(l.SellerID); err == nil {
			names[l.SellerID] = displayName(seller)
		} else {
			names[l.SellerID] = fmt.Sprintf("User %d", l.SellerID)
		}
	}
	return names
}

func (b *Bot) showListingDetail(ctx context.Context, cb *models.CallbackQuery, data string) {
	listingID, err := parseCallbackID(data, "listing_")
	if err != nil {
		return
	}

	listing, err := b.store.GetListing(listingID)
	if err != nil {
		b.answerAlert(ctx, cb, "❌ Листинг не найден")
		return
	}

	sellerName := fmt.Sprintf("User %d", listing.SellerID)
	sellerUsername := "Нет username"
	if seller, err := b.store.GetUser(listing.SellerID); err == nil {
		sellerName = displayName(seller)
		if seller.Username != "" {
			sellerUsername = "@" + seller.Username
		}
	}

	text := fmt.Sprintf(
		"🛍️ <b>Листинг подарка</b>\n\n"+
			"<b>Подарок:</b> %s\n"+
			"<b>Цена:</b> %.2f TON\n\n"+
			"<b>Продавец:</b> %s\n"+
			"<b>Username:</b> %s\n"+
			"<b>ID:</b> <code>%d</code>\n\n"+
			"Нажмите 'Продать' чтобы одобрить продажу.\n"+
			"Деньги будут начислены продавцу автоматически.",
		listing.GiftTitle, listing.Price, sellerName, sellerUsername, listing.SellerID,
	)

	b.editMessage(ctx, cb.Message, text, ListingDetailKeyboard(listingID))
}

func (b *Bot) approveListing(ctx context.Context, cb *models.CallbackQuery, data string) {
	listingID, err := parseCallbackID(data, "approve_")
	if err != nil {
		return
	}

	listing, err := b.market.ApproveListing(listingID)
	if err != nil {
		b.log.Warn("approve listing", "listing_id", listingID, "worker_id", cb.From.ID, "error", err)
		b.answerAlert(ctx, cb, "❌ Ошибка при продаже подарка")
		return
	}

	// Notify the seller, fire and forget
	newBalance := 0.0
	if seller, err := b.store.GetUser(listing.SellerID); err == nil {
		newBalance = seller.Balance
	}
	notifyText := fmt.Sprintf(
		"✅ <b>Подарок продан!</b>\n\n"+
			"Ваш подарок <b>%s</b> был продан за <b>%.2f TON</b>!\n\n"+
			"💰 <b>Новый баланс:</b> %.2f TON\n\n"+
			"📦 Подарок удален из вашего портфеля\n"+
			"📊 Транзакция добавлена в историю",
		listing.GiftTitle, listing.Price, newBalance,
	)
	if err := b.SendNotification(ctx, listing.SellerID, notifyText); err != nil {
		b.log.Error("notify seller", "seller_id", listing.SellerID, "error", err)
	}

	b.editMessage(ctx, cb.Message, fmt.Sprintf(
		"✅ <b>Подарок продан!</b>\n\n"+
			"Подарок <b>%s</b> успешно продан за <b>%.2f TON</b>.\n\n"+
			"✅ Деньги начислены продавцу\n"+
			"✅ Подарок удален из портфеля\n"+
			"✅ Транзакция сохранена\n"+
			"✅ Уведомление отправлено",
		listing.GiftTitle, listing.Price,
	), BackToListingsKeyboard())
}

func (b *Bot) rejectListing(ctx context.Context, cb *models.CallbackQuery, data string) {
	listingID, err := parseCallbackID(data, "reject_")
	if err != nil {
		return
	}

	listing, err := b.market.RejectListing(listingID)
	if err != nil {
		b.log.Warn("reject listing", "listing_id", listingID, "worker_id", cb.From.ID, "error", err)
		b.answerAlert(ctx, cb, "❌ Ошибка при отклонении листинга")
		return
	}

	notifyText := fmt.Sprintf(
		"❌ <b>Листинг отклонен</b>\n\n"+
			"Ваш листинг <b>%s</b> был отклонен.",
		listing.GiftTitle,
	)
	if err := b.SendNotification(ctx, listing.SellerID, notifyText); err != nil {
		b.log.Error("notify seller", "seller_id", listing.SellerID, "error", err)
	}

	b.editMessage(ctx, cb.Message, fmt.Sprintf(
		"❌ <b>Листинг отклонен</b>\n\n"+
			"Листинг <b>%s</b> был отклонен.",
		listing.GiftTitle,
	), BackToListingsKeyboard())
}

// --- Deposit requests ---

func (b *Bot) showPendingDeposits(ctx context.Context, cb *models.CallbackQuery) {
	deposits, err := b.store.PendingDepositsForReferrer(cb.From.ID)
	if err != nil {
		b.log.Error("pending deposits", "user_id", cb.From.ID, "error", err)
		return
	}

	if len(deposits) == 0 {
		b.editMessage(ctx, cb.Message,
			"💰 <b>Заявки на пополнение</b>\n\n"+
				"Нет ожидающих заявок от ваших рефералов.",
			BackToWorkerKeyboard())
		return
	}

	names := make(map[int64]string, len(deposits))
	for _, d := range deposits {
		if _, ok := names[d.UserID]; ok {
			continue
		}
		if user, err := b.store.GetUser(d.UserID); err == nil {
			names[d.UserID] = displayName(user)
		} else {
			names[d.UserID] = fmt.Sprintf("User %d", d.UserID)
		}
	}

	text := fmt.Sprintf(
		"💰 <b>Заявки на пополнение</b>\n\n"+
			"Ваши рефералы отправили <b>%d</b> заявок на пополнение.\n"+
			"Выберите заявку для просмотра:",
		len(deposits),
	)

	b.editMessage(ctx, cb.Message, text, DepositsKeyboard(deposits, names))
}

func (b *Bot) showDepositDetail(ctx context.Context, cb *models.CallbackQuery, data string) {
	requestID, err := parseCallbackID(data, "deposit_")
	if err != nil {
		return
	}

	req, err := b.store.GetDepositRequest(requestID)
	if err != nil {
		b.answerAlert(ctx, cb, "❌ Заявка не найдена")
		return
	}

	userName := fmt.Sprintf("User %d", req.UserID)
	userUsername := "Нет username"
	if user, err := b.store.GetUser(req.UserID); err == nil {
		userName = displayName(user)
		if user.Username != "" {
			userUsername = "@" + user.Username
		}
	}

	text := fmt.Sprintf(
		"💰 <b>Заявка на пополнение</b>\n\n"+
			"<b>Сумма:</b> %.2f TON\n"+
			"<b>В рублях:</b> %.0f₽\n\n"+
			"<b>Пользователь:</b> %s\n"+
			"<b>Username:</b> %s\n"+
			"<b>ID:</b> <code>%d</code>\n"+
			"<b>Дата:</b> %s\n\n"+
			"Нажмите 'Подтвердить' после проверки платежа.\n"+
			"Деньги будут начислены пользователю автоматически.",
		req.Amount, req.AmountRUB, userName, userUsername, req.UserID,
		req.CreatedAt.Format("2006-01-02 15:04"),
	)

	b.editMessage(ctx, cb.Message, text, DepositDetailKeyboard(requestID))
}

func (b *Bot) approveDeposit(ctx context.Context, cb *models.CallbackQuery, data string) {
	requestID, err := parseCallbackID(data, "approve_deposit_")
	if err != nil {
		return
	}

	req, err := b.market.ApproveDeposit(requestID, cb.From.ID)
	if err != nil {
		b.log.Warn("approve deposit", "request_id", requestID, "worker_id", cb.From.ID, "error", err)
		b.answerAlert(ctx, cb, "❌ Ошибка при подтверждении заявки")
		return
	}

	newBalance := 0.0
	if user, err := b.store.GetUser(req.UserID); err == nil {
		newBalance = user.Balance
	}
	notifyText := fmt.Sprintf(
		"✅ <b>Пополнение подтверждено!</b>\n\n"+
			"На ваш баланс зачислено <b>%.2f TON</b>!\n\n"+
			"💰 <b>Новый баланс:</b> %.2f TON\n"+
			"💳 <b>Оплачено:</b> %.0f₽\n\n"+
			"📊 Транзакция добавлена в историю\n"+
			"Спасибо за пополнение!",
		req.Amount, newBalance, req.AmountRUB,
	)
	if err := b.SendNotification(ctx, req.UserID, notifyText); err != nil {
		b.log.Error("notify requester", "user_id", req.UserID, "error", err)
	}

	b.editMessage(ctx, cb.Message, fmt.Sprintf(
		"✅ <b>Пополнение подтверждено!</b>\n\n"+
			"Пользователю начислено <b>%.2f TON</b> (%.0f₽).\n\n"+
			"✅ Баланс обновлен\n"+
			"✅ Транзакция сохранена\n"+
			"✅ Уведомление отправлено",
		req.Amount, req.AmountRUB,
	), BackToDepositsKeyboard())
}

func (b *Bot) rejectDeposit(ctx context.Context, cb *models.CallbackQuery, data string) {
	requestID, err := parseCallbackID(data, "reject_deposit_")
	if err != nil {
		return
	}

	req, err := b.market.RejectDeposit(requestID, cb.From.ID)
	if err != nil {
		b.log.Warn("reject deposit", "request_id", requestID, "worker_id", cb.From.ID, "error", err)
		b.answerAlert(ctx, cb, "❌ Ошибка при отклонении заявки")
		return
	}

	notifyText := fmt.Sprintf(
		"❌ <b>Заявка на пополнение отклонена</b>\n\n"+
			"Ваша заявка на пополнение %.2f TON была отклонена.\n"+
			"Свяжитесь с поддержкой для уточнения деталей.",
		req.Amount,
	)
	if err := b.SendNotification(ctx, req.UserID, notifyText); err != nil {
		b.log.Error("notify requester", "user_id", req.UserID, "error", err)
	}

	b.editMessage(ctx, cb.Message, fmt.Sprintf(
		"❌ <b>Заявка отклонена</b>\n\n"+
			"Заявка на %.2f TON была отклонена.",
		req.Amount,
	), BackToDepositsKeyboard())
}
