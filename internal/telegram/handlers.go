package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/feshchenko/giftmarket-bot/internal/config"
	"github.com/feshchenko/giftmarket-bot/internal/market"
	"github.com/feshchenko/giftmarket-bot/internal/monitor"
	"github.com/feshchenko/giftmarket-bot/internal/storage"
)

// Bot wraps the telegram bot with handlers
type Bot struct {
	bot      *bot.Bot
	cfg      *config.Config
	store    *storage.Storage
	market   *market.Service
	registry *monitor.Registry
	states   *StateManager
	log      *slog.Logger
}

// New creates a new telegram bot
func New(cfg *config.Config, store *storage.Storage, svc *market.Service, registry *monitor.Registry, log *slog.Logger) (*Bot, error) {
	b := &Bot{
		cfg:      cfg,
		store:    store,
		market:   svc,
		registry: registry,
		states:   NewStateManager(),
		log:      log,
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(b.defaultHandler),
		bot.WithCallbackQueryDataHandler("", bot.MatchTypePrefix, b.callbackHandler),
	}

	tgBot, err := bot.New(cfg.BotToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}

	b.bot = tgBot

	// Register command handlers
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypeExact, b.startHandler)
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/start ", bot.MatchTypePrefix, b.startHandler)
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/worker", bot.MatchTypeExact, b.workerHandler)
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/support", bot.MatchTypeExact, b.supportHandler)
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/admin", bot.MatchTypeExact, b.adminHandler)
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/cancel", bot.MatchTypeExact, b.cancelHandler)

	return b, nil
}

// Start starts the bot polling
func (b *Bot) Start(ctx context.Context) {
	b.bot.Start(ctx)
}

// --- Commands ---

func (b *Bot) startHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	from := update.Message.From

	// Resolve the referral code from the deep-link payload, if any
	var referrerID *int64
	fields := strings.Fields(update.Message.Text)
	if len(fields) > 1 {
		referrer, err := b.store.GetUserByReferralCode(fields[1])
		if err == nil && referrer.ID != from.ID {
			referrerID = &referrer.ID
		}
	}

	user, err := b.store.GetOrCreateUser(from.ID, from.Username, from.FirstName, "", referrerID)
	if err != nil {
		b.log.Error("get or create user", "user_id", from.ID, "error", err)
		b.sendMessage(ctx, update.Message.Chat.ID, "❌ Ошибка получения данных.", nil)
		return
	}

	text := fmt.Sprintf(
		"Добро пожаловать, %s! 🎁\n\n"+
			"Открывайте, торгуйте и коллекционируйте уникальные цифровые подарки "+
			"на нашей торговой площадке. Начните исследовать прямо сейчас!",
		displayName(user),
	)
	if referrerID != nil {
		text += "\n\n✨ Вы пришли по реферальной ссылке!"
	}

	var keyboard *models.InlineKeyboardMarkup
	if b.cfg.WebAppURL != "" {
		keyboard = WebAppKeyboard(b.cfg.WebAppURL)
	}

	b.sendMessage(ctx, update.Message.Chat.ID, text, keyboard)
}

func (b *Bot) supportHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	supportUsername, err := b.store.GetSetting(storage.SettingSupportUsername)
	if err != nil {
		b.log.Error("get support username", "error", err)
	}
	if supportUsername == "" {
		supportUsername = b.cfg.SupportUsername
	}

	supportLink := "https://t.me/" + supportUsername

	text := fmt.Sprintf(
		"🆘 <b>Техническая поддержка</b>\n\n"+
			"Если у вас возникли вопросы или проблемы:\n\n"+
			"📱 Напишите нам: %s\n\n"+
			"<b>Часто задаваемые вопросы:</b>\n\n"+
			"❓ <b>Как пополнить баланс?</b>\n"+
			"Нажмите на кнопку с балансом в приложении\n\n"+
			"❓ <b>Как продать подарок?</b>\n"+
			"Откройте подарок из инвентаря → Предложить цену\n\n"+
			"❓ <b>Когда я получу деньги за продажу?</b>\n"+
			"После одобрения вашим рефером\n\n"+
			"❓ <b>Как стать воркером?</b>\n"+
			"Все пользователи автоматически воркеры! Используйте /worker",
		supportLink,
	)

	b.sendMessage(ctx, update.Message.Chat.ID, text, SupportKeyboard(supportLink))
}

func (b *Bot) cancelHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	b.states.Clear(update.Message.From.ID)
	b.sendMessage(ctx, update.Message.Chat.ID, "❌ Операция отменена.", nil)
}

// --- Conversation input ---

func (b *Bot) defaultHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}

	text := strings.TrimSpace(update.Message.Text)

	state := b.states.Get(update.Message.From.ID)
	if state == nil {
		return
	}

	switch state.State {
	case StateWaitBalance:
		b.handleBalanceInput(ctx, update.Message, text, state)
	case StateWaitSupportUsername:
		b.handleSupportUsernameInput(ctx, update.Message, text)
	case StateWaitCardNumber:
		b.handleCardNumberInput(ctx, update.Message, text)
	case StateWaitCardHolder:
		b.handleCardHolderInput(ctx, update.Message, text)
	case StateWaitCardBank:
		b.handleCardBankInput(ctx, update.Message, text)
	}
}

func (b *Bot) handleBalanceInput(ctx context.Context, msg *models.Message, text string, state *UserState) {
	value, err := strconv.ParseFloat(strings.Replace(text, ",", ".", 1), 64)
	if err != nil {
		b.sendMessage(ctx, msg.Chat.ID,
			"❌ Неверный формат. Введите число, например: <code>100.50</code>", nil)
		return
	}
	if value < 0 {
		b.sendMessage(ctx, msg.Chat.ID,
			"❌ Баланс не может быть отрицательным. Попробуйте снова:", nil)
		return
	}

	refID, ok := state.Data["ref_id"].(int64)
	if !ok {
		b.states.Clear(msg.From.ID)
		b.sendMessage(ctx, msg.Chat.ID, "❌ Ошибка. Начните заново с /worker", nil)
		return
	}

	b.states.Clear(msg.From.ID)

	if err := b.market.SetBalance(refID, value); err != nil {
		b.log.Error("set balance", "user_id", refID, "error", err)
		b.sendMessage(ctx, msg.Chat.ID, "❌ Ошибка при обновлении баланса.", nil)
		return
	}

	b.sendMessage(ctx, msg.Chat.ID,
		fmt.Sprintf("✅ Баланс успешно изменен!\n\nНовый баланс: <b>%.2f TON</b>", value), nil)
}

// --- Callbacks ---

func (b *Bot) callbackHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}

	cb := update.CallbackQuery
	data := cb.Data

	// Answer callback to remove loading state
	tgBot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: cb.ID,
	})

	switch {
	case data == "back_to_worker", data == "refresh_worker":
		b.showWorkerPanel(ctx, cb)
	case data == "my_referrals":
		b.showReferrals(ctx, cb)
	case strings.HasPrefix(data, "change_balance_"):
		b.askBalance(ctx, cb, data)
	case strings.HasPrefix(data, "ref_"):
		b.showReferralProfile(ctx, cb, data)
	case data == "pending_listings":
		b.showPendingListings(ctx, cb)
	case data == "pending_deposits":
		b.showPendingDeposits(ctx, cb)
	case strings.HasPrefix(data, "approve_deposit_"):
		b.approveDeposit(ctx, cb, data)
	case strings.HasPrefix(data, "reject_deposit_"):
		b.rejectDeposit(ctx, cb, data)
	case strings.HasPrefix(data, "deposit_"):
		b.showDepositDetail(ctx, cb, data)
	case strings.HasPrefix(data, "approve_"):
		b.approveListing(ctx, cb, data)
	case strings.HasPrefix(data, "reject_"):
		b.rejectListing(ctx, cb, data)
	case strings.HasPrefix(data, "listing_"):
		b.showListingDetail(ctx, cb, data)
	case strings.HasPrefix(data, "admin_"):
		b.askSetting(ctx, cb, data)
	default:
		b.log.Warn("unknown callback", "data", data, "user_id", cb.From.ID)
	}
}

// --- Helpers ---

func (b *Bot) sendMessage(ctx context.Context, chatID int64, text string, keyboard *models.InlineKeyboardMarkup) {
	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}

	_, err := b.bot.SendMessage(ctx, params)
	if err != nil {
		b.log.Error("send message", "error", err)
	}
}

func (b *Bot) editMessage(ctx context.Context, msg models.MaybeInaccessibleMessage, text string, keyboard *models.InlineKeyboardMarkup) {
	if msg.Message == nil {
		return
	}

	params := &bot.EditMessageTextParams{
		ChatID:    msg.Message.Chat.ID,
		MessageID: msg.Message.ID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}

	_, err := b.bot.EditMessageText(ctx, params)
	if err != nil {
		b.log.Error("edit message", "error", err)
	}
}

func (b *Bot) answerAlert(ctx context.Context, cb *models.CallbackQuery, text string) {
	b.bot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: cb.ID,
		Text:            text,
		ShowAlert:       true,
	})
}

// SendNotification sends an out-of-band message to a chat. Failures are
// returned for the caller to log; they are never fatal.
func (b *Bot) SendNotification(ctx context.Context, chatID int64, text string) error {
	_, err := b.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	})
	return err
}

func (b *Bot) referralLink(user *storage.User) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", b.cfg.BotUsername, user.ReferralCode)
}

func displayName(u *storage.User) string {
	if u.FirstName != "" {
		return u.FirstName
	}
	if u.Username != "" {
		return u.Username
	}
	return fmt.Sprintf("User %d", u.ID)
}

func parseCallbackID(data, prefix string) (int64, error) {
	return strconv.ParseInt(strings.TrimPrefix(data, prefix), 10, 64)
}
