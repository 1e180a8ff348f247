package telegram

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/feshchenko/giftmarket-bot/internal/storage"
)

func (b *Bot) adminHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	settings, err := b.store.AllSettings()
	if err != nil {
		b.log.Error("load settings", "error", err)
		b.sendMessage(ctx, update.Message.Chat.ID, "❌ Ошибка получения настроек.", nil)
		return
	}

	b.sendMessage(ctx, update.Message.Chat.ID, adminPanelText(settings), AdminKeyboard())
}

func adminPanelText(settings map[string]string) string {
	value := func(key string) string {
		if v := settings[key]; v != "" {
			return v
		}
		return "не установлен"
	}

	return fmt.Sprintf(
		"⚙️ <b>Панель администратора</b>\n\n"+
			"<b>Текущие настройки:</b>\n\n"+
			"👤 Ник поддержки: <code>%s</code>\n"+
			"💳 Номер карты: <code>%s</code>\n"+
			"👨 Держатель карты: <code>%s</code>\n"+
			"🏦 Банк: <code>%s</code>\n\n"+
			"Выберите что изменить:",
		value(storage.SettingSupportUsername),
		value(storage.SettingCardNumber),
		value(storage.SettingCardHolder),
		value(storage.SettingCardBank),
	)
}

// askSetting handles admin_* callbacks by switching the user into the
// matching input state
func (b *Bot) askSetting(ctx context.Context, cb *models.CallbackQuery, data string) {
	var state, prompt string

	switch data {
	case "admin_support":
		state = StateWaitSupportUsername
		prompt = "👤 <b>Изменение ника поддержки</b>\n\n" +
			"Введите новый username (без @):\n" +
			"Например: <code>my_support</code>"
	case "admin_card_number":
		state = StateWaitCardNumber
		prompt = "💳 <b>Изменение номера карты</b>\n\n" +
			"Введите номер карты:\n" +
			"Например: <code>1234 5678 9012 3456</code>"
	case "admin_card_holder":
		state = StateWaitCardHolder
		prompt = "👨 <b>Изменение имени держателя</b>\n\n" +
			"Введите имя держателя карты:\n" +
			"Например: <code>IVAN IVANOV</code>"
	case "admin_card_bank":
		state = StateWaitCardBank
		prompt = "🏦 <b>Изменение названия банка</b>\n\n" +
			"Введите название банка:\n" +
			"Например: <code>Сбербанк</code>"
	default:
		b.log.Warn("unknown admin callback", "data", data)
		return
	}

	b.states.Set(cb.From.ID, state, nil)
	b.editMessage(ctx, cb.Message, prompt+"\n\nИли отправьте /cancel для отмены", nil)
}

func (b *Bot) handleSupportUsernameInput(ctx context.Context, msg *models.Message, text string) {
	username := strings.TrimPrefix(text, "@")
	if len(username) < 3 {
		b.sendMessage(ctx, msg.Chat.ID,
			"❌ Username слишком короткий. Попробуйте снова:", nil)
		return
	}

	b.saveSetting(ctx, msg, storage.SettingSupportUsername, username,
		fmt.Sprintf("✅ Ник поддержки изменен на <code>@%s</code>", username))
}

func (b *Bot) handleCardNumberInput(ctx context.Context, msg *models.Message, text string) {
	digits := strings.NewReplacer(" ", "", "-", "").Replace(text)
	if len(digits) < 13 || !isDigits(digits) {
		b.sendMessage(ctx, msg.Chat.ID,
			"❌ Неверный формат номера карты. Попробуйте снова:", nil)
		return
	}

	b.saveSetting(ctx, msg, storage.SettingCardNumber, digits,
		fmt.Sprintf("✅ Номер карты изменен на <code>%s</code>", digits))
}

func (b *Bot) handleCardHolderInput(ctx context.Context, msg *models.Message, text string) {
	if len(text) < 3 {
		b.sendMessage(ctx, msg.Chat.ID,
			"❌ Имя слишком короткое. Попробуйте снова:", nil)
		return
	}

	holder := strings.ToUpper(text)
	b.saveSetting(ctx, msg, storage.SettingCardHolder, holder,
		fmt.Sprintf("✅ Имя держателя изменено на <code>%s</code>", holder))
}

func (b *Bot) handleCardBankInput(ctx context.Context, msg *models.Message, text string) {
	if len(text) < 2 {
		b.sendMessage(ctx, msg.Chat.ID,
			"❌ Название слишком короткое. Попробуйте снова:", nil)
		return
	}

	b.saveSetting(ctx, msg, storage.SettingCardBank, text,
		fmt.Sprintf("✅ Название банка изменено на <code>%s</code>", text))
}

func (b *Bot) saveSetting(ctx context.Context, msg *models.Message, key, value, successText string) {
	b.states.Clear(msg.From.ID)

	if err := b.store.SetSetting(key, value, msg.From.ID); err != nil {
		b.log.Error("save setting", "key", key, "error", err)
		b.sendMessage(ctx, msg.Chat.ID, "❌ Ошибка сохранения настройки.", nil)
		return
	}

	b.sendMessage(ctx, msg.Chat.ID, successText, nil)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
