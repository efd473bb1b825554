package notify

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/domain"
	"storefront/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramChannel mirrors notifications into the shop owners' Telegram chats.
type TelegramChannel struct {
	bot     domain.TelegramSender
	chatIDs []int64
}

func NewTelegramChannel(bot domain.TelegramSender, chatIDs []int64) *TelegramChannel {
	return &TelegramChannel{bot: bot, chatIDs: chatIDs}
}

// Deliver sends one message per chat. It fails only when no chat received it.
func (t *TelegramChannel) Deliver(ctx context.Context, n models.Notification) (models.Delivery, error) {
	var d models.Delivery
	var errs []error
	for _, chatID := range t.chatIDs {
		if err := ctx.Err(); err != nil {
			return d, err
		}
		d.Sent++
		if _, err := t.bot.Send(tgbotapi.NewMessage(chatID, n.Title+"\n"+n.Message)); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
			continue
		}
		d.Success++
	}
	if d.Sent > 0 && d.Success == 0 {
		return d, fmt.Errorf("telegram: %w", errors.Join(errs...))
	}
	return d, nil
}
