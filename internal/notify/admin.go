package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"imagebot/internal/domain"
	"imagebot/internal/infra"
)

// AdminAlerts mirrors moderation blocks and terminal failures to operator chats.
type AdminAlerts struct {
	bot     sender
	chatIDs []int64
	logger  *infra.Logger
}

// NewAdminAlerts returns alerts for chatIDs. An empty list makes every call a no-op.
func NewAdminAlerts(bot sender, chatIDs []int64, logger *infra.Logger) *AdminAlerts {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &AdminAlerts{bot: bot, chatIDs: append([]int64(nil), chatIDs...), logger: logger}
}

func (a *AdminAlerts) ModerationBlocked(ctx context.Context, task *domain.Task, reason string) {
	body := fmt.Sprintf(
		"<b>Task ID:</b> %d\n<b>Account ID:</b> <code>%d</code>\n\n<b>Prompt:</b>\n<code>%s</code>\n\n<b>Reason:</b> %s",
		task.ID, task.AccountID,
		html.EscapeString(preview(task.Prompt, 300)),
		html.EscapeString(preview(reason, 500)),
	)
	a.broadcast(ctx, "⚠️ Moderation block", body)
}

func (a *AdminAlerts) GenerationFailed(ctx context.Context, task *domain.Task, reason string) {
	body := fmt.Sprintf(
		"<b>Task ID:</b> %d\n<b>Account ID:</b> <code>%d</code>\n<b>Kind:</b> %s\n<b>Model:</b> %s\n<b>Tokens:</b> %d\n<b>Retries:</b> %d\n\n<b>Prompt:</b>\n<code>%s</code>\n\n<b>Error:</b>\n<code>%s</code>",
		task.ID, task.AccountID, task.Kind, html.EscapeString(task.Model), task.TokensCharged, task.RetryCount,
		html.EscapeString(preview(task.Prompt, 200)),
		html.EscapeString(preview(reason, 500)),
	)
	a.broadcast(ctx, "🚨 Generation failed", body)
}

func (a *AdminAlerts) broadcast(ctx context.Context, title, body string) {
	if a == nil || len(a.chatIDs) == 0 {
		return
	}
	text := "<b>" + title + "</b>\n\n" + strings.TrimSpace(body)
	for _, chatID := range a.chatIDs {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = tgbotapi.ModeHTML
		if _, err := sendWithContext(ctx, a.bot, msg); err != nil {
			a.logger.Warn().Err(err).Int64("chat_id", chatID).Str("title", title).Msg("admin alert failed")
		}
	}
}
