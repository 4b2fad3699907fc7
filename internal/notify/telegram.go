package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"imagebot/internal/domain"
	"imagebot/internal/infra"
	"imagebot/internal/providers/image"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSink delivers results as documents so the messenger does not
// recompress them.
type TelegramSink struct {
	bot           sender
	accounts      domain.AccountRepository
	defaultLocale string
	logger        *infra.Logger
}

// NewTelegramSink wires the sink. bot is usually a *tgbotapi.BotAPI.
func NewTelegramSink(bot sender, accounts domain.AccountRepository, defaultLocale string, logger *infra.Logger) *TelegramSink {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &TelegramSink{bot: bot, accounts: accounts, defaultLocale: defaultLocale, logger: logger}
}

// DocumentName is the file name shown to the user.
func DocumentName(taskID int64) string {
	return fmt.Sprintf("GPT_Image_%d.png", taskID)
}

func (s *TelegramSink) DeliverResult(ctx context.Context, task *domain.Task, payload image.Payload) (string, error) {
	account, err := s.accounts.GetByID(ctx, task.AccountID)
	if err != nil {
		return "", fmt.Errorf("%w: resolve chat: %v", ErrDeliveryFailed, err)
	}

	var file tgbotapi.RequestFileData
	switch p := payload.(type) {
	case image.InlinePayload:
		file = tgbotapi.FileBytes{Name: DocumentName(task.ID), Bytes: p.Data}
	case image.RemoteRef:
		file = tgbotapi.FileURL(p.URL)
	default:
		return "", fmt.Errorf("%w: unsupported payload %T", ErrDeliveryFailed, payload)
	}

	doc := tgbotapi.NewDocument(account.ChatID, file)
	doc.Caption = ResultCaption(s.locale(account), task)
	doc.ParseMode = tgbotapi.ModeHTML

	msg, err := s.send(ctx, doc)
	if err != nil {
		return "", err
	}
	if msg.Document == nil || msg.Document.FileID == "" {
		return "", fmt.Errorf("%w: response carried no document", ErrDeliveryFailed)
	}
	s.logger.Info().
		Int64("task_id", task.ID).
		Int64("chat_id", account.ChatID).
		Msg("result delivered")
	return msg.Document.FileID, nil
}

func (s *TelegramSink) DeliverFailure(ctx context.Context, task *domain.Task, reason FailureReason) error {
	account, err := s.accounts.GetByID(ctx, task.AccountID)
	if err != nil {
		return fmt.Errorf("%w: resolve chat: %v", ErrDeliveryFailed, err)
	}
	msg := tgbotapi.NewMessage(account.ChatID, FailureText(s.locale(account), task, reason))
	if _, err := s.send(ctx, msg); err != nil {
		return err
	}
	s.logger.Info().
		Int64("task_id", task.ID).
		Str("reason", reason.String()).
		Msg("failure notice delivered")
	return nil
}

func (s *TelegramSink) locale(a *domain.Account) string {
	if l := strings.TrimSpace(a.Locale); l != "" {
		return l
	}
	return s.defaultLocale
}

// send bounds the blocking bot call by ctx. A send that outlives ctx may
// still reach the user; the caller treats it as failed.
func (s *TelegramSink) send(ctx context.Context, c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return sendWithContext(ctx, s.bot, c)
}

func sendWithContext(ctx context.Context, bot sender, c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if err := ctx.Err(); err != nil {
		return tgbotapi.Message{}, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	type sent struct {
		msg tgbotapi.Message
		err error
	}
	done := make(chan sent, 1)
	go func() {
		msg, err := bot.Send(c)
		done <- sent{msg: msg, err: err}
	}()
	select {
	case <-ctx.Done():
		return tgbotapi.Message{}, fmt.Errorf("%w: %v", ErrDeliveryFailed, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return tgbotapi.Message{}, errors.Join(ErrDeliveryFailed, r.err)
		}
		return r.msg, nil
	}
}
