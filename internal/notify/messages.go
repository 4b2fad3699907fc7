package notify

import (
	"html"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"imagebot/internal/domain"
)

const (
	keyCaptionGenerate   = "caption.generate"
	keyCaptionEdit       = "caption.edit"
	keyFailureGeneric    = "failure.generic"
	keyFailureModeration = "failure.moderation"

	promptPreviewRunes = 300
)

var supportedLocales = []language.Tag{language.Russian, language.English}

var localeMatcher = language.NewMatcher(supportedLocales)

var messages = mustCatalog()

func mustCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.Russian))
	set := func(tag language.Tag, key, msg string) {
		if err := b.SetString(tag, key, msg); err != nil {
			panic(err)
		}
	}

	set(language.Russian, keyCaptionGenerate,
		"🎨 <b>Картинка создана!</b>\n\n<blockquote>%s</blockquote>\n\n⚙️ %s • %s\n💰 Списано: %d 🪙")
	set(language.Russian, keyCaptionEdit,
		"✏️ <b>Фото отредактировано!</b>\n\n<blockquote>%s</blockquote>\n\n⚙️ %s • %s\n💰 Списано: %d 🪙")
	set(language.Russian, keyFailureGeneric,
		"❌ К сожалению, генерация не удалась.\n\nТокены (%d) возвращены на ваш баланс.\n\nПопробуйте ещё раз или измените промпт.")
	set(language.Russian, keyFailureModeration,
		"🚫 Запрос отклонён модерацией.\n\nТокены (%d) возвращены на ваш баланс.\n\nИзмените описание и попробуйте снова.")

	set(language.English, keyCaptionGenerate,
		"🎨 <b>Image created!</b>\n\n<blockquote>%s</blockquote>\n\n⚙️ %s • %s\n💰 Charged: %d 🪙")
	set(language.English, keyCaptionEdit,
		"✏️ <b>Photo edited!</b>\n\n<blockquote>%s</blockquote>\n\n⚙️ %s • %s\n💰 Charged: %d 🪙")
	set(language.English, keyFailureGeneric,
		"❌ Unfortunately the generation failed.\n\nYour %d tokens have been returned to your balance.\n\nPlease try again or change the prompt.")
	set(language.English, keyFailureModeration,
		"🚫 The request was rejected by content moderation.\n\nYour %d tokens have been returned to your balance.\n\nPlease change the description and try again.")
	return b
}

func printerFor(locale string) *message.Printer {
	tag, _ := language.MatchStrings(localeMatcher, locale)
	base, _ := tag.Base()
	return message.NewPrinter(language.Make(base.String()), message.Catalog(messages))
}

// ResultCaption renders the caption attached to a delivered result.
func ResultCaption(locale string, t *domain.Task) string {
	key := keyCaptionGenerate
	if t.Kind == domain.TaskKindEdit {
		key = keyCaptionEdit
	}
	return printerFor(locale).Sprintf(key,
		html.EscapeString(preview(t.Prompt, promptPreviewRunes)),
		string(t.Quality), string(t.Size), t.TokensCharged)
}

// FailureText renders one of the two user-facing failure messages.
func FailureText(locale string, t *domain.Task, reason FailureReason) string {
	key := keyFailureGeneric
	if reason == ReasonModeration {
		key = keyFailureModeration
	}
	return printerFor(locale).Sprintf(key, t.TokensCharged)
}

func preview(s string, limit int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
