package handlers

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// errorTexts holds the Russian rendering of every fixed API error message.
// English is the key itself.
var errorTexts = map[string]string{
	"missing account":        "не указан аккаунт",
	"invalid payload":        "некорректное тело запроса",
	"account not found":      "аккаунт не найден",
	"failed to submit task":  "не удалось создать задачу",
	"invalid task id":        "некорректный идентификатор задачи",
	"task not found":         "задача не найдена",
	"failed to load task":    "не удалось загрузить задачу",
	"invalid account id":     "некорректный идентификатор аккаунта",
	"invalid limit":          "некорректный limit",
	"failed to list tasks":   "не удалось получить список задач",
	"failed to load balance": "не удалось получить баланс",
}

var errorCatalog = func() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for key, ru := range errorTexts {
		if err := b.SetString(language.Russian, key, ru); err != nil {
			panic(err)
		}
		if err := b.SetString(language.English, key, key); err != nil {
			panic(err)
		}
	}
	return b
}()

// localize renders a fixed error message in locale. Messages carrying
// request details are returned as is.
func localize(locale, msg string) string {
	if _, ok := errorTexts[msg]; !ok {
		return msg
	}
	return message.NewPrinter(language.Make(locale), message.Catalog(errorCatalog)).Sprintf(msg)
}
