package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const perPage = 10

// listItem is one selectable row in a paginated keyboard.
type listItem struct {
	Text     string
	Callback string
}

// buildKeyboard lays out one page of items, two buttons per row, with a
// Previous/Close/Next nav row. Page numbers start at 1.
func buildKeyboard(items []listItem, page int, mode string) tgbotapi.InlineKeyboardMarkup {
	start := (page - 1) * perPage
	if start < 0 {
		start = 0
	}
	end := start + perPage
	if start > len(items) {
		start = len(items)
	}
	if end > len(items) {
		end = len(items)
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, item := range items[start:end] {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(item.Text, item.Callback))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	var nav []tgbotapi.InlineKeyboardButton
	if page > 1 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("Previous",
			fmt.Sprintf("page_%d_%s", page-1, mode)))
	}
	nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("Close", "close"))
	if end < len(items) {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("Next",
			fmt.Sprintf("page_%d_%s", page+1, mode)))
	}
	rows = append(rows, nav)

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func mainMenuKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("New Report", "newReport"),
			tgbotapi.NewInlineKeyboardButtonData("Weekly Report", "weeklyReport"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Daily Report", "dailyReport"),
			tgbotapi.NewInlineKeyboardButtonData("Monthly Report", "monthlyReport"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Delete Report", "deleteReport"),
			tgbotapi.NewInlineKeyboardButtonData("Edit Balance", "editBalance"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Close", "close"),
		),
	)
}

func confirmDeleteKeyboard(tradeID int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Yes", fmt.Sprintf("yes_del_%d", tradeID)),
			tgbotapi.NewInlineKeyboardButtonData("No", fmt.Sprintf("no_del_%d", tradeID)),
		),
	)
}
