// Package bot provides the Telegram transport for the trade journal: the
// main menu, the entry conversation, paginated report browsers, and the
// delete/edit flows.
package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"journalbot/internal/config"
	"journalbot/internal/database"
	"journalbot/internal/entry"
	"journalbot/internal/period"
	"journalbot/internal/report"
	"journalbot/internal/session"
)

// Telegram message size limit; longer reports get chunked.
const maxMessageLen = 4096

// Size of each per-chat update queue. A full queue drops updates rather
// than blocking the shared listener.
const chatQueueLen = 16

// Bot handles Telegram interactions for the journal
type Bot struct {
	api      *tgbotapi.BotAPI
	cfg      *config.Config
	db       *database.Database
	sessions *session.Store
	flow     *entry.Flow
	now      func() time.Time
	stopCh   chan struct{}

	queueMu sync.Mutex
	queues  map[int64]chan tgbotapi.Update
}

// New creates the journal bot and connects to the Telegram API.
func New(cfg *config.Config, db *database.Database, sessions *session.Store,
	flow *entry.Flow, now func() time.Time) (*Bot, error) {

	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	log.Info().Str("username", api.Self.UserName).Msg("Telegram bot connected")

	return &Bot{
		api:      api,
		cfg:      cfg,
		db:       db,
		sessions: sessions,
		flow:     flow,
		now:      now,
		stopCh:   make(chan struct{}),
		queues:   make(map[int64]chan tgbotapi.Update),
	}, nil
}

// Start begins the bot's update listener
func (b *Bot) Start() {
	go b.listenForUpdates()
}

// Stop stops the bot
func (b *Bot) Stop() {
	close(b.stopCh)
}

func (b *Bot) listenForUpdates() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case update := <-updates:
			switch {
			case update.Message != nil:
				b.dispatch(update.Message.Chat.ID, update)
			case update.CallbackQuery != nil && update.CallbackQuery.Message != nil:
				b.dispatch(update.CallbackQuery.Message.Chat.ID, update)
			}
		case <-b.stopCh:
			return
		}
	}
}

// dispatch routes an update to its chat's worker. Updates for the same chat
// are handled one at a time, in arrival order; the conversation state machine
// depends on that. Different chats still run concurrently.
func (b *Bot) dispatch(chatID int64, update tgbotapi.Update) {
	b.queueMu.Lock()
	q, ok := b.queues[chatID]
	if !ok {
		q = make(chan tgbotapi.Update, chatQueueLen)
		b.queues[chatID] = q
		go b.chatWorker(q)
	}
	b.queueMu.Unlock()

	select {
	case q <- update:
	default:
		log.Warn().Int64("chat_id", chatID).Msg("Chat queue full, dropping update")
	}
}

func (b *Bot) chatWorker(q <-chan tgbotapi.Update) {
	for {
		select {
		case update := <-q:
			if update.Message != nil {
				b.handleMessage(update.Message)
			}
			if update.CallbackQuery != nil {
				b.handleCallback(update.CallbackQuery)
			}
		case <-b.stopCh:
			return
		}
	}
}

func (b *Bot) handleMessage(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	log.Debug().
		Int64("chat_id", chatID).
		Str("text", msg.Text).
		Msg("Received message")

	if !b.cfg.Allowed(chatID) {
		b.sendText(chatID, "You do not have access to this bot.")
		return
	}

	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			b.sendMainMenu(chatID)
		default:
			b.sendText(chatID, "Unknown command. Use /start.")
		}
		return
	}

	sess := b.sessions.Get(chatID)
	if sess.Step == session.StepIdle {
		return
	}

	reply, err := b.flow.Handle(chatID, sess, msg.Text)
	if err != nil {
		// Session untouched so the same input can be retried.
		log.Error().Err(err).Int64("chat_id", chatID).Msg("Flow step failed")
		b.sendText(chatID, "Error saving.")
		return
	}

	b.sendReply(chatID, reply)
	if reply.Done {
		b.sessions.Reset(chatID)
		b.sendMainMenu(chatID)
	}
}

func (b *Bot) handleCallback(cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	data := cb.Data

	log.Debug().
		Int64("chat_id", chatID).
		Str("data", data).
		Msg("Received callback")

	b.api.Request(tgbotapi.NewCallback(cb.ID, ""))

	if !b.cfg.Allowed(chatID) {
		return
	}

	switch {
	case data == "close":
		b.closeMenu(chatID, cb.Message.MessageID)
	case data == "newReport":
		b.startNewReport(chatID)
	case data == "dailyReport":
		b.showDailyList(chatID)
	case data == "weeklyReport":
		b.showWeeklyList(chatID)
	case data == "monthlyReport":
		b.showMonthlyList(chatID)
	case data == "deleteReport":
		b.showDeleteList(chatID)
	case data == "editBalance":
		b.showEditList(chatID)
	case strings.HasPrefix(data, "page_"):
		b.showPage(chatID, data)
	case strings.HasPrefix(data, "id_"):
		b.showDayReport(chatID, strings.TrimPrefix(data, "id_"))
	case strings.HasPrefix(data, "weekly_id_"):
		b.showWeekReport(chatID, strings.TrimPrefix(data, "weekly_id_"))
	case strings.HasPrefix(data, "monthly_id_"):
		b.showMonthReport(chatID, strings.TrimPrefix(data, "monthly_id_"))
	case strings.HasPrefix(data, "delete_id_"):
		b.confirmDelete(chatID, strings.TrimPrefix(data, "delete_id_"))
	case strings.HasPrefix(data, "yes_del_"):
		b.deleteTrade(chatID, strings.TrimPrefix(data, "yes_del_"))
	case strings.HasPrefix(data, "no_del_"):
		b.sendText(chatID, "Cancelled.")
		b.sendMainMenu(chatID)
	case strings.HasPrefix(data, "edit_id_"):
		b.startEditBalance(chatID, strings.TrimPrefix(data, "edit_id_"))
	}
}

// Menu

func (b *Bot) sendMainMenu(chatID int64) {
	msg := tgbotapi.NewMessage(chatID, "Please select one of the options below:")
	msg.ReplyMarkup = mainMenuKeyboard()
	sent, err := b.api.Send(msg)
	if err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send menu")
		return
	}
	b.replaceMenuMessage(chatID, sent.MessageID)
}

// replaceMenuMessage deletes the previous menu message and remembers the new
// one, keeping a single active menu per chat.
func (b *Bot) replaceMenuMessage(chatID int64, newMessageID int) {
	old, err := b.db.GetMenuMessage(chatID)
	if err == nil && old != 0 {
		// The old message may already be gone; that is fine.
		b.api.Request(tgbotapi.NewDeleteMessage(chatID, old))
	}
	if err := b.db.SaveMenuMessage(chatID, newMessageID); err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to save menu message id")
	}
}

func (b *Bot) closeMenu(chatID int64, messageID int) {
	b.sessions.Reset(chatID)
	b.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
	b.sendText(chatID, "Main menu opened /start")
}

// Entry flow

func (b *Bot) startNewReport(chatID int64) {
	sess := b.sessions.Reset(chatID)
	reply := b.flow.Start(sess)

	msg := tgbotapi.NewMessage(chatID, reply.Text)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Close", "close"),
		),
	)
	sent, err := b.api.Send(msg)
	if err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send prompt")
		return
	}
	b.replaceMenuMessage(chatID, sent.MessageID)
}

// sendReply renders a flow reply: enumerated options become a one-tap reply
// keyboard, plain prompts clear any leftover keyboard.
func (b *Bot) sendReply(chatID int64, reply entry.Reply) {
	msg := tgbotapi.NewMessage(chatID, reply.Text)
	if len(reply.Options) > 0 {
		buttons := make([]tgbotapi.KeyboardButton, len(reply.Options))
		for i, opt := range reply.Options {
			buttons[i] = tgbotapi.NewKeyboardButton(opt)
		}
		kb := tgbotapi.NewReplyKeyboard(buttons)
		kb.ResizeKeyboard = true
		msg.ReplyMarkup = kb
	} else {
		msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(false)
	}
	if _, err := b.api.Send(msg); err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send reply")
	}
}

// List browsers

func (b *Bot) showDailyList(chatID int64) {
	items, err := b.listItems(chatID, "daily")
	if err != nil {
		b.reportError(chatID, err)
		return
	}
	if len(items) == 0 {
		b.sendText(chatID, "No positions found.")
		return
	}
	b.sendKeyboard(chatID, "Select one of the positions below:", items, 1, "daily")
}

func (b *Bot) showWeeklyList(chatID int64) {
	items, err := b.listItems(chatID, "weekly")
	if err != nil {
		b.reportError(chatID, err)
		return
	}
	if len(items) == 0 {
		b.sendText(chatID, "No data found.")
		return
	}
	b.sendKeyboard(chatID, "Select Week:", items, 1, "weekly")
}

func (b *Bot) showMonthlyList(chatID int64) {
	items, err := b.listItems(chatID, "monthly")
	if err != nil {
		b.reportError(chatID, err)
		return
	}
	if len(items) == 0 {
		b.sendText(chatID, "No data available.")
		return
	}
	b.sendKeyboard(chatID, "Select Month:", items, 1, "monthly")
}

func (b *Bot) showDeleteList(chatID int64) {
	items, err := b.listItems(chatID, "delete")
	if err != nil {
		b.reportError(chatID, err)
		return
	}
	if len(items) == 0 {
		b.sendText(chatID, "Nothing to delete.")
		return
	}
	b.sendKeyboard(chatID, "Select to delete:", items, 1, "delete")
}

func (b *Bot) showEditList(chatID int64) {
	items, err := b.listItems(chatID, "edit")
	if err != nil {
		b.reportError(chatID, err)
		return
	}
	if len(items) == 0 {
		b.sendText(chatID, "No balance available.")
		return
	}
	b.sendKeyboard(chatID, "Select to edit:", items, 1, "edit")
}

// listItems builds the selectable rows for one browsing mode. Weekly rows
// register their member ids in the session's selection cache and carry the
// returned token in the callback data.
func (b *Bot) listItems(chatID int64, mode string) ([]listItem, error) {
	switch mode {
	case "daily":
		bals, err := b.db.ListBalancesByOwner(chatID)
		if err != nil {
			return nil, err
		}
		items := make([]listItem, 0, len(bals))
		for _, bal := range bals {
			items = append(items, listItem{
				Text:     bal.Day,
				Callback: fmt.Sprintf("id_%d", bal.ID),
			})
		}
		return items, nil

	case "weekly":
		bals, err := b.db.ListBalancesByOwner(chatID)
		if err != nil {
			return nil, err
		}
		days := make([]period.DayRef, 0, len(bals))
		for _, bal := range bals {
			date, err := time.Parse(database.DayFormat, bal.Day)
			if err != nil {
				log.Warn().Str("day", bal.Day).Msg("Skipping unparseable day")
				continue
			}
			days = append(days, period.DayRef{ID: bal.ID, Date: date})
		}
		sess := b.sessions.Get(chatID)
		buckets := period.GroupByWeek(days)
		items := make([]listItem, 0, len(buckets))
		for _, bucket := range buckets {
			token := sess.RegisterSelection(bucket.IDs)
			items = append(items, listItem{
				Text: fmt.Sprintf("%s/%s",
					bucket.MinDate.Format(database.DayFormat),
					bucket.MaxDate.Format(database.DayFormat)),
				Callback: "weekly_id_" + token,
			})
		}
		return items, nil

	case "monthly":
		bals, err := b.db.ListBalancesByOwner(chatID)
		if err != nil {
			return nil, err
		}
		year := b.now().Year()
		days := make([]period.DayRef, 0, len(bals))
		for _, bal := range bals {
			date, err := time.Parse(database.DayFormat, bal.Day)
			if err != nil {
				continue
			}
			days = append(days, period.DayRef{ID: bal.ID, Date: date})
		}
		months := period.MonthsIn(days, year)
		items := make([]listItem, 0, len(months))
		for _, m := range months {
			items = append(items, listItem{
				Text:     m.String(),
				Callback: fmt.Sprintf("monthly_id_%d", int(m)),
			})
		}
		return items, nil

	case "delete":
		trades, err := b.allLinkedTrades(chatID)
		if err != nil {
			return nil, err
		}
		items := make([]listItem, 0, len(trades))
		for _, trade := range trades {
			items = append(items, listItem{
				Text:     fmt.Sprintf("%s - %d", trade.Day.Format(database.DayFormat), trade.ID),
				Callback: fmt.Sprintf("delete_id_%d", trade.ID),
			})
		}
		return items, nil

	case "edit":
		bals, err := b.db.ListBalancesByOwner(chatID)
		if err != nil {
			return nil, err
		}
		items := make([]listItem, 0, len(bals))
		for _, bal := range bals {
			items = append(items, listItem{
				Text:     fmt.Sprintf("%s - %s", bal.Day, bal.Balance.StringFixed(2)),
				Callback: fmt.Sprintf("edit_id_%d", bal.ID),
			})
		}
		return items, nil
	}

	return nil, fmt.Errorf("unknown list mode %q", mode)
}

// allLinkedTrades collects every trade reachable through the owner's balance
// rows. Trades are only ever reachable through a day's link list.
func (b *Bot) allLinkedTrades(chatID int64) ([]database.Trade, error) {
	bals, err := b.db.ListBalancesByOwner(chatID)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for _, bal := range bals {
		ids = append(ids, bal.TradeIDs...)
	}
	return b.db.GetTradesByIDs(ids)
}

func (b *Bot) sendKeyboard(chatID int64, text string, items []listItem, page int, mode string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = buildKeyboard(items, page, mode)
	sent, err := b.api.Send(msg)
	if err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send keyboard")
		return
	}
	b.replaceMenuMessage(chatID, sent.MessageID)
}

// showPage re-renders a paginated keyboard for page_<n>_<mode> callbacks.
func (b *Bot) showPage(chatID int64, data string) {
	parts := strings.SplitN(data, "_", 3)
	if len(parts) != 3 {
		return
	}
	page, err := strconv.Atoi(parts[1])
	if err != nil || page < 1 {
		return
	}
	mode := parts[2]

	items, err := b.listItems(chatID, mode)
	if err != nil {
		b.reportError(chatID, err)
		return
	}
	old, err := b.db.GetMenuMessage(chatID)
	if err == nil {
		edit := tgbotapi.NewEditMessageReplyMarkup(chatID, old, buildKeyboard(items, page, mode))
		if _, err := b.api.Request(edit); err == nil {
			return
		}
	}
	b.sendKeyboard(chatID, fmt.Sprintf("Page %d:", page), items, page, mode)
}

// Reports

func (b *Bot) showDayReport(chatID int64, rawID string) {
	balID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return
	}
	bal, err := b.db.GetDailyBalanceByID(balID)
	if errors.Is(err, database.ErrNotFound) || (err == nil && bal.OwnerID != chatID) {
		b.sendText(chatID, report.NoDay)
		b.sendMainMenu(chatID)
		return
	}
	if err != nil {
		b.reportError(chatID, err)
		return
	}
	trades, err := b.db.GetTradesByIDs(bal.TradeIDs)
	if err != nil {
		b.reportError(chatID, err)
		return
	}
	b.sendMarkdownChunked(chatID, report.Day(bal, trades))
	b.sendMainMenu(chatID)
}

func (b *Bot) showWeekReport(chatID int64, token string) {
	sess := b.sessions.Get(chatID)
	ids, ok := sess.ResolveSelection(token)
	if !ok {
		b.sendText(chatID, "Information expired. Please try again.")
		b.sendMainMenu(chatID)
		return
	}
	bals, err := b.db.GetDailyBalances(ids)
	if err != nil {
		b.reportError(chatID, err)
		return
	}
	var tradeIDs []int64
	for _, bal := range bals {
		tradeIDs = append(tradeIDs, bal.TradeIDs...)
	}
	trades, err := b.db.GetTradesByIDs(tradeIDs)
	if err != nil {
		b.reportError(chatID, err)
		return
	}
	b.sendText(chatID, report.Week(len(bals), trades))
	b.sendMainMenu(chatID)
}

func (b *Bot) showMonthReport(chatID int64, rawMonth string) {
	monthNum, err := strconv.Atoi(rawMonth)
	if err != nil || monthNum < 1 || monthNum > 12 {
		return
	}
	year := b.now().Year()
	bals, err := b.db.ListBalancesByOwnerAndMonth(chatID, year, time.Month(monthNum))
	if err != nil {
		b.reportError(chatID, err)
		return
	}
	var tradeIDs []int64
	for _, bal := range bals {
		tradeIDs = append(tradeIDs, bal.TradeIDs...)
	}
	trades, err := b.db.GetTradesByIDs(tradeIDs)
	if err != nil {
		b.reportError(chatID, err)
		return
	}
	b.sendText(chatID, report.Month(monthNum, trades))
	b.sendMainMenu(chatID)
}

// Delete flow

func (b *Bot) confirmDelete(chatID int64, rawID string) {
	tradeID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return
	}
	msg := tgbotapi.NewMessage(chatID,
		fmt.Sprintf("Are you sure you want to delete position %d?", tradeID))
	msg.ReplyMarkup = confirmDeleteKeyboard(tradeID)
	sent, err := b.api.Send(msg)
	if err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send confirmation")
		return
	}
	b.replaceMenuMessage(chatID, sent.MessageID)
}

func (b *Bot) deleteTrade(chatID int64, rawID string) {
	tradeID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return
	}
	err = b.db.RemoveTradeEverywhere(chatID, tradeID)
	if errors.Is(err, database.ErrNotFound) {
		b.sendText(chatID, "Not found.")
		b.sendMainMenu(chatID)
		return
	}
	if err != nil {
		b.reportError(chatID, err)
		return
	}
	log.Info().Int64("chat_id", chatID).Int64("trade_id", tradeID).Msg("Trade deleted")
	b.sendText(chatID, "Deleted.")
	b.sendMainMenu(chatID)
}

// Edit-balance flow

func (b *Bot) startEditBalance(chatID int64, rawID string) {
	balID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return
	}
	bal, err := b.db.GetDailyBalanceByID(balID)
	if errors.Is(err, database.ErrNotFound) || (err == nil && bal.OwnerID != chatID) {
		b.sendText(chatID, "Not found.")
		b.sendMainMenu(chatID)
		return
	}
	if err != nil {
		b.reportError(chatID, err)
		return
	}
	sess := b.sessions.Reset(chatID)
	reply := b.flow.StartEditBalance(sess, bal.Day)
	b.sendText(chatID, reply.Text)
}

// Send helpers

func (b *Bot) sendText(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send message")
	}
}

func (b *Bot) sendMarkdownChunked(chatID int64, text string) {
	for _, chunk := range splitMessage(text, maxMessageLen) {
		msg := tgbotapi.NewMessage(chatID, chunk)
		msg.ParseMode = "Markdown"
		msg.DisableWebPagePreview = true
		if _, err := b.api.Send(msg); err != nil {
			log.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send report")
			return
		}
	}
}

// splitMessage cuts text into pieces of at most limit characters. Telegram
// counts characters, not bytes, and a cut inside a multi-byte rune would be
// rejected by the API.
func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	var chunks []string
	for len(runes) > 0 {
		n := len(runes)
		if n > limit {
			n = limit
		}
		chunks = append(chunks, string(runes[:n]))
		runes = runes[n:]
	}
	return chunks
}

func (b *Bot) reportError(chatID int64, err error) {
	log.Error().Err(err).Int64("chat_id", chatID).Msg("Request failed")
	b.sendText(chatID, "Something went wrong. Please try again.")
}
