package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/gommgo/release-machine/internal/release"
)

// dialogStore is satisfied by both DialogStore (single-replica, in-process
// LRU) and RedisDialogStore (multi-replica, shared via Redis), letting
// cmd/server pick the backing store from configuration without the
// Controller caring which one it got.
type dialogStore interface {
	Get(chatID int64) *DialogState
	Set(chatID int64, st *DialogState)
}

// Controller is the Telegram webhook controller: it receives updates at an
// HTTP endpoint registered on the same cmd/server mux, grounded on the
// original's TelegramWebhookController. It calls only the Engine, never the
// Store (spec.md §4.6).
type Controller struct {
	bot     *tgbotapi.BotAPI
	engine  *release.Engine
	policy  *release.ApprovalPolicy
	dialogs dialogStore
	logger  *slog.Logger
}

// NewController wires a Telegram bot client, the Engine, the approval
// policy (to decide button visibility), and a dialog store into a
// Controller.
func NewController(bot *tgbotapi.BotAPI, engine *release.Engine, policy *release.ApprovalPolicy, dialogs dialogStore, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{bot: bot, engine: engine, policy: policy, dialogs: dialogs, logger: logger}
}

// Webhook returns the http.HandlerFunc to register for Telegram's webhook
// callback.
func (c *Controller) Webhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		update, err := c.bot.HandleUpdate(r)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		c.handle(r.Context(), *update)
		w.WriteHeader(http.StatusOK)
	}
}

func (c *Controller) handle(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil && update.Message.IsCommand() && update.Message.Command() == "start":
		c.handleStart(ctx, update.Message.Chat.ID, update.Message.From.UserName)
	case update.CallbackQuery != nil:
		c.handleCallback(ctx, update.CallbackQuery)
	}
}

func (c *Controller) handleStart(ctx context.Context, chatID int64, actor string) {
	st := c.dialogs.Get(chatID)
	st.View = ViewActive
	if err := refresh(ctx, c.engine, st); err != nil {
		c.sendError(chatID, err)
		return
	}
	c.dialogs.Set(chatID, st)
	c.render(chatID, 0, st, actor)
}

func (c *Controller) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	chatID := cq.Message.Chat.ID
	actor := cq.From.UserName
	st := c.dialogs.Get(chatID)

	parts := strings.SplitN(cq.Data, "|", 2)
	action := parts[0]
	var arg string
	if len(parts) > 1 {
		arg = parts[1]
	}

	var err error
	switch action {
	case cbNav:
		st.View = View(arg)
		err = refresh(ctx, c.engine, st)
	case cbRefresh:
		err = refresh(ctx, c.engine, st)
	case cbPage:
		delta, _ := strconv.Atoi(arg)
		st.Index += delta
		if st.Index < 0 {
			st.Index = 0
		}
		if st.Index >= len(st.Releases) && len(st.Releases) > 0 {
			st.Index = len(st.Releases) - 1
		}
	case cbApprove:
		err = c.handleApprove(ctx, st, actor)
	case cbReject:
		err = c.handleReject(ctx, st, actor)
	case cbRollbackPick:
		err = c.handleRollbackPick(ctx, st)
	case cbRollbackGo:
		err = c.handleRollbackGo(ctx, st, arg)
	case cbRollbackBack:
		st.RollbackCandidates = nil
		st.PendingRollbackTarget = nil
	}

	c.dialogs.Set(chatID, st)

	if err != nil {
		c.answerCallback(cq, err.Error())
		c.sendError(chatID, err)
		return
	}
	c.answerCallback(cq, "")
	c.render(chatID, cq.Message.MessageID, st, actor)
}

func (c *Controller) handleApprove(ctx context.Context, st *DialogState, actor string) error {
	r := st.Current()
	if r == nil {
		return errors.New("no release selected")
	}
	_, err := c.engine.Approve(ctx, r.ID, actor)
	if err != nil {
		return err
	}
	return refresh(ctx, c.engine, st)
}

func (c *Controller) handleReject(ctx context.Context, st *DialogState, actor string) error {
	r := st.Current()
	if r == nil {
		return errors.New("no release selected")
	}
	if err := c.engine.Reject(ctx, r.ID, actor); err != nil {
		return err
	}
	return refresh(ctx, c.engine, st)
}

func (c *Controller) handleRollbackPick(ctx context.Context, st *DialogState) error {
	r := st.Current()
	if r == nil {
		return errors.New("no release selected")
	}
	candidates, err := c.engine.RecentSuccessful(ctx, r.ServiceName, r.ID, 3)
	if err != nil {
		return err
	}
	st.RollbackSourceID = r.ID
	st.RollbackCandidates = candidates
	return nil
}

func (c *Controller) handleRollbackGo(ctx context.Context, st *DialogState, indexArg string) error {
	idx, err := strconv.Atoi(indexArg)
	if err != nil || idx < 0 || idx >= len(st.RollbackCandidates) {
		return errors.New("invalid rollback target")
	}
	target := st.RollbackCandidates[idx]
	st.PendingRollbackTarget = target

	if _, err := c.engine.Rollback(ctx, st.RollbackSourceID, target.ReleaseTag); err != nil {
		return err
	}
	st.RollbackCandidates = nil
	st.PendingRollbackTarget = nil
	return refresh(ctx, c.engine, st)
}

// render repaints the chat's current dialog view. If the operator is in the
// middle of a rollback-target pick, the picker view takes priority over the
// normal release view.
func (c *Controller) render(chatID int64, messageID int, st *DialogState, actor string) {
	var text string
	var keyboard tgbotapi.InlineKeyboardMarkup

	if st.RollbackCandidates != nil || st.PendingRollbackTarget != nil {
		text, keyboard = renderRollbackPicker(st.RollbackCandidates)
	} else {
		text, keyboard = renderRelease(st, c.policy, actor)
	}

	if messageID == 0 {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = tgbotapi.ModeMarkdown
		msg.ReplyMarkup = keyboard
		if _, err := c.bot.Send(msg); err != nil {
			c.logger.Error("send message failed", "chat_id", chatID, "error", err)
		}
		return
	}

	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, keyboard)
	edit.ParseMode = tgbotapi.ModeMarkdown
	if _, err := c.bot.Send(edit); err != nil {
		c.logger.Error("edit message failed", "chat_id", chatID, "error", err)
	}
}

func (c *Controller) sendError(chatID int64, err error) {
	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("Error: %s", err.Error()))
	if _, sendErr := c.bot.Send(msg); sendErr != nil {
		c.logger.Error("send error message failed", "chat_id", chatID, "error", sendErr)
	}
}

func (c *Controller) answerCallback(cq *tgbotapi.CallbackQuery, text string) {
	cb := tgbotapi.NewCallback(cq.ID, text)
	if _, err := c.bot.Request(cb); err != nil {
		c.logger.Error("answer callback failed", "error", err)
	}
}
