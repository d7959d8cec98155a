package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/gommgo/release-machine/internal/release"
)

// callback data prefixes, kept short because Telegram caps callback_data at
// 64 bytes.
const (
	cbNav          = "nav"    // nav|<view>
	cbPage         = "pg"     // pg|<delta>
	cbApprove      = "appr"   // appr
	cbReject       = "rej"    // rej
	cbRollbackPick = "rbpick" // rbpick|<index>
	cbRollbackGo   = "rbgo"   // rbgo
	cbRollbackBack = "rbback" // rbback
	cbRefresh      = "refresh"
)

// refresh reloads the dialog's cached page for its current view from the
// Engine, resetting the index to 0 — "all ground truth is re-read from the
// Engine on refresh" (spec.md §4.6).
func refresh(ctx context.Context, engine *release.Engine, st *DialogState) error {
	var (
		releases []*release.Release
		err      error
	)
	switch st.View {
	case ViewSuccessful:
		releases, err = engine.ListSuccessful(ctx, "")
	case ViewFailed:
		releases, err = engine.ListFailed(ctx, "")
	default:
		releases, err = engine.ListActive(ctx, "")
	}
	if err != nil {
		return err
	}
	st.Releases = releases
	st.Index = 0
	st.PendingRollbackTarget = nil
	return nil
}

// renderRelease builds the message text and keyboard for the release the
// dialog is currently positioned on.
func renderRelease(st *DialogState, policy *release.ApprovalPolicy, actor string) (string, tgbotapi.InlineKeyboardMarkup) {
	r := st.Current()
	if r == nil {
		return fmt.Sprintf("No %s releases.", st.View), navKeyboard(st.View, false)
	}

	text := fmt.Sprintf(
		"*%s* — %s\nservice: `%s`\nstatus: `%s`\ninitiated by: %s\napprovals: %d\n[%d/%d]",
		r.ReleaseTag, st.View, r.ServiceName, r.Status, r.InitiatedBy, len(r.ApprovedList), st.Index+1, len(st.Releases),
	)

	var rows [][]tgbotapi.InlineKeyboardButton

	if st.View == ViewActive && r.Status == release.ManualTesting && policy.IsEligible(actor) && !r.HasApproved(actor) {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Approve", cbApprove),
			tgbotapi.NewInlineKeyboardButtonData("Reject", cbReject),
		))
	}

	if st.View == ViewSuccessful && r.Status == release.Deployed {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Rollback", fmt.Sprintf("%s|%d", cbRollbackPick, st.Index)),
		))
	}

	rows = append(rows, navRow(st)...)
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Active", fmt.Sprintf("%s|%s", cbNav, ViewActive)),
		tgbotapi.NewInlineKeyboardButtonData("Successful", fmt.Sprintf("%s|%s", cbNav, ViewSuccessful)),
		tgbotapi.NewInlineKeyboardButtonData("Failed", fmt.Sprintf("%s|%s", cbNav, ViewFailed)),
	))
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Refresh", cbRefresh)))

	return text, tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func navRow(st *DialogState) [][]tgbotapi.InlineKeyboardButton {
	var buttons []tgbotapi.InlineKeyboardButton
	if st.Index > 0 {
		buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData("< Prev", fmt.Sprintf("%s|-1", cbPage)))
	}
	if st.Index < len(st.Releases)-1 {
		buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData("Next >", fmt.Sprintf("%s|1", cbPage)))
	}
	if len(buttons) == 0 {
		return nil
	}
	return [][]tgbotapi.InlineKeyboardButton{buttons}
}

func navKeyboard(current View, _ bool) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Active", fmt.Sprintf("%s|%s", cbNav, ViewActive)),
			tgbotapi.NewInlineKeyboardButtonData("Successful", fmt.Sprintf("%s|%s", cbNav, ViewSuccessful)),
			tgbotapi.NewInlineKeyboardButtonData("Failed", fmt.Sprintf("%s|%s", cbNav, ViewFailed)),
		),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Refresh", cbRefresh)),
	)
}

// renderRollbackPicker builds the "pick one of the last 3 successful
// releases of the same service" view (spec.md §4.6).
func renderRollbackPicker(candidates []*release.Release) (string, tgbotapi.InlineKeyboardMarkup) {
	if len(candidates) == 0 {
		return "No other successful releases to roll back to.", tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Back", cbRollbackBack)),
		)
	}

	text := "Pick a rollback target:\n"
	var rows [][]tgbotapi.InlineKeyboardButton
	for i, c := range candidates {
		text += fmt.Sprintf("%d. %s\n", i+1, c.ReleaseTag)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(c.ReleaseTag, fmt.Sprintf("%s|%d", cbRollbackGo, i)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Cancel", cbRollbackBack)))
	return text, tgbotapi.NewInlineKeyboardMarkup(rows...)
}
