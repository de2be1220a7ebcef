// Package handlers contains the delegates bound by the router: slash
// command handlers and interactive component handlers. Schedule text comes
// from the inference endpoint; nothing here computes schedules locally.
package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"github.com/nimslack/schedbot/pkg/bot"
	"github.com/nimslack/schedbot/pkg/store"
)

// ScheduleGenerator produces schedule text from a user's request
type ScheduleGenerator interface {
	Generate(ctx context.Context, userText string) (string, error)
}

// SlashCommandHandlers handles /schedule and /schedule-help
type SlashCommandHandlers struct {
	generator ScheduleGenerator
	cache     *store.Cache
}

// NewSlashCommandHandlers creates slash command delegates. The cache may
// be nil, in which case every request goes to the inference endpoint.
func NewSlashCommandHandlers(generator ScheduleGenerator, cache *store.Cache) *SlashCommandHandlers {
	return &SlashCommandHandlers{generator: generator, cache: cache}
}

const helpText = `*NIM Scheduling Bot*

Describe what you need to get done and I'll build a schedule for you.

*Commands*
• ` + "`/schedule <request>`" + ` — generate a schedule, e.g. ` +
	"`/schedule 3 meetings, 2 hours of Go study and a gym break tomorrow`" + `
• ` + "`/schedule-help`" + ` — show this message

*Buttons*
• *Modify* — edit a generated schedule in a dialog
• *Done* — mark a task as completed`

const emptyRequestText = "Tell me what to schedule, e.g. " +
	"`/schedule 3 meetings and 2 hours of study tomorrow`."

const generateFailedText = "Sorry, I couldn't generate a schedule right now. " +
	"Please try again in a little while."

// HandleScheduleCommand acknowledges the command and forwards the user's
// text to the inference endpoint, replying with the generated schedule.
func (h *SlashCommandHandlers) HandleScheduleCommand(ctx context.Context, ack bot.AckFunc, respond bot.RespondFunc, cmd slack.SlashCommand) error {
	ack()

	text := strings.TrimSpace(cmd.Text)
	if text == "" {
		return respond(emptyRequestText)
	}

	key := store.Key("schedule", text)
	if cached, ok := h.cache.Get(ctx, key); ok {
		return respond(cached)
	}

	schedule, err := h.generator.Generate(ctx, text)
	if err != nil {
		_ = respond(generateFailedText)
		return fmt.Errorf("schedule command from %s: %w", cmd.UserID, err)
	}

	h.cache.Set(ctx, key, schedule)
	return respond(schedule)
}

// HandleHelpCommand acknowledges the command and replies with usage text
func (h *SlashCommandHandlers) HandleHelpCommand(_ context.Context, ack bot.AckFunc, respond bot.RespondFunc, _ slack.SlashCommand) error {
	ack()
	return respond(helpText)
}
