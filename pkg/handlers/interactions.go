package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"github.com/nimslack/schedbot/pkg/bot"
)

// block and action identifiers inside the schedule editing modal
const (
	modalInputBlockID  = "schedule_input"
	modalInputActionID = "schedule_text"
)

// InteractionHandlers handles button clicks and modal submissions
type InteractionHandlers struct {
	generator ScheduleGenerator
}

// NewInteractionHandlers creates interactive component delegates
func NewInteractionHandlers(generator ScheduleGenerator) *InteractionHandlers {
	return &InteractionHandlers{generator: generator}
}

// HandleScheduleModification opens the schedule editing modal, prefilled
// with the message the button was attached to.
func (h *InteractionHandlers) HandleScheduleModification(ctx context.Context, ack bot.AckFunc, client *slack.Client, callback slack.InteractionCallback) error {
	ack()

	modal := buildScheduleModal(callback.Channel.ID, callback.Message.Text)
	if _, err := client.OpenViewContext(ctx, callback.TriggerID, modal); err != nil {
		return fmt.Errorf("open schedule modal for %s: %w", callback.User.ID, err)
	}
	return nil
}

// HandleTaskCompletion marks the task message as done in place
func (h *InteractionHandlers) HandleTaskCompletion(ctx context.Context, ack bot.AckFunc, client *slack.Client, callback slack.InteractionCallback) error {
	ack()

	done := markCompleted(callback.Message.Text)
	_, _, _, err := client.UpdateMessageContext(ctx, callback.Channel.ID, callback.Message.Timestamp,
		slack.MsgOptionText(done, false))
	if err != nil {
		return fmt.Errorf("mark task completed in %s: %w", callback.Channel.ID, err)
	}
	return nil
}

// HandleScheduleModal regenerates the schedule from the edited modal text
// and posts it into the channel the modal was opened from.
func (h *InteractionHandlers) HandleScheduleModal(ctx context.Context, ack bot.AckFunc, client *slack.Client, callback slack.InteractionCallback) error {
	ack()

	text := modalInput(callback.View)
	if text == "" {
		return fmt.Errorf("schedule modal from %s submitted without input", callback.User.ID)
	}

	schedule, err := h.generator.Generate(ctx, text)
	if err != nil {
		return fmt.Errorf("schedule modal from %s: %w", callback.User.ID, err)
	}

	channelID := callback.View.PrivateMetadata
	if channelID == "" {
		return fmt.Errorf("schedule modal from %s has no target channel", callback.User.ID)
	}
	if _, _, err := client.PostMessageContext(ctx, channelID, slack.MsgOptionText(schedule, false)); err != nil {
		return fmt.Errorf("post modal schedule to %s: %w", channelID, err)
	}
	return nil
}

// buildScheduleModal constructs the schedule editing modal. The target
// channel travels in private metadata so the submission knows where to
// post the result.
func buildScheduleModal(channelID, initial string) slack.ModalViewRequest {
	input := slack.NewPlainTextInputBlockElement(
		slack.NewTextBlockObject(slack.PlainTextType, "Describe your schedule", false, false),
		modalInputActionID)
	input.Multiline = true
	if initial != "" {
		input.InitialValue = initial
	}

	return slack.ModalViewRequest{
		Type:            slack.VTModal,
		CallbackID:      bot.ViewScheduleModal,
		PrivateMetadata: channelID,
		Title:           slack.NewTextBlockObject(slack.PlainTextType, "Edit Schedule", false, false),
		Submit:          slack.NewTextBlockObject(slack.PlainTextType, "Save", false, false),
		Close:           slack.NewTextBlockObject(slack.PlainTextType, "Cancel", false, false),
		Blocks: slack.Blocks{BlockSet: []slack.Block{
			slack.NewInputBlock(modalInputBlockID,
				slack.NewTextBlockObject(slack.PlainTextType, "Schedule", false, false),
				nil, input),
		}},
	}
}

// modalInput extracts the edited text from the view submission state
func modalInput(view slack.View) string {
	if view.State == nil {
		return ""
	}
	block, ok := view.State.Values[modalInputBlockID]
	if !ok {
		return ""
	}
	return strings.TrimSpace(block[modalInputActionID].Value)
}

// markCompleted appends a completion mark unless one is already present
func markCompleted(text string) string {
	if strings.HasSuffix(text, ":white_check_mark:") {
		return text
	}
	return text + "  :white_check_mark:"
}
