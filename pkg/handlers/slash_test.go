package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGenerator returns canned schedule text
type fakeGenerator struct {
	calls    int
	lastText string
	out      string
	err      error
}

func (f *fakeGenerator) Generate(_ context.Context, text string) (string, error) {
	f.calls++
	f.lastText = text
	return f.out, f.err
}

// respondRecorder captures responses sent back to the channel
type respondRecorder struct {
	messages []string
}

func (r *respondRecorder) respond(text string) error {
	r.messages = append(r.messages, text)
	return nil
}

func TestSlashCommandHandlers_HandleScheduleCommand(t *testing.T) {
	t.Run("forwards text and relays the completion", func(t *testing.T) {
		gen := &fakeGenerator{out: "09:00 standup\n10:00 deep work"}
		h := NewSlashCommandHandlers(gen, nil)

		rec := &respondRecorder{}
		acked := false
		err := h.HandleScheduleCommand(context.Background(),
			func(...any) { acked = true }, rec.respond,
			slack.SlashCommand{Command: "/schedule", Text: "plan my tuesday", UserID: "U1"})

		require.NoError(t, err)
		assert.True(t, acked)
		assert.Equal(t, 1, gen.calls)
		assert.Equal(t, "plan my tuesday", gen.lastText)
		require.Len(t, rec.messages, 1)
		assert.Equal(t, "09:00 standup\n10:00 deep work", rec.messages[0])
	})

	t.Run("empty request gets a usage hint, no inference call", func(t *testing.T) {
		gen := &fakeGenerator{}
		h := NewSlashCommandHandlers(gen, nil)

		rec := &respondRecorder{}
		err := h.HandleScheduleCommand(context.Background(), func(...any) {}, rec.respond,
			slack.SlashCommand{Command: "/schedule", Text: "   ", UserID: "U1"})

		require.NoError(t, err)
		assert.Zero(t, gen.calls)
		require.Len(t, rec.messages, 1)
		assert.Contains(t, rec.messages[0], "/schedule")
	})

	t.Run("generator failure apologizes and surfaces the error", func(t *testing.T) {
		gen := &fakeGenerator{err: errors.New("endpoint unreachable")}
		h := NewSlashCommandHandlers(gen, nil)

		rec := &respondRecorder{}
		err := h.HandleScheduleCommand(context.Background(), func(...any) {}, rec.respond,
			slack.SlashCommand{Command: "/schedule", Text: "plan my day", UserID: "U1"})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "endpoint unreachable")
		require.Len(t, rec.messages, 1)
		assert.Contains(t, rec.messages[0], "Sorry")
	})
}

func TestSlashCommandHandlers_HandleHelpCommand(t *testing.T) {
	h := NewSlashCommandHandlers(&fakeGenerator{}, nil)

	rec := &respondRecorder{}
	acked := false
	err := h.HandleHelpCommand(context.Background(), func(...any) { acked = true }, rec.respond,
		slack.SlashCommand{Command: "/schedule-help", UserID: "U1"})

	require.NoError(t, err)
	assert.True(t, acked)
	require.Len(t, rec.messages, 1)
	assert.Contains(t, rec.messages[0], "/schedule")
	assert.Contains(t, rec.messages[0], "/schedule-help")
}
