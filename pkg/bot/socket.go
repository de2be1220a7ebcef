package bot

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
	"golang.org/x/sync/errgroup"
)

// Run serves in standalone mode: the Slack client owns the connection via
// socket mode and blocks until the context is cancelled. Requires an
// app-level token; without one the deployment must use bridged-HTTP mode.
func (r *Router) Run(ctx context.Context) error {
	if !r.slackCfg.SocketMode() {
		return errors.New("standalone mode requires SLACK_APP_TOKEN (socket mode)")
	}

	sm := socketmode.New(r.client)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := sm.RunContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("socket mode: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		r.pump(ctx, sm)
		return nil
	})

	return g.Wait()
}

// pump drains the socket-mode event channel and routes each event
func (r *Router) pump(ctx context.Context, sm *socketmode.Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sm.Events:
			if !ok {
				return
			}
			r.route(ctx, sm, evt)
		}
	}
}

func (r *Router) route(ctx context.Context, sm *socketmode.Client, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		log.Printf("[INFO] connecting to slack...")
	case socketmode.EventTypeConnected:
		log.Printf("[INFO] connected to slack")
	case socketmode.EventTypeConnectionError:
		log.Printf("[WARN] slack connection error, will retry")

	case socketmode.EventTypeSlashCommand:
		cmd, ok := evt.Data.(slack.SlashCommand)
		if !ok || evt.Request == nil {
			log.Printf("[WARN] malformed slash command event")
			return
		}
		req := *evt.Request
		ack := func(payload ...any) {
			if len(payload) > 0 {
				sm.Ack(req, payload[0])
				return
			}
			sm.Ack(req)
		}
		r.DispatchCommand(ctx, cmd, ack, r.responder(ctx, cmd.ChannelID))

	case socketmode.EventTypeInteractive:
		callback, ok := evt.Data.(slack.InteractionCallback)
		if !ok || evt.Request == nil {
			log.Printf("[WARN] malformed interactive event")
			return
		}
		req := *evt.Request
		ack := func(payload ...any) {
			if len(payload) > 0 {
				sm.Ack(req, payload[0])
				return
			}
			sm.Ack(req)
		}
		r.DispatchInteraction(ctx, callback, ack)

	default:
		log.Printf("[DEBUG] ignoring socket event %s", evt.Type)
	}
}

// responder posts replies into the originating channel
func (r *Router) responder(ctx context.Context, channelID string) RespondFunc {
	return func(text string) error {
		_, _, err := r.client.PostMessageContext(ctx, channelID, slack.MsgOptionText(text, false))
		if err != nil {
			return fmt.Errorf("post message to %s: %w", channelID, err)
		}
		return nil
	}
}
