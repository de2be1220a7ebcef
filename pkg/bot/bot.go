// Package bot owns the Slack client and the command/event routing. It
// registers a fixed set of bindings at construction, passes every inbound
// event through a logging interceptor, and isolates delegate failures so
// one bad request never stops the serving loop.
package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/slack-go/slack"

	"github.com/nimslack/schedbot/pkg/config"
)

// trigger keys for the static binding table
const (
	CommandSchedule      = "/schedule"
	CommandHelp          = "/schedule-help"
	ActionModifySchedule = "modify_schedule"
	ActionCompleteTask   = "complete_task"
	ViewScheduleModal    = "schedule_modal"
)

// TriggerKind classifies a binding's inbound trigger
type TriggerKind string

// binding kinds
const (
	TriggerCommand TriggerKind = "command"
	TriggerAction  TriggerKind = "action"
	TriggerView    TriggerKind = "view"
)

// Binding associates a trigger key with a registered delegate
type Binding struct {
	Kind TriggerKind
	Key  string
}

// AckFunc acknowledges receipt of an inbound request. The platform
// enforces a short acknowledgment deadline, so delegates call it before
// doing any real work. An optional payload replaces the empty ack body.
type AckFunc func(payload ...any)

// RespondFunc posts a message back to the originating conversation
type RespondFunc func(text string) error

// SlashCommandHandler is the delegate interface for command bindings
type SlashCommandHandler interface {
	HandleScheduleCommand(ctx context.Context, ack AckFunc, respond RespondFunc, cmd slack.SlashCommand) error
	HandleHelpCommand(ctx context.Context, ack AckFunc, respond RespondFunc, cmd slack.SlashCommand) error
}

// InteractionHandler is the delegate interface for action and
// view-submission bindings
type InteractionHandler interface {
	HandleScheduleModification(ctx context.Context, ack AckFunc, client *slack.Client, callback slack.InteractionCallback) error
	HandleTaskCompletion(ctx context.Context, ack AckFunc, client *slack.Client, callback slack.InteractionCallback) error
	HandleScheduleModal(ctx context.Context, ack AckFunc, client *slack.Client, callback slack.InteractionCallback) error
}

type commandFunc func(ctx context.Context, ack AckFunc, respond RespondFunc, cmd slack.SlashCommand) error

type interactionFunc func(ctx context.Context, ack AckFunc, client *slack.Client, callback slack.InteractionCallback) error

// Router dispatches inbound Slack events to their bound delegates
type Router struct {
	client   *slack.Client
	slackCfg config.SlackSettings
	limiter  *Limiter

	commands map[string]commandFunc
	actions  map[string]interactionFunc
	views    map[string]interactionFunc
	bindings []Binding
}

// New builds the Slack client from credentials and registers the static
// binding table. The set of bindings never changes after construction.
func New(cfg *config.Settings, commands SlashCommandHandler, interactions InteractionHandler) *Router {
	opts := []slack.Option{}
	if cfg.Slack.SocketMode() {
		opts = append(opts, slack.OptionAppLevelToken(cfg.Slack.AppToken))
	}
	if cfg.Debug {
		opts = append(opts, slack.OptionDebug(true))
	}

	r := &Router{
		client:   slack.New(cfg.Slack.BotToken, opts...),
		slackCfg: cfg.Slack,
		limiter:  NewLimiter(cfg.RateLimit),
		commands: map[string]commandFunc{},
		actions:  map[string]interactionFunc{},
		views:    map[string]interactionFunc{},
	}

	r.registerCommand(CommandSchedule, commands.HandleScheduleCommand)
	r.registerCommand(CommandHelp, commands.HandleHelpCommand)
	r.registerAction(ActionModifySchedule, interactions.HandleScheduleModification)
	r.registerAction(ActionCompleteTask, interactions.HandleTaskCompletion)
	r.registerView(ViewScheduleModal, interactions.HandleScheduleModal)

	return r
}

func (r *Router) registerCommand(key string, fn commandFunc) {
	r.commands[key] = fn
	r.bindings = append(r.bindings, Binding{Kind: TriggerCommand, Key: key})
}

func (r *Router) registerAction(key string, fn interactionFunc) {
	r.actions[key] = fn
	r.bindings = append(r.bindings, Binding{Kind: TriggerAction, Key: key})
}

func (r *Router) registerView(key string, fn interactionFunc) {
	r.views[key] = fn
	r.bindings = append(r.bindings, Binding{Kind: TriggerView, Key: key})
}

// Bindings returns a copy of the registered binding table
func (r *Router) Bindings() []Binding {
	out := make([]Binding, len(r.bindings))
	copy(out, r.bindings)
	return out
}

// Binding looks up a registered binding by kind and trigger key
func (r *Router) Binding(kind TriggerKind, key string) (Binding, bool) {
	var ok bool
	switch kind {
	case TriggerCommand:
		_, ok = r.commands[key]
	case TriggerAction:
		_, ok = r.actions[key]
	case TriggerView:
		_, ok = r.views[key]
	}
	if !ok {
		return Binding{}, false
	}
	return Binding{Kind: kind, Key: key}, true
}

// Client returns the underlying Slack API client
func (r *Router) Client() *slack.Client { return r.client }

// DispatchCommand routes a slash command to its bound delegate. Unknown
// commands are acknowledged and dropped; rate-limited users get a polite
// note instead of a schedule.
func (r *Router) DispatchCommand(ctx context.Context, cmd slack.SlashCommand, ack AckFunc, respond RespondFunc) {
	r.logEvent("command " + cmd.Command)

	fn, ok := r.commands[cmd.Command]
	if !ok {
		log.Printf("[WARN] no binding for command %s", cmd.Command)
		ack()
		return
	}

	if !r.limiter.Allow(cmd.UserID) {
		log.Printf("[WARN] rate limited user %s on %s", cmd.UserID, cmd.Command)
		ack()
		if respond != nil {
			_ = respond("You're sending requests a little too fast. Please wait a moment and try again.")
		}
		return
	}

	r.safely(cmd, func() error { return fn(ctx, ack, respond, cmd) })
}

// DispatchInteraction routes block actions and view submissions to their
// bound delegates by action ID or view callback ID.
func (r *Router) DispatchInteraction(ctx context.Context, callback slack.InteractionCallback, ack AckFunc) {
	r.logEvent("interaction " + string(callback.Type))

	switch callback.Type {
	case slack.InteractionTypeBlockActions:
		if len(callback.ActionCallback.BlockActions) == 0 {
			log.Printf("[WARN] block actions payload without actions")
			ack()
			return
		}
		actionID := callback.ActionCallback.BlockActions[0].ActionID
		fn, ok := r.actions[actionID]
		if !ok {
			log.Printf("[WARN] no binding for action %s", actionID)
			ack()
			return
		}
		if !r.limiter.Allow(callback.User.ID) {
			log.Printf("[WARN] rate limited user %s on action %s", callback.User.ID, actionID)
			ack()
			return
		}
		r.safely(callback, func() error { return fn(ctx, ack, r.client, callback) })

	case slack.InteractionTypeViewSubmission:
		fn, ok := r.views[callback.View.CallbackID]
		if !ok {
			log.Printf("[WARN] no binding for view %s", callback.View.CallbackID)
			ack()
			return
		}
		if !r.limiter.Allow(callback.User.ID) {
			log.Printf("[WARN] rate limited user %s on view %s", callback.User.ID, callback.View.CallbackID)
			ack()
			return
		}
		r.safely(callback, func() error { return fn(ctx, ack, r.client, callback) })

	default:
		log.Printf("[DEBUG] ignoring interaction type %s", callback.Type)
		ack()
	}
}

// logEvent is the logging interceptor: record the event type and forward
func (r *Router) logEvent(eventType string) {
	log.Printf("[INFO] processing slack event: %s", eventType)
}

// safely runs a delegate under the global error handler: errors and panics
// are logged with the triggering payload and swallowed, so the process
// keeps serving subsequent events.
func (r *Router) safely(body any, fn func() error) {
	defer func() {
		if p := recover(); p != nil {
			r.handleError(fmt.Errorf("delegate panic: %v", p), body)
		}
	}()
	if err := fn(); err != nil {
		r.handleError(err, body)
	}
}

func (r *Router) handleError(err error, body any) {
	log.Printf("[ERROR] slack app error: %v", err)
	if raw, merr := json.Marshal(body); merr == nil {
		log.Printf("[ERROR] request body: %s", raw)
	}
}
