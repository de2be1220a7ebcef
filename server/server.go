// Package server implements bridged-HTTP mode: an HTTP server that
// forwards Slack's webhook deliveries into the router instead of the
// Slack client owning its own connection. Used for deployments behind a
// load balancer where socket mode is not available.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/rest/logger"
	"github.com/go-pkgz/routegroup"
	"github.com/slack-go/slack"

	"github.com/nimslack/schedbot/pkg/bot"
)

// ServiceName is reported by the health endpoint
const ServiceName = "nim-slack-bot"

// Dispatcher routes parsed Slack payloads to their bound delegates,
// implemented by bot.Router.
type Dispatcher interface {
	DispatchCommand(ctx context.Context, cmd slack.SlashCommand, ack bot.AckFunc, respond bot.RespondFunc)
	DispatchInteraction(ctx context.Context, callback slack.InteractionCallback, ack bot.AckFunc)
}

// Config holds bridged-HTTP server settings
type Config struct {
	Listen        string
	SigningSecret string
	Version       string
	Debug         bool
	Timeout       time.Duration
}

// Server represents the HTTP server instance
type Server struct {
	dispatcher Dispatcher
	cfg        Config

	lock       sync.Mutex
	httpServer *http.Server
	router     *routegroup.Bundle
}

// New initializes a new server instance
func New(dispatcher Dispatcher, cfg Config) *Server {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	s := &Server{
		dispatcher: dispatcher,
		cfg:        cfg,
		router:     routegroup.New(http.NewServeMux()),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Run starts the HTTP server and handles graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	log.Printf("[INFO] starting server on %s", s.cfg.Listen)

	s.lock.Lock()
	s.httpServer = &http.Server{
		Addr:         s.cfg.Listen,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Timeout,
		WriteTimeout: s.cfg.Timeout,
	}
	s.lock.Unlock()

	go func() {
		<-ctx.Done()
		log.Printf("[INFO] shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] server shutdown error: %v", err)
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}

	return nil
}

// setupMiddleware configures standard middleware for the server
func (s *Server) setupMiddleware() {
	s.router.Use(rest.AppInfo(ServiceName, "nimslack", s.cfg.Version))
	s.router.Use(rest.Ping)

	if s.cfg.Debug {
		s.router.Use(logger.New(logger.Log(lgr.Default()), logger.Prefix("[DEBUG]")).Handler)
	}

	s.router.Use(rest.Recoverer(lgr.Default()))
	s.router.Use(rest.Throttle(100))
	s.router.Use(rest.SizeLimit(1024 * 1024)) // 1MB
}

// setupRoutes configures application routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("POST /slack/events", s.slackEventsHandler)
	s.router.HandleFunc("GET /health", s.healthHandler)
}

// healthHandler reports liveness for deployment platforms
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, r, http.StatusOK, map[string]string{"status": "healthy", "service": ServiceName})
}

// slackEventsHandler verifies the request signature and forwards the
// payload into the router. The HTTP response is the acknowledgment: the
// delegate's ack writes the status before any slower work happens.
func (s *Server) slackEventsHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		renderError(w, r, errors.New("read request body"), http.StatusBadRequest)
		return
	}

	verifier, err := slack.NewSecretsVerifier(r.Header, s.cfg.SigningSecret)
	if err != nil {
		renderError(w, r, errors.New("malformed signature headers"), http.StatusBadRequest)
		return
	}
	if _, err = verifier.Write(body); err != nil {
		renderError(w, r, errors.New("verify request"), http.StatusInternalServerError)
		return
	}
	if err = verifier.Ensure(); err != nil {
		log.Printf("[WARN] rejected request with invalid signature from %s", r.RemoteAddr)
		renderError(w, r, errors.New("invalid signature"), http.StatusUnauthorized)
		return
	}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		s.handleEventJSON(w, r, body)
		return
	}

	form, err := url.ParseQuery(string(body))
	if err != nil {
		renderError(w, r, errors.New("malformed form payload"), http.StatusBadRequest)
		return
	}

	ack := &httpAck{w: w}
	defer ack.ensure()

	if payload := form.Get("payload"); payload != "" {
		var callback slack.InteractionCallback
		if err := json.Unmarshal([]byte(payload), &callback); err != nil {
			renderError(w, r, errors.New("malformed interaction payload"), http.StatusBadRequest)
			return
		}
		s.dispatcher.DispatchInteraction(r.Context(), callback, ack.ack)
		return
	}

	r.Body = io.NopCloser(bytes.NewReader(body))
	cmd, err := slack.SlashCommandParse(r)
	if err != nil {
		renderError(w, r, errors.New("malformed slash command"), http.StatusBadRequest)
		return
	}
	s.dispatcher.DispatchCommand(r.Context(), cmd, ack.ack, responseURLResponder(r.Context(), cmd.ResponseURL))
}

// handleEventJSON answers Slack's URL verification handshake; other JSON
// event deliveries are acknowledged and dropped, the bot subscribes to
// commands and interactivity only.
func (s *Server) handleEventJSON(w http.ResponseWriter, r *http.Request, body []byte) {
	var probe struct {
		Type      string `json:"type"`
		Challenge string `json:"challenge"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		renderError(w, r, errors.New("malformed event payload"), http.StatusBadRequest)
		return
	}
	if probe.Type == "url_verification" {
		renderJSON(w, r, http.StatusOK, map[string]string{"challenge": probe.Challenge})
		return
	}
	w.WriteHeader(http.StatusOK)
}

// httpAck adapts the response writer to the router's ack contract. The
// first ack wins; ensure covers delegates that never ack.
type httpAck struct {
	w    http.ResponseWriter
	done bool
}

func (a *httpAck) ack(payload ...any) {
	if a.done {
		return
	}
	a.done = true
	if len(payload) > 0 {
		renderJSON(a.w, nil, http.StatusOK, payload[0])
		return
	}
	a.w.WriteHeader(http.StatusOK)
}

func (a *httpAck) ensure() {
	if !a.done {
		a.done = true
		a.w.WriteHeader(http.StatusOK)
	}
}

// responseURLResponder replies through the command's response URL
func responseURLResponder(ctx context.Context, responseURL string) bot.RespondFunc {
	return func(text string) error {
		msg := &slack.WebhookMessage{Text: text, ResponseType: slack.ResponseTypeInChannel}
		if err := slack.PostWebhookContext(ctx, responseURL, msg); err != nil {
			return fmt.Errorf("post to response url: %w", err)
		}
		return nil
	}
}

// renderJSON sends JSON response
func renderJSON(w http.ResponseWriter, _ *http.Request, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("[ERROR] can't encode response to JSON: %v", err)
		}
	}
}

// renderError sends error response as JSON
func renderError(w http.ResponseWriter, r *http.Request, err error, code int) {
	errMsg := "unknown error"
	if err != nil {
		errMsg = err.Error()
	}
	renderJSON(w, r, code, map[string]string{"error": errMsg})
}
