package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimslack/schedbot/pkg/bot"
)

const testSecret = "test-signing-secret"

// fakeDispatcher records dispatched payloads and acks immediately
type fakeDispatcher struct {
	commands     []slack.SlashCommand
	interactions []slack.InteractionCallback
}

func (f *fakeDispatcher) DispatchCommand(_ context.Context, cmd slack.SlashCommand, ack bot.AckFunc, _ bot.RespondFunc) {
	ack()
	f.commands = append(f.commands, cmd)
}

func (f *fakeDispatcher) DispatchInteraction(_ context.Context, callback slack.InteractionCallback, ack bot.AckFunc) {
	ack()
	f.interactions = append(f.interactions, callback)
}

func testServer(dispatcher Dispatcher) *Server {
	return New(dispatcher, Config{
		Listen:        ":0",
		SigningSecret: testSecret,
		Version:       "test",
	})
}

// signedRequest builds a request carrying a valid Slack signature
func signedRequest(t *testing.T, contentType, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/slack/events", strings.NewReader(body))
	req.Header.Set("Content-Type", contentType)

	ts := fmt.Sprintf("%d", time.Now().Unix())
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte("v0:" + ts + ":" + body))

	req.Header.Set("X-Slack-Request-Timestamp", ts)
	req.Header.Set("X-Slack-Signature", "v0="+hex.EncodeToString(mac.Sum(nil)))
	return req
}

func TestServer_Health(t *testing.T) {
	srv := testServer(&fakeDispatcher{})

	req := httptest.NewRequest(http.MethodGet, "/health", http.NoBody)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "healthy", "service": "nim-slack-bot"}`, rec.Body.String())
}

func TestServer_SlackEvents_SlashCommand(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	srv := testServer(dispatcher)

	form := url.Values{}
	form.Set("command", "/schedule")
	form.Set("text", "plan my tuesday")
	form.Set("user_id", "U1")
	form.Set("channel_id", "C1")
	form.Set("response_url", "https://hooks.slack.test/respond")

	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, signedRequest(t, "application/x-www-form-urlencoded", form.Encode()))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, dispatcher.commands, 1)
	assert.Equal(t, "/schedule", dispatcher.commands[0].Command)
	assert.Equal(t, "plan my tuesday", dispatcher.commands[0].Text)
	assert.Equal(t, "U1", dispatcher.commands[0].UserID)
}

func TestServer_SlackEvents_Interaction(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	srv := testServer(dispatcher)

	payload := `{"type": "block_actions", "user": {"id": "U1"}, ` +
		`"actions": [{"type": "button", "block_id": "b1", "action_id": "complete_task"}]}`
	form := url.Values{}
	form.Set("payload", payload)

	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, signedRequest(t, "application/x-www-form-urlencoded", form.Encode()))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, dispatcher.interactions, 1)
	assert.Equal(t, slack.InteractionTypeBlockActions, dispatcher.interactions[0].Type)
}

func TestServer_SlackEvents_URLVerification(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	srv := testServer(dispatcher)

	body := `{"type": "url_verification", "challenge": "ch4ll3ng3"}`
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, signedRequest(t, "application/json", body))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"challenge": "ch4ll3ng3"}`, rec.Body.String())
	assert.Empty(t, dispatcher.commands)
	assert.Empty(t, dispatcher.interactions)
}

func TestServer_SlackEvents_InvalidSignature(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	srv := testServer(dispatcher)

	req := httptest.NewRequest(http.MethodPost, "/slack/events", strings.NewReader("command=%2Fschedule"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Slack-Request-Timestamp", fmt.Sprintf("%d", time.Now().Unix()))
	req.Header.Set("X-Slack-Signature", "v0=deadbeef")

	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, dispatcher.commands)
}

func TestServer_SlackEvents_MissingSignatureHeaders(t *testing.T) {
	srv := testServer(&fakeDispatcher{})

	req := httptest.NewRequest(http.MethodPost, "/slack/events", strings.NewReader("command=%2Fschedule"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	// no timestamp/signature headers at all is a malformed request
	assert.Contains(t, []int{http.StatusBadRequest, http.StatusUnauthorized}, rec.Code)
}

func TestServer_SlackEvents_AckEnsuredWithoutDelegateAck(t *testing.T) {
	// dispatcher that never acks, the server must still answer 200
	srv := testServer(&silentDispatcher{})

	form := url.Values{}
	form.Set("command", "/schedule")
	form.Set("user_id", "U1")

	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, signedRequest(t, "application/x-www-form-urlencoded", form.Encode()))

	assert.Equal(t, http.StatusOK, rec.Code)
}

type silentDispatcher struct{}

func (s *silentDispatcher) DispatchCommand(context.Context, slack.SlashCommand, bot.AckFunc, bot.RespondFunc) {
}
func (s *silentDispatcher) DispatchInteraction(context.Context, slack.InteractionCallback, bot.AckFunc) {
}

func TestServer_RunStartStop(t *testing.T) {
	srv := New(&fakeDispatcher{}, Config{
		Listen:        "127.0.0.1:0",
		SigningSecret: testSecret,
		Version:       "test",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := srv.Run(ctx)
	require.NoError(t, err)
}
