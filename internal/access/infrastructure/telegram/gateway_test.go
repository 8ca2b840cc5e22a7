package telegram

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiCall struct {
	method string
	params url.Values
}

// newTestGateway points the bot client at a stub Bot API server and records
// every method it is asked to perform.
func newTestGateway(t *testing.T) (*Gateway, *[]apiCall) {
	t.Helper()

	calls := &[]apiCall{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		*calls = append(*calls, apiCall{method: method, params: r.Form})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	}))
	t.Cleanup(server.Close)

	bot := &tgbotapi.BotAPI{Token: "test-token", Client: server.Client(), Buffer: 100}
	bot.SetAPIEndpoint(server.URL + "/bot%s/%s")

	return &Gateway{bot: bot, chatID: -100123, logger: slog.Default()}, calls
}

func TestApproveJoinRequest(t *testing.T) {
	g, calls := newTestGateway(t)

	require.NoError(t, g.ApproveJoinRequest(context.Background(), 42))

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, "approveChatJoinRequest", call.method)
	assert.Equal(t, "-100123", call.params.Get("chat_id"))
	assert.Equal(t, "42", call.params.Get("user_id"))
}

func TestDeclineJoinRequest(t *testing.T) {
	g, calls := newTestGateway(t)

	require.NoError(t, g.DeclineJoinRequest(context.Background(), 42))

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, "declineChatJoinRequest", call.method)
	assert.Equal(t, "-100123", call.params.Get("chat_id"))
	assert.Equal(t, "42", call.params.Get("user_id"))
}

func TestRemoveMemberBansThenUnbans(t *testing.T) {
	g, calls := newTestGateway(t)

	require.NoError(t, g.RemoveMember(context.Background(), 42))

	require.Len(t, *calls, 2)
	assert.Equal(t, "banChatMember", (*calls)[0].method)
	assert.Equal(t, "unbanChatMember", (*calls)[1].method)
	assert.Equal(t, "true", (*calls)[1].params.Get("only_if_banned"))
}
