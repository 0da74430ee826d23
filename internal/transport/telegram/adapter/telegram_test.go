package adapter

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	kit "shopbot/internal/transport"
	"shopbot/pkg/logx"
)

func TestNewRequiresToken(t *testing.T) {
	_, err := New(Config{Token: "  "}, logx.Nop())
	require.Error(t, err)

	a, err := New(Config{Token: "123:abc", Offline: true}, logx.Nop())
	require.NoError(t, err)
	require.NotNil(t, a)
}

func TestMessageUpdateMapsSender(t *testing.T) {
	req := require.New(t)

	up, ok := messageUpdate(&tele.Message{
		ID:     9,
		Text:   "/start",
		Chat:   &tele.Chat{ID: 100, Type: tele.ChatPrivate},
		Sender: &tele.User{ID: 7, Username: "alice", FirstName: "Alice"},
	})
	req.True(ok)
	req.Equal(kit.UpdateMessage, up.Kind)
	req.Equal(int64(100), up.Message.ChatID)
	req.Equal(int64(7), up.Message.FromID)
	req.Equal("Alice", up.Message.FromFirstName)
	req.Equal("/start", up.Message.Text)
	req.False(up.Message.IsGroup)

	up, ok = messageUpdate(&tele.Message{Chat: &tele.Chat{ID: -5, Type: tele.ChatSuperGroup}})
	req.True(ok)
	req.True(up.Message.IsGroup)
	req.Zero(up.Message.FromID)

	_, ok = messageUpdate(nil)
	req.False(ok)
}

func TestCallbackUpdate(t *testing.T) {
	up, ok := callbackUpdate(&tele.Callback{
		ID:      "cb1",
		Data:    "x",
		Sender:  &tele.User{ID: 3},
		Message: &tele.Message{ID: 4, Chat: &tele.Chat{ID: 5}},
	})
	require.True(t, ok)
	require.Equal(t, kit.Callback{ID: "cb1", FromID: 3, ChatID: 5, MessageID: 4, Data: "x"}, *up.Callback)

	_, ok = callbackUpdate(&tele.Callback{ID: "orphan"})
	require.False(t, ok)
}

func TestReplyMarkupWebAppButtons(t *testing.T) {
	req := require.New(t)

	req.Nil(replyMarkup(nil))
	rm := replyMarkup(&kit.Keyboard{
		Resize: true,
		Rows: [][]kit.Button{
			{{Text: "🛍 Open shop", WebAppURL: "https://shop.example.com"}},
			{},
			{{Text: "📢 Broadcast"}},
		},
	})
	req.True(rm.ResizeKeyboard)
	req.Len(rm.ReplyKeyboard, 2)
	req.Equal("https://shop.example.com", rm.ReplyKeyboard[0][0].WebApp.URL)
	req.Nil(rm.ReplyKeyboard[1][0].WebApp)

	so := sendOptions(&kit.SendOptions{ParseMode: "HTML", Keyboard: &kit.Keyboard{Rows: [][]kit.Button{{{Text: "a"}}}}}, 0, false)
	req.Nil(so.ReplyMarkup)
	req.Equal(tele.ParseMode("HTML"), so.ParseMode)
}

func TestMenuCommandsLimits(t *testing.T) {
	cmds := []kit.BotCommand{
		{Command: "", Description: "skipped"},
		{Command: "start"},
		{Command: "help", Description: strings.Repeat("d", 300)},
	}
	for i := 0; i < 120; i++ {
		cmds = append(cmds, kit.BotCommand{Command: "c", Description: "x"})
	}
	out := menuCommands(cmds)
	require.Len(t, out, 100)
	require.Equal(t, "start", out[0].Description)
	require.LessOrEqual(t, len([]rune(out[1].Description)), 256)

	require.Equal(t, menuHash(out), menuHash(menuCommands(cmds)))
	require.NotEqual(t, menuHash(out), menuHash(out[:1]))
}

func TestClientTimeoutsOutlastPoll(t *testing.T) {
	poll, client := clientTimeouts(Config{})
	require.Equal(t, 10*time.Second, poll)
	require.Equal(t, 25*time.Second, client)

	poll, client = clientTimeouts(Config{PollTimeout: 30 * time.Second, RequestTimeout: 5 * time.Second})
	require.Equal(t, 30*time.Second, poll)
	require.Equal(t, 35*time.Second, client)
}
