package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/swapbot/core/telegram"
	"github.com/m3rciful/swapbot/core/telegram/commands"
)

type textContext struct {
	tele.Context
	text  string
	store map[string]interface{}
}

func newText(text string) *textContext {
	return &textContext{text: text, store: map[string]interface{}{}}
}

func (c *textContext) Text() string                  { return c.text }
func (c *textContext) Sender() *tele.User            { return &tele.User{ID: 9} }
func (c *textContext) Chat() *tele.Chat              { return &tele.Chat{ID: 9} }
func (c *textContext) Update() tele.Update           { return tele.Update{ID: 1} }
func (c *textContext) Message() *tele.Message        { return &tele.Message{Text: c.text} }
func (c *textContext) Get(key string) interface{}    { return c.store[key] }
func (c *textContext) Set(key string, v interface{}) { c.store[key] = v }

type flowStub struct {
	active bool
	got    []string
}

func (f *flowStub) InProgress(int64) bool { return f.active }

func (f *flowStub) ManagerHandler(c tele.Context) error {
	f.got = append(f.got, c.Text())
	return nil
}

func textHandler(t *testing.T, flow Flow, reg *tg.Registry, unknown *[]string) tele.HandlerFunc {
	t.Helper()
	routes := TextRoutes(flow, reg, TextOptions{
		UnknownText: func(c tele.Context) error {
			*unknown = append(*unknown, c.Text())
			return nil
		},
	})
	require.Len(t, routes, 2)
	require.Equal(t, tele.OnText, routes[0].Endpoint)
	return routes[0].Handler
}

func TestTextRoutesPreferOpenFlow(t *testing.T) {
	reg := tg.NewRegistry()
	var ran []string
	require.NoError(t, reg.RegisterCommand("/wallet", commands.Command{
		Handler:     func(tele.Context) error { ran = append(ran, "wallet"); return nil },
		Description: "wallets",
		Aliases:     []string{"/wallets"},
	}))
	flow := &flowStub{active: true}
	var unknown []string
	h := textHandler(t, flow, reg, &unknown)

	require.NoError(t, h(newText("wallet")))
	assert.Equal(t, []string{"wallet"}, flow.got)
	assert.Empty(t, ran)

	flow.active = false
	require.NoError(t, h(newText("/wallets@swap_bot extra")))
	assert.Equal(t, []string{"wallet"}, ran)
}

func TestTextRoutesNeverRunAdminCommands(t *testing.T) {
	reg := tg.NewRegistry()
	ran := false
	require.NoError(t, reg.RegisterCommand("/vaultstatus", commands.Command{
		Handler:     func(tele.Context) error { ran = true; return nil },
		Description: "vault",
		AdminOnly:   true,
	}))
	var unknown []string
	h := textHandler(t, &flowStub{}, reg, &unknown)

	require.NoError(t, h(newText("vaultstatus")))
	assert.False(t, ran)
	assert.Equal(t, []string{"vaultstatus"}, unknown)
}

func TestCommandName(t *testing.T) {
	assert.Equal(t, "/cancelorder", commandName("  /cancelorder@bot 42"))
	assert.Empty(t, commandName("   "))
}
