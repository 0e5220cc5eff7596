package telegram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/swapbot/core/telegram/commands"
)

func nop(tele.Context) error { return nil }

func TestRegistryKeepsOrderAndResolvesAliases(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterCommand("/start", commands.Command{Handler: nop, Description: "start"}))
	require.NoError(t, r.RegisterCommand("/dca", commands.Command{Handler: nop, Description: "dca", Aliases: []string{"recurring"}}))
	require.NoError(t, r.RegisterCommand("/gas", commands.Command{Handler: nop, Description: "gas", Hidden: true}))
	require.NoError(t, r.RegisterCommand("/vaultstatus", commands.Command{Handler: nop, Description: "vault", AdminOnly: true}))

	assert.Equal(t, []tele.Command{
		{Text: "start", Description: "start"},
		{Text: "dca", Description: "dca"},
	}, r.ListCommands(true))
	assert.Len(t, r.ListCommands(false), 4)

	key, _, ok := r.LookupCommand("/recurring")
	require.True(t, ok)
	assert.Equal(t, "/dca", key)

	_, _, ok = r.LookupCommand("dca")
	assert.True(t, ok)
}

func TestRegistryRejectsConflicts(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterCommand("/wallet", commands.Command{Handler: nop, Description: "w", Aliases: []string{"/wallets"}}))

	assert.Error(t, r.RegisterCommand("/wallet", commands.Command{Handler: nop, Description: "again"}))
	assert.Error(t, r.RegisterCommand("/wallets", commands.Command{Handler: nop, Description: "alias clash"}))
	assert.Error(t, r.RegisterCommand("/w", commands.Command{Handler: nop, Description: "w", Aliases: []string{"wallet"}}))
	assert.Error(t, r.RegisterCommand("nope", commands.Command{Handler: nop, Description: "x"}))

	require.NoError(t, r.RegisterCallback("op_confirm", nop))
	assert.Error(t, r.RegisterCallback("op_confirm", nop))
	assert.Equal(t, []string{"op_confirm"}, r.ListCallbacks())
}
