package source

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-round-selector/internal/solana"
)

func TestLaunchFeed_RecordsCreatedMints(t *testing.T) {
	ws := &fakeWS{ch: make(chan solana.LogNotification, 4)}
	rpc := &fakeRPC{txs: map[string]*solana.Transaction{
		"sig1": {Message: &solana.TransactionMessage{AccountKeys: []string{"payer", "Firstpump", PumpProgramID}}},
		"sig2": {Message: &solana.TransactionMessage{AccountKeys: []string{"payer", "Secondpump"}}},
		"sig3": {Message: &solana.TransactionMessage{AccountKeys: []string{"Ignoredpump"}}},
	}}
	feed := NewLaunchFeed(ws, rpc, 10, nil)

	ws.ch <- solana.LogNotification{Signature: "sig1", Logs: []string{"Program log: Instruction: Create"}}
	ws.ch <- solana.LogNotification{Signature: "sig3", Logs: []string{"Program log: Instruction: Buy"}}
	ws.ch <- solana.LogNotification{Signature: "sig2", Logs: []string{"Program log: Instruction: Create"}}
	ws.ch <- solana.LogNotification{Signature: "sig1", Logs: []string{"Program log: Instruction: Create"}}
	close(ws.ch)

	require.NoError(t, feed.Run(context.Background()))

	assert.Equal(t, []string{PumpProgramID}, ws.filter.Mentions)
	assert.Equal(t, []string{"Secondpump", "Firstpump"}, feed.Recent(10))
	assert.Equal(t, []string{"Secondpump"}, feed.Recent(1))
}

func TestLaunchFeed_EvictsOldest(t *testing.T) {
	feed := NewLaunchFeed(nil, nil, 2, nil)

	feed.add("Apump")
	feed.add("Bpump")
	feed.add("Cpump")
	feed.add("Apump")

	assert.Equal(t, []string{"Apump", "Cpump"}, feed.Recent(0))
}

func TestLaunchFeed_StopsOnContext(t *testing.T) {
	ws := &fakeWS{ch: make(chan solana.LogNotification)}
	feed := NewLaunchFeed(ws, &fakeRPC{}, 0, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, feed.Run(ctx), context.DeadlineExceeded)
}
