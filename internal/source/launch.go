package source

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"solana-round-selector/internal/solana"
)

// PumpProgramID is the bonding curve launchpad program.
const PumpProgramID = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"

const (
	defaultLaunchCapacity = 256
	createInstructionLog  = "Instruction: Create"
	txLookupTimeout       = 5 * time.Second
)

// LaunchFeed keeps the most recent token launches seen on-chain.
// Run consumes the log subscription; Recent is safe to call concurrently.
type LaunchFeed struct {
	ws        solana.WSClient
	rpc       solana.RPCClient
	programID string
	capacity  int
	logger    *zap.Logger

	mu    sync.RWMutex
	mints []string // oldest first
	seen  map[string]struct{}
}

// Compile-time interface check.
var _ RecentMints = (*LaunchFeed)(nil)

// NewLaunchFeed creates a launch feed over the launchpad program logs.
func NewLaunchFeed(ws solana.WSClient, rpc solana.RPCClient, capacity int, logger *zap.Logger) *LaunchFeed {
	if capacity <= 0 {
		capacity = defaultLaunchCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LaunchFeed{
		ws:        ws,
		rpc:       rpc,
		programID: PumpProgramID,
		capacity:  capacity,
		logger:    logger.Named("launch_feed"),
		seen:      make(map[string]struct{}),
	}
}

// Run subscribes to the launchpad logs and records created mints until ctx is
// done or the subscription closes.
func (f *LaunchFeed) Run(ctx context.Context) error {
	ch, err := f.ws.SubscribeLogs(ctx, solana.LogsFilter{Mentions: []string{f.programID}})
	if err != nil {
		return err
	}
	f.logger.Info("subscribed", zap.String("program", f.programID))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case notif, ok := <-ch:
			if !ok {
				return nil
			}
			if notif.Err != nil || !containsCreate(notif.Logs) {
				continue
			}
			f.handleCreate(ctx, notif.Signature)
		}
	}
}

func containsCreate(logs []string) bool {
	for _, l := range logs {
		if strings.Contains(l, createInstructionLog) {
			return true
		}
	}
	return false
}

func (f *LaunchFeed) handleCreate(ctx context.Context, signature string) {
	ctx, cancel := context.WithTimeout(ctx, txLookupTimeout)
	defer cancel()

	tx, err := f.rpc.GetTransaction(ctx, signature)
	if err != nil {
		f.logger.Debug("transaction lookup failed", zap.String("signature", signature), zap.Error(err))
		return
	}
	if tx == nil || tx.Message == nil {
		return
	}
	for _, key := range tx.Message.AccountKeys {
		if strings.HasSuffix(key, bondingCurveSuffix) {
			f.add(key)
		}
	}
}

func (f *LaunchFeed) add(mint string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.seen[mint]; ok {
		return
	}
	f.seen[mint] = struct{}{}
	f.mints = append(f.mints, mint)
	if len(f.mints) > f.capacity {
		evicted := f.mints[0]
		f.mints = f.mints[1:]
		delete(f.seen, evicted)
	}
}

// Recent returns up to limit launched mints, newest first.
func (f *LaunchFeed) Recent(limit int) []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	n := len(f.mints)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]string, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, f.mints[i])
	}
	return out
}
