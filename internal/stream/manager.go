// =================================
// File: internal/stream/manager.go
// =================================
package stream

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/solwatch/solwatch/internal/telemetry"
)

const (
	maxRecvMsgSize = 64 * 1024 * 1024
	pingInterval   = 10 * time.Second
	reconnectDelay = 5 * time.Second
)

// AccountUpdate is one account change delivered by the stream,
// already demuxed from the wire envelope.
type AccountUpdate struct {
	Pubkey    solana.PublicKey
	Owner     solana.PublicKey
	Data      []byte
	Slot      uint64
	Lamports  uint64
	IsStartup bool
	Filters   []string
}

// Handler receives every account update on the consumer goroutine.
type Handler func(AccountUpdate)

// Callbacks report connection lifecycle transitions; any field may be
// nil.
type Callbacks struct {
	OnConnect    func()
	OnDisconnect func(error)
	OnError      func(error)
}

// ManagerConfig wires a Manager.
type ManagerConfig struct {
	Endpoint string
	Token    string
	// Owners maps a filter name to the program owners it subscribes
	// to. Updates carry the matching filter names back for demux.
	Owners    map[string][]solana.PublicKey
	Handler   Handler
	Callbacks Callbacks
	Metrics   *telemetry.Metrics
	Logger    *zap.Logger
}

// Manager maintains one geyser subscription over gRPC: it dials,
// subscribes with the owner filter set, pings every ten seconds and
// reconnects with a constant delay whenever the stream breaks.
// Dynamic per-pool filters survive reconnects.
type Manager struct {
	endpoint  string
	token     string
	owners    map[string][]solana.PublicKey
	handler   Handler
	callbacks Callbacks
	metrics   *telemetry.Metrics
	logger    *zap.Logger

	mu      sync.Mutex
	sendMu  sync.Mutex
	extra   map[string]*pb.SubscribeRequestFilterAccounts
	current pb.Geyser_SubscribeClient
	pingID  int32

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager builds an unstarted manager.
func NewManager(cfg ManagerConfig) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		endpoint:  cfg.Endpoint,
		token:     cfg.Token,
		owners:    cfg.Owners,
		handler:   cfg.Handler,
		callbacks: cfg.Callbacks,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger.Named("stream"),
		extra:     make(map[string]*pb.SubscribeRequestFilterAccounts),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the connect/consume loop.
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.run()
}

// Stop tears the stream down and waits for the loop to exit.
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) run() {
	defer m.wg.Done()

	operation := func() (struct{}, error) {
		err := m.connectAndConsume(m.ctx)
		if m.ctx.Err() != nil {
			return struct{}{}, nil
		}
		m.metrics.StreamReconnects.Inc()
		if m.callbacks.OnDisconnect != nil {
			m.callbacks.OnDisconnect(err)
		}
		m.logger.Warn("Stream disconnected, reconnecting",
			zap.Duration("delay", reconnectDelay),
			zap.Error(err))
		return struct{}{}, err
	}

	_, _ = backoff.Retry(m.ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(reconnectDelay)))
}

// connectAndConsume runs one full connection lifetime and returns the
// error that ended it.
func (m *Manager) connectAndConsume(ctx context.Context) error {
	conn, err := m.dial()
	if err != nil {
		return fmt.Errorf("dial %s: %w", m.endpoint, err)
	}
	defer conn.Close()

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if m.token != "" {
		streamCtx = metadata.AppendToOutgoingContext(streamCtx, "x-token", m.token)
	}

	client := pb.NewGeyserClient(conn)
	sub, err := client.Subscribe(streamCtx)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	if err := m.send(sub, m.subscribeRequest()); err != nil {
		return fmt.Errorf("send subscribe request: %w", err)
	}

	m.mu.Lock()
	m.current = sub
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.current = nil
		m.mu.Unlock()
	}()

	if m.callbacks.OnConnect != nil {
		m.callbacks.OnConnect()
	}
	m.logger.Info("Stream connected", zap.String("endpoint", m.endpoint))

	m.wg.Add(1)
	go m.pingLoop(streamCtx)

	for {
		update, err := sub.Recv()
		if err != nil {
			return fmt.Errorf("recv: %w", err)
		}
		m.dispatch(update)
	}
}

func (m *Manager) dial() (*grpc.ClientConn, error) {
	target := m.endpoint
	creds := grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{}))
	switch {
	case strings.HasPrefix(target, "http://"):
		target = strings.TrimPrefix(target, "http://")
		creds = grpc.WithTransportCredentials(insecure.NewCredentials())
	case strings.HasPrefix(target, "https://"):
		target = strings.TrimPrefix(target, "https://")
	}
	return grpc.NewClient(target,
		creds,
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(maxRecvMsgSize)))
}

// subscribeRequest assembles the full filter set; geyser replaces the
// subscription with each request, so static and dynamic filters are
// always sent together.
func (m *Manager) subscribeRequest() *pb.SubscribeRequest {
	commitment := pb.CommitmentLevel_CONFIRMED
	accounts := make(map[string]*pb.SubscribeRequestFilterAccounts)

	for name, owners := range m.owners {
		ownerStrs := make([]string, 0, len(owners))
		for _, owner := range owners {
			ownerStrs = append(ownerStrs, owner.String())
		}
		accounts[name] = &pb.SubscribeRequestFilterAccounts{Owner: ownerStrs}
	}

	m.mu.Lock()
	for name, filter := range m.extra {
		accounts[name] = filter
	}
	m.mu.Unlock()

	return &pb.SubscribeRequest{
		Accounts:   accounts,
		Commitment: &commitment,
	}
}

// resubscribe pushes the current filter set onto the live stream, if
// any; a dead stream picks the filters up on reconnect.
func (m *Manager) resubscribe() error {
	req := m.subscribeRequest()

	m.mu.Lock()
	sub := m.current
	m.mu.Unlock()
	if sub == nil {
		return nil
	}
	return m.send(sub, req)
}

// send serializes writes to the stream; gRPC permits only one
// in-flight SendMsg per stream.
func (m *Manager) send(sub pb.Geyser_SubscribeClient, req *pb.SubscribeRequest) error {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()
	return sub.Send(req)
}

// SubscribeVaults adds a named filter for a pool's two vault token
// accounts.
func (m *Manager) SubscribeVaults(pool, baseVault, quoteVault solana.PublicKey) error {
	name := "vault_" + shortKey(pool)
	m.mu.Lock()
	m.extra[name] = &pb.SubscribeRequestFilterAccounts{
		Account: []string{baseVault.String(), quoteVault.String()},
	}
	m.mu.Unlock()

	m.logger.Debug("Vault subscription added",
		zap.String("pool", pool.String()),
		zap.String("filter", name))
	return m.resubscribe()
}

// SubscribePool adds a named filter following a single pool account.
func (m *Manager) SubscribePool(pool solana.PublicKey) error {
	name := "position_" + shortKey(pool)
	m.mu.Lock()
	m.extra[name] = &pb.SubscribeRequestFilterAccounts{
		Account: []string{pool.String()},
	}
	m.mu.Unlock()

	m.logger.Debug("Pool subscription added",
		zap.String("pool", pool.String()),
		zap.String("filter", name))
	return m.resubscribe()
}

// UnsubscribePool drops a position filter added by SubscribePool.
func (m *Manager) UnsubscribePool(pool solana.PublicKey) error {
	m.mu.Lock()
	delete(m.extra, "position_"+shortKey(pool))
	m.mu.Unlock()
	return m.resubscribe()
}

func (m *Manager) pingLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			sub := m.current
			m.pingID++
			id := m.pingID
			m.mu.Unlock()
			if sub == nil {
				return
			}
			if err := m.send(sub, &pb.SubscribeRequest{
				Ping: &pb.SubscribeRequestPing{Id: id},
			}); err != nil {
				m.logger.Debug("Ping send failed", zap.Error(err))
				if m.callbacks.OnError != nil {
					m.callbacks.OnError(err)
				}
				return
			}
		}
	}
}

// dispatch demuxes one wire update; anything that is not an account
// change (pings, slot notices) is ignored.
func (m *Manager) dispatch(update *pb.SubscribeUpdate) {
	acc := update.GetAccount()
	if acc == nil || acc.Account == nil {
		return
	}
	info := acc.Account

	pubkey := solana.PublicKeyFromBytes(info.Pubkey)
	owner := solana.PublicKeyFromBytes(info.Owner)

	m.handler(AccountUpdate{
		Pubkey:    pubkey,
		Owner:     owner,
		Data:      info.Data,
		Slot:      acc.Slot,
		Lamports:  info.Lamports,
		IsStartup: acc.IsStartup,
		Filters:   update.Filters,
	})
}

// shortKey is the first eight base-58 characters, used for filter
// names.
func shortKey(key solana.PublicKey) string {
	s := key.String()
	if len(s) > 8 {
		return s[:8]
	}
	return s
}
