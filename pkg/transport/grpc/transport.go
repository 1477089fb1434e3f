// Package grpc provides the client connection used to reach remediation
// execution agents over gRPC.
package grpc

import (
	"context"
	"crypto/tls"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"

	"github.com/remedly/sdk/pkg/core"
	sdkerrors "github.com/remedly/sdk/pkg/errors"
)

// Config holds gRPC transport configuration.
type Config struct {
	// Address of the execution agent (host:port).
	Address string `yaml:"address" json:"address"`

	// APIKey is sent as bearer authorization metadata on every call.
	APIKey string `yaml:"api_key" json:"api_key"`

	// AgentID identifies this agent to the execution service.
	AgentID string `yaml:"agent_id" json:"agent_id"`

	// UseTLS enables transport security. CertFile optionally pins the CA.
	UseTLS             bool   `yaml:"use_tls" json:"use_tls"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify" json:"insecure_skip_verify"`
	CertFile           string `yaml:"cert_file" json:"cert_file"`

	// KeepAliveTime and KeepAliveTimeout tune connection liveness probing.
	KeepAliveTime    time.Duration `yaml:"keepalive_time" json:"keepalive_time"`
	KeepAliveTimeout time.Duration `yaml:"keepalive_timeout" json:"keepalive_timeout"`

	// MaxRecvMsgSize bounds responses; execution logs can be large.
	MaxRecvMsgSize int `yaml:"max_recv_msg_size" json:"max_recv_msg_size"`
	MaxSendMsgSize int `yaml:"max_send_msg_size" json:"max_send_msg_size"`

	// Logger receives connection lifecycle messages (optional).
	Logger core.Logger
}

// DefaultConfig returns the transport defaults.
func DefaultConfig() *Config {
	return &Config{
		Address:          "localhost:9090",
		UseTLS:           true,
		KeepAliveTime:    30 * time.Second,
		KeepAliveTimeout: 10 * time.Second,
		MaxRecvMsgSize:   16 << 20,
		MaxSendMsgSize:   16 << 20,
	}
}

// Transport manages one client connection to an execution agent. Calls made
// through Conn carry bearer authorization and agent identity metadata.
type Transport struct {
	mu     sync.RWMutex
	conn   *grpc.ClientConn
	config *Config
	logger core.Logger
}

// NewTransport creates an unconnected transport.
func NewTransport(cfg *Config) *Transport {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	defaults := DefaultConfig()
	if cfg.Address == "" {
		cfg.Address = defaults.Address
	}
	if cfg.KeepAliveTime <= 0 {
		cfg.KeepAliveTime = defaults.KeepAliveTime
	}
	if cfg.KeepAliveTimeout <= 0 {
		cfg.KeepAliveTimeout = defaults.KeepAliveTimeout
	}
	if cfg.MaxRecvMsgSize <= 0 {
		cfg.MaxRecvMsgSize = defaults.MaxRecvMsgSize
	}
	if cfg.MaxSendMsgSize <= 0 {
		cfg.MaxSendMsgSize = defaults.MaxSendMsgSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = core.NewDefaultLogger("grpc", core.LogLevelInfo)
	}
	return &Transport{config: cfg, logger: logger}
}

// Connect creates the client connection. The connection itself is lazy;
// the first RPC dials. Calling Connect on a connected transport is a no-op.
func (t *Transport) Connect(ctx context.Context) error {
	const op = "grpc.Connect"

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return sdkerrors.E(sdkerrors.KindTimeout, op, "connect canceled", err)
	}

	creds, err := t.credentials()
	if err != nil {
		return sdkerrors.E(sdkerrors.KindInvalidInput, op, "load credentials", err)
	}

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(t.config.MaxRecvMsgSize),
			grpc.MaxCallSendMsgSize(t.config.MaxSendMsgSize),
		),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                t.config.KeepAliveTime,
			Timeout:             t.config.KeepAliveTimeout,
			PermitWithoutStream: true,
		}),
		grpc.WithUnaryInterceptor(t.authInterceptor()),
	}

	conn, err := grpc.NewClient(t.config.Address, opts...)
	if err != nil {
		return sdkerrors.E(sdkerrors.KindNetwork, op, "create client for "+t.config.Address, err)
	}
	t.conn = conn

	t.logger.Debug("execution agent transport ready: %s (tls: %v)", t.config.Address, t.config.UseTLS)
	return nil
}

func (t *Transport) credentials() (credentials.TransportCredentials, error) {
	if !t.config.UseTLS {
		return insecure.NewCredentials(), nil
	}
	if t.config.CertFile != "" {
		return credentials.NewClientTLSFromFile(t.config.CertFile, "")
	}
	return credentials.NewTLS(&tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: t.config.InsecureSkipVerify,
	}), nil
}

// Close tears down the connection. Safe to call on an unconnected transport.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	t.logger.Debug("execution agent transport closed")
	return err
}

// Conn returns the underlying connection, or nil before Connect.
func (t *Transport) Conn() *grpc.ClientConn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.conn
}

// IsConnected reports whether Connect has been called without a Close since.
func (t *Transport) IsConnected() bool {
	return t.Conn() != nil
}

func (t *Transport) authInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any,
		cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		md := metadata.New(map[string]string{
			"authorization": "Bearer " + t.config.APIKey,
		})
		if t.config.AgentID != "" {
			md.Set("x-agent-id", t.config.AgentID)
		}
		return invoker(metadata.NewOutgoingContext(ctx, md), method, req, reply, cc, opts...)
	}
}
