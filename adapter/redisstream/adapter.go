package redisstream

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trickstertwo/xlog"
	"github.com/trickstertwo/xmlstream"
)

const ConnectorName = "redis-streams"

func init() {
	if err := xmlstream.RegisterConnector(ConnectorName, func(cfg map[string]any) (xmlstream.Connector, error) {
		return NewConnector(ConfigFromMap(cfg))
	}); err != nil {
		panic(fmt.Errorf("xmlstream/redisstream: failed to register connector %q: %w", ConnectorName, err))
	}
}

// Field constants (avoid typos/allocs)
const (
	fieldData = "data" // raw []byte chunk, binary-safe (no base64)
)

// Config for the Redis Streams connector.
type Config struct {
	// Client options
	Addr          string
	Username      string
	Password      string
	DB            int
	TLS           bool
	TLSServerName string

	// Inbound is the stream key this endpoint reads chunks from.
	Inbound string
	// Outbound is the stream key Write appends chunks to.
	Outbound string
	// Block bounds each blocking read (default: 5s).
	Block time.Duration
	// Batch is the max entries fetched per read (default: 128).
	Batch int
	// MaxLenApprox trims the outbound stream when > 0.
	MaxLenApprox int64
}

// ConfigFromMap safely converts cfg into Config with defaults.
func ConfigFromMap(cfg map[string]any) Config {
	getString := func(k, d string) string {
		if v, ok := cfg[k].(string); ok && v != "" {
			return v
		}
		return d
	}
	getInt := func(k string, d int) int {
		switch v := cfg[k].(type) {
		case int:
			return v
		case int32:
			return int(v)
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
		return d
	}
	getInt64 := func(k string, d int64) int64 {
		switch v := cfg[k].(type) {
		case int:
			return int64(v)
		case int32:
			return int64(v)
		case int64:
			return v
		case float64:
			return int64(v)
		}
		return d
	}
	getBool := func(k string, d bool) bool {
		if v, ok := cfg[k].(bool); ok {
			return v
		}
		return d
	}
	getDur := func(k string, d time.Duration) time.Duration {
		switch v := cfg[k].(type) {
		case time.Duration:
			return v
		case string:
			if p, err := time.ParseDuration(v); err == nil {
				return p
			}
		case float64:
			return time.Duration(v)
		}
		return d
	}

	return Config{
		Addr:          getString("addr", "127.0.0.1:6379"),
		Username:      getString("username", ""),
		Password:      getString("password", ""),
		DB:            getInt("db", 0),
		TLS:           getBool("tls", false),
		TLSServerName: getString("tls_server_name", ""),

		Inbound:      getString("inbound", ""),
		Outbound:     getString("outbound", ""),
		Block:        getDur("block", 5*time.Second),
		Batch:        getInt("batch", 128),
		MaxLenApprox: getInt64("max_len_approx", 0),
	}
}

// Connector establishes brokered connections over Redis Streams.
type Connector struct {
	cfg    Config
	logger *xlog.Logger
}

var _ xmlstream.Connector = (*Connector)(nil)

// NewConnector validates cfg and returns a connector.
func NewConnector(cfg Config) (*Connector, error) {
	if cfg.Inbound == "" || cfg.Outbound == "" {
		return nil, errors.New("xmlstream/redisstream: inbound and outbound stream keys must not be empty")
	}
	if cfg.Batch < 1 {
		cfg.Batch = 128
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	return &Connector{
		cfg:    cfg,
		logger: xlog.Default().With(xlog.Str("connector", ConnectorName)),
	}, nil
}

// Connect opens the Redis client, verifies it with a ping, fires
// ConnectionMade and starts the read pump from the inbound stream.
func (c *Connector) Connect(ctx context.Context, r xmlstream.Receiver) (xmlstream.Transport, error) {
	opts := &redis.Options{
		Addr:     c.cfg.Addr,
		Username: c.cfg.Username,
		Password: c.cfg.Password,
		DB:       c.cfg.DB,
	}
	if c.cfg.TLS {
		opts.TLSConfig = &tls.Config{
			MinVersion:    tls.VersionTLS12,
			ServerName:    c.cfg.TLSServerName,
			Renegotiation: tls.RenegotiateNever,
		}
	}
	client := redis.NewClient(opts)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("xmlstream/redisstream: ping: %w", err)
	}

	pumpCtx, stop := context.WithCancel(ctx)
	t := &Transport{
		client: client,
		out:    c.cfg.Outbound,
		maxLen: c.cfg.MaxLenApprox,
		stop:   stop,
	}
	r.ConnectionMade(t)
	go c.pump(pumpCtx, client, r)
	return t, nil
}

// pump blocking-reads the inbound stream and feeds chunks into r. New
// entries only: the read position starts at "$".
func (c *Connector) pump(ctx context.Context, client *redis.Client, r xmlstream.Receiver) {
	lastID := "$"
	for {
		if ctx.Err() != nil {
			r.ConnectionLost(nil)
			return
		}
		res, err := client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{c.cfg.Inbound, lastID},
			Count:   int64(c.cfg.Batch),
			Block:   c.cfg.Block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				// Block timeout with no entries; keep waiting.
				continue
			}
			if ctx.Err() != nil {
				r.ConnectionLost(nil)
				return
			}
			c.logger.Warn().Err(err).Msg("xmlstream/redisstream: read failed")
			r.ConnectionLost(err)
			return
		}
		for _, stream := range res {
			for _, msg := range stream.Messages {
				lastID = msg.ID
				switch v := msg.Values[fieldData].(type) {
				case []byte:
					r.DataReceived(v)
				case string:
					r.DataReceived([]byte(v))
				}
			}
		}
	}
}

// Transport appends written chunks to the outbound stream key.
type Transport struct {
	client *redis.Client
	out    string
	maxLen int64

	stop      context.CancelFunc
	closeOnce sync.Once
	closeErr  error
}

var _ xmlstream.Transport = (*Transport)(nil)

func (t *Transport) Write(p []byte) (int, error) {
	args := &redis.XAddArgs{
		Stream: t.out,
		ID:     "*",
		Values: map[string]any{fieldData: p},
	}
	if t.maxLen > 0 {
		args.MaxLen = t.maxLen
		args.Approx = true
	}
	if err := t.client.XAdd(context.Background(), args).Err(); err != nil {
		return 0, fmt.Errorf("xmlstream/redisstream: xadd: %w", err)
	}
	return len(p), nil
}

// Close stops the read pump and releases the client. Idempotent.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.stop()
		t.closeErr = t.client.Close()
	})
	return t.closeErr
}
