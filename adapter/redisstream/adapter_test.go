package redisstream

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trickstertwo/xmlstream"
)

func redisAddr(t *testing.T) string {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set; skipping Redis Streams integration test")
	}
	return addr
}

func TestConnectorConfigValidation(t *testing.T) {
	_, err := NewConnector(Config{})
	assert.Error(t, err)

	_, err = NewConnector(Config{Inbound: "in"})
	assert.Error(t, err)

	c, err := NewConnector(Config{Inbound: "in", Outbound: "out"})
	require.NoError(t, err)
	assert.Equal(t, 128, c.cfg.Batch)
	assert.Equal(t, 5*time.Second, c.cfg.Block)
}

func TestConfigFromMapDefaults(t *testing.T) {
	cfg := ConfigFromMap(map[string]any{
		"addr":     "redis.internal:6380",
		"inbound":  "a",
		"outbound": "b",
		"block":    "250ms",
		"batch":    16,
	})

	assert.Equal(t, "redis.internal:6380", cfg.Addr)
	assert.Equal(t, "a", cfg.Inbound)
	assert.Equal(t, "b", cfg.Outbound)
	assert.Equal(t, 250*time.Millisecond, cfg.Block)
	assert.Equal(t, 16, cfg.Batch)
	assert.False(t, cfg.TLS)
}

func TestPingPongOverRedisStreams(t *testing.T) {
	addr := redisAddr(t)
	suffix := uuid.NewString()
	keyAB := "xmlstream:test:" + suffix + ":ab"
	keyBA := "xmlstream:test:" + suffix + ":ba"

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	serverFactory := xmlstream.NewFactoryFor(func() xmlstream.Protocol {
		s := xmlstream.New()
		s.AddObserver(xmlstream.StreamStartEvent, func(any) {
			_ = s.Send([]byte("<session>"))
		})
		s.AddObserver("ping", func(payload any) {
			ping := payload.(*xmlstream.Element)
			id, _ := ping.Attr("id")
			_ = s.SendElement(xmlstream.NewElement("pong", xmlstream.Attr{Name: "id", Value: id}))
		})
		return s
	})

	pongs := make(chan *xmlstream.Element, 1)
	clientFactory := xmlstream.NewFactoryFor(func() xmlstream.Protocol {
		s := xmlstream.New()
		s.AddObserver(xmlstream.StreamStartEvent, func(any) {
			_ = s.SendElement(xmlstream.NewElement("ping", xmlstream.Attr{Name: "id", Value: "9"}))
		})
		s.AddObserver("pong", func(payload any) {
			pongs <- payload.(*xmlstream.Element)
		})
		return s
	})

	server, err := xmlstream.Open(ctx, ConnectorName, map[string]any{
		"addr": addr, "inbound": keyAB, "outbound": keyBA, "block": "250ms",
	}, serverFactory)
	require.NoError(t, err)
	t.Cleanup(func() { server.(*xmlstream.Stream).ConnectionLost(nil) })

	client, err := xmlstream.Open(ctx, ConnectorName, map[string]any{
		"addr": addr, "inbound": keyBA, "outbound": keyAB, "block": "250ms",
	}, clientFactory)
	require.NoError(t, err)
	t.Cleanup(func() { client.(*xmlstream.Stream).ConnectionLost(nil) })

	// Both pumps read new entries only; give them a beat to park on XREAD
	// before the opening bytes hit the outbound key.
	time.Sleep(500 * time.Millisecond)
	require.NoError(t, client.(*xmlstream.Stream).Send([]byte("<session>")))

	select {
	case pong := <-pongs:
		id, _ := pong.Attr("id")
		assert.Equal(t, "9", id)
	case <-ctx.Done():
		t.Fatal("timed out waiting for pong over Redis Streams")
	}
}
