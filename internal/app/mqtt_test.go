package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/dyno_computer/internal/dyno"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

// startBroker runs an in-process broker and returns its URL.
func startBroker(t *testing.T) string {
	t.Helper()

	server := mochi.New(nil)
	require.NoError(t, server.AddHook(new(auth.AllowHook), nil))

	addr := freeAddr(t)
	require.NoError(t, server.AddListener(listeners.NewTCP(listeners.Config{
		Type:    "tcp",
		ID:      "t1",
		Address: addr,
	})))
	require.NoError(t, server.Serve())
	t.Cleanup(func() { server.Close() })

	return "tcp://" + addr
}

type fixedPoller struct {
	mu   sync.Mutex
	snap dyno.Snapshot
}

func (f *fixedPoller) Poll() dyno.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestMQTTPublishAndConsole(t *testing.T) {
	broker := startBroker(t)
	snap := dyno.Snapshot{RPM: 6000, Speed: 67.86, Torque: 0.81, Power: 507.7}

	pubClient, err := ConnectMQTT(broker, "", "producer")
	require.NoError(t, err)
	t.Cleanup(func() { pubClient.Disconnect(50) })

	subClient, err := ConnectMQTT(broker, "test-subscriber", "test")
	require.NoError(t, err)
	t.Cleanup(func() { subClient.Disconnect(50) })

	received := make(chan dyno.Snapshot, 16)
	token := subClient.Subscribe("dyno/metrics", 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s dyno.Snapshot
		if json.Unmarshal(msg.Payload(), &s) == nil {
			select {
			case received <- s:
			default:
			}
		}
	})
	require.True(t, token.WaitTimeout(time.Second))
	require.NoError(t, token.Error())

	consoleClient, err := ConnectMQTT(broker, "", "console")
	require.NoError(t, err)
	t.Cleanup(func() { consoleClient.Disconnect(50) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &syncBuffer{}
	consoleDone := make(chan error, 1)
	go func() { consoleDone <- RunConsoleMQTT(ctx, consoleClient, "dyno/metrics", out) }()

	src := &fixedPoller{snap: snap}
	pubDone := make(chan error, 1)
	go func() { pubDone <- RunMQTTPublisher(ctx, pubClient, src, "dyno/metrics", 20*time.Millisecond) }()

	select {
	case got := <-received:
		assert.Equal(t, snap, got)
	case <-time.After(3 * time.Second):
		t.Fatal("no reading published")
	}

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), FormatSnapshot(snap))
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-pubDone)
	assert.NoError(t, <-consoleDone)
}

func TestMQTTReadingsExpire(t *testing.T) {
	broker := startBroker(t)

	client, err := ConnectMQTT(broker, "", "display")
	require.NoError(t, err)
	t.Cleanup(func() { client.Disconnect(50) })

	src, err := MQTTReadings(client, "dyno/metrics", 200*time.Millisecond)
	require.NoError(t, err)

	_, ok := src()
	assert.False(t, ok)

	payload, _ := json.Marshal(dyno.Snapshot{RPM: 1200})
	client.Publish("dyno/metrics", 0, false, payload).Wait()

	require.Eventually(t, func() bool {
		s, ok := src()
		return ok && s.RPM == 1200
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		_, ok := src()
		return !ok
	}, 2*time.Second, 20*time.Millisecond)
}

func TestConnectMQTTUnreachable(t *testing.T) {
	t.Parallel()

	_, err := ConnectMQTT(fmt.Sprintf("tcp://%s", freeAddr(t)), "", "producer")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mqtt connect")
}

func TestFormatSnapshot(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		"[DYNO]  RPM= 6000.0  SPEED= 67.86 km/h  TORQUE= 0.81 Nm  POWER= 507.7 W",
		FormatSnapshot(dyno.Snapshot{RPM: 6000, Speed: 67.86, Torque: 0.81, Power: 507.7}))
}
