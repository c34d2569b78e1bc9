package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/odeflow/internal/conf"
	"github.com/tphakala/odeflow/internal/errors"
	"github.com/tphakala/odeflow/internal/ode"
)

type published struct {
	topic   string
	payload string
	retain  bool
}

type fakeClient struct {
	mu         sync.Mutex
	connected  bool
	connectErr error
	connects   int
	messages   []published
}

func (f *fakeClient) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) Publish(ctx context.Context, topic, payload string) error {
	return f.PublishWithRetain(ctx, topic, payload, false)
}

func (f *fakeClient) PublishWithRetain(_ context.Context, topic, payload string, retain bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, published{topic, payload, retain})
	return nil
}

func (f *fakeClient) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

func samplePayload() ode.Payload {
	return ode.Payload{
		ID:          "occ-1",
		EventID:     7,
		Trigger:     "people",
		Kind:        ode.KindOccurrence,
		SourceID:    2,
		FrameNumber: 41,
		Count:       1,
		Timestamp:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Object:      &ode.ObjectPayload{ClassID: 0, Label: "person", Confidence: 0.91},
	}
}

func TestSink_PublishesRenderedTopic(t *testing.T) {
	t.Parallel()
	fc := &fakeClient{}
	s := NewSink(fc, conf.MQTTSettings{Topic: "cams/{{source_id}}/{{trigger}}", Retain: true})
	assert.Equal(t, "mqtt", s.Name())

	require.NoError(t, s.Deliver(t.Context(), samplePayload()))
	require.NoError(t, s.Deliver(t.Context(), samplePayload()))

	assert.Equal(t, 1, fc.connects, "connect only when disconnected")
	require.Len(t, fc.messages, 2)
	msg := fc.messages[0]
	assert.Equal(t, "cams/2/people", msg.topic)
	assert.True(t, msg.retain)

	var got ode.Payload
	require.NoError(t, json.Unmarshal([]byte(msg.payload), &got))
	assert.Equal(t, "people", got.Trigger)
	assert.Equal(t, uint64(41), got.FrameNumber)
	require.NotNil(t, got.Object)
	assert.Equal(t, "person", got.Object.Label)
}

func TestSink_DefaultTopic(t *testing.T) {
	t.Parallel()
	fc := &fakeClient{connected: true}
	s := NewSink(fc, conf.MQTTSettings{})

	require.NoError(t, s.Deliver(t.Context(), samplePayload()))
	require.Len(t, fc.messages, 1)
	assert.Equal(t, "odeflow/people", fc.messages[0].topic)

	s.Close()
	assert.False(t, fc.IsConnected())
}

func TestSink_ConnectFailure(t *testing.T) {
	t.Parallel()
	fc := &fakeClient{connectErr: errors.NewStd("refused")}
	s := NewSink(fc, conf.MQTTSettings{})

	err := s.Deliver(t.Context(), samplePayload())
	require.Error(t, err)
	assert.Empty(t, fc.messages)
}

func TestNewClient_RequiresBroker(t *testing.T) {
	t.Parallel()
	_, err := NewClient(conf.MQTTSettings{}, nil)
	require.Error(t, err)
	assert.Equal(t, errors.CategoryConfiguration, errors.CategoryOf(err))

	c, err := NewClient(conf.MQTTSettings{Broker: "tcp://127.0.0.1:1"}, nil)
	require.NoError(t, err)
	assert.False(t, c.IsConnected())
	assert.Error(t, c.Publish(t.Context(), "t", "p"), "publish before connect")
	c.Disconnect()
}
