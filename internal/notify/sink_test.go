package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nicholas-fedor/shoutrrr/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/odeflow/internal/conf"
	"github.com/tphakala/odeflow/internal/errors"
	"github.com/tphakala/odeflow/internal/ode"
)

type sent struct {
	message string
	title   string
}

type fakeSender struct {
	mu    sync.Mutex
	sent  []sent
	errs  []error
	block chan struct{}
}

func (f *fakeSender) Send(message string, params *types.Params) []error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	title, _ := params.Title()
	f.sent = append(f.sent, sent{message, title})
	return f.errs
}

func settings() conf.NotifySettings {
	return conf.NotifySettings{
		Enabled:  true,
		Title:    "odeflow: {{trigger}}",
		Template: "{{label}} seen on source {{source_id}} ({{confidence}})",
	}
}

func payload() ode.Payload {
	return ode.Payload{
		Trigger:   "driveway",
		Kind:      ode.KindOccurrence,
		SourceID:  3,
		Timestamp: time.Now(),
		Object:    &ode.ObjectPayload{ClassID: 2, Label: "car", Confidence: 0.875},
	}
}

func TestSink_RendersTitleAndMessage(t *testing.T) {
	t.Parallel()
	f := &fakeSender{errs: []error{nil, nil}}
	s := NewWithSender(f, settings())
	assert.Equal(t, "notify", s.Name())

	require.NoError(t, s.Deliver(t.Context(), payload()))

	require.Len(t, f.sent, 1)
	assert.Equal(t, "odeflow: driveway", f.sent[0].title)
	assert.Equal(t, "car seen on source 3 (0.88)", f.sent[0].message)
}

func TestSink_ServiceErrors(t *testing.T) {
	t.Parallel()
	f := &fakeSender{errs: []error{nil, errors.NewStd("telegram: 401")}}
	s := NewWithSender(f, settings())

	err := s.Deliver(t.Context(), payload())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram: 401")
	assert.Equal(t, errors.CategoryNetwork, errors.CategoryOf(err))
}

func TestSink_DeliverHonorsContext(t *testing.T) {
	t.Parallel()
	f := &fakeSender{block: make(chan struct{})}
	t.Cleanup(func() { close(f.block) })
	s := NewWithSender(f, settings())

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	err := s.Deliver(ctx, payload())
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	_, err := New(conf.NotifySettings{})
	require.Error(t, err)

	_, err = New(conf.NotifySettings{URLs: []string{"nosuchservice://token@host"}})
	require.Error(t, err)
	assert.Equal(t, errors.CategoryConfiguration, errors.CategoryOf(err))

	s, err := New(conf.NotifySettings{URLs: []string{"logger://"}, Template: "{{trigger}}"})
	require.NoError(t, err)
	assert.NotNil(t, s)
}
