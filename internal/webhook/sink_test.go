package webhook

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/odeflow/internal/conf"
	"github.com/tphakala/odeflow/internal/errors"
	"github.com/tphakala/odeflow/internal/ode"
)

const hookURL = "https://hooks.example.com/odeflow"

func newMockedSink(t *testing.T, headers map[string]string) (*Sink, *httpmock.MockTransport) {
	t.Helper()
	mt := httpmock.NewMockTransport()
	s, err := New(conf.WebhookSettings{Enabled: true, URL: hookURL, Headers: headers},
		WithHTTPClient(&http.Client{Transport: mt}))
	require.NoError(t, err)
	return s, mt
}

func payload() ode.Payload {
	return ode.Payload{
		ID:          "occ-9",
		Trigger:     "loading-bay",
		Kind:        ode.KindRange,
		FrameNumber: 1200,
		Count:       4,
		Timestamp:   time.Date(2026, 5, 2, 8, 30, 0, 0, time.UTC),
	}
}

func TestSink_PostsJSON(t *testing.T) {
	t.Parallel()
	s, mt := newMockedSink(t, map[string]string{"Authorization": "Bearer secret"})
	assert.Equal(t, "webhook", s.Name())

	var got ode.Payload
	var auth, contentType string
	mt.RegisterResponder(http.MethodPost, hookURL, func(req *http.Request) (*http.Response, error) {
		auth = req.Header.Get("Authorization")
		contentType = req.Header.Get("Content-Type")
		if err := json.NewDecoder(req.Body).Decode(&got); err != nil {
			return httpmock.NewStringResponse(http.StatusBadRequest, err.Error()), nil
		}
		return httpmock.NewStringResponse(http.StatusNoContent, ""), nil
	})

	require.NoError(t, s.Deliver(t.Context(), payload()))

	assert.Equal(t, 1, mt.GetTotalCallCount())
	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, "loading-bay", got.Trigger)
	assert.Equal(t, ode.KindRange, got.Kind)
	assert.Equal(t, uint64(4), got.Count)
}

func TestSink_ErrorStatus(t *testing.T) {
	t.Parallel()
	s, mt := newMockedSink(t, nil)
	mt.RegisterResponder(http.MethodPost, hookURL,
		httpmock.NewStringResponder(http.StatusServiceUnavailable, "maintenance"))

	err := s.Deliver(t.Context(), payload())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")

	var ee *errors.EnhancedError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, errors.CategoryNetwork, ee.GetCategory())
	assert.Equal(t, "maintenance", ee.GetContext()["body"])
	assert.Equal(t, http.StatusServiceUnavailable, ee.GetContext()["status"])
}

func TestSink_TransportError(t *testing.T) {
	t.Parallel()
	s, mt := newMockedSink(t, nil)
	mt.RegisterResponder(http.MethodPost, hookURL,
		httpmock.NewErrorResponder(errors.NewStd("connection reset")))

	err := s.Deliver(t.Context(), payload())
	require.Error(t, err)
	assert.Equal(t, errors.CategoryNetwork, errors.CategoryOf(err))
}

func TestNew_RequiresURL(t *testing.T) {
	t.Parallel()
	_, err := New(conf.WebhookSettings{})
	require.Error(t, err)
	assert.Equal(t, errors.CategoryConfiguration, errors.CategoryOf(err))
}
