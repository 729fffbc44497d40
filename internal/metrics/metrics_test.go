package metrics

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Sessions(t *testing.T) {
	c := New()

	c.SessionOpened()
	c.SessionOpened()
	assert.Equal(t, int64(2), c.ActiveSessions())
	assert.Equal(t, int64(2), c.TotalSessions())

	c.SessionClosed()
	assert.Equal(t, int64(1), c.ActiveSessions())
	assert.Equal(t, int64(2), c.TotalSessions(), "total never decreases")

	c.SessionRejected()
	assert.Equal(t, int64(1), c.RejectedSessions())
}

func TestCollector_Bytes(t *testing.T) {
	c := New()

	c.BytesReceived(1024)
	c.BytesSent(512)
	c.BytesReceived(100)

	assert.Equal(t, int64(1124), c.TotalBytesIn())
	assert.Equal(t, int64(512), c.TotalBytesOut())
}

func TestCollector_Requests(t *testing.T) {
	c := New()

	c.Login(true)
	c.Login(false)
	c.Login(false)
	c.CommandResolved()
	c.Dispatched()
	c.Dispatched()
	c.IdleExpired()

	ok, failed := c.Logins()
	assert.Equal(t, int64(1), ok)
	assert.Equal(t, int64(2), failed)
	assert.Equal(t, int64(1), c.CommandsResolved())
	assert.Equal(t, int64(2), c.Dispatches())
	assert.Equal(t, int64(1), c.IdleExpiries())
}

func TestCollector_Errors(t *testing.T) {
	c := New()

	c.RecordError("read reset")
	c.RecordError("actuator failed")

	assert.Equal(t, int64(2), c.ErrorCount())
	snap := c.Snapshot()
	assert.Equal(t, "actuator failed", snap.LastErrorMessage)
	assert.NotEmpty(t, snap.LastError)
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector

	assert.NotPanics(t, func() {
		c.SessionOpened()
		c.SessionClosed()
		c.SessionRejected()
		c.BytesReceived(10)
		c.BytesSent(10)
		c.Login(true)
		c.CommandResolved()
		c.Dispatched()
		c.IdleExpired()
		c.RecordError("x")
	})
	assert.Zero(t, c.ActiveSessions())
	assert.Zero(t, c.TotalBytesIn())
	assert.Equal(t, Snapshot{}, c.Snapshot())
}

func TestCollector_JSON(t *testing.T) {
	c := New()
	c.SessionOpened()
	c.BytesReceived(7)

	var snap Snapshot
	require.NoError(t, json.Unmarshal([]byte(c.JSON()), &snap))
	assert.Equal(t, int64(1), snap.SessionsActive)
	assert.Equal(t, int64(7), snap.BytesIn)
	assert.Empty(t, snap.LastErrorMessage)
}

func TestCollector_Concurrent(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.SessionOpened()
			c.BytesReceived(1)
			c.SessionClosed()
		}()
	}
	wg.Wait()

	assert.Zero(t, c.ActiveSessions())
	assert.Equal(t, int64(50), c.TotalSessions())
	assert.Equal(t, int64(50), c.TotalBytesIn())
}

func TestExporter_Gather(t *testing.T) {
	c := New()
	c.SessionOpened()
	c.Login(false)
	c.BytesSent(42)

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(NewExporter(c)))

	families, err := reg.Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			for _, lp := range m.GetLabel() {
				key += "{" + lp.GetValue() + "}"
			}
			switch {
			case m.GetGauge() != nil:
				values[key] = m.GetGauge().GetValue()
			case m.GetCounter() != nil:
				values[key] = m.GetCounter().GetValue()
			}
		}
	}

	assert.Equal(t, 1.0, values["keyagent_sessions_active"])
	assert.Equal(t, 1.0, values["keyagent_sessions_opened_total"])
	assert.Equal(t, 1.0, values["keyagent_auth_logins_total{failed}"])
	assert.Equal(t, 0.0, values["keyagent_auth_logins_total{ok}"])
	assert.Equal(t, 42.0, values["keyagent_io_bytes_total{out}"])
}

func TestHandler(t *testing.T) {
	c := New()
	c.Dispatched()

	srv := httptest.NewServer(Handler(c))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "keyagent_actuator_dispatches_total 1"))

	resp, err = http.Get(srv.URL + "/metrics.json")
	require.NoError(t, err)
	defer resp.Body.Close()
	var snap Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, int64(1), snap.Dispatches)
}
