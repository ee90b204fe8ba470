package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/KevinKickass/dcscontrol/internal/dcs"
	"github.com/KevinKickass/dcscontrol/internal/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveDispatch(t *testing.T) {
	m := New()
	m.ObserveDispatch("acme", "ping", "socket", types.Success, 15*time.Millisecond)
	m.ObserveDispatch("acme", "ping", "socket", types.Success, 20*time.Millisecond)
	m.ObserveDispatch("acme", "ping", "", types.InvalidCommand, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.dispatchTotal.WithLabelValues("acme", "ping", "socket", "OK000")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dispatchTotal.WithLabelValues("acme", "ping", "none", "CM001")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.dispatchDuration))
}

func TestObserveLoad(t *testing.T) {
	m := New()
	m.ObserveLoad(&dcs.LoadResult{
		Conflicts: []dcs.PortConflict{{Transport: "tcp", Port: 31000, Owner: "a", Claimant: "b"}},
		Files:     []string{"/etc/dcs/root.yaml", "/etc/dcs/more.yaml"},
	}, 3)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.profiles))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.portConflicts))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.configFiles))
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.ObserveDispatch("acme", "ping", "sms", types.Queued, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `dcs_dispatch_total{command="ping",result="OK001",server="acme",transport="sms"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
