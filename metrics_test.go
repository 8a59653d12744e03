package viewhost

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusCollector(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	factory := newStubFactory()
	factory.serve = func(instance *ViewInstance) func(http.ResponseWriter, *http.Request) {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == instance.ContextPath {
				w.WriteHeader(http.StatusOK)
			}
		}
	}
	l := newTestList(t, mapRegistry{}, factory, nil)
	l.AddFailsafeHandler(&stubHandler{name: "boom", serve: panicking("boom")})
	inst := newInstance(newDefinition("HIVE", "1.0.0", nil), "main")
	require.NoError(t, l.AddViewInstance(ctx, inst))

	serve(l, inst.ContextPath)
	serve(l, "/missing")

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(NewPrometheusCollector(l, "")))

	expected := `
# HELP viewhost_dispatch_requests_total Total requests dispatched through the handler list
# TYPE viewhost_dispatch_requests_total counter
viewhost_dispatch_requests_total 2
# HELP viewhost_dispatch_total Dispatch outcomes (cumulative)
# TYPE viewhost_dispatch_total counter
viewhost_dispatch_total{outcome="failure"} 2
viewhost_dispatch_total{outcome="fallback"} 1
viewhost_dispatch_total{outcome="handled"} 1
viewhost_dispatch_total{outcome="not_found"} 1
viewhost_dispatch_total{outcome="unavailable"} 0
# HELP viewhost_view_instances Registered view instances
# TYPE viewhost_view_instances gauge
viewhost_view_instances 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected)))
}

func TestDispatchStats_Snapshot(t *testing.T) {
	t.Parallel()

	var s DispatchStats
	s.requests.Add(3)
	s.failures.Add(1)
	snap := s.Snapshot()
	assert.Equal(t, uint64(3), snap.Requests)
	assert.Equal(t, uint64(1), snap.Failures)
	assert.Zero(t, snap.Handled)
}
