package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	m := New()

	assert.Equal(t, float64(-1), testutil.ToFloat64(m.ArmedGate))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.Advances))

	m.Events.WithLabelValues(KindHit).Inc()
	m.Events.WithLabelValues(KindHit).Inc()
	m.Events.WithLabelValues(KindMiss).Inc()
	m.Advances.Inc()
	m.Failures.WithLabelValues("lighting").Inc()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.Events.WithLabelValues(KindHit)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Events.WithLabelValues(KindMiss)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Advances))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Failures.WithLabelValues("lighting")))
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.Advances.Inc()
	assert.Equal(t, float64(0), testutil.ToFloat64(b.Advances))
}

func TestHandler(t *testing.T) {
	m := New()
	m.Advances.Add(3)
	m.Reloads.WithLabelValues("ok").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "gates_advances_total 3")
	assert.Contains(t, string(body), `gates_layout_reloads_total{result="ok"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
