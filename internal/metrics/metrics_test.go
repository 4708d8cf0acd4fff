package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics_Exposition(t *testing.T) {
	m := New()
	m.StoreWrite("monitored_urls", "create")
	m.StoreWrite("monitored_urls", "create")
	m.WorkflowRequest("dispatch", "success")
	m.ReportExport("error")
	m.InboxReport("weekly.md")
	m.SessionsActive(2)

	out := scrape(t, m)
	assert.Contains(t, out, `intelboard_store_writes_total{collection="monitored_urls",op="create"} 2`)
	assert.Contains(t, out, `intelboard_workflow_requests_total{action="dispatch",result="success"} 1`)
	assert.Contains(t, out, `intelboard_report_exports_total{result="error"} 1`)
	assert.Contains(t, out, `intelboard_inbox_reports_total 1`)
	assert.Contains(t, out, `intelboard_sessions_active 2`)
	assert.Contains(t, out, "go_goroutines")
}

func TestMetrics_PrivateRegistries(t *testing.T) {
	a, b := New(), New()
	a.SessionsActive(5)

	assert.Contains(t, scrape(t, a), "intelboard_sessions_active 5")
	assert.Contains(t, scrape(t, b), "intelboard_sessions_active 0")
}

func TestMetrics_GatherSessions(t *testing.T) {
	m := New()
	m.SessionsActive(3)
	families, err := m.Registry().Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range families {
		if f.GetName() == "intelboard_sessions_active" {
			found = true
			require.Len(t, f.GetMetric(), 1)
			assert.Equal(t, 3.0, f.GetMetric()[0].GetGauge().GetValue())
		}
	}
	assert.True(t, found)
}
