package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/provisioner/internal/project"
)

func TestMetrics_Saga(t *testing.T) {
	m := New()

	m.RecordOutcome(project.OperationProvision, project.StateCommitted, 2*time.Second)
	m.RecordOutcome(project.OperationProvision, project.StateCommitted, time.Second)
	m.RecordOutcome(project.OperationProvision, project.StatePartiallyRolledBack, time.Second)
	m.RecordStepFailure(project.OperationProvision, project.StepCreateQualityProject, project.ErrorRemote)
	m.RecordCompensationFailure(project.StepDeleteRepository)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.sagaOutcomes.WithLabelValues("provision", "committed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sagaOutcomes.WithLabelValues("provision", "partially_rolled_back")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stepFailures.WithLabelValues("provision", "create_quality_project", "remote")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.compensationFailures.WithLabelValues("delete_repository")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.sagaDuration))
}

func TestMetrics_Remote(t *testing.T) {
	m := New()

	m.ObserveRequest("github", http.MethodPost, http.StatusCreated, 100*time.Millisecond)
	m.ObserveRequest("github", http.MethodPost, http.StatusCreated, 120*time.Millisecond)
	m.ObserveRequest("sonarqube", http.MethodGet, 0, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.remoteRequests.WithLabelValues("github", "POST", "201")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.remoteRequests.WithLabelValues("sonarqube", "GET", "0")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.remoteDuration))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.RecordOutcome(project.OperationDeprovision, project.StateCompleted, time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `provisioner_saga_outcomes_total{operation="deprovision",state="completed"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
