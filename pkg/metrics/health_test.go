package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthAllUp(t *testing.T) {
	h := NewHealthChecker()
	h.Register("store", func(context.Context) error { return nil })
	h.Register("kafka", func(context.Context) error { return nil })

	rec := httptest.NewRecorder()
	h.Handler()(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var rep healthReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.Equal(t, "UP", rep.Status)
	assert.Equal(t, "UP", rep.Components["store"].Status)
	assert.Equal(t, "UP", rep.Components["kafka"].Status)
}

func TestHealthDependencyDown(t *testing.T) {
	h := NewHealthChecker()
	h.Register("store", func(context.Context) error { return nil })
	h.Register("kafka", func(context.Context) error { return errors.New("no brokers reachable") })

	rec := httptest.NewRecorder()
	h.Handler()(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var rep healthReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.Equal(t, "DOWN", rep.Status)
	assert.Equal(t, "UP", rep.Components["store"].Status)
	assert.Equal(t, "DOWN", rep.Components["kafka"].Status)
	assert.Contains(t, rep.Components["kafka"].Error, "no brokers")
}

func TestLivenessAlwaysUp(t *testing.T) {
	rec := httptest.NewRecorder()
	LivenessHandler()(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"UP"}`, rec.Body.String())
}
