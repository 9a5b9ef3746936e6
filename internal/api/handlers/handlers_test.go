package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"example.com/enersight/services/telemetry/config"
	"example.com/enersight/services/telemetry/internal/pipeline"
	"example.com/enersight/services/telemetry/internal/tracing"
)

func TestRespondErrorRunError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)

	respondError(c, &pipeline.RunError{Status: 500, Message: "failed to read meter M-100"})

	require.Equal(t, 500, recorder.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	require.EqualValues(t, 500, body["status"])
	require.Equal(t, "failed to read meter M-100", body["message"])
}

func TestRespondErrorWrappedRunError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)

	err := errors.Wrap(&pipeline.RunError{Status: 501, Message: "sync failed"}, "run")
	respondError(c, err)

	require.Equal(t, 501, recorder.Code)
}

func TestRespondErrorOpaque(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)

	respondError(c, errors.New("boom"))

	require.Equal(t, http.StatusInternalServerError, recorder.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	require.Equal(t, "boom", body["error"])
}

func TestWeatherRejectsBadCoordinates(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tracer, err := tracing.NewTracer(config.TracingConfig{})
	require.NoError(t, err)
	handler := NewWeatherHandler(nil, tracer)

	router := gin.New()
	handler.RegisterRoutes(router)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/weather?lat=abc&lon=1.5", nil)
	router.ServeHTTP(recorder, req)
	require.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/weather?lat=19.4&lon=", nil)
	router.ServeHTTP(recorder, req)
	require.Equal(t, http.StatusBadRequest, recorder.Code)
}
