package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hongminglow/svcmon/internal/models/dto"
)

func TestRoot(t *testing.T) {
	api := newTestAPI(t)

	resp := api.do(t, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]string{"message": "Systemd Service Monitor API", "version": APIVersion}, decode[map[string]string](t, resp))

	resp = api.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)
	require.NoError(t, api.monitored.Save([]string{"nginx.service", "ssh.service"}))

	resp := api.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[dto.HealthResponse](t, resp)
	assert.Equal(t, "healthy", out.Status)
	assert.Equal(t, 2, out.MonitoredServicesCount)
	assert.NotEmpty(t, out.Timestamp)

	api.store.Close()
	resp = api.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "unhealthy", decode[dto.HealthResponse](t, resp).Status)
}
