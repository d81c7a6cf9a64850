package handler_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/liveprice/models"
)

func TestHealth_ReportsPool(t *testing.T) {
	site := newQuoteSite(t)
	r := newPriceRouter(newScraper(t, site.URL+"/quote/{ticker}"))

	w := get(r, "/healthz")
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "http", resp.Driver)
	assert.Equal(t, 1, resp.PoolStats.MaxSessions)
	assert.Equal(t, 1, resp.PoolStats.LiveSessions)
	assert.Equal(t, 0, resp.PoolStats.ActiveSessions)
}
