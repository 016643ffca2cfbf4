package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/geoanchor/internal/geo"
	"github.com/relabs-tech/geoanchor/internal/gps"
)

func doRequest(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestWeb_NoDataYet(t *testing.T) {
	mux := newWebMux(newTestTracker(t, geo.Origin{}), time.Second)

	for _, path := range []string{"/api/fix", "/api/distance", "/api/local", "/api/anchor"} {
		rec := doRequest(t, mux, http.MethodGet, path)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}

	rec := doRequest(t, mux, http.MethodPost, "/api/anchor")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), ErrNoFix.Error())

	rec = doRequest(t, mux, http.MethodGet, "/api/status")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"unknown"`)
}

func TestWeb_AnchorFlow(t *testing.T) {
	tr := newTestTracker(t, geo.Origin{Latitude: 0, Longitude: 0, Altitude: 0})
	mux := newWebMux(tr, time.Second)

	tr.Observe(gps.Fix{Latitude: 0, Longitude: 0, Altitude: 2})
	rec := doRequest(t, mux, http.MethodPost, "/api/anchor")
	require.Equal(t, http.StatusCreated, rec.Code)

	tr.Observe(gps.Fix{Latitude: 0, Longitude: 1, Altitude: 2})

	rec = doRequest(t, mux, http.MethodGet, "/api/distance")
	require.Equal(t, http.StatusOK, rec.Code)
	var dist map[string]float64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dist))
	assert.InDelta(t, 111194.9, dist["distance_m"], 1.0)

	rec = doRequest(t, mux, http.MethodGet, "/api/local")
	require.Equal(t, http.StatusOK, rec.Code)
	var pos geo.LocalPosition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pos))
	assert.InDelta(t, 111194.9, pos.X, 1.0)
	assert.Equal(t, 2.0, pos.Y)

	rec = doRequest(t, mux, http.MethodGet, "/api/anchor")
	require.Equal(t, http.StatusOK, rec.Code)
	var anchor gps.Fix
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &anchor))
	assert.Equal(t, 0.0, anchor.Longitude)

	rec = doRequest(t, mux, http.MethodDelete, "/api/anchor")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = doRequest(t, mux, http.MethodGet, "/api/distance")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = doRequest(t, mux, http.MethodPut, "/api/anchor")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestWeb_InvalidFix(t *testing.T) {
	tr := newTestTracker(t, geo.Origin{})
	mux := newWebMux(tr, time.Second)
	tr.Observe(gps.Fix{Latitude: 0, Longitude: 181})

	rec := doRequest(t, mux, http.MethodGet, "/api/local")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid coordinate")
}

func TestWeb_Metrics(t *testing.T) {
	mux := newWebMux(newTestTracker(t, geo.Origin{}), time.Second)
	rec := doRequest(t, mux, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "geoanchor_"))
}

func TestWeb_LiveWebSocket(t *testing.T) {
	tr := newTestTracker(t, geo.Origin{Latitude: 51.5, Longitude: -0.12})
	tr.SetStatus(StatusMessage{State: "ready"})
	tr.Observe(gps.Fix{Latitude: 51.5, Longitude: -0.12})

	srv := httptest.NewServer(newWebMux(tr, 10*time.Millisecond))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/live"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var resp WSResponse
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, "snapshot", resp.Type)
	require.NotNil(t, resp.Snapshot)
	require.NotNil(t, resp.Snapshot.Local)
	assert.Equal(t, geo.LocalPosition{}, *resp.Snapshot.Local)
	assert.Nil(t, resp.Snapshot.Anchor)

	require.NoError(t, conn.WriteJSON(WSMessage{Action: "save_anchor"}))
	assert.Eventually(t, func() bool {
		_, ok := tr.Anchor()
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteJSON(WSMessage{Action: "jump"}))
	for {
		var r WSResponse
		require.NoError(t, conn.ReadJSON(&r))
		if r.Type == "error" {
			assert.Contains(t, r.Message, "unknown action")
			break
		}
	}
}

func TestHandleWSMessage(t *testing.T) {
	tr := newTestTracker(t, geo.Origin{})

	resp := handleWSMessage(tr, WSMessage{Action: "save_anchor"})
	assert.Equal(t, "error", resp.Type)

	tr.Observe(gps.Fix{Latitude: 1, Longitude: 1})
	resp = handleWSMessage(tr, WSMessage{Action: "save_anchor"})
	assert.Equal(t, "snapshot", resp.Type)
	require.NotNil(t, resp.Snapshot.Anchor)

	resp = handleWSMessage(tr, WSMessage{Action: "clear_anchor"})
	assert.Nil(t, resp.Snapshot.Anchor)
}
