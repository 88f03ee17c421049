package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbernstein/lacylights-motion/internal/fixture"
	"github.com/bbernstein/lacylights-motion/internal/services/dmx"
	"github.com/bbernstein/lacylights-motion/internal/services/patch"
	"github.com/bbernstein/lacylights-motion/internal/services/pubsub"
	"github.com/bbernstein/lacylights-motion/internal/services/simulation"
	"github.com/bbernstein/lacylights-motion/internal/services/stream"
	"github.com/bbernstein/lacylights-motion/internal/services/testutil"
)

const washYAML = `
name: Test Wash
manufacturer: Test
modes:
  - name: Extended
    channels:
      - name: Dimmer
        offset: [1]
        default: 0/1
        functions:
          - {name: Dimmer, attribute: Dimmer, dmxFrom: 0/1, physicalFrom: 0, physicalTo: 1}
      - name: Zoom
        offset: [2]
        default: 0/1
        functions:
          - {name: Zoom, attribute: Zoom, dmxFrom: 0/1, physicalFrom: 5, physicalTo: 50}
`

type testServer struct {
	*httptest.Server
	engine   *simulation.Engine
	input    *dmx.Service
	importer *patch.Importer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	ps := pubsub.New()
	engine := simulation.NewEngine(ps, simulation.Config{})
	input := dmx.NewService(dmx.Config{Enabled: false})
	input.SetHandler(engine.PushUniverse)

	importer := patch.NewImporter(db.ProfileRepo, db.SettingRepo)
	router := NewRouter(Deps{
		Engine:   engine,
		Input:    input,
		Profiles: db.ProfileRepo,
		Importer: importer,
		Loader:   patch.NewLoader(db.ProfileRepo, db.PatchRepo, 0),
		Stream:   stream.NewHandler(ps, engine),
		Clients:  ps,
		Version:  "test",
	}, Options{CORSOrigin: "http://console.local"})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &testServer{Server: server, engine: engine, input: input, importer: importer}
}

func (s *testServer) do(t *testing.T, method, path string, body string) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

// patchWash imports the wash profile and patches it at universe 1 address 10.
func (s *testServer) patchWash(t *testing.T) string {
	t.Helper()
	status, body := s.do(t, http.MethodPost, "/profiles", washYAML)
	require.Contains(t, []int{http.StatusCreated, http.StatusOK}, status)
	var profile profileSummary
	require.NoError(t, json.Unmarshal(body, &profile))

	status, body = s.do(t, http.MethodPost, "/patches",
		`{"profileId":"`+profile.ID+`","name":"Wash 1","universe":1,"startChannel":10}`)
	require.Equal(t, http.StatusCreated, status, string(body))
	var state fixture.State
	require.NoError(t, json.Unmarshal(body, &state))
	return state.ID
}

func parameter(t *testing.T, state fixture.State, key string) fixture.ParameterState {
	t.Helper()
	for _, p := range state.Parameters {
		if p.Key == key {
			return p
		}
	}
	t.Fatalf("no parameter %s in %+v", key, state.Parameters)
	return fixture.ParameterState{}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, status)

	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "test", health["version"])
	assert.Equal(t, 0.0, health["fixtures"])
	assert.Equal(t, 0.0, health["streamClients"])
	assert.Equal(t, false, health["running"])
	assert.Equal(t, 0.0, health["profiles"])
	assert.Contains(t, health, "timestamp")
	assert.NotContains(t, health, "lastImport")

	artnet, ok := health["artnet"].(map[string]interface{})
	require.True(t, ok, "artnet stats in %v", health)
	assert.Equal(t, false, artnet["enabled"])
	assert.Equal(t, 4.0, artnet["universes"])
	assert.Equal(t, 0.0, artnet["packetsDropped"])
}

func TestHealthReportsImportAndClients(t *testing.T) {
	s := newTestServer(t)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wash.yaml"), []byte(washYAML), 0644))
	_, err := s.importer.ImportDir(context.Background(), dir)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	defer func() { _ = conn.Close() }()
	// The snapshot is written after subscribing
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err = conn.ReadMessage()
	require.NoError(t, err)

	_, body := s.do(t, http.MethodGet, "/health", "")
	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, 1.0, health["streamClients"])

	lastImport, ok := health["lastImport"].(map[string]interface{})
	require.True(t, ok, "lastImport in %v", health)
	assert.Equal(t, dir, lastImport["directory"])
	assert.Equal(t, 1.0, lastImport["successfulImports"])
}

func TestProfiles(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, http.MethodPost, "/profiles", washYAML)
	assert.Equal(t, http.StatusCreated, status, string(body))

	status, _ = s.do(t, http.MethodPost, "/profiles", washYAML)
	assert.Equal(t, http.StatusOK, status, "re-importing returns the stored profile")

	status, _ = s.do(t, http.MethodPost, "/profiles", "name: [broken")
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = s.do(t, http.MethodGet, "/profiles", "")
	assert.Equal(t, http.StatusOK, status)
	var profiles []profileSummary
	require.NoError(t, json.Unmarshal(body, &profiles))
	require.Len(t, profiles, 1)
	assert.Equal(t, "Test Wash", profiles[0].Name)
	assert.Equal(t, 1, profiles[0].ModeCount)
}

func TestPatchLifecycle(t *testing.T) {
	s := newTestServer(t)
	id := s.patchWash(t)

	status, body := s.do(t, http.MethodGet, "/fixtures", "")
	assert.Equal(t, http.StatusOK, status)
	var states []fixture.State
	require.NoError(t, json.Unmarshal(body, &states))
	require.Len(t, states, 1)
	assert.Equal(t, "Wash 1", states[0].Name)
	assert.Equal(t, 10, states[0].Address)

	status, _ = s.do(t, http.MethodGet, "/fixtures/"+id, "")
	assert.Equal(t, http.StatusOK, status)

	status, _ = s.do(t, http.MethodDelete, "/patches/"+id, "")
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = s.do(t, http.MethodGet, "/fixtures/"+id, "")
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = s.do(t, http.MethodDelete, "/patches/"+id, "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestUpdatePatch(t *testing.T) {
	s := newTestServer(t)
	id := s.patchWash(t)

	_, body := s.do(t, http.MethodGet, "/profiles", "")
	var profiles []profileSummary
	require.NoError(t, json.Unmarshal(body, &profiles))
	require.Len(t, profiles, 1)
	assert.Equal(t, int64(1), profiles[0].PatchCount)

	status, body := s.do(t, http.MethodPut, "/patches/"+id,
		`{"profileId":"`+profiles[0].ID+`","name":"Wash 2","universe":2,"startChannel":100,"invertPan":true}`)
	require.Equal(t, http.StatusOK, status, string(body))
	var state fixture.State
	require.NoError(t, json.Unmarshal(body, &state))
	assert.Equal(t, id, state.ID)
	assert.Equal(t, "Wash 2", state.Name)
	assert.Equal(t, 100, state.Address)

	status, body = s.do(t, http.MethodGet, "/universes/2", "")
	require.Equal(t, http.StatusOK, status)
	var universe struct {
		Patches []patchSummary `json:"patches"`
	}
	require.NoError(t, json.Unmarshal(body, &universe))
	require.Len(t, universe.Patches, 1)
	assert.Equal(t, id, universe.Patches[0].ID)
	assert.Equal(t, 100, universe.Patches[0].StartChannel)

	status, _ = s.do(t, http.MethodPut, "/patches/missing", `{"profileId":"`+profiles[0].ID+`","universe":1,"startChannel":1}`)
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = s.do(t, http.MethodPut, "/patches/"+id, `{"profileId":"`+profiles[0].ID+`","mode":"Turbo","universe":1,"startChannel":1}`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestDeleteProfile(t *testing.T) {
	s := newTestServer(t)
	id := s.patchWash(t)

	_, body := s.do(t, http.MethodGet, "/profiles", "")
	var profiles []profileSummary
	require.NoError(t, json.Unmarshal(body, &profiles))
	require.Len(t, profiles, 1)
	profileID := profiles[0].ID

	status, _ := s.do(t, http.MethodDelete, "/profiles/"+profileID, "")
	assert.Equal(t, http.StatusConflict, status, "patched profiles stay")

	status, _ = s.do(t, http.MethodDelete, "/patches/"+id, "")
	require.Equal(t, http.StatusNoContent, status)
	status, _ = s.do(t, http.MethodDelete, "/profiles/"+profileID, "")
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = s.do(t, http.MethodDelete, "/profiles/"+profileID, "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestCreatePatchErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid JSON", `{`, http.StatusBadRequest},
		{"unknown profile", `{"profileId":"missing","universe":1,"startChannel":1}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := s.do(t, http.MethodPost, "/patches", tt.body)
			assert.Equal(t, tt.want, status)
		})
	}
}

func TestInjectDMX(t *testing.T) {
	s := newTestServer(t)
	id := s.patchWash(t)

	status, body := s.do(t, http.MethodPost, "/fixtures/"+id+"/dmx", `{"channels":{"2":255}}`)
	require.Equal(t, http.StatusOK, status, string(body))
	var state fixture.State
	require.NoError(t, json.Unmarshal(body, &state))
	assert.Equal(t, 50.0, parameter(t, state, "zoom").Value, "first value snaps")
	assert.Equal(t, 255, s.input.GetUniverse(1)[10])

	status, body = s.do(t, http.MethodPost, "/fixtures/"+id+"/dmx", `{"values":[255,0]}`)
	require.Equal(t, http.StatusOK, status, string(body))
	require.NoError(t, json.Unmarshal(body, &state))
	zoom := parameter(t, state, "zoom")
	assert.Equal(t, 5.0, zoom.Target)
	assert.Equal(t, 255, s.input.GetUniverse(1)[9])

	status, body = s.do(t, http.MethodGet, "/universes/1", "")
	require.Equal(t, http.StatusOK, status)
	var universe struct {
		Universe int   `json:"universe"`
		Channels []int `json:"channels"`
	}
	require.NoError(t, json.Unmarshal(body, &universe))
	assert.Len(t, universe.Channels, dmx.UniverseSize)
	assert.Equal(t, 255, universe.Channels[9])
}

func TestInjectDMXErrors(t *testing.T) {
	s := newTestServer(t)
	id := s.patchWash(t)

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"unknown fixture", "/fixtures/missing/dmx", `{"values":[1]}`, http.StatusNotFound},
		{"invalid JSON", "/fixtures/" + id + "/dmx", `[`, http.StatusBadRequest},
		{"no values", "/fixtures/" + id + "/dmx", `{}`, http.StatusBadRequest},
		{"bad offset", "/fixtures/" + id + "/dmx", `{"channels":{"x":1}}`, http.StatusBadRequest},
		{"zero offset", "/fixtures/" + id + "/dmx", `{"channels":{"0":1}}`, http.StatusBadRequest},
		{"value too large", "/fixtures/" + id + "/dmx", `{"values":[300]}`, http.StatusBadRequest},
		{"past the universe end", "/fixtures/" + id + "/dmx", `{"channels":{"600":1}}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := s.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.want, status)
		})
	}
}

func TestInjectDMXRejectsWholeRequest(t *testing.T) {
	s := newTestServer(t)
	id := s.patchWash(t)

	for i := 0; i < 20; i++ {
		status, _ := s.do(t, http.MethodPost, "/fixtures/"+id+"/dmx", `{"channels":{"1":200,"2":999}}`)
		require.Equal(t, http.StatusBadRequest, status)
		status, _ = s.do(t, http.MethodPost, "/fixtures/"+id+"/dmx", `{"channels":{"1":200,"600":1}}`)
		require.Equal(t, http.StatusBadRequest, status)
	}

	channels := s.input.GetUniverse(1)
	assert.Equal(t, 0, channels[9], "rejected requests leave the universe untouched")
	assert.Equal(t, 0, channels[10])

	status, body := s.do(t, http.MethodGet, "/fixtures/"+id, "")
	require.Equal(t, http.StatusOK, status)
	var state fixture.State
	require.NoError(t, json.Unmarshal(body, &state))
	assert.Equal(t, 0.0, parameter(t, state, "dimmer").Target)
}

func TestGetUniverseErrors(t *testing.T) {
	s := newTestServer(t)

	status, _ := s.do(t, http.MethodGet, "/universes/99", "")
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = s.do(t, http.MethodGet, "/universes/one", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestWithoutInput(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	router := NewRouter(Deps{
		Engine:   simulation.NewEngine(nil, simulation.Config{}),
		Profiles: db.ProfileRepo,
	}, Options{})

	req := httptest.NewRequest(http.MethodGet, "/universes/1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/ws", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code, "no stream route without a stream handler")
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, s.URL+"/fixtures", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://console.local")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, "http://console.local", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestWebsocketStream(t *testing.T) {
	s := newTestServer(t)
	id := s.patchWash(t)

	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws?fixture=" + id
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	defer func() { _ = conn.Close() }()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var msg struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, stream.MessageSnapshot, msg.Type)
	assert.True(t, bytes.Contains(msg.Data, []byte(id)))

	// Ticks publish state at the stream rate
	for i := 0; i < 3; i++ {
		s.engine.Tick(1.0 / 60)
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, stream.MessageState, msg.Type)
}
