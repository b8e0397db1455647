package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.einride.tech/can"

	"github.com/banshee-data/canbridge/internal/canbus"
	"github.com/banshee-data/canbridge/internal/convert"
	"github.com/banshee-data/canbridge/internal/signal"
	"github.com/banshee-data/canbridge/internal/testutil"
)

// testFixture bundles the server with the collaborators tests poke at.
type testFixture struct {
	server *Server
	table  *convert.Table
	engine *convert.Engine
	buffer *canbus.RxBuffer
	latest *convert.Latest
	peer   *canbus.VirtualEndpoint
}

// lightsTable registers one message with a scaled byte and a flag, the
// smallest table that exercises both value kinds.
func lightsTable(t *testing.T) *convert.Table {
	t.Helper()
	table := convert.NewTable()
	def := signal.MessageDef{
		ID: 0x100, Name: "Lights", DLC: 8,
		Signals: map[string]signal.Definition{
			"Brightness": {Name: "Brightness", StartBit: 0, BitLength: 8, Kind: signal.KindUint8, Scale: 0.5},
			"On":         {Name: "On", StartBit: 8, BitLength: 1, Kind: signal.KindBool, Scale: 1},
		},
	}
	if err := table.RegisterMessage(def); err != nil {
		t.Fatalf("RegisterMessage failed: %v", err)
	}
	if err := table.AddMapping(0x100, "Brightness", "Vehicle.Lights.Brightness"); err != nil {
		t.Fatalf("AddMapping failed: %v", err)
	}
	if err := table.AddMapping(0x100, "On", "Vehicle.Lights.On"); err != nil {
		t.Fatalf("AddMapping failed: %v", err)
	}
	return table
}

func lightsFrame(brightness byte, on bool) can.Frame {
	f := can.Frame{ID: 0x100, Length: 8}
	f.Data[0] = brightness
	if on {
		f.Data[1] = 0x01
	}
	return f
}

func setupTestServer(t *testing.T) *testFixture {
	t.Helper()
	table := lightsTable(t)
	engine := convert.NewEngine(table)
	buffer, err := canbus.NewRxBuffer(16)
	if err != nil {
		t.Fatalf("NewRxBuffer failed: %v", err)
	}
	latest := convert.NewLatest()

	hub := canbus.NewVirtualBus()
	t.Cleanup(func() { hub.Close() })
	bus, err := hub.Endpoint(false)
	if err != nil {
		t.Fatalf("Endpoint failed: %v", err)
	}
	peer, err := hub.Endpoint(false)
	if err != nil {
		t.Fatalf("Endpoint failed: %v", err)
	}

	server := NewServer(ServerConfig{
		Table:  table,
		Engine: engine,
		Buffer: buffer,
		Latest: latest,
		Bus:    bus,
	})
	return &testFixture{
		server: server,
		table:  table,
		engine: engine,
		buffer: buffer,
		latest: latest,
		peer:   peer,
	}
}

func TestServeMuxMethodGuards(t *testing.T) {
	fix := setupTestServer(t)
	mux := fix.server.ServeMux()

	tests := []struct {
		path   string
		method string
	}{
		{"/api/stats", http.MethodPost},
		{"/api/frames", http.MethodPost},
		{"/api/frames/latest", http.MethodDelete},
		{"/api/signals", http.MethodPost},
		{"/api/signals/recent", http.MethodPost},
		{"/api/mappings", http.MethodPost},
		{"/api/send", http.MethodGet},
		{"/api/reload", http.MethodGet},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			testutil.AssertStatusCode(t, w.Code, http.StatusMethodNotAllowed)
		})
	}
}

func TestLoggingMiddlewarePreservesResponse(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	})

	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	w := httptest.NewRecorder()
	LoggingMiddleware(inner).ServeHTTP(w, req)

	testutil.AssertStatusCode(t, w.Code, http.StatusTeapot)
	if w.Body.String() != "short and stout" {
		t.Errorf("body = %q, want %q", w.Body.String(), "short and stout")
	}
}

func TestShowStats(t *testing.T) {
	fix := setupTestServer(t)

	fix.engine.Convert(lightsFrame(100, true))
	fix.engine.Convert(lightsFrame(50, false))
	fix.buffer.Push(canbus.RxFrame{Time: time.Now(), Frame: lightsFrame(100, true)})

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	w := httptest.NewRecorder()
	fix.server.ServeMux().ServeHTTP(w, req)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)

	var resp StatsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if resp.Convert.FramesReceived != 2 {
		t.Errorf("FramesReceived = %d, want 2", resp.Convert.FramesReceived)
	}
	if resp.Convert.SignalsEmitted != 4 {
		t.Errorf("SignalsEmitted = %d, want 4", resp.Convert.SignalsEmitted)
	}
	if resp.Pump != nil {
		t.Errorf("Pump = %+v, want omitted without a pump", resp.Pump)
	}
	if resp.Buffer == nil {
		t.Fatal("Buffer stats missing")
	}
	if resp.Buffer.Len != 1 || resp.Buffer.Cap != 16 || resp.Buffer.Pushed != 1 {
		t.Errorf("Buffer = %+v, want len 1 cap 16 pushed 1", resp.Buffer)
	}
	if resp.Session != "" {
		t.Errorf("Session = %q, want empty without a journal", resp.Session)
	}
}
