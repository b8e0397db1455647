package api

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.einride.tech/can"

	"github.com/banshee-data/canbridge/internal/canbus"
	"github.com/banshee-data/canbridge/internal/convert"
	"github.com/banshee-data/canbridge/internal/httputil"
	"github.com/banshee-data/canbridge/internal/journal"
	"github.com/banshee-data/canbridge/internal/signal"
)

// StatsResponse aggregates the counters of every pipeline stage.
type StatsResponse struct {
	Convert convert.Snapshot  `json:"convert"`
	Pump    *canbus.PumpStats `json:"pump,omitempty"`
	Buffer  *BufferStats      `json:"buffer,omitempty"`
	Session string            `json:"session_id,omitempty"`
}

// BufferStats describes the rx ring buffer.
type BufferStats struct {
	Len    int    `json:"len"`
	Cap    int    `json:"cap"`
	Pushed uint64 `json:"pushed"`
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	resp := StatsResponse{Convert: s.engine.Stats()}
	if s.pump != nil {
		stats := s.pump.Stats()
		resp.Pump = &stats
	}
	if s.buffer != nil {
		resp.Buffer = &BufferStats{
			Len:    s.buffer.Len(),
			Cap:    s.buffer.Cap(),
			Pushed: s.buffer.Pushed(),
		}
	}
	if s.journal != nil {
		resp.Session = s.journal.SessionID()
	}
	httputil.WriteJSONOK(w, resp)
}

// FrameJSON is the wire form of a buffered frame. Data holds only the
// Length bytes that were actually on the bus.
type FrameJSON struct {
	Time     time.Time `json:"time"`
	ID       string    `json:"id"`
	Extended bool      `json:"extended,omitempty"`
	Remote   bool      `json:"remote,omitempty"`
	Length   uint8     `json:"length"`
	Data     string    `json:"data"`
}

func frameToJSON(rx canbus.RxFrame) FrameJSON {
	f := rx.Frame
	return FrameJSON{
		Time:     rx.Time,
		ID:       formatFrameID(f.ID, f.IsExtended),
		Extended: f.IsExtended,
		Remote:   f.IsRemote,
		Length:   f.Length,
		Data:     strings.ToUpper(hex.EncodeToString(f.Data[:f.Length])),
	}
}

// formatFrameID renders an identifier the way candump does: three hex
// digits for standard frames, eight for extended.
func formatFrameID(id uint32, extended bool) string {
	if extended {
		return fmt.Sprintf("0x%08X", id)
	}
	return fmt.Sprintf("0x%03X", id)
}

func (s *Server) listFrames(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.buffer == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no frame buffer attached")
		return
	}

	snapshot := s.buffer.Snapshot()
	frames := make([]FrameJSON, len(snapshot))
	for i, rx := range snapshot {
		frames[i] = frameToJSON(rx)
	}
	httputil.WriteJSONOK(w, frames)
}

func (s *Server) showLatestFrame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.buffer == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no frame buffer attached")
		return
	}

	raw := r.URL.Query().Get("id")
	if raw == "" {
		httputil.BadRequest(w, "missing 'id' parameter")
		return
	}
	id, err := strconv.ParseUint(raw, 0, 32)
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid 'id' parameter %q", raw))
		return
	}

	rx, ok := s.buffer.Latest(uint32(id))
	if !ok {
		httputil.NotFound(w, fmt.Sprintf("no frame received for id 0x%X", id))
		return
	}
	httputil.WriteJSONOK(w, frameToJSON(rx))
}

func (s *Server) listSignals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.latest.All())
}

func (s *Server) listRecentSignals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.journal == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "journal not configured")
		return
	}

	path := r.URL.Query().Get("path")
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	events, err := s.journal.RecentSignals(path, limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to query journal: %v", err))
		return
	}
	if events == nil {
		events = []journal.SignalEvent{}
	}
	httputil.WriteJSONOK(w, events)
}

// MappingsResponse is the mapping table snapshot: registered message
// definitions plus the (id, signal) -> destination routes. Route keys
// are hex frame identifiers.
type MappingsResponse struct {
	Messages []signal.MessageDef          `json:"messages"`
	Routes   map[string]map[string]string `json:"routes"`
}

func (s *Server) showMappings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	routes := make(map[string]map[string]string)
	for id, m := range s.table.Routes() {
		routes[formatFrameID(id, id > signal.MaxStandardID)] = m
	}
	httputil.WriteJSONOK(w, MappingsResponse{
		Messages: s.table.Messages(),
		Routes:   routes,
	})
}

// SendRequest asks the daemon to put one frame on the bus. Either give
// a raw identifier and hex payload, or name a registered message and
// physical signal values to encode.
type SendRequest struct {
	ID     string `json:"id,omitempty"`   // "0x123" or decimal
	Data   string `json:"data,omitempty"` // hex payload, up to 8 bytes
	Remote bool   `json:"remote,omitempty"`

	Message string         `json:"message,omitempty"` // registered message name
	Values  map[string]any `json:"values,omitempty"`  // signal name -> number or bool
}

// SendResponse reports the frame as it went out.
type SendResponse struct {
	Sent bool   `json:"sent"`
	ID   string `json:"id"`
	Data string `json:"data"`
}

func (s *Server) sendFrameHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.bus == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no bus attached")
		return
	}

	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	var (
		frame can.Frame
		err   error
	)
	switch {
	case req.Message != "":
		frame, err = s.encodeNamedFrame(req)
	case req.ID != "":
		frame, err = buildRawFrame(req)
	default:
		httputil.BadRequest(w, "request needs either 'id' or 'message'")
		return
	}
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	if err := s.bus.Send(r.Context(), frame); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to send frame: %v", err))
		return
	}
	httputil.WriteJSONOK(w, SendResponse{
		Sent: true,
		ID:   formatFrameID(frame.ID, frame.IsExtended),
		Data: strings.ToUpper(hex.EncodeToString(frame.Data[:frame.Length])),
	})
}

// encodeNamedFrame encodes physical values through the mapping table.
func (s *Server) encodeNamedFrame(req SendRequest) (can.Frame, error) {
	def, ok := s.table.MessageByName(req.Message)
	if !ok {
		return can.Frame{}, fmt.Errorf("no message named %q is registered", req.Message)
	}
	vals := make(map[string]signal.Value, len(req.Values))
	for name, raw := range req.Values {
		switch v := raw.(type) {
		case bool:
			vals[name] = signal.BoolValue(v)
		case float64:
			vals[name] = signal.FloatValue(v)
		default:
			return can.Frame{}, fmt.Errorf("value for signal %q must be a number or boolean", name)
		}
	}
	return signal.EncodeFrame(def, vals)
}

// buildRawFrame assembles a frame from an identifier and hex payload.
func buildRawFrame(req SendRequest) (can.Frame, error) {
	id, err := strconv.ParseUint(req.ID, 0, 32)
	if err != nil {
		return can.Frame{}, fmt.Errorf("invalid frame id %q", req.ID)
	}
	data, err := hex.DecodeString(req.Data)
	if err != nil {
		return can.Frame{}, fmt.Errorf("invalid hex data %q", req.Data)
	}
	if len(data) > 8 {
		return can.Frame{}, fmt.Errorf("data is %d bytes, frames carry at most 8", len(data))
	}

	frame := can.Frame{
		ID:         uint32(id),
		Length:     uint8(len(data)),
		IsExtended: id > signal.MaxStandardID,
		IsRemote:   req.Remote,
	}
	copy(frame.Data[:], data)
	if err := canbus.ValidateFrame(frame); err != nil {
		return can.Frame{}, err
	}
	return frame, nil
}
