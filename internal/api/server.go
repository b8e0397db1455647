// Package api serves the canbridge HTTP surface: conversion stats,
// raw frame and decoded signal views, mapping inspection, frame
// transmission and config reload, plus debug routes for a live signal
// stream and charts.
package api

import (
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/canbridge/internal/canbus"
	"github.com/banshee-data/canbridge/internal/convert"
	"github.com/banshee-data/canbridge/internal/journal"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// ServerConfig wires a Server to the daemon's shared state. Table,
// Engine, Buffer and Latest are required; the rest degrade gracefully
// (handlers that need a missing collaborator answer 503).
type ServerConfig struct {
	Table  *convert.Table
	Engine *convert.Engine
	Buffer *canbus.RxBuffer
	Latest *convert.Latest

	Journal *journal.Journal // recent-signal queries and the chart
	Bus     canbus.Bus       // frame transmission
	Pump    *canbus.Pump     // receive-side counters in /api/stats
	Tail    *canbus.Tail     // live SSE stream on the debug mux

	MappingPath string // mapping config re-read on POST /api/reload
	DBCPath     string // optional DBC re-read on POST /api/reload
}

// Server holds the handler state for the HTTP API.
type Server struct {
	table  *convert.Table
	engine *convert.Engine
	buffer *canbus.RxBuffer
	latest *convert.Latest

	journal *journal.Journal
	bus     canbus.Bus
	pump    *canbus.Pump
	tail    *canbus.Tail

	mappingPath string
	dbcPath     string

	// reloadMu serialises reload requests so two POSTs cannot
	// interleave their partial loads.
	reloadMu sync.Mutex
}

func NewServer(cfg ServerConfig) *Server {
	return &Server{
		table:       cfg.Table,
		engine:      cfg.Engine,
		buffer:      cfg.Buffer,
		latest:      cfg.Latest,
		journal:     cfg.Journal,
		bus:         cfg.Bus,
		pump:        cfg.Pump,
		tail:        cfg.Tail,
		mappingPath: cfg.MappingPath,
		dbcPath:     cfg.DBCPath,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400 && statusCode < 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/frames", s.listFrames)
	mux.HandleFunc("/api/frames/latest", s.showLatestFrame)
	mux.HandleFunc("/api/signals", s.listSignals)
	mux.HandleFunc("/api/signals/recent", s.listRecentSignals)
	mux.HandleFunc("/api/mappings", s.showMappings)
	mux.HandleFunc("/api/send", s.sendFrameHandler)
	mux.HandleFunc("/api/reload", s.reloadHandler)
	return mux
}
