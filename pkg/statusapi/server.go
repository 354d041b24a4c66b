// Package statusapi serves print status over REST, JSON-RPC and websockets.
// Websocket clients receive a notify_status_update for every status change.
package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"peachy-go/pkg/history"
	"peachy-go/pkg/log"
	"peachy-go/pkg/machine"
)

// Version is reported by server.info.
const Version = "0.1.0"

// Printer is the print being served.
type Printer interface {
	GetStatus() machine.Snapshot
	Stop()
}

// History lists past jobs.
type History interface {
	List(ctx context.Context, limit int) ([]history.Job, error)
}

// Config holds server configuration.
type Config struct {
	// Address to listen on (e.g., ":7125")
	Address string
	Printer Printer
	// History is optional; without it /server/history returns an empty list.
	History History
	Logger  *log.Logger
}

// Server provides the status API.
type Server struct {
	printer Printer
	history History
	logger  *log.Logger
	addr    string

	httpServer *http.Server
	upgrader   websocket.Upgrader

	clientsMu sync.RWMutex
	clients   map[int64]*wsClient
	nextID    atomic.Int64

	startTime time.Time
}

// New creates a status server.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.GetLogger("statusapi")
	}
	s := &Server{
		printer:   cfg.Printer,
		history:   cfg.History,
		logger:    logger,
		addr:      cfg.Address,
		clients:   make(map[int64]*wsClient),
		startTime: time.Now(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/jsonrpc", s.handleJSONRPC)
	mux.HandleFunc("/websocket", s.handleWebSocket)
	mux.HandleFunc("/server/info", s.handleServerInfo)
	mux.HandleFunc("/server/history", s.handleHistory)
	mux.HandleFunc("/printer/status", s.handleStatus)
	mux.HandleFunc("/printer/stop", s.handleStop)

	s.httpServer = &http.Server{Addr: s.addr, Handler: corsMiddleware(mux)}
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then closes every client.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("Status API listening on %s", ln.Addr())

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.closeClients()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.httpServer.Shutdown(shutdownCtx)
	<-errCh
	return err
}

// OnStatus pushes a notify_status_update to every websocket client. It never
// blocks; slow clients lose updates.
func (s *Server) OnStatus(snap machine.Snapshot) {
	s.broadcast(notification{
		JSONRPC: "2.0",
		Method:  "notify_status_update",
		Params:  []any{snap, s.eventTime()},
	})
}

// ClientCount returns the number of connected websocket clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

func (s *Server) eventTime() float64 {
	return time.Since(s.startTime).Seconds()
}

func (s *Server) broadcast(msg any) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for _, c := range s.clients {
		c.send(msg)
	}
}

func (s *Server) closeClients() {
	s.clientsMu.Lock()
	clients := s.clients
	s.clients = make(map[int64]*wsClient)
	s.clientsMu.Unlock()
	for _, c := range clients {
		c.close()
	}
}

// JSON-RPC 2.0 structures

type jsonRPCRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
	ID      any            `json:"id,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	Result  any           `json:"result,omitempty"`
	Error   *jsonRPCError `json:"error,omitempty"`
	ID      any           `json:"id,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeServerError    = -32000
)

var errNoPrinter = errors.New("no print attached")

type methodError struct {
	code int
	err  error
}

func (e *methodError) Error() string { return e.err.Error() }

// dispatch routes a method call.
func (s *Server) dispatch(ctx context.Context, method string, params map[string]any) (any, error) {
	switch method {
	case "server.info":
		return s.serverInfo(), nil
	case "printer.status":
		return s.status()
	case "printer.stop":
		return s.stop()
	case "server.history.list":
		limit := 0
		if v, ok := params["limit"].(float64); ok {
			limit = int(v)
		}
		return s.jobs(ctx, limit)
	default:
		return nil, &methodError{codeMethodNotFound, fmt.Errorf("method not found: %s", method)}
	}
}

func (s *Server) serverInfo() map[string]any {
	hostname, _ := os.Hostname()
	return map[string]any{
		"version":         Version,
		"hostname":        hostname,
		"printer_present": s.printer != nil,
		"history":         s.history != nil,
		"websocket_count": s.ClientCount(),
	}
}

func (s *Server) status() (machine.Snapshot, error) {
	if s.printer == nil {
		return machine.Snapshot{}, errNoPrinter
	}
	return s.printer.GetStatus(), nil
}

func (s *Server) stop() (string, error) {
	if s.printer == nil {
		return "", errNoPrinter
	}
	s.logger.Info("Stop requested through the status API")
	s.printer.Stop()
	return "ok", nil
}

func (s *Server) jobs(ctx context.Context, limit int) (map[string]any, error) {
	jobs := []history.Job{}
	if s.history != nil {
		var err error
		if jobs, err = s.history.List(ctx, limit); err != nil {
			return nil, err
		}
	}
	return map[string]any{"count": len(jobs), "jobs": jobs}, nil
}

func errorCode(err error) int {
	var me *methodError
	if errors.As(err, &me) {
		return me.code
	}
	return codeServerError
}

// HTTP handlers

func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req jsonRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, jsonRPCResponse{
			JSONRPC: "2.0",
			Error:   &jsonRPCError{Code: codeParseError, Message: "Parse error"},
		})
		return
	}
	writeJSON(w, http.StatusOK, s.call(r.Context(), req))
}

func (s *Server) call(ctx context.Context, req jsonRPCRequest) jsonRPCResponse {
	result, err := s.dispatch(ctx, req.Method, req.Params)
	if err != nil {
		return jsonRPCResponse{
			JSONRPC: "2.0",
			Error:   &jsonRPCError{Code: errorCode(err), Message: err.Error()},
			ID:      req.ID,
		}
	}
	return jsonRPCResponse{JSONRPC: "2.0", Result: result, ID: req.ID}
}

func (s *Server) handleServerInfo(w http.ResponseWriter, r *http.Request) {
	writeResult(w, s.serverInfo(), nil)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap, err := s.status()
	writeResult(w, snap, err)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	res, err := s.stop()
	writeResult(w, res, err)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeResult(w, nil, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}
	res, err := s.jobs(r.Context(), limit)
	writeResult(w, res, err)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

// writeResult writes {"result": ...} or {"error": {...}}.
func writeResult(w http.ResponseWriter, result any, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, map[string]any{"result": result})
		return
	}
	code := http.StatusBadRequest
	if errors.Is(err, errNoPrinter) {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"error": jsonRPCError{Code: errorCode(err), Message: err.Error()},
	})
}
