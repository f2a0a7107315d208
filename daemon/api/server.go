// SPDX-License-Identifier: LGPL-3.0-or-later

// Package api is an optional chi-based HTTP control surface for an Engine:
// start/pause/resume/stop, per-task pause/resume/cancel, a task listing, and
// a websocket feed of lifecycle events.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"hyperfetch"
	"hyperfetch/logger"
)

// Server wraps an *hyperfetch.Engine behind chi routes, mirroring the
// teacher's Server/NewServer shape but routed through chi instead of a bare
// http.ServeMux.
type Server struct {
	engine     *hyperfetch.Engine
	log        logger.Logger
	httpServer *http.Server
	hub        *WSHub
}

// NewServer builds a Server listening on addr once Start is called.
func NewServer(engine *hyperfetch.Engine, log logger.Logger, addr string) *Server {
	s := &Server{engine: engine, log: log, hub: NewWSHub()}
	s.hub.SetLogger(log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)

	r.Post("/start", s.handleStart)
	r.Post("/pause", s.handlePause)
	r.Post("/resume", s.handleResume)
	r.Post("/stop", s.handleStop)
	r.Get("/tasks", s.handleListTasks)
	r.Post("/tasks/{id}/pause", s.handleTaskPause)
	r.Post("/tasks/{id}/resume", s.handleTaskResume)
	r.Post("/tasks/{id}/cancel", s.handleTaskCancel)
	r.Get("/ws", s.handleWebsocket)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start runs the hub and the HTTP server; it blocks until the server stops.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)
	s.log.Info("starting control API", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server and closes websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down control API")
	s.hub.Shutdown()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("http request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

type startRequest struct {
	URLs []string `json:"urls"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request: %v", err)
		return
	}

	requests := make([]hyperfetch.Request, 0, len(req.URLs))
	for _, u := range req.URLs {
		requests = append(requests, hyperfetch.NewURLRequest(u))
	}

	if err := s.engine.Start(requests); err != nil {
		s.hub.Broadcast("operation_result", map[string]interface{}{"op": "start_all", "code": 409, "message": err.Error()})
		s.errorResponse(w, http.StatusConflict, "%v", err)
		return
	}

	s.hub.Broadcast("operation_result", map[string]interface{}{"op": "start_all", "code": 200})
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "started"})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.controlOp(w, "pause_all", s.engine.Pause)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.controlOp(w, "resume_all", s.engine.Resume)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.controlOp(w, "cancel_all", s.engine.Stop)
}

func (s *Server) controlOp(w http.ResponseWriter, label string, op func() error) {
	if err := op(); err != nil {
		s.hub.Broadcast("operation_result", map[string]interface{}{"op": label, "code": 409, "message": err.Error()})
		s.errorResponse(w, http.StatusConflict, "%v", err)
		return
	}
	s.hub.Broadcast("operation_result", map[string]interface{}{"op": label, "code": 200})
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, s.engine.Tasks())
}

func (s *Server) handleTaskPause(w http.ResponseWriter, r *http.Request) {
	s.taskOp(w, r, "pause_task", s.engine.PauseTask)
}

func (s *Server) handleTaskResume(w http.ResponseWriter, r *http.Request) {
	s.taskOp(w, r, "resume_task", s.engine.ResumeTask)
}

func (s *Server) handleTaskCancel(w http.ResponseWriter, r *http.Request) {
	s.taskOp(w, r, "cancel_task", s.engine.CancelTask)
}

func (s *Server) taskOp(w http.ResponseWriter, r *http.Request, label string, op func(uint32) error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid task id")
		return
	}

	if err := op(uint32(id)); err != nil {
		code := http.StatusConflict
		if strings.Contains(err.Error(), "not found") {
			code = http.StatusNotFound
		}
		s.hub.Broadcast("operation_result", map[string]interface{}{"op": label, "task_id": id, "code": code, "message": err.Error()})
		s.errorResponse(w, code, "%v", err)
		return
	}

	s.hub.Broadcast("operation_result", map[string]interface{}{"op": label, "task_id": id, "code": 200})
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	s.hub.ServeWS(w, r)
}

func (s *Server) jsonResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, statusCode int, format string, args ...interface{}) {
	s.jsonResponse(w, statusCode, map[string]string{"error": fmt.Sprintf(format, args...)})
}
