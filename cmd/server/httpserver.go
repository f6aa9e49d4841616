package main

import (
	"context"
	"net/http"
)

// httpServer wraps net/http.Server so main can Start it in the
// background and Shutdown it gracefully, matching the pattern used by
// the teacher's orchestrator_service/api.Server.
type httpServer struct {
	addr    string
	handler http.Handler
	srv     *http.Server
}

func (s *httpServer) Start() error {
	s.srv = &http.Server{Addr: s.addr, Handler: s.handler}
	go func() {
		_ = s.srv.ListenAndServe()
	}()
	return nil
}

func (s *httpServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
