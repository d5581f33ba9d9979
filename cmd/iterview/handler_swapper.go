package main

import (
	"net/http"
	"sync/atomic"
)

// handlerSwapper lets a settings reload replace the panel mux while the
// listener keeps running. Requests in flight finish on the handler they
// started with.
type handlerSwapper struct {
	current atomic.Pointer[handlerBox]
}

type handlerBox struct{ h http.Handler }

func newHandlerSwapper(h http.Handler) *handlerSwapper {
	s := &handlerSwapper{}
	s.Swap(h)
	return s
}

func (s *handlerSwapper) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	box := s.current.Load()
	if box == nil || box.h == nil {
		http.Error(w, "panel unavailable", http.StatusServiceUnavailable)
		return
	}
	box.h.ServeHTTP(w, r)
}

// Swap installs h for subsequent requests.
func (s *handlerSwapper) Swap(h http.Handler) {
	s.current.Store(&handlerBox{h: h})
}
