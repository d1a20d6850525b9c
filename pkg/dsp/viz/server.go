package viz

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"sync"

	"github.com/julienschmidt/httprouter"
)

type Producer interface {
	Name() string
	GetImage() *ImageContainer
}

// Server renders registered producers on request.
type Server struct {
	mu        sync.RWMutex
	producers map[string]Producer
	srv       *http.Server
}

func NewServer(port int) *Server {
	s := &Server{
		producers: make(map[string]Producer),
		srv:       &http.Server{Addr: fmt.Sprintf(":%d", port)},
	}
	s.srv.Handler = s.Handler()
	return s
}

func (s *Server) Register(p Producer) {
	s.mu.Lock()
	s.producers[p.Name()] = p
	s.mu.Unlock()
}

func (s *Server) names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.producers))
	for key := range s.producers {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (s *Server) Handler() http.Handler {
	handler := httprouter.New()
	handler.GET("/", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Location", "/view")
		w.WriteHeader(http.StatusFound)
	})

	handler.GET("/view", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Add("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>picostream</title></head>`))
		w.Write([]byte(`<body style='background-color: black'>`))
		w.Write([]byte(`<div style="display: flex; flex-direction: row; flex-wrap: wrap">`))
		for _, name := range s.names() {
			w.Write([]byte(fmt.Sprintf(`<div><img src="/img/%s" /></div>`, url.PathEscape(name))))
		}
		w.Write([]byte(`</div></body></html>`))
	})

	handler.GET("/img/:img", func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
		s.mu.RLock()
		p, ok := s.producers[params.ByName("img")]
		s.mu.RUnlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		img := p.GetImage()
		if img == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		w.Header().Add("Content-Type", "image/png")
		w.Write(img.data)
	})

	return handler
}

// Run serves until Stop is called or ctx is done.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.srv.Shutdown(context.Background())
	}()

	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
