package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // dashboard is served on the local network
	},
}

// WebServer serves the dashboard, the polled JSON reading and a websocket
// stream of readings.
type WebServer struct {
	pipe     *Pipeline
	interval time.Duration
	router   *mux.Router
}

// NewWebServer builds the routes. webDir holds the static dashboard.
func NewWebServer(pipe *Pipeline, webDir string, interval time.Duration) *WebServer {
	s := &WebServer{pipe: pipe, interval: interval}

	r := mux.NewRouter()
	r.HandleFunc("/data", s.handleData).Methods(http.MethodGet)
	r.HandleFunc("/api/metrics", s.handleData).Methods(http.MethodGet)
	r.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleStream)
	r.PathPrefix("/").Handler(http.FileServer(http.Dir(webDir)))
	s.router = r

	return s
}

func (s *WebServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *WebServer) handleData(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.pipe.Poll())
}

func (s *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.pipe.Status())
}

// handleStream pushes a reading every interval until the client goes away.
func (s *WebServer) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.Warnf("web: websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	// Reads only serve to notice the peer closing.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		conn.SetWriteDeadline(time.Now().Add(s.interval * 5))
		if err := conn.WriteJSON(s.pipe.Poll()); err != nil {
			logrus.Debugf("web: websocket client %s left: %v", r.RemoteAddr, err)
			return
		}
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Errorf("web: json encode error: %v", err)
	}
}

// ServeWeb listens on addr until ctx is cancelled.
func ServeWeb(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.Infof("web: listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
