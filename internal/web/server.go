// Package web provides the HTTP API and status page for the plant-controller daemon.
package web

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/sweeney/plant-controller/internal/camera"
	"github.com/sweeney/plant-controller/internal/history"
	"github.com/sweeney/plant-controller/internal/metrics"
	"github.com/sweeney/plant-controller/internal/mqtt"
	"github.com/sweeney/plant-controller/internal/photos"
	"github.com/sweeney/plant-controller/internal/sensor"
	"github.com/sweeney/plant-controller/internal/status"
	"github.com/sweeney/plant-controller/internal/watering"
)

// Camera captures photos and reports health.
type Camera interface {
	Capture(ctx context.Context, path string) (source string, err error)
	Stream(ctx context.Context, fn func(frame []byte) error) error
	Health() camera.Health
}

// Deps are the components the server drives.
type Deps struct {
	Tracker *status.Tracker
	Policy  *watering.Policy
	Sensors sensor.Reader
	Camera  Camera
	Photos  *photos.Store
	Metrics *metrics.Metrics

	// Optional.
	Mirror        photos.Mirror
	Publisher     mqtt.Publisher
	MQTTStatus    mqtt.ConnectionStatus
	History       history.Recorder
	StreamEnabled bool
	Now           func() time.Time
}

// Server serves the API and status page over HTTP.
type Server struct {
	httpServer *http.Server
	Deps
}

// New creates a Server listening on addr.
func New(addr string, d Deps) *Server {
	if d.Publisher == nil {
		d.Publisher = mqtt.Discard{}
	}
	if d.History == nil {
		d.History = history.Discard{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	s := &Server{Deps: d}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /index.html", s.handleIndex)
	mux.HandleFunc("GET /index.json", s.handleJSON)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /water", s.handleWater)
	mux.HandleFunc("GET /camera/capture", s.handleCapture)
	mux.HandleFunc("POST /camera/capture", s.handleCapture)
	mux.HandleFunc("GET /camera/stream", s.handleStream)
	mux.HandleFunc("GET /camera/health", s.handleCameraHealth)
	mux.HandleFunc("GET /camera/mjpeg", s.handleMJPEG)
	mux.Handle("GET /photos/", d.Photos.Handler())
	mux.Handle("GET /metrics", d.Metrics.Handler())

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           withCORS(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root handler, including CORS.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// withCORS allows the browser frontend on another origin to call the API.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
			h.Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// apiKey reads the key from the form, query string or X-API-Key header.
func apiKey(r *http.Request) string {
	if k := r.FormValue("api_key"); k != "" {
		return k
	}
	return r.Header.Get("X-API-Key")
}

// refresh pulls live values into the tracker before it is rendered.
func (s *Server) refresh() {
	s.Tracker.SetUsage(s.Policy.Usage())
	if s.Camera != nil {
		h := s.Camera.Health()
		c := status.Camera{Providers: h.Providers, Initialized: h.Initialized}
		if h.Native != nil {
			c.Breaker = h.Native.Breaker
		}
		s.Tracker.SetCamera(c)
	}
	if s.MQTTStatus != nil {
		s.Tracker.SetMQTTConnected(s.MQTTStatus.IsConnected())
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.refresh()
	snap := s.Tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	s.refresh()
	snap := s.Tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}
