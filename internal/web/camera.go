package web

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sweeney/plant-controller/internal/camera"
)

// CaptureResponse is the POST /camera/capture response.
type CaptureResponse struct {
	OK          bool   `json:"ok"`
	URL         string `json:"url"`
	Placeholder bool   `json:"placeholder,omitempty"`
	Error       string `json:"error,omitempty"`
}

// CameraHealthResponse is the /camera/health response.
type CameraHealthResponse struct {
	OK     bool             `json:"ok"`
	Camera CameraHealthJSON `json:"camera"`
}

// CameraHealthJSON describes camera readiness without capturing.
type CameraHealthJSON struct {
	APIKeySet            bool           `json:"api_key_set"`
	DriverAvailable      bool           `json:"driver_available"`
	SingletonInitialized bool           `json:"singleton_initialized"`
	PhotosDirWritable    bool           `json:"photos_dir_writable"`
	Providers            []string       `json:"providers"`
	NativeTool           string         `json:"native_tool,omitempty"`
	StillTool            string         `json:"still_tool,omitempty"`
	Breaker              string         `json:"breaker,omitempty"`
	LastReset            *LastResetJSON `json:"last_reset"`
}

// LastResetJSON is the outcome of the most recent hard reset.
type LastResetJSON struct {
	At    string `json:"at"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// photo is the outcome of a capture attempt that produced a file.
type photo struct {
	path        string
	source      string
	placeholder bool
	cause       error // why a placeholder was written
}

// takePhoto runs the camera chain and falls back to a placeholder image.
// It only fails if the placeholder cannot be written either.
func (s *Server) takePhoto(r *http.Request) (photo, error) {
	path := s.Photos.NewPhotoPath()
	source, err := s.Camera.Capture(r.Context(), path)
	if err == nil {
		s.recordPhoto(path, source)
		return photo{path: path, source: source}, nil
	}

	log.Printf("camera: %v", err)
	if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		log.Printf("camera: remove partial %s: %v", filepath.Base(path), rmErr)
	}
	ph := s.Photos.NewPlaceholderPath()
	if perr := camera.WritePlaceholder(ph, "Camera unavailable\n"+err.Error()); perr != nil {
		return photo{}, fmt.Errorf("%w (placeholder: %v)", err, perr)
	}
	s.recordPhoto(ph, camera.SourcePlaceholder)
	return photo{path: ph, source: camera.SourcePlaceholder, placeholder: true, cause: err}, nil
}

func (s *Server) recordPhoto(path, source string) {
	s.Metrics.CameraCapture(source)
	s.Tracker.RecordCapture(s.Now(), source)
	if s.Mirror != nil && source != camera.SourcePlaceholder {
		s.Mirror.Mirror(path)
	}
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(w, r) {
		return
	}
	p, err := s.takePhoto(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	url := s.Photos.URL(p.path)
	if r.Method == http.MethodGet {
		http.Redirect(w, r, url, http.StatusFound)
		return
	}
	resp := CaptureResponse{OK: true, URL: url, Placeholder: p.placeholder}
	if p.cause != nil {
		resp.Error = p.cause.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(w, r) {
		return
	}
	p, err := s.takePhoto(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	data, err := os.ReadFile(p.path)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h := w.Header()
	h.Set("Content-Type", "image/jpeg")
	h.Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", filepath.Base(p.path)))
	h.Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	h.Set("Pragma", "no-cache")
	h.Set("X-Photo-Source", p.source)
	w.Write(data)
}

func (s *Server) handleCameraHealth(w http.ResponseWriter, r *http.Request) {
	h := s.Camera.Health()
	resp := CameraHealthJSON{
		APIKeySet:            s.Policy.KeySet(),
		DriverAvailable:      h.NativeTool != "" || h.StillTool != "",
		SingletonInitialized: h.Initialized,
		PhotosDirWritable:    s.Photos.Writable(),
		Providers:            h.Providers,
		NativeTool:           h.NativeTool,
		StillTool:            h.StillTool,
	}
	if resp.Providers == nil {
		resp.Providers = []string{}
	}
	if h.Native != nil {
		resp.Breaker = h.Native.Breaker
		if lr := h.Native.LastReset; !lr.At.IsZero() {
			resp.LastReset = &LastResetJSON{
				At:    lr.At.UTC().Format(time.RFC3339),
				OK:    lr.OK,
				Error: errString(lr.Err),
			}
		}
	}
	writeJSON(w, http.StatusOK, CameraHealthResponse{OK: true, Camera: resp})
}

const mjpegBoundary = "frame"

func (s *Server) handleMJPEG(w http.ResponseWriter, r *http.Request) {
	if !s.StreamEnabled {
		writeError(w, http.StatusServiceUnavailable, "camera_stream_disabled")
		return
	}
	if !s.authorized(w, r) {
		return
	}

	flusher, _ := w.(http.Flusher)
	started := false
	err := s.Camera.Stream(r.Context(), func(frame []byte) error {
		if !started {
			h := w.Header()
			h.Set("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
			h.Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
			h.Set("Pragma", "no-cache")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", mjpegBoundary, len(frame)); err != nil {
			return err
		}
		if _, err := w.Write(frame); err != nil {
			return err
		}
		if _, err := w.Write([]byte("\r\n")); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	if !started {
		log.Printf("camera: mjpeg: %v", err)
		writeError(w, http.StatusServiceUnavailable, "camera_unavailable")
		return
	}
	if err != nil && r.Context().Err() == nil {
		log.Printf("camera: mjpeg stream ended: %v", err)
	}
}
