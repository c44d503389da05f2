package devserver

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"argus/internal/logging"
	"argus/internal/session"
	"argus/internal/stream"
)

const maxUploadMemory = 32 << 20

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	message := r.FormValue("message")
	if message == "" {
		http.Error(w, "message is required", http.StatusUnprocessableEntity)
		return
	}
	_, hasFile := r.Form["file_path"]

	id, st := s.session(w, r)
	n, summarized := s.nextTurn(st)
	turn := Turn{Message: message, FilePath: r.FormValue("file_path"), Number: n}

	log := logging.WithRequestID(logging.CategoryDevServer, r.Header.Get("X-Request-ID")).
		WithField("session", id).WithField("turn", n)
	log.Info("chat message_len=%d file_path=%v", len(message), hasFile)

	chunks := append([]string(nil), s.opts.Reply(turn)...)
	if summarized && len(chunks) > 0 {
		log.Info("history summarized, flagging token warning")
		chunks[0] += stream.TokenWarningMarker
	}
	s.writeChunks(w, r, chunks)
}

// writeChunks streams chunks with a flush and a pause after each one. It
// stops early if the client goes away.
func (s *Server) writeChunks(w http.ResponseWriter, r *http.Request, chunks []string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	for i, c := range chunks {
		if i > 0 && s.opts.ChunkDelay > 0 {
			select {
			case <-r.Context().Done():
				logging.DevServer("client went away after %d/%d chunks", i, len(chunks))
				return
			case <-time.After(s.opts.ChunkDelay):
			}
		}
		if _, err := io.WriteString(w, c); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		http.Error(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file is required", http.StatusUnprocessableEntity)
		return
	}
	defer file.Close()

	name := filepath.Base(hdr.Filename)
	if name == "." || name == string(filepath.Separator) || name == "" {
		http.Error(w, "invalid filename", http.StatusBadRequest)
		return
	}
	dst := filepath.Join(s.opts.UploadDir, name)

	out, err := os.Create(dst)
	if err != nil {
		logging.DevServerWarn("upload create %s: %v", dst, err)
		http.Error(w, "failed to store file", http.StatusInternalServerError)
		return
	}
	n, err := io.Copy(out, file)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		logging.DevServerWarn("upload write %s: %v", dst, err)
		http.Error(w, "failed to store file", http.StatusInternalServerError)
		return
	}

	logging.DevServer("stored upload %s (%d bytes)", dst, n)
	writeJSON(w, http.StatusOK, session.Attachment{Path: dst, Filename: name})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	id, _ := s.session(w, r)
	s.resetSession(id)
	logging.DevServer("session %s reset", id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.opts.MetricsPath != "" {
		data, err := os.ReadFile(s.opts.MetricsPath)
		if err == nil && json.Valid(data) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(data)
			return
		}
		logging.DevServerWarn("metrics file %s unusable (err=%v), serving fixture", s.opts.MetricsPath, err)
	}
	writeJSON(w, http.StatusOK, FixtureMetrics())
}

func (s *Server) handleSimulation(w http.ResponseWriter, r *http.Request) {
	s.writeChunks(w, r, s.opts.Simulation)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.DevServerWarn("encode response: %v", err)
	}
}

// FixtureMetrics is served when no metrics file is configured.
func FixtureMetrics() map[string]interface{} {
	return map[string]interface{}{
		"ml_platform": map[string]interface{}{
			"champion":           "LightGBM",
			"registered_version": 3,
			"validation": map[string]interface{}{
				"overall": "PASS",
				"checks": []map[string]string{
					{"check": "null_rate", "status": "PASS", "detail": "max_null_rate=0.0000"},
					{"check": "data_drift_psi", "status": "PASS", "detail": fmt.Sprintf("psi=%.4f (threshold=0.2)", 0.0412)},
				},
			},
		},
		"realtime_ml": map[string]interface{}{
			"metrics": map[string]float64{
				"p50": 1.8731,
				"p95": 4.1027,
				"p99": 7.5519,
			},
		},
	}
}
