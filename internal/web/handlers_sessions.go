package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/csvpreview/internal/logging"
	"github.com/JonMunkholm/csvpreview/internal/preview"
	"github.com/JonMunkholm/csvpreview/internal/source"
)

// keepAliveInterval is how often an idle event stream sends a comment.
const keepAliveInterval = 15 * time.Second

// maxOptionsBody bounds a parse options document.
const maxOptionsBody = 4 << 10

// sessionResponse describes a session and its latest state.
type sessionResponse struct {
	ID        string        `json:"id"`
	CreatedAt time.Time     `json:"created_at"`
	ExpiresAt time.Time     `json:"expires_at"`
	Valid     bool          `json:"valid"`
	State     preview.State `json:"state"`
}

func (s *Server) sessionView(sess *Session) sessionResponse {
	st := sess.Previewer.Snapshot()
	return sessionResponse{
		ID:        sess.ID,
		CreatedAt: sess.CreatedAt,
		ExpiresAt: s.sessions.ExpiresAt(sess),
		Valid:     !st.Running && st.Valid(),
		State:     st,
	}
}

// handleCreateSession opens a session. An optional JSON body sets the
// initial parse options.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	opts, hasOpts, err := decodeOptions(w, r)
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}

	sess, err := s.sessions.Create()
	if err != nil {
		respondError(w, r, err, http.StatusServiceUnavailable)
		return
	}
	if hasOpts {
		sess.Previewer.SetParseOptions(opts)
	}

	logging.WithFields(r.Context(), "session_id", sess.ID).Info("preview session created")
	writeJSONStatus(w, http.StatusCreated, s.sessionView(sess))
}

// handleGetSession returns the current state of a session.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, r, err, http.StatusNotFound)
		return
	}
	writeJSON(w, s.sessionView(sess))
}

// handleDeleteSession closes a session and removes its file.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := s.sessions.Delete(id); err != nil {
		respondError(w, r, err, http.StatusNotFound)
		return
	}

	logging.WithFields(r.Context(), "session_id", id).Info("preview session deleted")
	w.WriteHeader(http.StatusNoContent)
}

// handleSessionFile replaces the session's file. The preview runs in the
// background; the new state arrives on the event stream.
func (s *Server) handleSessionFile(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, r, err, http.StatusNotFound)
		return
	}

	fh, _, status, err := s.parseUpload(w, r)
	defer cleanupMultipart(r)
	if err != nil {
		respondError(w, r, err, status)
		return
	}

	part, err := fh.Open()
	if err != nil {
		respondError(w, r, fmt.Errorf("spool %s: %w", fh.Filename, err), http.StatusInternalServerError)
		return
	}
	defer part.Close()

	spooled, err := source.Spool(fh.Filename, part, s.sessions.cfg.SpoolDir)
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	sess.SetFile(spooled)

	logging.WithFields(r.Context(), "session_id", sess.ID).Info("session file replaced",
		"file", spooled.Name(),
		"size", spooled.Size(),
	)
	writeJSONStatus(w, http.StatusAccepted, s.sessionView(sess))
}

// handleSessionOptions replaces the session's parse options.
func (s *Server) handleSessionOptions(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, r, err, http.StatusNotFound)
		return
	}

	opts, ok, err := decodeOptions(w, r)
	if err == nil && !ok {
		err = errors.New("invalid options: empty body")
	}
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}

	sess.Previewer.SetParseOptions(opts)
	writeJSONStatus(w, http.StatusAccepted, s.sessionView(sess))
}

// handleSessionEvents streams session states via Server-Sent Events. Every
// state is sent as a "state" event whose ID is the run ID; a client
// reconnecting with Last-Event-ID skips older runs. A "closed" event ends
// the stream when the session goes away.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, r, err, http.StatusNotFound)
		return
	}

	lastEventID := r.Header.Get("Last-Event-ID")
	if lastEventID == "" {
		lastEventID = r.URL.Query().Get("lastEventId")
	}
	var lastRunID uint64
	if lastEventID != "" {
		lastRunID, _ = strconv.ParseUint(lastEventID, 10, 64)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)
	if err := rc.Flush(); errors.Is(err, http.ErrNotSupported) {
		respondError(w, r, errors.New("streaming not supported"), http.StatusInternalServerError)
		return
	}
	// Streams outlive SERVER_WRITE_TIMEOUT when one is configured.
	_ = rc.SetWriteDeadline(time.Time{})

	sess.streams.Add(1)
	defer func() {
		sess.streams.Add(-1)
		sess.touch(time.Now())
	}()

	states, unsubscribe := sess.Previewer.Subscribe()
	defer unsubscribe()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case st, ok := <-states:
			if !ok {
				fmt.Fprint(w, "event: closed\ndata: {}\n\n")
				rc.Flush()
				return
			}
			if st.RunID < lastRunID {
				continue
			}

			data, err := json.Marshal(st)
			if err != nil {
				logging.FromContext(r.Context()).Error("encode session state", "error", err)
				continue
			}
			fmt.Fprintf(w, "id: %d\nevent: state\ndata: %s\n\n", st.RunID, data)
			if err := rc.Flush(); err != nil {
				return
			}

		case <-keepAlive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			if err := rc.Flush(); err != nil {
				return
			}

		case <-r.Context().Done():
			return
		}
	}
}

// decodeOptions reads an optional JSON ParseOptions body. ok is false for
// an empty body.
func decodeOptions(w http.ResponseWriter, r *http.Request) (opts preview.ParseOptions, ok bool, err error) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxOptionsBody))
	dec.DisallowUnknownFields()

	if err := dec.Decode(&opts); err != nil {
		if errors.Is(err, io.EOF) {
			return preview.ParseOptions{}, false, nil
		}
		return preview.ParseOptions{}, false, fmt.Errorf("invalid options: %w", err)
	}
	return opts, true, nil
}
