package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	bridge "github.com/allbin/serial-bridge"
)

//go:embed static
var staticFS embed.FS

// SerialStatus reports the state of the serial side for /api/status
type SerialStatus interface {
	Connected() bool
	Device() string
}

// SerialWriter accepts data destined for the serial device
type SerialWriter interface {
	Transmit(p []byte) error
}

// Config wires the HTTP layer to the device core
type Config struct {
	Bridge *bridge.Bridge
	Stager *bridge.Stager
	Serial SerialStatus
	Writer SerialWriter
	Auth   *SessionAuth

	// Restart is invoked after any successful update commit, after the
	// response has been written. Nil means no restart.
	Restart func()

	// UpdateTimeout bounds each body read during an update upload.
	// Zero means no per-read deadline.
	UpdateTimeout time.Duration

	Logger zerolog.Logger
}

// Server exposes the websocket terminal, the status API and the update
// endpoints over HTTP.
type Server struct {
	cfg      Config
	router   *mux.Router
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewServer(cfg Config) *Server {
	s := &Server{
		cfg: cfg,
		log: cfg.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The device serves browsers on the local network only
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)
	r.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/api/serial", s.handleSerial).Methods(http.MethodPost)
	r.HandleFunc("/api/update/firmware", s.handleUpdate(bridge.TargetCode)).Methods(http.MethodPost)
	r.HandleFunc("/api/update/data", s.handleUpdate(bridge.TargetData)).Methods(http.MethodPost)

	pages, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	r.PathPrefix("/").Handler(http.FileServer(http.FS(pages)))

	return r
}

// Handler returns the routed handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.log.Info().Str("addr", addr).Msg("http server listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Auth.Authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := newWSClient(conn, s.log)
	go c.writePump()

	s.cfg.Bridge.Subscribe(c)
	s.log.Info().Str("client", c.ID()).Str("remote", r.RemoteAddr).Msg("terminal client connected")

	c.readPump(s.cfg.Bridge.OnClientData)

	s.cfg.Bridge.Unsubscribe(c)
	s.log.Info().Str("client", c.ID()).Msg("terminal client disconnected")
}

type updateStatus struct {
	Target   string `json:"target"`
	Status   string `json:"status"`
	Written  int64  `json:"written"`
	Declared int64  `json:"declared"`
	Capacity int64  `json:"capacity"`
}

type statusResponse struct {
	Connected bool          `json:"connected"`
	Device    string        `json:"device,omitempty"`
	Clients   int           `json:"clients"`
	Update    *updateStatus `json:"update,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Clients: s.cfg.Bridge.ClientCount(),
	}
	if s.cfg.Serial != nil {
		resp.Connected = s.cfg.Serial.Connected()
		resp.Device = s.cfg.Serial.Device()
	}
	if info, ok := s.cfg.Stager.Active(); ok {
		resp.Update = &updateStatus{
			Target:   info.Target.String(),
			Status:   info.Status.String(),
			Written:  info.Written,
			Declared: info.Declared,
			Capacity: info.Capacity,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Auth == nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	token, ok := s.cfg.Auth.Login(r.PostFormValue("password"))
	if !ok {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("failed login attempt")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	http.Redirect(w, r, "/", http.StatusFound)
}

// handleSerial lets HTTP clients transmit without holding a websocket
func (s *Server) handleSerial(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Auth.Authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if s.cfg.Writer == nil {
		http.Error(w, "no serial device", http.StatusServiceUnavailable)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageSize))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if len(body) == 0 {
		http.Error(w, "empty body", http.StatusBadRequest)
		return
	}

	if err := s.cfg.Writer.Transmit(body); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdate(target bridge.TargetKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.Auth.Authorized(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		// ContentLength is -1 for chunked uploads, which the stager
		// accepts as an undeclared length.
		declared := r.ContentLength
		if declared == 0 {
			http.Error(w, "empty body", http.StatusBadRequest)
			return
		}

		sess, err := s.cfg.Stager.Begin(target, declared)
		if err != nil {
			s.updateError(w, err)
			return
		}

		s.log.Info().
			Str("target", target.String()).
			Int64("declared", declared).
			Msg("update started")

		src := &deadlineReader{
			body:    r.Body,
			rc:      http.NewResponseController(w),
			timeout: s.cfg.UpdateTimeout,
		}
		if err := sess.Stream(src); err != nil {
			s.log.Warn().Err(err).Str("target", target.String()).Msg("update stream failed")
			s.updateError(w, err)
			return
		}
		if err := sess.End(); err != nil {
			s.log.Warn().Err(err).Str("target", target.String()).Msg("update commit failed")
			s.updateError(w, err)
			return
		}

		s.log.Info().Str("target", target.String()).Msg("update complete")

		w.Header().Set("Connection", "close")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))

		// The device restarts after a data image too, so the new
		// contents are picked up from a clean state.
		if s.cfg.Restart != nil {
			go s.cfg.Restart()
		}
	}
}

func (s *Server) updateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, bridge.ErrSessionBusy):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, bridge.ErrCapacityExceeded):
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
	case errors.Is(err, bridge.ErrIncomplete):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, bridge.ErrIntegrityCheck):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, bridge.ErrTransportFatal):
		http.Error(w, err.Error(), http.StatusRequestTimeout)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// deadlineReader resets the connection read deadline before every body
// read so a stalled upload surfaces as a timeout error the stager can
// count, instead of hanging the session forever.
type deadlineReader struct {
	body    io.Reader
	rc      *http.ResponseController
	timeout time.Duration
}

func (d *deadlineReader) Read(p []byte) (int, error) {
	if d.timeout > 0 {
		_ = d.rc.SetReadDeadline(time.Now().Add(d.timeout))
	}
	return d.body.Read(p)
}
