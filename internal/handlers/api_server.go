// internal/handlers/api_server.go
//
// HTTP surface of the engine. Game names live in the URL path, player
// identity in a signed per-game cookie, and reads long-poll with an
// ?id=N watermark.
package handlers

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/goldrush-io/goldrush/internal/auth"
	"github.com/goldrush-io/goldrush/internal/game"
	"github.com/goldrush-io/goldrush/internal/middleware"
)

const defaultPollTimeout = 20 * time.Second

// Server bundles the handlers with their dependencies.
type Server struct {
	Svc         *game.Service
	Logger      *logrus.Logger
	PollTimeout time.Duration
}

// NewServer builds a Server. The long-poll timeout comes from the
// LONGPOLL_TIMEOUT env var (a Go duration string, default 20s).
func NewServer(svc *game.Service, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	timeout := defaultPollTimeout
	if v := os.Getenv("LONGPOLL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			timeout = d
		} else {
			logger.WithField("value", v).Warn("ignoring invalid LONGPOLL_TIMEOUT")
		}
	}
	return &Server{Svc: svc, Logger: logger, PollTimeout: timeout}
}

// Routes assembles the request mux.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.IndexHandler)
	mux.HandleFunc("GET /{game}", s.InfoHandler)
	mux.HandleFunc("GET /{game}/{$}", s.InfoHandler)
	mux.HandleFunc("POST /{game}/join", s.JoinHandler)
	mux.HandleFunc("POST /{game}/start", s.StartHandler)
	mux.HandleFunc("POST /{game}/move", s.MoveHandler)
	mux.HandleFunc("POST /{game}/chat", s.ChatHandler)
	mux.HandleFunc("GET /{game}/ws", s.GameWSHandler)
	return middleware.LogMiddleware(s.Logger)(mux)
}

// cookieName derives the per-game session cookie name. Game names can
// contain anything URL-decodable, so the name part is base64url.
func cookieName(gameName string) string {
	return "goldrush_" + base64.RawURLEncoding.EncodeToString([]byte(gameName))
}

// playerFor resolves the requesting player from the game's session
// cookie. Absent or invalid cookies are not an error condition for
// read endpoints; callers that need identity check the error.
func (s *Server) playerFor(r *http.Request, gameName string) (string, error) {
	c, err := r.Cookie(cookieName(gameName))
	if err != nil {
		return "", err
	}
	return auth.AuthenticateGameToken(c.Value, gameName)
}

func (s *Server) issueToken(gameName, player string) (string, error) {
	return auth.CreateGameToken(gameName, player)
}

// parseID reads the ?id=N long-poll watermark; missing or malformed
// means "answer immediately".
func parseID(r *http.Request) int64 {
	v := r.URL.Query().Get("id")
	if v == "" {
		return -1
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return -1
	}
	return id
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeGameError maps engine errors onto HTTP: rejections are the
// caller's fault, everything else is ours.
func (s *Server) writeGameError(w http.ResponseWriter, err error) {
	if reason, ok := game.Rejection(err); ok {
		writeError(w, http.StatusBadRequest, reason)
		return
	}
	s.Logger.WithError(err).Error("game operation failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}
