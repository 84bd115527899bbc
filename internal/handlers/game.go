// internal/handlers/game.go
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// JoinHandler adds the posted player to the game and hands back a
// signed session cookie scoped to that game.
//
// POST /{game}/join, form field "player".
func (s *Server) JoinHandler(w http.ResponseWriter, r *http.Request) {
	gameName := r.PathValue("game")
	player := strings.TrimSpace(r.PostFormValue("player"))
	if player == "" {
		writeError(w, http.StatusBadRequest, "a player name is required to join")
		return
	}
	if existing, err := s.playerFor(r, gameName); err == nil && existing != "" {
		writeError(w, http.StatusBadRequest, "you already joined this game as "+existing)
		return
	}

	if err := s.Svc.Join(r.Context(), gameName, player); err != nil {
		s.writeGameError(w, err)
		return
	}

	token, err := s.issueToken(gameName, player)
	if err != nil {
		s.Logger.WithError(err).Error("failed to sign session token")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName(gameName),
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"player": player})
}

// StartHandler records the requesting player's vote to begin.
//
// POST /{game}/start.
func (s *Server) StartHandler(w http.ResponseWriter, r *http.Request) {
	s.withPlayer(w, r, func(ctx context.Context, gameName, player string) error {
		return s.Svc.Start(ctx, gameName, player)
	})
}

// MoveHandler submits the requesting player's choice for the current
// deal.
//
// POST /{game}/move, form field "move" ("lando" or "han").
func (s *Server) MoveHandler(w http.ResponseWriter, r *http.Request) {
	move := r.PostFormValue("move")
	s.withPlayer(w, r, func(ctx context.Context, gameName, player string) error {
		return s.Svc.Move(ctx, gameName, player, move)
	})
}

// ChatHandler appends a chat message from the requesting player.
//
// POST /{game}/chat, form field "message".
func (s *Server) ChatHandler(w http.ResponseWriter, r *http.Request) {
	message := strings.TrimSpace(r.PostFormValue("message"))
	if message == "" {
		writeError(w, http.StatusBadRequest, "an empty message says nothing")
		return
	}
	s.withPlayer(w, r, func(ctx context.Context, gameName, player string) error {
		return s.Svc.Chat(ctx, gameName, player, message, false)
	})
}

// InfoHandler is the long-poll read: with ?id=N it blocks until the
// game's log moves past N or the poll timeout fires (204), without it
// the current view comes back immediately. The session cookie, when
// present, adds the private "you" section.
//
// GET /{game}?id=N.
func (s *Server) InfoHandler(w http.ResponseWriter, r *http.Request) {
	gameName := r.PathValue("game")
	player, _ := s.playerFor(r, gameName)

	ctx, cancel := context.WithTimeout(r.Context(), s.PollTimeout)
	defer cancel()

	info, err := s.Svc.Info(ctx, gameName, player, parseID(r))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		s.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// IndexHandler is the lobby listing, long-polled the same way as game
// info: most recently created game first.
//
// GET /?id=N.
func (s *Server) IndexHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.PollTimeout)
	defer cancel()

	list, err := s.Svc.Games(ctx, parseID(r))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		s.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// withPlayer runs op with the identity from the session cookie, or
// rejects the request when there is none.
func (s *Server) withPlayer(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, gameName, player string) error) {
	gameName := r.PathValue("game")
	player, err := s.playerFor(r, gameName)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "join the game before acting in it")
		return
	}
	if err := op(r.Context(), gameName, player); err != nil {
		s.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
