// internal/handlers/game_ws.go
package handlers

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/goldrush-io/goldrush/internal/game"
	"github.com/goldrush-io/goldrush/internal/middleware"
)

// wsCommand is an inbound WebSocket frame.
type wsCommand struct {
	Type    string `json:"type"` // "start", "move" or "chat"
	Move    string `json:"move,omitempty"`
	Message string `json:"message,omitempty"`
}

// GameWSHandler upgrades to a WebSocket and streams the same frames the
// long-poll endpoint serves, pushed as the game advances instead of
// re-polled. Inbound frames carry start votes, moves and chat; errors
// come back as {"error": reason} frames without closing the stream.
//
// GET /{game}/ws?id=N.
func (s *Server) GameWSHandler(w http.ResponseWriter, r *http.Request) {
	gameName := r.PathValue("game")
	player, _ := s.playerFor(r, gameName)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.Logger.WithError(err).Warn("websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "server error")

	middleware.LogWebSocketConnect(s.Logger, r.RemoteAddr, r.URL.Path)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Push loop: each Info call blocks until the log moves past the
	// frame we just sent.
	go func() {
		defer cancel()
		sinceID := parseID(r)
		for {
			info, err := s.Svc.Info(ctx, gameName, player, sinceID)
			if err != nil {
				return
			}
			if err := wsjson.Write(ctx, conn, info); err != nil {
				return
			}
			sinceID = info.ID
		}
	}()

	var readErr error
	for {
		var cmd wsCommand
		if readErr = wsjson.Read(ctx, conn, &cmd); readErr != nil {
			break
		}
		if err := s.dispatchCommand(ctx, gameName, player, cmd); err != nil {
			reason := "internal error"
			if rr, ok := game.Rejection(err); ok {
				reason = rr
			} else {
				s.Logger.WithError(err).WithField("game", gameName).Error("websocket command failed")
			}
			_ = wsjson.Write(ctx, conn, map[string]string{"error": reason})
		}
	}
	cancel()

	middleware.LogWebSocketDisconnect(s.Logger, r.RemoteAddr, r.URL.Path, readErr)
	conn.Close(websocket.StatusNormalClosure, "")
}

func (s *Server) dispatchCommand(ctx context.Context, gameName, player string, cmd wsCommand) error {
	if player == "" {
		return &game.RejectError{Reason: "join the game before acting in it"}
	}
	switch cmd.Type {
	case "start":
		return s.Svc.Start(ctx, gameName, player)
	case "move":
		return s.Svc.Move(ctx, gameName, player, cmd.Move)
	case "chat":
		return s.Svc.Chat(ctx, gameName, player, cmd.Message, false)
	default:
		return &game.RejectError{Reason: "unknown command type " + cmd.Type}
	}
}
