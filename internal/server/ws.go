package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/coder/websocket"

	"github.com/MrWong99/saathi/internal/app"
	"github.com/MrWong99/saathi/internal/bridge"
	"github.com/MrWong99/saathi/internal/controller"
	"github.com/MrWong99/saathi/internal/observe"
	"github.com/MrWong99/saathi/pkg/types"
)

// handleWS upgrades the request and runs one conversation over the socket
// until either side closes it.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		// Accept has already written the response.
		return
	}
	ctx := r.Context()
	log := observe.Logger(ctx)
	conn := bridge.New(ws).WithLogger(log)

	sess, err := s.app.Sessions().Open(ctx, conn, conn, app.OpenOptions{Notify: notifyClient(conn)})
	if err != nil {
		log.Error("failed to open session", "err", err)
		_ = ws.Close(websocket.StatusInternalError, "session unavailable")
		return
	}
	log = log.With("session", sess.ID)
	log.Info("browser connected")

	go pumpCommands(ctx, conn, sess)
	if err := conn.Run(ctx); err != nil {
		log.Warn("socket closed with error", "err", err)
	}
	_ = s.app.Sessions().Close(sess.ID)
	log.Info("browser disconnected")
}

// notifyClient forwards controller events to the browser.
func notifyClient(conn *bridge.Conn) func(*app.Session, controller.Event) {
	return func(_ *app.Session, ev controller.Event) {
		switch ev.Type {
		case controller.EventStateChanged:
			conn.SendState(ev.State.String())
		case controller.EventTurnAppended:
			conn.SendTurn(ev.Turn)
		case controller.EventError:
			conn.SendError(ev.Err)
		}
	}
}

// pumpCommands applies client commands to sess until the socket closes.
// Failures the controller already surfaced as events are not repeated.
func pumpCommands(ctx context.Context, conn *bridge.Conn, sess *app.Session) {
	for cmd := range conn.Commands() {
		var err error
		switch cmd {
		case bridge.CommandStart:
			err = sess.Start(ctx)
		case bridge.CommandCancel:
			err = sess.Cancel(ctx)
		case bridge.CommandReset:
			err = sess.Reset(ctx)
		}
		if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, controller.ErrClosed) {
			continue
		}
		if types.KindOf(err) == types.KindUnknown {
			conn.SendError(err)
		}
	}
}
