package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/tinredperu/jack/internal/dialog/orchestrator"
)

// wsTurnTimeout bounds one conversational turn on the console. Issuance waits
// on a synchronous SUNAT round trip, so this must exceed the emit timeout.
const wsTurnTimeout = 2 * time.Minute

// wsFrame is one console message. Phone is fixed per connection via the
// ?phone= query parameter; frames carry only the message body.
type wsFrame struct {
	Message string `json:"message"`
	Audio   []byte `json:"audio,omitempty"`
}

type wsReply struct {
	Reply string `json:"reply,omitempty"`
	Error string `json:"error,omitempty"`
}

// handleWS runs the operator console: a websocket bound to a single phone
// number, exchanging one reply per inbound frame. It exists so support staff
// can drive a customer's session without going through WhatsApp.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	phone := r.URL.Query().Get("phone")
	if phone == "" {
		http.Error(w, "phone query parameter is required", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("server: websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxBodyBytes)

	slog.Info("server: console attached", "phone", phone)

	ctx := r.Context()
	for {
		var frame wsFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || ctx.Err() != nil {
				slog.Info("server: console detached", "phone", phone)
				return
			}
			slog.Warn("server: console read failed", "phone", phone, "error", err)
			return
		}

		reply, err := s.consoleTurn(ctx, phone, frame)
		out := wsReply{Reply: reply}
		if err != nil {
			slog.Error("server: console turn failed", "phone", phone, "error", err)
			out = wsReply{Error: "internal error"}
		}
		if err := wsjson.Write(ctx, conn, out); err != nil {
			slog.Warn("server: console write failed", "phone", phone, "error", err)
			return
		}
	}
}

func (s *Server) consoleTurn(ctx context.Context, phone string, frame wsFrame) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, wsTurnTimeout)
	defer cancel()
	return s.conv.Handle(ctx, orchestrator.Request{
		Phone: phone,
		Text:  frame.Message,
		Audio: frame.Audio,
	})
}
