package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"mindquest-service/internal/app"
	"mindquest-service/internal/domain"
	"mindquest-service/internal/session"
)

// AccountDirectory authenticates players and loads their stored profiles.
type AccountDirectory interface {
	VerifyToken(token string) (string, error)
	Profile(ctx context.Context, userID string) (domain.UserProfile, error)
}

// WSHandler runs one quiz session per websocket connection. The connection
// loop is the sole owner of the session: it serializes the countdown ticker
// against inbound player commands, which is what lets the engine itself stay
// unsynchronized.
type WSHandler struct {
	service  *app.GameService
	accounts AccountDirectory
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.GameService, accounts AccountDirectory) *WSHandler {
	return &WSHandler{
		service:  service,
		accounts: accounts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	Option int `json:"option"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type resultPayload struct {
	Result  domain.SessionResult `json:"result"`
	Profile domain.UserProfile   `json:"profile"`
	// Synced is false when the profile store could not be reached and the
	// profile shown is the optimistic local one, queued for a later sync.
	Synced bool `json:"synced"`
}

// ServeWS upgrades the request and plays a quiz end to end.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizID := r.URL.Query().Get("quizId")
	token := r.URL.Query().Get("token")
	if quizID == "" || token == "" {
		http.Error(w, "missing quizId or token", http.StatusBadRequest)
		return
	}
	userID, err := h.accounts.VerifyToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	// Warm the reconciler with the stored profile so the first completed
	// session accumulates onto real stats instead of a zero profile.
	if _, cached := h.service.Profiles().Profile(userID); !cached {
		if p, err := h.accounts.Profile(r.Context(), userID); err == nil {
			h.service.Profiles().Seed(p)
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sess, err := h.service.NewSession(r.Context(), quizID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}

	send := make(chan any, 16)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	// deliver queues a frame for the writer. It reports false once the writer
	// has exited, so a dead connection can never wedge the loop on a full
	// send buffer.
	deliver := func(msg any) bool {
		select {
		case send <- msg:
			return true
		case <-writerDone:
			return false
		}
	}

	defer func() {
		// A session still running at teardown was abandoned, never reconciled.
		if !sess.Phase().Terminal() {
			_ = sess.Quit()
		}
		close(send)
		<-writerDone
	}()

	inbound := make(chan inboundMessage)
	go func() {
		defer close(inbound)
		for {
			var msg inboundMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			select {
			case inbound <- msg:
			case <-writerDone:
				return
			}
		}
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	if !deliver(outboundMessage[session.State]{Type: "state", Payload: sess.Snapshot()}) {
		return
	}

	for {
		select {
		case <-ticker.C:
			if sess.Phase() != session.PhaseAwaitingAnswer {
				continue
			}
			sess.Tick()
			if !deliver(outboundMessage[session.State]{Type: "state", Payload: sess.Snapshot()}) {
				return
			}

		case msg, ok := <-inbound:
			if !ok {
				return
			}
			if done := h.handleMessage(r, sess, userID, msg, deliver); done {
				return
			}
		}
	}
}

// handleMessage applies one player command. It reports true when the
// connection should wind down, either because the session is over or because
// the writer is gone.
func (h *WSHandler) handleMessage(r *http.Request, sess *session.Session, userID string, msg inboundMessage, deliver func(any) bool) bool {
	switch msg.Type {
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return !deliver(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}})
		}
		if err := sess.Submit(payload.Option); err != nil {
			return !deliver(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		}
		return !deliver(outboundMessage[session.State]{Type: "state", Payload: sess.Snapshot()})

	case "next":
		if err := sess.Advance(); err != nil {
			return !deliver(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		}
		if sess.Phase() != session.PhaseFinished {
			return !deliver(outboundMessage[session.State]{Type: "state", Payload: sess.Snapshot()})
		}

		result, updated, err := h.service.CompleteSession(r.Context(), userID, sess)
		synced := err == nil
		if err != nil && !errors.Is(err, domain.ErrStoreUnavailable) {
			// Auth/validation problems still leave the optimistic profile
			// usable; surface the condition alongside it.
			log.Printf("profile sync failed for user %s: %v", userID, err)
		}
		deliver(outboundMessage[resultPayload]{Type: "result", Payload: resultPayload{
			Result:  result,
			Profile: updated,
			Synced:  synced,
		}})
		return true

	case "quit":
		if err := sess.Quit(); err != nil {
			return !deliver(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		}
		deliver(outboundMessage[session.State]{Type: "state", Payload: sess.Snapshot()})
		return true

	default:
		return !deliver(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
	}
}
