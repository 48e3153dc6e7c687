package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"pair-quiz-service/internal/app"
	"pair-quiz-service/internal/logging"
)

// WSHandler streams the caller's current game over a websocket and accepts answers on it.
type WSHandler struct {
	service  *app.PairGameService
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.PairGameService, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// origins are enforced by the CORS layer in front of the router
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	Answer string `json:"answer"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

const (
	messageGame         = "game"
	messageAnswerResult = "answerResult"
	messageError        = "error"
	messageAnswer       = "answer"
)

// ServeWS upgrades the request once the caller is known to have a current game. The first
// message is the current view; every later change of the game is pushed as it happens.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	player, ok := PlayerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authorization required")
		return
	}

	updates, cancel, err := h.service.Subscribe(r.Context(), player.ID)
	if err != nil {
		status := statusFor(err)
		writeError(w, status, publicMessage(err, status))
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error(h.logger, "ws upgrade failed", err, logging.FieldUserID, player.ID)
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// single writer: gorilla connections allow one concurrent writer only
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				logging.Debug(h.logger, "ws write failed", logging.FieldUserID, player.ID, "error", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case view, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: messageGame, Payload: view}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		var reply outboundMessage[any]
		switch inbound.Type {
		case messageAnswer:
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				reply = outboundMessage[any]{Type: messageError, Payload: errorPayload{Message: "invalid answer payload"}}
				break
			}
			result, err := h.service.SubmitAnswer(r.Context(), player.ID, payload.Answer)
			if err != nil {
				status := statusFor(err)
				if status == http.StatusInternalServerError {
					logging.Error(h.logger, "ws answer failed", err, logging.FieldUserID, player.ID)
				}
				reply = outboundMessage[any]{Type: messageError, Payload: errorPayload{Message: publicMessage(err, status)}}
				break
			}
			reply = outboundMessage[any]{Type: messageAnswerResult, Payload: result}
		default:
			reply = outboundMessage[any]{Type: messageError, Payload: errorPayload{Message: "unsupported message type"}}
		}
		select {
		case send <- reply:
		case <-writerDone:
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}
