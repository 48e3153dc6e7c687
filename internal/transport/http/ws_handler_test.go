package http

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"pair-quiz-service/internal/domain"
)

func TestWebSocketAnswerFlow(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, &alice, http.MethodPost, RoutePrefix+"/pairs/connection", nil)
	conn := dialWS(t, env, alice)

	// Expect the pending game first.
	_, payload := readNext(conn, t, messageGame)
	if payload["status"] != string(domain.StatusPendingSecondPlayer) {
		t.Fatalf("expected pending game, got %v", payload["status"])
	}

	// bob joining is pushed to alice.
	env.do(t, &bob, http.MethodPost, RoutePrefix+"/pairs/connection", nil)
	_, payload = readNext(conn, t, messageGame)
	if payload["status"] != string(domain.StatusActive) {
		t.Fatalf("expected active game, got %v", payload["status"])
	}

	answer := map[string]any{
		"type":    messageAnswer,
		"payload": map[string]any{"answer": "definitely wrong"},
	}
	if err := conn.WriteJSON(answer); err != nil {
		t.Fatalf("write answer: %v", err)
	}

	// Expect answerResult and the game update, in either order.
	answerSeen := false
	gameSeen := false
	for i := 0; i < 4 && !(answerSeen && gameSeen); i++ {
		typ, payload := readNext(conn, t, "")
		switch typ {
		case messageAnswerResult:
			answerSeen = payload["answerStatus"] == string(domain.AnswerIncorrect)
		case messageGame:
			progress, _ := payload["firstPlayerProgress"].(map[string]any)
			answers, _ := progress["answers"].([]any)
			gameSeen = gameSeen || len(answers) == 1
		}
	}
	if !answerSeen || !gameSeen {
		t.Fatalf("expected answerResult and game update, got answerResult=%v game=%v", answerSeen, gameSeen)
	}

	if err := conn.WriteJSON(map[string]any{"type": "ping"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, payload = readNext(conn, t, messageError)
	if payload["message"] != "unsupported message type" {
		t.Fatalf("unexpected error payload %v", payload)
	}
}

func TestWebSocketRequiresCurrentGame(t *testing.T) {
	env := newTestEnv(t)

	token, _ := env.auth.SignToken(carol)
	u := "ws" + strings.TrimPrefix(env.server.URL, "http") + RoutePrefix + "/pairs/my-current/ws?access_token=" + token
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected handshake to fail without a game")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 before upgrade, got %+v", resp)
	}
}

func dialWS(t *testing.T, env *testEnv, player domain.Player) *websocket.Conn {
	t.Helper()
	token, err := env.auth.SignToken(player)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	u := "ws" + strings.TrimPrefix(env.server.URL, "http") + RoutePrefix + "/pairs/my-current/ws?access_token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Type, msg.Payload
}
