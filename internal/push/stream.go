package push

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"coffeenet/internal/models"

	"github.com/gorilla/websocket"
)

// Stream is the viewer side of a push connection.
type Stream struct {
	ws *websocket.Conn
}

// Dial opens a push connection. url is a ws:// or wss:// address that
// already carries the session token.
func Dial(ctx context.Context, url string) (*Stream, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
	}
	ws, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("dial push channel: %w", models.ErrUnauthorized)
		}
		return nil, fmt.Errorf("dial push channel: %w: %v", models.ErrChannelDisconnected, err)
	}

	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait + pingPeriod))
	ws.SetPingHandler(func(data string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait + pingPeriod))
		return ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})
	return &Stream{ws: ws}, nil
}

// Next blocks for the next envelope. Any failure, including a clean close
// by the server, is reported as models.ErrChannelDisconnected.
func (s *Stream) Next() (Envelope, error) {
	_, data, err := s.ws.ReadMessage()
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", models.ErrChannelDisconnected, err)
	}
	s.ws.SetReadDeadline(time.Now().Add(pongWait + pingPeriod))

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: malformed frame: %v", models.ErrChannelDisconnected, err)
	}
	return env, nil
}

// Close ends the connection; a blocked Next returns an error.
func (s *Stream) Close() error {
	return s.ws.Close()
}
