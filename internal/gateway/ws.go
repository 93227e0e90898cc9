package gateway

import (
	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/lllypuk/teamboard/internal/dispatch"
	"github.com/lllypuk/teamboard/internal/hub"
)

// handleWebSocket upgrades the connection and attaches it to the hub. The
// socket speaks the same line protocol as the TCP listener: each text frame
// is one command line, each outbound frame one reply or broadcast.
func (g *Gateway) handleWebSocket(c echo.Context) error {
	conn, err := g.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		g.logger.Error("websocket upgrade failed", slog.Any("error", err))
		return nil
	}

	clientOpts := []hub.ClientOption{hub.WithClientLogger(g.logger)}
	if g.config.SendBufferSize > 0 {
		clientOpts = append(clientOpts, hub.WithSendBufferSize(g.config.SendBufferSize))
	}
	client := hub.NewClient(g.hub, &wsConn{conn: conn}, clientOpts...)
	g.hub.Register(client)

	g.logger.Info("websocket client connected",
		slog.String("conn_id", client.ID()),
		slog.String("remote", conn.RemoteAddr().String()),
	)

	client.Send(dispatch.WelcomeLine)

	go client.WritePump()
	client.ReadPump(g.dispatcher.Handle)
	return nil
}

// wsConn adapts a gorilla websocket connection to the hub.Conn framing: one
// command line per text message.
type wsConn struct {
	conn *websocket.Conn
}

func (w *wsConn) ReadFrame() (string, error) {
	for {
		messageType, payload, err := w.conn.ReadMessage()
		if err != nil {
			return "", err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		return string(payload), nil
	}
}

func (w *wsConn) WriteFrame(line string) error {
	return w.conn.WriteMessage(websocket.TextMessage, []byte(line))
}

func (w *wsConn) Close() error {
	return w.conn.Close()
}
