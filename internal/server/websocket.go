package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"camstudio/internal/session"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // ローカルで動かすアプリのため全て許可
	},
}

// wsMessage はWebSocketで送るメッセージ
type wsMessage struct {
	Event string         `json:"event"`
	Data  session.Status `json:"data"`
}

// StatusWebSocket は録画状態が変わるたびにクライアントへ送る
func (h *Handler) StatusWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	updates := make(chan session.Status, 16)
	unsubscribe := h.controller.Subscribe(func(s session.Status) {
		select {
		case updates <- s:
		default:
			// 遅いクライアントには間引いて送る
		}
	})
	defer unsubscribe()

	// 読み取りはクライアントの切断検知とpongの受信のためだけに行う
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(4096)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	send := func(s session.Status) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(wsMessage{Event: "status", Data: s}) == nil
	}

	// 接続直後に現在の状態を送る
	if !send(h.controller.Status()) {
		return
	}

	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			// サーバーのシャットダウン
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(wsWriteWait))
			return
		case s := <-updates:
			if !send(s) {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
