package api

import (
	"encoding/json"
	"errors"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/dmweis/hamilton/domain/navigation"
	"github.com/dmweis/hamilton/pkg/bus"
	message "github.com/dmweis/hamilton/pkg/flatbuffers/hamilton/message"
)

const posePushInterval = 100 * time.Millisecond

// MapWebSocketHandler streams the fused pose to the map UI and routes
// canvas touches it sends through the HIGH priority pool.
func MapWebSocketHandler(conn *websocket.Conn, deps Deps) {
	logger := deps.Logger.WithField("remote", conn.RemoteAddr().String())
	logger.Infof("Map WebSocket connected")

	done := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		pushPose(conn, deps, done)
	}()

	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Errorf("Map WS read error: %v", err)
			} else if !errors.Is(err, syscall.EPIPE) && !errors.Is(err, syscall.ECONNRESET) {
				logger.Infof("Map WS connection closed: %v", err)
			}
			break
		}
		if mt != websocket.TextMessage {
			logger.Debugf("Ignoring non-text Map WS message type: %d", mt)
			continue
		}

		// validate before routing, the pool would only log it
		var touch navigation.CanvasTouch
		if err := json.Unmarshal(msg, &touch); err != nil {
			logger.Warnf("Failed to unmarshal canvas touch from WS: %v", err)
			continue
		}

		routeErr := deps.Director.RouteMessage(&bus.Message{
			Topic:       deps.CanvasTopic,
			TimestampNs: deps.Clock.Now().UnixNano(),
			ContentType: message.ContentTypeJSON,
			Payload:     msg,
		})
		if routeErr != nil {
			logger.Errorf("Failed to route canvas touch: %v", routeErr)
		}
	}

	close(done)
	<-writerDone
	logger.Infof("Map WebSocket disconnected")
}

func pushPose(conn *websocket.Conn, deps Deps, done <-chan struct{}) {
	ticker := deps.Clock.Ticker(posePushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case now := <-ticker.C:
			est, ok := deps.Snapshot.Load()
			if !ok {
				continue
			}
			msg := Envelope{
				Type:      MsgTypePose,
				Timestamp: float64(now.UnixNano()) / 1e9,
				Data:      est,
			}
			if goal := deps.Goals.Get(); goal != nil {
				msg.Data = map[string]interface{}{"estimate": est, "goal": goal}
			}
			if err := conn.WriteJSON(msg); err != nil {
				deps.Logger.Debugf("Map WS write failed: %v", err)
				return
			}
		}
	}
}
