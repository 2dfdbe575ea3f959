package http

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/ofircohen205/aura-sub001/apierr"
)

const (
	streamAwaitDeadline = 10 * time.Minute
	streamPingInterval  = 30 * time.Second
	streamWriteTimeout  = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleStreamLesson upgrades to a WebSocket and pushes a fingerprint's
// result the moment it lands, instead of requiring the caller to poll
// fetchLesson. The connection is kept alive with periodic pings while
// Await blocks, and is closed as soon as one result has been delivered
// or the await deadline elapses.
func (a *Adapter) handleStreamLesson(c echo.Context) error {
	fingerprint := c.Param("fingerprint")

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	resultCh := make(chan streamOutcome, 1)
	go func() {
		result, err := a.server.AwaitLesson(c.Request().Context(), fingerprint, streamAwaitDeadline)
		resultCh <- streamOutcome{result: result, err: err}
	}()

	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()

	for {
		select {
		case outcome := <-resultCh:
			if outcome.err != nil {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseInternalServerErr, closeReason(outcome.err)),
					time.Now().Add(streamWriteTimeout))
				return nil
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			return conn.WriteJSON(outcome.result)
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteTimeout)); err != nil {
				return nil
			}
		}
	}
}

type streamOutcome struct {
	result interface{}
	err    error
}

func closeReason(err error) string {
	if apierr.KindOf(err) == apierr.KindCancelled {
		return "client disconnected"
	}
	return "timed out waiting for result"
}
