package server

import (
	"encoding/json"
	"log"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/tmpim/kabe"
)

// Possible websocket message types sent to clients.
const (
	MessageProgress = "progress"
	MessageScript   = "script"
	MessageError    = "error"
)

// Message is sent to websocket clients as JSON.
type Message struct {
	Type   string `json:"type"`
	Stage  string `json:"stage,omitempty"`
	Script string `json:"script,omitempty"`
	ID     int64  `json:"id,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Control is a text message a client sends to change the settings used for
// the images it sends afterwards.
type Control struct {
	Size int `json:"size"`
}

func (s *Server) handleWS(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	conn.SetReadLimit(s.cfg.Server.MaxUploadBytes)
	s.handleConn(c, conn)

	return nil
}

// handleConn serves a websocket client until it disconnects. Each binary
// message is an image to convert.
func (s *Server) handleConn(c echo.Context, conn *websocket.Conn) {
	size := 0

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure,
				websocket.CloseGoingAway) {
				log.Println("kabe server: client disconnected:", err)
			}
			return
		}

		switch msgType {
		case websocket.TextMessage:
			var ctrl Control
			if err := json.Unmarshal(data, &ctrl); err != nil {
				s.sendError(conn, err)
				continue
			}

			if ctrl.Size < 0 || ctrl.Size > MaxTargetSize {
				s.sendError(conn, errInvalidSize)
				continue
			}
			size = ctrl.Size
		case websocket.BinaryMessage:
			if err := s.convertMessage(c, conn, data, size); err != nil {
				log.Println("kabe server: failed to write to client:", err)
				return
			}
		}
	}
}

// convertMessage converts an image sent by a client, reporting progress
// along the way. Only write errors are returned.
func (s *Server) convertMessage(c echo.Context, conn *websocket.Conn,
	data []byte, size int) error {
	var writeErr error
	progress := func(stage kabe.Stage) {
		if writeErr == nil {
			writeErr = conn.WriteJSON(&Message{
				Type:  MessageProgress,
				Stage: stage.String(),
			})
		}
	}

	conv, err := s.converter(size, progress)
	if err != nil {
		return s.sendError(conn, err)
	}

	img, err := kabe.DecodeLimited(data, s.cfg.Server.MaxSourcePixels)
	if err != nil {
		return s.sendError(conn, err)
	}

	res, err := conv.Convert(img)
	if writeErr != nil {
		return writeErr
	} else if err != nil {
		return s.sendError(conn, err)
	}

	return conn.WriteJSON(&Message{
		Type:   MessageScript,
		Script: res.Script(),
		ID:     s.record(c.Request().Context(), "websocket", res),
	})
}

func (s *Server) sendError(conn *websocket.Conn, err error) error {
	return conn.WriteJSON(&Message{
		Type:  MessageError,
		Error: err.Error(),
	})
}
