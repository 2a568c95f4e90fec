package ws

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/GriffinCanCode/webtty/backend/internal/domain/session"
	"github.com/GriffinCanCode/webtty/backend/internal/providers/terminal"
)

// Control message types sent by the client as text frames.
const (
	TypeInput  = "input"
	TypeResize = "resize"
)

var errUnknownControl = errors.New("unknown control message")

// controlMessage is the JSON body of a client text frame.
type controlMessage struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	Cols int    `json:"cols,omitempty"`
	Rows int    `json:"rows,omitempty"`
}

// decodeFrame turns one client frame into a session event. Binary frames
// are raw terminal input.
func decodeFrame(messageType int, data []byte) (session.Event, error) {
	if messageType == websocket.BinaryMessage {
		return session.InputEvent(data), nil
	}

	var msg controlMessage
	if err := sonic.Unmarshal(data, &msg); err != nil {
		return session.Event{}, fmt.Errorf("invalid control message: %w", err)
	}
	switch msg.Type {
	case TypeInput:
		return session.InputEvent([]byte(msg.Data)), nil
	case TypeResize:
		size, err := terminal.NewGeometry(msg.Rows, msg.Cols)
		if err != nil {
			return session.Event{}, err
		}
		return session.ResizeEvent(size), nil
	default:
		return session.Event{}, fmt.Errorf("%w: %q", errUnknownControl, msg.Type)
	}
}

// encodeNotice renders a server control message.
func encodeNotice(n session.Notice) ([]byte, error) {
	return sonic.Marshal(n)
}

// closeCode maps why a session ended onto a websocket close code.
func closeCode(reason session.CloseReason) int {
	switch reason {
	case session.ReasonProcessExit, session.ReasonDisconnect:
		return websocket.CloseNormalClosure
	case session.ReasonShutdown:
		return websocket.CloseGoingAway
	case session.ReasonPolicy:
		return websocket.ClosePolicyViolation
	default:
		return websocket.CloseInternalServerErr
	}
}

// maxCloseText is the control frame payload limit minus the status code.
const maxCloseText = 123

func closeMessage(reason session.CloseReason, text string) []byte {
	if len(text) > maxCloseText {
		text = strings.ToValidUTF8(text[:maxCloseText], "")
	}
	return websocket.FormatCloseMessage(closeCode(reason), text)
}
