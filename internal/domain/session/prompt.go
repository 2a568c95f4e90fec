package session

import (
	"context"
	"time"

	"github.com/GriffinCanCode/webtty/backend/internal/providers/terminal"
)

const maxPromptLength = 32

// PromptResult is what the login prompt collected.
type PromptResult struct {
	User string
	// Size is the last geometry the client reported while prompting.
	Size terminal.Geometry
}

// PromptUser asks the client for a username before an ssh session starts.
// It echoes printable input, supports backspace and returns on enter.
func PromptUser(ctx context.Context, t Transport, host string, timeout time.Duration) (PromptResult, error) {
	var (
		res  PromptResult
		line []byte
	)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	prompt := []byte(host + " login: ")
	if err := t.Send(ctx, prompt); err != nil {
		return res, err
	}

	events := t.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return res, ErrDisconnected
			}
			if ev.Kind == EventResize {
				if ev.Size.Valid() {
					res.Size = ev.Size
				}
				continue
			}

			var echo []byte
		chunk:
			for _, c := range ev.Data {
				switch {
				case c == '\r' || c == '\n':
					echo = append(echo, '\r', '\n')
					if len(line) == 0 {
						echo = append(echo, prompt...)
						continue
					}
					res.User = string(line)
					return res, t.Send(ctx, echo)
				case c == 0x7f || c == 0x08:
					if len(line) > 0 {
						line = line[:len(line)-1]
						echo = append(echo, '\b', ' ', '\b')
					}
				case c == 0x03 || c == 0x04:
					_ = t.Send(ctx, append(echo, '\r', '\n'))
					return res, ErrPromptCancelled
				case c == 0x1b:
					// Escape sequences (arrow keys) are not editable here.
					break chunk
				case c >= 0x20 && c < 0x7f:
					if len(line) < maxPromptLength {
						line = append(line, c)
						echo = append(echo, c)
					}
				}
			}
			if len(echo) > 0 {
				if err := t.Send(ctx, echo); err != nil {
					return res, err
				}
			}

		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return res, ErrPromptTimeout
			}
			return res, ctx.Err()
		}
	}
}
