// Package actuator performs keystroke injection on the host.  The
// agent hands it resolved text and it types that text into whatever
// window has focus.
package actuator

import (
	"context"
	"fmt"
	"time"

	kaerrors "keyagent/internal/errors"
)

// Key names a single key press, in X keysym spelling.
type Key string

const (
	KeyEnter Key = "Return"
	KeyTab   Key = "Tab"
	KeyEsc   Key = "Escape"
)

// FocusChord is the chord that toggles the host's console window.
const FocusChord = "ctrl+shift+c"

// Actuator types on the host.  Implementations must reject empty text.
type Actuator interface {
	TypeText(ctx context.Context, text string) error
	PressKey(ctx context.Context, key Key) error
	Sleep(ctx context.Context, d time.Duration) error
	ToggleFocus(ctx context.Context) error
}

// Kinds of Names accepted by New.
const (
	KindLog     = "log"
	KindXdotool = "xdotool"
)

// Kinds lists the actuator names accepted by New.
func Kinds() []string { return []string{KindLog, KindXdotool} }

// sleep waits for d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func emptyText() error {
	return fmt.Errorf("%w: empty text", kaerrors.ErrActuatorFailed)
}
