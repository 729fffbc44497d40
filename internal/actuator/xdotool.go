package actuator

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	kaerrors "keyagent/internal/errors"
	"keyagent/util"
)

// runFunc executes a program and returns its combined output.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Xdotool injects keystrokes into the X11 session through the xdotool
// program.
type Xdotool struct {
	Binary   string        // defaults to "xdotool"
	KeyDelay time.Duration // delay between typed characters
	Logger   *util.Logger

	run runFunc
}

// NewXdotool returns an Xdotool using the binary found on PATH.
func NewXdotool(logger *util.Logger) *Xdotool {
	return &Xdotool{
		Binary:   "xdotool",
		KeyDelay: 12 * time.Millisecond,
		Logger:   logger,
		run:      runCommand,
	}
}

// Available reports whether the xdotool binary can be found.
func (x *Xdotool) Available() error {
	if _, err := exec.LookPath(x.binary()); err != nil {
		return fmt.Errorf("%w: %v", kaerrors.ErrActuatorFailed, err)
	}
	return nil
}

// TypeText types text into the focused window.
func (x *Xdotool) TypeText(ctx context.Context, text string) error {
	if text == "" {
		return emptyText()
	}
	delay := strconv.FormatInt(x.KeyDelay.Milliseconds(), 10)
	return x.exec(ctx, "type", "--delay", delay, "--", text)
}

// PressKey presses and releases key.
func (x *Xdotool) PressKey(ctx context.Context, key Key) error {
	return x.exec(ctx, "key", "--", string(key))
}

// Sleep waits for d.
func (x *Xdotool) Sleep(ctx context.Context, d time.Duration) error {
	return sleep(ctx, d)
}

// ToggleFocus sends the console focus chord.
func (x *Xdotool) ToggleFocus(ctx context.Context) error {
	return x.exec(ctx, "key", "--", FocusChord)
}

func (x *Xdotool) exec(ctx context.Context, args ...string) error {
	run := x.run
	if run == nil {
		run = runCommand
	}
	if x.Logger != nil {
		x.Logger.Debug("exec: %s %s", x.binary(), strings.Join(args, " "))
	}
	out, err := run(ctx, x.binary(), args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			// Killed by cancellation, not a display failure.
			return fmt.Errorf("%s %s: %w", x.binary(), args[0], ctxErr)
		}
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			return fmt.Errorf("%w: %s %s: %v", kaerrors.ErrActuatorFailed, x.binary(), args[0], err)
		}
		return fmt.Errorf("%w: %s %s: %v: %s", kaerrors.ErrActuatorFailed, x.binary(), args[0], err, msg)
	}
	return nil
}

func (x *Xdotool) binary() string {
	if x.Binary == "" {
		return "xdotool"
	}
	return x.Binary
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	var buf bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.Bytes(), err
}
