package actuator

import (
	"context"
	"sync"
	"time"

	"keyagent/util"
)

// Action is one call made on a Recorder.
type Action struct {
	Kind string // "type", "key", "sleep" or "focus"
	Arg  string
}

// Recorder is an in-memory Actuator.  It logs each action when Logger
// is set and never touches the host, which makes it the actuator for
// dry runs and tests.
type Recorder struct {
	Logger *util.Logger
	// RealSleep makes Sleep actually wait.
	RealSleep bool
	// Limit caps the retained history; zero keeps everything.
	Limit int

	mu      sync.Mutex
	actions []Action
}

// NewRecorder returns a Recorder that logs through logger and keeps
// the most recent 256 actions.
func NewRecorder(logger *util.Logger) *Recorder {
	return &Recorder{Logger: logger, Limit: 256}
}

func (r *Recorder) add(kind, arg string) {
	r.push(Action{Kind: kind, Arg: arg})
	if r.Logger != nil {
		r.Logger.With("action", kind).Info("actuate %q", arg)
	}
}

// TypeText records text.
func (r *Recorder) TypeText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if text == "" {
		return emptyText()
	}
	r.add("type", text)
	return nil
}

// PressKey records key.
func (r *Recorder) PressKey(ctx context.Context, key Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.add("key", string(key))
	return nil
}

// Sleep records d, waiting only when RealSleep is set.
func (r *Recorder) Sleep(ctx context.Context, d time.Duration) error {
	r.push(Action{Kind: "sleep", Arg: d.String()})
	if r.RealSleep {
		return sleep(ctx, d)
	}
	return ctx.Err()
}

// ToggleFocus records a focus toggle.
func (r *Recorder) ToggleFocus(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.add("focus", FocusChord)
	return nil
}

func (r *Recorder) push(a Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, a)
	if r.Limit > 0 && len(r.actions) > r.Limit {
		r.actions = append(r.actions[:0], r.actions[len(r.actions)-r.Limit:]...)
	}
}

// Actions returns a copy of everything recorded so far.
func (r *Recorder) Actions() []Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Action(nil), r.actions...)
}

// Typed returns only the text passed to TypeText, in order.
func (r *Recorder) Typed() []string {
	var out []string
	for _, a := range r.Actions() {
		if a.Kind == "type" {
			out = append(out, a.Arg)
		}
	}
	return out
}

// Reset forgets recorded actions.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.actions = nil
	r.mu.Unlock()
}
