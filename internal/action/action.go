// Package action defines the commands exchanged between the adaptor and the
// engine subprocess, and the queue that carries them.
package action

import (
	"encoding/json"
	"fmt"
	"maps"
)

// Verbs understood by the engine client.
const (
	SetHandler = "set_handler"
	RunScript  = "run_script"
	WaitResult = "wait_result"
	Close      = "close"
)

// Action is a named command with an argument payload. Actions are immutable
// once constructed: Args returns a copy.
type Action struct {
	name string
	args map[string]any
}

// New creates an action. The args map is copied.
func New(name string, args map[string]any) *Action {
	copied := make(map[string]any, len(args))
	maps.Copy(copied, args)

	return &Action{name: name, args: copied}
}

// Name returns the action verb.
func (a *Action) Name() string {
	return a.name
}

// Args returns a copy of the action arguments.
func (a *Action) Args() map[string]any {
	out := make(map[string]any, len(a.args))
	maps.Copy(out, a.args)

	return out
}

// Arg returns a single argument value.
func (a *Action) Arg(key string) (any, bool) {
	v, ok := a.args[key]
	return v, ok
}

// StringArg returns a string argument, or "" when missing or not a string.
func (a *Action) StringArg(key string) string {
	s, _ := a.args[key].(string)
	return s
}

func (a *Action) String() string {
	return fmt.Sprintf("%s %v", a.name, a.args)
}

type wireAction struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// MarshalJSON encodes the action as {"name": ..., "args": {...}}.
func (a *Action) MarshalJSON() ([]byte, error) {
	args := a.args
	if args == nil {
		args = map[string]any{}
	}

	return json.Marshal(wireAction{Name: a.name, Args: args})
}

// UnmarshalJSON decodes the wire shape produced by MarshalJSON.
func (a *Action) UnmarshalJSON(data []byte) error {
	var w wireAction
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode action: %w", err)
	}

	if w.Name == "" {
		return fmt.Errorf("decode action: missing name")
	}

	if w.Args == nil {
		w.Args = map[string]any{}
	}

	a.name = w.Name
	a.args = w.Args

	return nil
}
