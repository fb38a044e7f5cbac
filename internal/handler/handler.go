// Package handler defines the handler variants an engine session can run
// under. A variant decides which verbs the engine client may execute and
// which log rules the adaptor applies to engine output.
package handler

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/enginefarm/unreal-adaptor/internal/action"
	"github.com/enginefarm/unreal-adaptor/internal/classify"
)

// Variant names accepted by set_handler.
const (
	NameBase   = "base"
	NameRender = "render"
	NameCustom = "custom"
)

// Variant describes a registered handler type.
type Variant struct {
	// Name is the value carried by set_handler and the run payload.
	Name string

	// Rules is the log ruleset active while this variant is selected.
	Rules *classify.Ruleset

	// Abstract variants declare run_script and wait_result but cannot
	// execute them.
	Abstract bool
}

var (
	registryMu sync.Mutex
	registry   = map[string]Variant{}
)

func init() {
	Register(Variant{Name: NameBase, Rules: baseRules, Abstract: true})
	Register(Variant{Name: NameRender, Rules: renderRules})
	Register(Variant{Name: NameCustom, Rules: customRules})
}

// Register adds a variant to the registry. Panics on duplicate names.
func Register(v Variant) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, dup := registry[v.Name]; dup {
		panic(fmt.Sprintf("handler: duplicate registration for %q", v.Name))
	}

	registry[v.Name] = v
}

// Lookup returns the variant registered under name.
func Lookup(name string) (Variant, bool) {
	registryMu.Lock()
	defer registryMu.Unlock()

	v, ok := registry[name]

	return v, ok
}

// Select returns the variant registered under name, falling back to Base for
// unknown or empty names.
func Select(name string) Variant {
	if v, ok := Lookup(name); ok {
		return v
	}

	v, _ := Lookup(NameBase)

	return v
}

// RegisteredNames returns all variant names in sorted order.
func RegisteredNames() []string {
	registryMu.Lock()
	defer registryMu.Unlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Executor runs the task verbs of a concrete variant inside the engine.
type Executor interface {
	RunScript(ctx context.Context, args map[string]any) error
	WaitResult(ctx context.Context, args map[string]any) error
}

// NotSupportedError is returned when a verb is dispatched to a variant that
// does not implement it.
type NotSupportedError struct {
	Variant string
	Verb    string
}

func (e *NotSupportedError) Error() string {
	return fmt.Sprintf("handler %q does not implement %s: select a concrete handler with set_handler first", e.Variant, e.Verb)
}

// Table is the verb table of the active variant.
type Table struct {
	variant Variant
	exec    Executor
}

// NewTable binds a variant to its executor. Abstract variants ignore exec.
func NewTable(v Variant, exec Executor) *Table {
	if v.Abstract {
		exec = nil
	}

	return &Table{variant: v, exec: exec}
}

// Variant returns the variant this table dispatches for.
func (t *Table) Variant() Variant {
	return t.variant
}

// Supports reports whether verb can be executed by this table.
func (t *Table) Supports(verb string) bool {
	switch verb {
	case action.RunScript, action.WaitResult:
		return t.exec != nil
	default:
		return false
	}
}

// Dispatch executes a task verb. Session verbs (set_handler, close) are not
// part of a variant's table and are handled by the caller.
func (t *Table) Dispatch(ctx context.Context, a *action.Action) error {
	if !t.Supports(a.Name()) {
		return &NotSupportedError{Variant: t.variant.Name, Verb: a.Name()}
	}

	switch a.Name() {
	case action.RunScript:
		return t.exec.RunScript(ctx, a.Args())
	default:
		return t.exec.WaitResult(ctx, a.Args())
	}
}
