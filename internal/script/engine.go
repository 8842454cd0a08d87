// Package script runs a user-supplied Lua hook against decoded broadcast
// events. The hook file must define a global function on_broadcast(event);
// it is invoked once per emitted event with a table argument.
package script

import (
	"fmt"
	"os"
	"sync"

	"github.com/aarzilli/golua/lua"
	"github.com/sirupsen/logrus"

	"github.com/srg/brickscan/internal/observer"
	"github.com/srg/brickscan/internal/protocol"
)

const hookName = "on_broadcast"

// Engine owns a single Lua state. All calls into the state go through the
// mutex; the drainer delivers events sequentially, so in practice the hook
// runs on one goroutine.
type Engine struct {
	mu     sync.Mutex
	state  *lua.State
	logger *logrus.Logger
	source string
}

// NewEngine creates a Lua state with the standard libraries open and print
// redirected into the logger, so script output does not interleave with the
// event table on stdout.
func NewEngine(logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	e := &Engine{logger: logger}
	e.state = lua.NewState()
	e.state.OpenLibs()
	e.redirectPrint()
	return e
}

func (e *Engine) redirectPrint() {
	L := e.state
	logger := e.logger
	L.PushGoFunction(func(L *lua.State) int {
		top := L.GetTop()
		parts := make([]string, 0, top)
		for i := 1; i <= top; i++ {
			switch {
			case L.IsNil(i):
				parts = append(parts, "nil")
			case L.IsBoolean(i):
				parts = append(parts, fmt.Sprintf("%t", L.ToBoolean(i)))
			case L.IsNumber(i):
				parts = append(parts, fmt.Sprintf("%v", L.ToNumber(i)))
			case L.IsString(i):
				parts = append(parts, L.ToString(i))
			default:
				L.GetGlobal("tostring")
				L.PushValue(i)
				L.Call(1, 1)
				parts = append(parts, L.ToString(-1))
				L.Pop(1)
			}
		}
		logger.WithField("source", "lua").Info(parts)
		return 0
	})
	L.SetGlobal("print")
}

// LoadFile reads and executes a hook script, then verifies it defined
// on_broadcast.
func (e *Engine) LoadFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read script %s: %w", path, err)
	}
	return e.Load(string(content), path)
}

// Load executes script source and verifies the on_broadcast hook exists.
func (e *Engine) Load(source, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == nil {
		return fmt.Errorf("script engine closed")
	}
	if err := e.state.DoString(source); err != nil {
		return fmt.Errorf("script %s: %w", name, e.popError("load"))
	}
	e.state.GetGlobal(hookName)
	defined := e.state.IsFunction(-1)
	e.state.Pop(1)
	if !defined {
		return fmt.Errorf("script %s does not define function %s", name, hookName)
	}
	e.source = name
	return nil
}

// OnBroadcast invokes the hook with the event as a table. Hook errors are
// returned but leave the state usable for the next event.
func (e *Engine) OnBroadcast(ev observer.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == nil {
		return fmt.Errorf("script engine closed")
	}
	L := e.state
	L.GetGlobal(hookName)
	if !L.IsFunction(-1) {
		L.Pop(1)
		return fmt.Errorf("global %s is not a function", hookName)
	}
	pushEvent(L, ev)
	if err := L.Call(1, 0); err != nil {
		return fmt.Errorf("%s: %w", hookName, e.popError("runtime"))
	}
	return nil
}

// popError formats and removes the error object left on the stack.
func (e *Engine) popError(kind string) error {
	L := e.state
	if L.GetTop() == 0 {
		return fmt.Errorf("%s error", kind)
	}
	msg := "non-string error object"
	if L.IsString(-1) {
		msg = L.ToString(-1)
	}
	L.Pop(1)
	return fmt.Errorf("%s error: %s", kind, msg)
}

// Sink adapts the engine for the event drainer. Hook failures are logged
// and do not stop the session.
func (e *Engine) Sink() func(observer.Event) {
	return func(ev observer.Event) {
		if ev.Type != observer.EventBroadcast {
			return
		}
		if err := e.OnBroadcast(ev); err != nil {
			e.logger.WithError(err).WithField("script", e.source).Warn("script hook failed")
		}
	}
}

// Close releases the Lua state. Subsequent calls error out.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != nil {
		e.state.Close()
		e.state = nil
	}
}

// pushEvent builds the table passed to on_broadcast: elapsed (seconds),
// address, tag, name, channel, rssi, value.
func pushEvent(L *lua.State, ev observer.Event) {
	L.NewTable()
	L.PushNumber(ev.Elapsed.Seconds())
	L.SetField(-2, "elapsed")
	L.PushString(ev.Addr)
	L.SetField(-2, "address")
	L.PushString(string(ev.Tag))
	L.SetField(-2, "tag")
	L.PushString(ev.Name)
	L.SetField(-2, "name")
	L.PushInteger(int64(ev.Channel))
	L.SetField(-2, "channel")
	L.PushNumber(ev.RSSI)
	L.SetField(-2, "rssi")
	pushValue(L, ev.Value)
	L.SetField(-2, "value")
}

// pushValue maps a decoded broadcast value onto the Lua stack. Containers
// become 1-based array tables; byte payloads become Lua strings.
func pushValue(L *lua.State, v protocol.Value) {
	switch v.Kind {
	case protocol.KindInt:
		L.PushInteger(v.Int)
	case protocol.KindFloat:
		L.PushNumber(float64(v.Float))
	case protocol.KindBool:
		L.PushBoolean(v.Bool)
	case protocol.KindString:
		L.PushString(v.Str)
	case protocol.KindBytes:
		L.PushBytes(v.Bytes)
	case protocol.KindList, protocol.KindTuple:
		L.NewTable()
		for i, item := range v.Items {
			pushValue(L, item)
			L.RawSeti(-2, i+1)
		}
	default:
		L.PushNil()
	}
}
