package sandbox

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/dop251/goja"
)

// bindDefaults installs the minimal default capability set:
// an output channel (console), timer primitives (setTimeout/clearTimeout),
// a binary-buffer type (Buffer) and a restricted process-info accessor.
// Nothing else from the host is reachable.
func bindDefaults(vm *goja.Runtime, out *limitedBuffer, timers *timerQueue, start time.Time) {
	bindConsole(vm, out)
	bindTimers(vm, timers)
	bindBuffer(vm)
	bindProcess(vm, start)
}

// --- console ---

func bindConsole(vm *goja.Runtime, out *limitedBuffer) {
	write := func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		out.WriteLine(strings.Join(parts, " "))
		return goja.Undefined()
	}

	console := vm.NewObject()
	_ = console.Set("log", write)
	_ = console.Set("info", write)
	_ = console.Set("warn", write)
	_ = console.Set("error", write)
	_ = console.Set("debug", write)
	_ = vm.Set("console", console)
}

// limitedBuffer collects console output up to a byte limit.
// Excess data is silently discarded (not an error — just capped).
type limitedBuffer struct {
	buf       bytes.Buffer
	remaining int
}

func (b *limitedBuffer) WriteLine(s string) {
	if b.remaining <= 0 {
		return
	}
	line := s + "\n"
	if len(line) > b.remaining {
		line = line[:b.remaining]
	}
	n, _ := b.buf.WriteString(line)
	b.remaining -= n
}

func (b *limitedBuffer) String() string { return b.buf.String() }

// --- timers ---

// timerQueue implements setTimeout/clearTimeout without a full event loop.
// Callbacks run after the top-level script completes, in due order, still
// under the execution deadline.
type timerQueue struct {
	nextID  int64
	pending map[int64]*timerEntry
}

type timerEntry struct {
	fn  goja.Callable
	due time.Time
}

func newTimerQueue() *timerQueue {
	return &timerQueue{pending: make(map[int64]*timerEntry)}
}

func bindTimers(vm *goja.Runtime, q *timerQueue) {
	_ = vm.Set("setTimeout", func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(vm.NewTypeError("setTimeout requires a function"))
		}
		delay := call.Argument(1).ToInteger()
		if delay < 0 {
			delay = 0
		}
		q.nextID++
		q.pending[q.nextID] = &timerEntry{
			fn:  fn,
			due: time.Now().Add(time.Duration(delay) * time.Millisecond),
		}
		return vm.ToValue(q.nextID)
	})

	_ = vm.Set("clearTimeout", func(call goja.FunctionCall) goja.Value {
		delete(q.pending, call.Argument(0).ToInteger())
		return goja.Undefined()
	})
}

// drain runs pending callbacks in due order. Timers that cannot fire before
// the deadline are discarded — the sandbox will not exist by then. Callbacks
// may schedule further timers; those join the queue.
func (q *timerQueue) drain(vm *goja.Runtime, deadline time.Time) error {
	for len(q.pending) > 0 {
		var (
			earliestID int64
			earliest   *timerEntry
		)
		for id, e := range q.pending {
			if earliest == nil || e.due.Before(earliest.due) {
				earliest, earliestID = e, id
			}
		}
		delete(q.pending, earliestID)

		if !earliest.due.Before(deadline) {
			continue
		}
		if wait := time.Until(earliest.due); wait > 0 {
			time.Sleep(wait)
		}
		if _, err := earliest.fn(goja.Undefined()); err != nil {
			return err
		}
	}
	return nil
}

// --- Buffer ---

// bindBuffer exposes a minimal binary-buffer type:
// Buffer.from(string | number[]) and Buffer.alloc(n), each yielding an
// object with length and toString("utf8"|"hex"|"base64").
func bindBuffer(vm *goja.Runtime) {
	buffer := vm.NewObject()

	_ = buffer.Set("from", func(call goja.FunctionCall) goja.Value {
		arg := call.Argument(0)
		var data []byte
		switch exported := arg.Export().(type) {
		case string:
			data = []byte(exported)
		case []any:
			data = make([]byte, len(exported))
			for i, v := range exported {
				if n, ok := v.(int64); ok {
					data[i] = byte(n)
				}
			}
		default:
			data = []byte(arg.String())
		}
		return newBufferObject(vm, data)
	})

	_ = buffer.Set("alloc", func(call goja.FunctionCall) goja.Value {
		n := call.Argument(0).ToInteger()
		if n < 0 {
			n = 0
		}
		return newBufferObject(vm, make([]byte, n))
	})

	_ = vm.Set("Buffer", buffer)
}

func newBufferObject(vm *goja.Runtime, data []byte) goja.Value {
	obj := vm.NewObject()
	_ = obj.Set("length", len(data))
	_ = obj.Set("toString", func(call goja.FunctionCall) goja.Value {
		encoding := "utf8"
		if len(call.Arguments) > 0 {
			encoding = call.Arguments[0].String()
		}
		switch encoding {
		case "hex":
			return vm.ToValue(hex.EncodeToString(data))
		case "base64":
			return vm.ToValue(base64.StdEncoding.EncodeToString(data))
		default:
			return vm.ToValue(string(data))
		}
	})
	return obj
}

// --- process ---

// bindProcess exposes a restricted process-info accessor. No environment,
// no exit, no working directory — identification and uptime only.
func bindProcess(vm *goja.Runtime, start time.Time) {
	process := vm.NewObject()
	_ = process.Set("platform", runtime.GOOS)
	_ = process.Set("arch", runtime.GOARCH)
	_ = process.Set("pid", os.Getpid())
	_ = process.Set("uptime", func(goja.FunctionCall) goja.Value {
		return vm.ToValue(time.Since(start).Seconds())
	})
	_ = vm.Set("process", process)
}
