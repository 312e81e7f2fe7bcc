package sandbox

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestSandbox() *JSSandbox {
	return NewJSSandbox(JSConfig{DefaultTimeout: 2 * time.Second}, nil)
}

// --- Result semantics ---

func TestExecute_LastExpressionValue(t *testing.T) {
	sbx := newTestSandbox()

	res, err := sbx.Execute(context.Background(), Request{Source: "var a = 40; a + 2;"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Value != int64(42) {
		t.Fatalf("Value = %v (%T), want 42", res.Value, res.Value)
	}
}

func TestExecute_NoValueYieldsNil(t *testing.T) {
	sbx := newTestSandbox()

	res, err := sbx.Execute(context.Background(), Request{Source: "var a = 1;"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Value != nil {
		t.Fatalf("Value = %v, want nil for a declaration-only script", res.Value)
	}
}

func TestExecute_StringAndObjectValues(t *testing.T) {
	sbx := newTestSandbox()

	res, err := sbx.Execute(context.Background(), Request{Source: "\"done\";"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Value != "done" {
		t.Fatalf("Value = %v, want \"done\"", res.Value)
	}

	res, err = sbx.Execute(context.Background(), Request{Source: "({ok: true, n: 3});"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	m, ok := res.Value.(map[string]any)
	if !ok {
		t.Fatalf("Value = %T, want map", res.Value)
	}
	if m["ok"] != true || m["n"] != int64(3) {
		t.Fatalf("Value = %v", m)
	}
}

// --- Default capabilities ---

func TestExecute_ConsoleCaptured(t *testing.T) {
	sbx := newTestSandbox()

	res, err := sbx.Execute(context.Background(), Request{
		Source: `console.log("hello", 42); console.error("bad");`,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := "hello 42\nbad\n"
	if res.Output != want {
		t.Fatalf("Output = %q, want %q", res.Output, want)
	}
}

func TestExecute_OutputCapped(t *testing.T) {
	sbx := NewJSSandbox(JSConfig{DefaultTimeout: 2 * time.Second, MaxOutputBytes: 64}, nil)

	res, err := sbx.Execute(context.Background(), Request{
		Source: `for (var i = 0; i < 100; i++) { console.log("xxxxxxxxxx"); }`,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Output) > 64 {
		t.Fatalf("output %d bytes exceeds 64-byte cap", len(res.Output))
	}
}

func TestExecute_BufferCapability(t *testing.T) {
	sbx := newTestSandbox()

	res, err := sbx.Execute(context.Background(), Request{
		Source: `Buffer.from("abc").toString("hex");`,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Value != "616263" {
		t.Fatalf("hex = %v, want 616263", res.Value)
	}

	res, err = sbx.Execute(context.Background(), Request{
		Source: `Buffer.from("abc").toString("base64");`,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Value != "YWJj" {
		t.Fatalf("base64 = %v, want YWJj", res.Value)
	}

	res, err = sbx.Execute(context.Background(), Request{
		Source: `Buffer.alloc(4).length;`,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Value != int64(4) {
		t.Fatalf("alloc length = %v, want 4", res.Value)
	}
}

func TestExecute_ProcessCapabilityRestricted(t *testing.T) {
	sbx := newTestSandbox()

	res, err := sbx.Execute(context.Background(), Request{
		Source: `[typeof process.platform, typeof process.pid, typeof process.uptime(), typeof process.env].join(",");`,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Value != "string,number,number,undefined" {
		t.Fatalf("process surface = %v", res.Value)
	}
}

func TestExecute_SetTimeoutRunsAfterScript(t *testing.T) {
	sbx := newTestSandbox()

	res, err := sbx.Execute(context.Background(), Request{
		Source: `
			setTimeout(function() { console.log("second"); }, 10);
			setTimeout(function() { console.log("third"); }, 20);
			console.log("first");
		`,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := "first\nsecond\nthird\n"
	if res.Output != want {
		t.Fatalf("Output = %q, want %q", res.Output, want)
	}
}

func TestExecute_ClearTimeout(t *testing.T) {
	sbx := newTestSandbox()

	res, err := sbx.Execute(context.Background(), Request{
		Source: `
			var id = setTimeout(function() { console.log("never"); }, 5);
			clearTimeout(id);
			console.log("done");
		`,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if strings.Contains(res.Output, "never") {
		t.Fatalf("cleared timer fired: %q", res.Output)
	}
}

func TestExecute_NoAmbientHostAccess(t *testing.T) {
	sbx := newTestSandbox()

	res, err := sbx.Execute(context.Background(), Request{
		Source: `[typeof require, typeof fetch, typeof XMLHttpRequest].join(",");`,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Value != "undefined,undefined,undefined" {
		t.Fatalf("host access leaked: %v", res.Value)
	}
}

// --- Caller capabilities ---

func TestExecute_CallerCapability(t *testing.T) {
	sbx := newTestSandbox()

	var got []string
	res, err := sbx.Execute(context.Background(), Request{
		Source: `record("a"); record("b"); "ok";`,
		Capabilities: map[string]any{
			"record": func(s string) { got = append(got, s) },
		},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Value != "ok" {
		t.Fatalf("Value = %v", res.Value)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("capability calls = %v", got)
	}
}

func TestExecute_CallerCapabilityShadowsDefault(t *testing.T) {
	sbx := newTestSandbox()

	var lines []string
	shadow := map[string]any{
		"log": func(s string) { lines = append(lines, s) },
	}

	res, err := sbx.Execute(context.Background(), Request{
		Source:       `console.log("redirected");`,
		Capabilities: map[string]any{"console": shadow},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(lines) != 1 || lines[0] != "redirected" {
		t.Fatalf("shadowed console not used: %v", lines)
	}
	if res.Output != "" {
		t.Fatalf("default console captured output despite shadowing: %q", res.Output)
	}
}

func TestExecute_CapabilityPanicContained(t *testing.T) {
	sbx := newTestSandbox()

	_, err := sbx.Execute(context.Background(), Request{
		Source: `explode();`,
		Capabilities: map[string]any{
			"explode": func() { panic("handle blew up") },
		},
	})
	if err == nil {
		t.Fatal("expected a contained fault")
	}
	var fault *FaultError
	if !errors.As(err, &fault) {
		t.Fatalf("err = %T %v, want FaultError", err, err)
	}
}

// --- Fault containment ---

func TestExecute_ThrowContained(t *testing.T) {
	sbx := newTestSandbox()

	_, err := sbx.Execute(context.Background(), Request{
		Source: `throw new Error("kaboom");`,
	})
	var fault *FaultError
	if !errors.As(err, &fault) {
		t.Fatalf("err = %T %v, want FaultError", err, err)
	}
	if !strings.Contains(fault.Message, "kaboom") {
		t.Fatalf("fault message = %q, want the thrown message", fault.Message)
	}
}

func TestExecute_SyntaxErrorIsFault(t *testing.T) {
	sbx := newTestSandbox()

	_, err := sbx.Execute(context.Background(), Request{Source: `var = ;`})
	var fault *FaultError
	if !errors.As(err, &fault) {
		t.Fatalf("err = %T %v, want FaultError", err, err)
	}
}

func TestExecute_StackExhaustionContained(t *testing.T) {
	sbx := newTestSandbox()

	_, err := sbx.Execute(context.Background(), Request{
		Source: `function f() { return f(); } f();`,
	})
	if err == nil {
		t.Fatal("expected stack overflow to be contained")
	}
	if errors.Is(err, ErrExecutionTimeout) {
		t.Fatalf("stack overflow misreported as timeout: %v", err)
	}
}

func TestExecute_IsolationBetweenRuns(t *testing.T) {
	sbx := newTestSandbox()

	if _, err := sbx.Execute(context.Background(), Request{Source: `var leaked = 1;`}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	res, err := sbx.Execute(context.Background(), Request{Source: `typeof leaked;`})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res.Value != "undefined" {
		t.Fatalf("state leaked between runs: %v", res.Value)
	}
}

// --- Timeout ---

func TestExecute_InfiniteLoopTimesOut(t *testing.T) {
	sbx := newTestSandbox()

	start := time.Now()
	res, err := sbx.Execute(context.Background(), Request{
		Source:  `while (true) {}`,
		Timeout: 50 * time.Millisecond,
	})
	elapsed := time.Since(start)

	if !errors.Is(err, ErrExecutionTimeout) {
		t.Fatalf("err = %v, want ErrExecutionTimeout", err)
	}
	if res != nil {
		t.Fatalf("partial result returned on timeout: %+v", res)
	}
	// Bounded overshoot: interrupt latency, not seconds.
	if elapsed > time.Second {
		t.Fatalf("timeout took %s, want well under a second", elapsed)
	}
}

func TestExecute_TimerPastDeadlineDiscarded(t *testing.T) {
	sbx := newTestSandbox()

	res, err := sbx.Execute(context.Background(), Request{
		Source: `
			setTimeout(function() { console.log("too late"); }, 10000);
			console.log("main");
		`,
		Timeout: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if strings.Contains(res.Output, "too late") {
		t.Fatalf("timer past the deadline fired: %q", res.Output)
	}
}

func TestExecute_ContextCancel(t *testing.T) {
	sbx := newTestSandbox()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := sbx.Execute(ctx, Request{
		Source:  `while (true) {}`,
		Timeout: 5 * time.Second,
	})
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled in chain", err)
	}
}
