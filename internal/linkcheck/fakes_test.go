package linkcheck

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JakeFAU/linkcheck/internal/progress"
)

// scriptedProber returns queued results per URL, repeating the last one.
type scriptedProber struct {
	mu      sync.Mutex
	scripts map[string][]Result
	calls   map[string]int
}

func newScriptedProber(scripts map[string][]Result) *scriptedProber {
	return &scriptedProber{scripts: scripts, calls: map[string]int{}}
}

func (p *scriptedProber) Probe(_ context.Context, target Target, _ string) Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.calls[target.Probe]
	p.calls[target.Probe] = n + 1
	script := p.scripts[target.Probe]
	if len(script) == 0 {
		return OK(target.Original, 200)
	}
	if n >= len(script) {
		n = len(script) - 1
	}
	return script[n].withURL(target.Original)
}

func (p *scriptedProber) Calls(url string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[url]
}

// slowProber sleeps per probe and tracks peak concurrency and dispatch times.
type slowProber struct {
	delay    time.Duration
	current  atomic.Int32
	peak     atomic.Int32
	mu       sync.Mutex
	started  map[string][]time.Time
	finished atomic.Int32
}

func newSlowProber(delay time.Duration) *slowProber {
	return &slowProber{delay: delay, started: map[string][]time.Time{}}
}

func (p *slowProber) Probe(ctx context.Context, target Target, _ string) Result {
	n := p.current.Add(1)
	defer p.current.Add(-1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	host := hostOf(target.Probe)
	p.mu.Lock()
	p.started[host] = append(p.started[host], time.Now())
	p.mu.Unlock()

	select {
	case <-time.After(p.delay):
	case <-ctx.Done():
		return Failed(target.Original, "probe canceled")
	}
	p.finished.Add(1)
	return OK(target.Original, 200)
}

func (p *slowProber) Starts(host string) []time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Time(nil), p.started[host]...)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (e *recordingEmitter) Emit(evt progress.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func (e *recordingEmitter) Stages() []progress.Stage {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]progress.Stage, 0, len(e.events))
	for _, evt := range e.events {
		out = append(out, evt.Stage)
	}
	return out
}

func (e *recordingEmitter) Count(stage progress.Stage) int {
	n := 0
	for _, s := range e.Stages() {
		if s == stage {
			n++
		}
	}
	return n
}

func collect(ch <-chan Event) []Event {
	var out []Event
	for evt := range ch {
		out = append(out, evt)
	}
	return out
}

func targetsFor(urls ...string) []Target {
	out := make([]Target, 0, len(urls))
	for _, u := range urls {
		out = append(out, Target{Original: u, Probe: u})
	}
	return out
}
