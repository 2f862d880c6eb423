package app

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Profiler accumulates CPU time per named scope over a run. It is used from
// the render goroutine only.
type Profiler struct {
	scopes map[string]*scope
	counts map[string]int
	order  []string
}

type scope struct {
	start time.Time
	last  time.Duration
	total time.Duration
	calls int
}

func NewProfiler() *Profiler {
	return &Profiler{
		scopes: make(map[string]*scope),
		counts: make(map[string]int),
	}
}

func (p *Profiler) BeginScope(name string) {
	s, ok := p.scopes[name]
	if !ok {
		s = &scope{}
		p.scopes[name] = s
		p.order = append(p.order, name)
	}
	s.start = time.Now()
}

func (p *Profiler) EndScope(name string) {
	s, ok := p.scopes[name]
	if !ok || s.start.IsZero() {
		return
	}
	s.last = time.Since(s.start)
	s.total += s.last
	s.calls++
	s.start = time.Time{}
}

// Measure runs fn inside a scope.
func (p *Profiler) Measure(name string, fn func()) {
	p.BeginScope(name)
	defer p.EndScope(name)
	fn()
}

func (p *Profiler) SetCount(name string, count int) { p.counts[name] = count }
func (p *Profiler) AddCount(name string, delta int) { p.counts[name] += delta }

func (p *Profiler) Count(name string) int { return p.counts[name] }

// Total is the accumulated time of a scope.
func (p *Profiler) Total(name string) time.Duration {
	if s, ok := p.scopes[name]; ok {
		return s.total
	}
	return 0
}

func (p *Profiler) Calls(name string) int {
	if s, ok := p.scopes[name]; ok {
		return s.calls
	}
	return 0
}

// Reset clears timings and counters but keeps scope order.
func (p *Profiler) Reset() {
	for _, s := range p.scopes {
		*s = scope{}
	}
	for k := range p.counts {
		delete(p.counts, k)
	}
}

func (p *Profiler) StatsString() string {
	var sb strings.Builder

	sb.WriteString("Timings (CPU):\n")
	for _, name := range p.order {
		s := p.scopes[name]
		avg := time.Duration(0)
		if s.calls > 0 {
			avg = s.total / time.Duration(s.calls)
		}
		sb.WriteString(fmt.Sprintf("  %-15s: total %.2f ms, avg %.2f ms over %d\n",
			name, ms(s.total), ms(avg), s.calls))
	}

	sb.WriteString("\nStats:\n")
	keys := make([]string, 0, len(p.counts))
	for k := range p.counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf("  %-15s: %d\n", k, p.counts[k]))
	}
	return sb.String()
}

func ms(d time.Duration) float64 { return float64(d.Microseconds()) / 1000.0 }
