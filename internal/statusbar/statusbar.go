// Package statusbar renders resource models as a single status line that
// is redrawn whenever one of the models changes.
package statusbar

import (
	"fmt"
	"github.com/cirruslabs/resource-usage-monitor/internal/usage"
	"github.com/dustin/go-humanize"
	"io"
	"strings"
	"sync"
)

// DecimalPlaces is the precision of CPU usage.
const DecimalPlaces = 3

const (
	separator     = " | "
	warningSuffix = " (!)"
)

type Source interface {
	Snapshot() usage.Snapshot
	Subscribe(fn func()) (unsubscribe func())
}

type Formatter func(snapshot usage.Snapshot) string

func FormatCPU(snapshot usage.Snapshot) string {
	current := fmt.Sprintf("%.*f", DecimalPlaces, snapshot.Current)
	if !snapshot.Limited {
		return "CPU: " + current
	}

	return fmt.Sprintf("CPU: %s / %g", current, snapshot.Limit)
}

func FormatMemory(snapshot usage.Snapshot) string {
	current := humanize.Bytes(uint64(snapshot.Current))
	if !snapshot.Limited {
		return "Mem: " + current
	}

	return fmt.Sprintf("Mem: %s / %s", current, humanize.Bytes(uint64(snapshot.Limit)))
}

type Item struct {
	source Source
	format Formatter
}

func NewItem(source Source, format Formatter) *Item {
	return &Item{source: source, format: format}
}

// Active reports whether the item should be shown at all.
func (item *Item) Active() bool {
	return item.source.Snapshot().Available
}

// Text renders the item, or returns false when it is hidden.
func (item *Item) Text() (string, bool) {
	snapshot := item.source.Snapshot()
	if !snapshot.Available {
		return "", false
	}

	text := item.format(snapshot)
	if snapshot.Warning {
		text += warningSuffix
	}

	return text, true
}

// Bar writes a line to its writer every time one of its items changes.
type Bar struct {
	mu           sync.Mutex
	out          io.Writer
	items        []*Item
	unsubscribes []func()
	last         string
	renders      int
}

func New(out io.Writer) *Bar {
	return &Bar{out: out}
}

func (bar *Bar) Add(items ...*Item) {
	bar.mu.Lock()
	defer bar.mu.Unlock()

	for _, item := range items {
		bar.items = append(bar.items, item)
		bar.unsubscribes = append(bar.unsubscribes, item.source.Subscribe(bar.Render))
	}
}

// Line renders all active items.
func (bar *Bar) Line() string {
	bar.mu.Lock()
	defer bar.mu.Unlock()

	return bar.line()
}

func (bar *Bar) line() string {
	var parts []string

	for _, item := range bar.items {
		if text, ok := item.Text(); ok {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, separator)
}

// Render redraws the line. Models notify from their own goroutines, so
// renders are serialized here.
func (bar *Bar) Render() {
	bar.mu.Lock()
	defer bar.mu.Unlock()

	line := bar.line()
	if line == bar.last && bar.renders > 0 {
		return
	}
	bar.last = line
	bar.renders++

	_, _ = fmt.Fprintln(bar.out, line)
}

func (bar *Bar) Renders() int {
	bar.mu.Lock()
	defer bar.mu.Unlock()

	return bar.renders
}

func (bar *Bar) Close() {
	bar.mu.Lock()
	defer bar.mu.Unlock()

	for _, unsubscribe := range bar.unsubscribes {
		unsubscribe()
	}
	bar.unsubscribes = nil
}
