//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

type cdevLine struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

func (l *cdevLine) Value() (int, error) {
	return l.line.Value()
}

// Close leaves the line as an input with pull-down before releasing it.
func (l *cdevLine) Close() error {
	var errs []error
	if err := l.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure line: %w", err))
	}
	if err := l.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close line: %w", err))
	}
	if err := l.chip.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close chip: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// OpenEndstop requests offset on chip as a pulled-down input and watches it
// for rising edges.
func OpenEndstop(name, chipName string, offset int, clock Clock) (*Endstop, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	e := NewEndstop(name, nil, clock)
	line, err := chip.RequestLine(offset,
		gpiocdev.AsInput,
		gpiocdev.WithPullDown,
		gpiocdev.WithRisingEdge,
		gpiocdev.WithConsumer("peripheral-controller"),
		gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) { e.Edge() }),
	)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request sensor pin %d: %w", offset, err)
	}

	e.mu.Lock()
	e.line = &cdevLine{chip: chip, line: line}
	e.mu.Unlock()
	return e, nil
}
