package gpio

import "errors"

// FakeLine is a test double that returns scripted line levels.
type FakeLine struct {
	// Values are consumed one per read; the last one repeats.
	Values []int

	index int

	ReadError error
	Closed    bool
}

func NewFakeLine(values ...int) *FakeLine {
	return &FakeLine{Values: values}
}

func (f *FakeLine) Value() (int, error) {
	if f.ReadError != nil {
		return 0, f.ReadError
	}
	if len(f.Values) == 0 {
		return 0, errors.New("no values configured")
	}
	v := f.Values[f.index]
	if f.index < len(f.Values)-1 {
		f.index++
	}
	return v, nil
}

func (f *FakeLine) Close() error {
	f.Closed = true
	return nil
}
