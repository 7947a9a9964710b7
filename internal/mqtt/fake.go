package mqtt

// FakePublisher records published events for test assertions.
type FakePublisher struct {
	Statuses       []Status
	StatusPayloads [][]byte
	Faults         []Fault
	FaultPayloads  [][]byte

	// PublishError, if set, is returned by both publish methods.
	PublishError error

	Closed bool
}

func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

func (f *FakePublisher) PublishStatus(status Status) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatStatusPayload(status)
	if err != nil {
		return err
	}
	f.Statuses = append(f.Statuses, status)
	f.StatusPayloads = append(f.StatusPayloads, payload)
	return nil
}

func (f *FakePublisher) PublishFault(fault Fault) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatFaultPayload(fault)
	if err != nil {
		return err
	}
	f.Faults = append(f.Faults, fault)
	f.FaultPayloads = append(f.FaultPayloads, payload)
	return nil
}

func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}
