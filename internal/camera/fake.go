package camera

import (
	"context"
	"sync"
)

// FakeDevice is a scripted Device for tests.
type FakeDevice struct {
	mu sync.Mutex

	Data     []byte
	StartErr error
	FrameErr error
	CloseErr error

	Starts int
	Frames int
	Closes int
}

// Start implements Device.
func (d *FakeDevice) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Starts++
	return d.StartErr
}

// Frame implements Device.
func (d *FakeDevice) Frame(ctx context.Context) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Frames++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.FrameErr != nil {
		return nil, d.FrameErr
	}
	return d.Data, nil
}

// Close implements Device.
func (d *FakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Closes++
	return d.CloseErr
}

// FakeDevices hands out scripted devices in order, repeating the last one.
type FakeDevices struct {
	mu      sync.Mutex
	Devices []*FakeDevice
	Opened  int
}

// New implements DeviceFactory.
func (f *FakeDevices) New() Device {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.Opened
	if i >= len(f.Devices) {
		i = len(f.Devices) - 1
	}
	f.Opened++
	return f.Devices[i]
}

// Count returns how many devices have been handed out.
func (f *FakeDevices) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Opened
}
