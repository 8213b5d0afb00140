package camera

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
)

// Device is a camera handle that produces JPEG frames once started.
type Device interface {
	// Start configures and starts the camera.
	Start(ctx context.Context) error

	// Frame returns the next complete JPEG frame.
	Frame(ctx context.Context) ([]byte, error)

	// Close stops the camera and releases it.
	Close() error
}

// DeviceFactory creates a new, unstarted Device.
type DeviceFactory func() Device

// StreamDevice runs a video tool that writes MJPEG to stdout and keeps the
// most recent frame. The process is the camera handle: starting it claims
// the sensor, killing it releases it.
type StreamDevice struct {
	Tool string
	Args []string

	mu     sync.Mutex
	latest []byte
	notify chan struct{} // closed when a new frame or a terminal error arrives
	err    error

	cmd    *exec.Cmd
	stdout io.ReadCloser
	done   chan struct{}
}

// NewStreamDevice creates a device for rpicam-vid or libcamera-vid.
func NewStreamDevice(tool string, width, height int) *StreamDevice {
	return &StreamDevice{
		Tool: tool,
		Args: []string{
			"-t", "0",
			"-n",
			"--codec", "mjpeg",
			"--width", strconv.Itoa(width),
			"--height", strconv.Itoa(height),
			"-o", "-",
		},
	}
}

// Start launches the capture process.
func (d *StreamDevice) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cmd := exec.Command(d.Tool, d.Args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%s stdout: %w", d.Tool, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", d.Tool, err)
	}
	d.cmd = cmd
	d.begin(stdout)
	return nil
}

// begin starts reading frames from r.
func (d *StreamDevice) begin(r io.ReadCloser) {
	d.mu.Lock()
	d.stdout = r
	d.notify = make(chan struct{})
	d.err = nil
	d.latest = nil
	d.done = make(chan struct{})
	d.mu.Unlock()

	go d.readLoop(r)
}

func (d *StreamDevice) readLoop(r io.Reader) {
	defer close(d.done)
	br := bufio.NewReaderSize(r, 256*1024)
	for {
		frame, err := readFrame(br)

		d.mu.Lock()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = fmt.Errorf("%s: stream ended", d.Tool)
			}
			d.err = err
			close(d.notify)
			d.mu.Unlock()
			return
		}
		d.latest = frame
		close(d.notify)
		d.notify = make(chan struct{})
		d.mu.Unlock()
	}
}

// Frame waits for the next frame produced after the call.
func (d *StreamDevice) Frame(ctx context.Context) ([]byte, error) {
	d.mu.Lock()
	if d.notify == nil {
		d.mu.Unlock()
		return nil, errors.New("camera not started")
	}
	if d.err != nil {
		err := d.err
		d.mu.Unlock()
		return nil, err
	}
	ch := d.notify
	d.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-ch:
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	return d.latest, nil
}

// Close kills the process and waits for the reader to finish.
func (d *StreamDevice) Close() error {
	var err error
	if d.cmd != nil && d.cmd.Process != nil {
		if kerr := d.cmd.Process.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
			err = kerr
		}
		d.cmd.Wait()
		d.cmd = nil
	} else if d.stdout != nil {
		err = d.stdout.Close()
	}
	if d.done != nil {
		<-d.done
	}
	return err
}

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// maxFrameSize bounds a single frame so a corrupt stream cannot grow memory without limit.
const maxFrameSize = 16 << 20

// readFrame returns the next SOI..EOI delimited JPEG from an MJPEG byte stream.
func readFrame(r *bufio.Reader) ([]byte, error) {
	// Skip to the start of image marker.
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b != 0xFF {
			continue
		}
		next, err := r.Peek(1)
		if err != nil {
			return nil, err
		}
		if next[0] == 0xD8 {
			r.ReadByte()
			break
		}
	}

	var buf bytes.Buffer
	buf.Write(jpegSOI)
	for {
		chunk, err := r.ReadSlice(0xFF)
		buf.Write(chunk)
		if err != nil && !errors.Is(err, bufio.ErrBufferFull) {
			if errors.Is(err, io.EOF) {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		if buf.Len() > maxFrameSize {
			return nil, fmt.Errorf("frame exceeds %d bytes", maxFrameSize)
		}
		if err != nil {
			continue
		}
		next, err := r.Peek(1)
		if err != nil {
			return nil, io.ErrUnexpectedEOF
		}
		if next[0] == jpegEOI[1] {
			r.ReadByte()
			buf.WriteByte(jpegEOI[1])
			return buf.Bytes(), nil
		}
	}
}
