package mqtt

import (
	"log"
	"sync"
)

// DefaultBufferSize is how many messages are kept while the broker is away.
const DefaultBufferSize = 100

// queuedMsg is a serialized message waiting for the broker.
type queuedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox is a fixed-capacity FIFO of messages published while disconnected.
// When full, the oldest message is dropped. Safe for concurrent use.
type outbox struct {
	mu      sync.Mutex
	buf     []queuedMsg
	head    int // next write position
	count   int
	dropped int // dropped since the last drain
}

func newOutbox(capacity int) *outbox {
	if capacity < 1 {
		capacity = 1
	}
	return &outbox{buf: make([]queuedMsg, capacity)}
}

func (o *outbox) push(msg queuedMsg) {
	o.mu.Lock()
	defer o.mu.Unlock()

	capacity := len(o.buf)
	o.buf[o.head] = msg
	o.head = (o.head + 1) % capacity
	if o.count == capacity {
		if o.dropped == 0 {
			log.Printf("mqtt: outbox full (%d messages), dropping oldest", capacity)
		}
		o.dropped++
		return
	}
	o.count++
}

// drain returns queued messages oldest first and empties the outbox.
func (o *outbox) drain() (msgs []queuedMsg, dropped int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	dropped = o.dropped
	o.dropped = 0
	if o.count == 0 {
		return nil, dropped
	}

	capacity := len(o.buf)
	msgs = make([]queuedMsg, o.count)
	start := (o.head - o.count + capacity) % capacity
	for i := range msgs {
		msgs[i] = o.buf[(start+i)%capacity]
		o.buf[(start+i)%capacity] = queuedMsg{}
	}
	o.count = 0
	o.head = 0
	return msgs, dropped
}

func (o *outbox) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.count
}
