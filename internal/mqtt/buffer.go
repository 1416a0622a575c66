package mqtt

// DefaultOutboxSize is the number of messages held while the broker is unreachable.
const DefaultOutboxSize = 200

// pendingMsg is a serialized MQTT message waiting for a connection.
type pendingMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox is a bounded FIFO that drops its oldest message when full.
// Not safe for concurrent use; the caller synchronizes.
type outbox struct {
	msgs    []pendingMsg
	limit   int
	dropped int // messages discarded since the last take
}

func newOutbox(limit int) *outbox {
	if limit < 1 {
		limit = 1
	}
	return &outbox{limit: limit}
}

func (o *outbox) add(msg pendingMsg) {
	if len(o.msgs) == o.limit {
		copy(o.msgs, o.msgs[1:])
		o.msgs = o.msgs[:len(o.msgs)-1]
		o.dropped++
	}
	o.msgs = append(o.msgs, msg)
}

// take returns all queued messages oldest first, the number dropped, and
// empties the outbox.
func (o *outbox) take() ([]pendingMsg, int) {
	msgs, dropped := o.msgs, o.dropped
	o.msgs = nil
	o.dropped = 0
	return msgs, dropped
}

func (o *outbox) len() int {
	return len(o.msgs)
}
