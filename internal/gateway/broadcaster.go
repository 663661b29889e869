package gateway

import (
	"strconv"
	"time"
)

const replayBufferCap = 500

// Publish wraps a payload in an envelope and sends it to every client
// subscribed to the channel. The envelope is hand-built JSON; json.Marshal
// on the hot path costs an order of magnitude more.
func (h *Hub) Publish(channel string, data []byte) {
	now := time.Now().UTC()

	h.mu.Lock()
	h.channelSeqs[channel]++
	channelSeq := h.channelSeqs[channel]
	h.seq++
	seq := h.seq
	h.latest[channel] = latestEntry{Data: data, TS: now, Seq: channelSeq}
	rb := h.replayBufs[channel]
	if rb == nil {
		rb = NewReplayBuffer(replayBufferCap)
		h.replayBufs[channel] = rb
	}
	h.mu.Unlock()

	buf := make([]byte, 0, len(channel)+len(data)+128)
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, channelSeq, 10)
	buf = append(buf, '}')

	rb.Push(channelSeq, buf)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if !client.wantsChannel(channel) {
			continue
		}
		select {
		case client.send <- buf:
		default:
			// slow client, drop rather than stall the hub
		}
	}
}
