package redis

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"volatility-systemv1/internal/model"
)

// pendingWrite is a write that was buffered during circuit-open state.
type pendingWrite struct {
	WriteType string // "stats", "recommendation"
	Data      []byte
}

// BufferedWriter wraps a Writer with a circuit breaker. While the circuit
// is open, writes are buffered locally and replayed once Redis recovers.
type BufferedWriter struct {
	writer *Writer
	cb     *CircuitBreaker
	ctx    context.Context

	mu     sync.Mutex
	buffer []pendingWrite
	maxBuf int

	// Callbacks for metrics hooks
	OnBuffer func()
	OnFlush  func(count int)
}

// NewBufferedWriter creates a BufferedWriter wrapping the given Writer.
func NewBufferedWriter(ctx context.Context, w *Writer, cb *CircuitBreaker, maxBufferSize int) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bw := &BufferedWriter{
		writer: w,
		cb:     cb,
		ctx:    ctx,
		buffer: make([]pendingWrite, 0, 256),
		maxBuf: maxBufferSize,
	}

	prev := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prev != nil {
			prev(from, to)
		}
		if to == StateClosed {
			go bw.flush()
		}
	}

	return bw
}

// WriteStats writes a stats snapshot through the circuit breaker,
// buffering it if the circuit is open.
func (bw *BufferedWriter) WriteStats(s model.SymbolStats) error {
	err := bw.cb.Execute(func() error {
		return bw.writer.WriteStats(bw.ctx, s)
	})
	if err == ErrCircuitOpen {
		bw.bufferWrite("stats", s)
		return nil
	}
	return err
}

// WriteRecommendation writes a recommendation through the circuit breaker.
func (bw *BufferedWriter) WriteRecommendation(rec *model.Recommendation) error {
	err := bw.cb.Execute(func() error {
		return bw.writer.WriteRecommendation(bw.ctx, rec)
	})
	if err == ErrCircuitOpen {
		bw.bufferWrite("recommendation", rec)
		return nil
	}
	return err
}

func (bw *BufferedWriter) bufferWrite(writeType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[buffered-writer] marshal error: %v", err)
		return
	}

	bw.mu.Lock()
	defer bw.mu.Unlock()

	if len(bw.buffer) >= bw.maxBuf {
		bw.buffer = bw.buffer[1:] // drop oldest
	}
	bw.buffer = append(bw.buffer, pendingWrite{WriteType: writeType, Data: data})

	if bw.OnBuffer != nil {
		bw.OnBuffer()
	}
}

// flush replays buffered writes through the underlying writer.
func (bw *BufferedWriter) flush() {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return
	}
	toFlush := bw.buffer
	bw.buffer = make([]pendingWrite, 0, 256)
	bw.mu.Unlock()

	flushed := 0
	for _, pw := range toFlush {
		switch pw.WriteType {
		case "stats":
			var s model.SymbolStats
			if json.Unmarshal(pw.Data, &s) == nil {
				bw.writer.WriteStats(bw.ctx, s)
			}
		case "recommendation":
			var rec model.Recommendation
			if json.Unmarshal(pw.Data, &rec) == nil {
				bw.writer.WriteRecommendation(bw.ctx, &rec)
			}
		}
		flushed++
	}

	log.Printf("[buffered-writer] flushed %d buffered writes", flushed)
	if bw.OnFlush != nil {
		bw.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered writes awaiting flush.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

// Underlying returns the wrapped Writer.
func (bw *BufferedWriter) Underlying() *Writer {
	return bw.writer
}
