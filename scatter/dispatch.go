package scatter

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

var (
	ErrDispatcherClosed = errors.New("scatter: dispatcher closed")
	ErrPacketTooLarge   = errors.New("scatter: packet exceeds maximum size")
)

// MaxPacketSize bounds a single dispatched packet (4 MB).
const MaxPacketSize = 4 * 1024 * 1024

// LaneOpener opens the transmission lane for one dimension.
// Implementations are typically backed by transport streams.
type LaneOpener interface {
	OpenLane(ctx context.Context, dimension uint8) (io.WriteCloser, error)
}

// DispatchStats tracks dispatcher throughput.
type DispatchStats struct {
	Sent    atomic.Uint64
	Bytes   atomic.Uint64
	Dropped atomic.Uint64
	Errors  atomic.Uint64
}

// Dispatcher hands sealed packets to per-dimension lanes without ever
// blocking the producer: each dimension has a bounded queue drained by
// its own worker, and a full queue drops the packet and counts it.
//
// The mutex serializes sends against Close, so producers can race
// Close without hitting a closed queue.
type Dispatcher struct {
	opener LaneOpener
	queues []chan []byte
	stats  DispatchStats
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher creates a dispatcher for the given dimension count.
func NewDispatcher(opener LaneOpener, dimensions, queueDepth int) *Dispatcher {
	if queueDepth <= 0 {
		queueDepth = 64
	}
	queues := make([]chan []byte, dimensions)
	for i := range queues {
		queues[i] = make(chan []byte, queueDepth)
	}
	return &Dispatcher{opener: opener, queues: queues}
}

// Start launches one worker per dimension. Workers exit when their
// queue is closed or ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for dim := range d.queues {
		d.wg.Add(1)
		go d.drain(ctx, uint8(dim))
	}
}

func (d *Dispatcher) drain(ctx context.Context, dim uint8) {
	defer d.wg.Done()

	var lane io.WriteCloser
	defer func() {
		if lane != nil {
			_ = lane.Close()
		}
	}()

	for {
		select {
		case packet, ok := <-d.queues[dim]:
			if !ok {
				return
			}
			if lane == nil {
				var err error
				lane, err = d.opener.OpenLane(ctx, dim)
				if err != nil {
					d.stats.Errors.Add(1)
					continue
				}
			}
			if err := WritePacket(lane, packet); err != nil {
				d.stats.Errors.Add(1)
				_ = lane.Close()
				lane = nil
				continue
			}
			d.stats.Sent.Add(1)
			d.stats.Bytes.Add(uint64(len(packet)))
		case <-ctx.Done():
			return
		}
	}
}

// Dispatch queues a sealed packet on its dimension's lane. It never
// blocks: false means the packet was dropped (queue full or closed).
func (d *Dispatcher) Dispatch(dimension uint8, packet []byte) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed || int(dimension) >= len(d.queues) {
		d.stats.Dropped.Add(1)
		return false
	}
	select {
	case d.queues[dimension] <- packet:
		return true
	default:
		d.stats.Dropped.Add(1)
		return false
	}
}

// Close stops accepting packets, drains the queues and waits for the
// workers.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, q := range d.queues {
		close(q)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// Stats returns the dispatcher counters.
func (d *Dispatcher) Stats() *DispatchStats { return &d.stats }

// WritePacket writes one length-prefixed packet to a lane.
func WritePacket(w io.Writer, packet []byte) error {
	if len(packet) > MaxPacketSize {
		return ErrPacketTooLarge
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(packet)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(packet)
	return err
}

// ReadPacket reads one length-prefixed packet from a lane.
func ReadPacket(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(lenBuf[:])
	if size > MaxPacketSize {
		return nil, ErrPacketTooLarge
	}
	packet := make([]byte, size)
	if _, err := io.ReadFull(r, packet); err != nil {
		return nil, err
	}
	return packet, nil
}
