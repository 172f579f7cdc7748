package scatterlink

import (
	"context"
	"errors"
	"io"
	"sync"

	q "github.com/quic-go/quic-go"

	"scatterlink/cache"
	"scatterlink/scatter"
	"scatterlink/session"
)

var (
	ErrBackpressure  = errors.New("scatterlink: dimension lane full, packet dropped")
	ErrNoScatterCode = errors.New("scatterlink: link has no scatter codec configured")
)

// Payload kind byte, the first byte of every plaintext payload moved
// over a link. It travels inside the sealed packet.
const (
	kindPlain uint8 = 0x01
	kindShard uint8 = 0x02
)

// LinkOptions tunes a link. Zero values take defaults.
type LinkOptions struct {
	// QueueDepth bounds each dimension lane's queue.
	QueueDepth int
	// DeliveryBuffer bounds the inbound delivery channel.
	DeliveryBuffer int
	// Scatter enables SendScattered with the given shard geometry.
	Scatter *scatter.Config
	// GatherLimit bounds concurrently tracked inbound shard sets
	// (default 64). Abandoned sets are evicted, not kept forever.
	GatherLimit int
}

// Delivery is one payload received over a link and the dimension it
// arrived on.
type Delivery struct {
	Dimension uint8
	Payload   []byte
}

// Link moves sealed packets for one session: outbound through the
// engine's routing pipeline onto per-dimension lanes, inbound from
// accepted streams back through the engine. Sending never blocks on
// the network; a full lane drops the packet and reports backpressure.
type Link struct {
	node       *Node
	sess       *session.Session
	dispatcher *scatter.Dispatcher
	codec      *scatter.Codec
	deliveries chan Delivery
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	mu sync.Mutex
	// Inbound shard sets, bounded by the recall cache: each arriving
	// shard reinforces its set, so abandoned sets (hostile roots, or
	// more than parity shards lost) are the first evicted.
	gatherers *cache.Recall[*scatter.Gatherer]
	// Streams with a reader blocked on them; Close cancels their read
	// side so the readers can exit.
	streams map[q.Stream]struct{}
}

type sessionLanes struct {
	sess *session.Session
}

func (o sessionLanes) OpenLane(ctx context.Context, _ uint8) (io.WriteCloser, error) {
	return o.sess.OpenStream(ctx)
}

// Attach builds a Link over an established session and starts its
// senders and receivers.
func (n *Node) Attach(ctx context.Context, sess *session.Session, opts LinkOptions) (*Link, error) {
	var codec *scatter.Codec
	if opts.Scatter != nil {
		var err error
		codec, err = scatter.NewCodec(*opts.Scatter)
		if err != nil {
			return nil, err
		}
	}
	if opts.DeliveryBuffer <= 0 {
		opts.DeliveryBuffer = 256
	}
	if opts.GatherLimit <= 0 {
		opts.GatherLimit = 64
	}

	ctx, cancel := context.WithCancel(ctx)
	l := &Link{
		node:       n,
		sess:       sess,
		dispatcher: scatter.NewDispatcher(sessionLanes{sess}, n.eng.Dimensions(), opts.QueueDepth),
		codec:      codec,
		deliveries: make(chan Delivery, opts.DeliveryBuffer),
		cancel:     cancel,
		gatherers:  cache.New[*scatter.Gatherer](opts.GatherLimit),
		streams:    map[q.Stream]struct{}{},
	}
	l.dispatcher.Start(ctx)

	l.wg.Add(1)
	go l.acceptLoop(ctx)
	return l, nil
}

// Send routes one payload to the link's peer and queues the sealed
// packet on its dimension lane.
func (l *Link) Send(payload []byte) error {
	framed := make([]byte, 1+len(payload))
	framed[0] = kindPlain
	copy(framed[1:], payload)

	routed, err := l.node.eng.RoutePacket(framed, l.sess.RemoteSealKey())
	if err != nil {
		return err
	}
	if !l.dispatcher.Dispatch(routed.Dimension, routed.Packet) {
		return ErrBackpressure
	}
	return nil
}

// SendScattered splits the payload into Reed-Solomon shards and routes
// each one independently, spreading the pieces across dimensions. The
// receiver reassembles once enough shards land, so the payload
// survives the loss of up to the configured parity count.
func (l *Link) SendScattered(payload []byte) error {
	if l.codec == nil {
		return ErrNoScatterCode
	}
	shards, err := l.codec.Scatter(payload)
	if err != nil {
		return err
	}
	for _, sh := range shards {
		encoded := sh.Encode()
		framed := make([]byte, 1+len(encoded))
		framed[0] = kindShard
		copy(framed[1:], encoded)

		routed, err := l.node.eng.RoutePacket(framed, l.sess.RemoteSealKey())
		if err != nil {
			return err
		}
		if !l.dispatcher.Dispatch(routed.Dimension, routed.Packet) {
			return ErrBackpressure
		}
	}
	return nil
}

// Deliveries returns the inbound payload stream.
func (l *Link) Deliveries() <-chan Delivery { return l.deliveries }

// Stats returns the outbound dispatcher counters.
func (l *Link) Stats() *scatter.DispatchStats { return l.dispatcher.Stats() }

// Close stops the link's senders and receivers. Readers blocked on
// live inbound streams have their read side cancelled, so Close does
// not wait out the transport's idle timeout.
func (l *Link) Close() {
	l.cancel()
	l.dispatcher.Close()

	l.mu.Lock()
	for stream := range l.streams {
		stream.CancelRead(0)
	}
	l.mu.Unlock()

	l.wg.Wait()
}

func (l *Link) acceptLoop(ctx context.Context) {
	defer l.wg.Done()
	for {
		stream, err := l.sess.AcceptStream(ctx)
		if err != nil {
			return
		}
		l.mu.Lock()
		// Close cancels ctx before it sweeps the registry; a stream
		// landing after the sweep must not be parked unregistered.
		if ctx.Err() != nil {
			l.mu.Unlock()
			stream.CancelRead(0)
			return
		}
		l.streams[stream] = struct{}{}
		l.mu.Unlock()

		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			defer func() {
				l.mu.Lock()
				delete(l.streams, stream)
				l.mu.Unlock()
			}()
			l.readLoop(ctx, stream)
		}()
	}
}

func (l *Link) readLoop(ctx context.Context, stream io.Reader) {
	peer := l.sess.RemoteSealKey()
	for {
		packet, err := scatter.ReadPacket(stream)
		if err != nil {
			return
		}
		dim, framed, err := l.node.eng.OpenPacket(packet, peer)
		if err != nil {
			// Tampered or stale packet: drop and keep reading.
			continue
		}
		if len(framed) < 1 {
			continue
		}
		kind, payload := framed[0], framed[1:]

		switch kind {
		case kindPlain:
			select {
			case l.deliveries <- Delivery{Dimension: dim, Payload: payload}:
			case <-ctx.Done():
				return
			}
		case kindShard:
			if out, ok := l.gatherShard(payload); ok {
				select {
				case l.deliveries <- Delivery{Dimension: dim, Payload: out}:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// gatherShard feeds one shard into its set's gatherer and returns the
// reassembled payload when the set completes. Each shard reinforces
// its set in the bounded cache, so sets still receiving traffic
// outlive abandoned ones.
func (l *Link) gatherShard(data []byte) ([]byte, bool) {
	sh, err := scatter.DecodeShard(data)
	if err != nil {
		return nil, false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := string(sh.Root[:])
	g, ok := l.gatherers.Recall(key)
	if !ok {
		g = scatter.NewGatherer()
		l.gatherers.Store(key, g, cache.MinPriority)
	}
	if err := g.Add(sh); err != nil {
		return nil, false
	}
	if !g.Complete() {
		return nil, false
	}
	l.gatherers.Delete(key)
	payload, err := g.Assemble()
	if err != nil {
		return nil, false
	}
	return payload, true
}
