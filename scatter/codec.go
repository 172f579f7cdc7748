package scatter

import (
	"crypto/subtle"
	"encoding/binary"
	"errors"

	"github.com/klauspost/reedsolomon"
)

var (
	ErrInvalidConfig   = errors.New("scatter: invalid data/parity configuration")
	ErrTooManyLost     = errors.New("scatter: too many shards lost, cannot recover")
	ErrShardMismatch   = errors.New("scatter: shard does not belong to this set")
	ErrShardTruncated  = errors.New("scatter: shard truncated")
	ErrRootMismatch    = errors.New("scatter: shard set failed merkle verification")
	ErrNotEnoughShards = errors.New("scatter: not enough shards received")
)

// shardHeaderSize: index(1) + data(1) + parity(1) + flags(1) +
// bodySize(4) + root(32) + dataLen(4).
const shardHeaderSize = 1 + 1 + 1 + 1 + 4 + 32 + 4

const flagCompressed = 0x01

// Shard is one fragment of a scattered payload. The header is fully
// self-describing: a receiver needs no state beyond the shards
// themselves to reassemble, which keeps the dimension tag contract
// intact for the richer transform.
type Shard struct {
	Index        uint8
	DataShards   uint8
	ParityShards uint8
	Compressed   bool
	BodySize     uint32 // size of the (possibly compressed) body before splitting
	Root         [32]byte
	Data         []byte
}

// Encode serializes the shard for transmission on its dimension.
func (s Shard) Encode() []byte {
	out := make([]byte, shardHeaderSize+len(s.Data))
	out[0] = s.Index
	out[1] = s.DataShards
	out[2] = s.ParityShards
	if s.Compressed {
		out[3] = flagCompressed
	}
	binary.BigEndian.PutUint32(out[4:8], s.BodySize)
	copy(out[8:40], s.Root[:])
	binary.BigEndian.PutUint32(out[40:44], uint32(len(s.Data)))
	copy(out[shardHeaderSize:], s.Data)
	return out
}

// DecodeShard deserializes a shard.
func DecodeShard(data []byte) (Shard, error) {
	if len(data) < shardHeaderSize {
		return Shard{}, ErrShardTruncated
	}
	s := Shard{
		Index:        data[0],
		DataShards:   data[1],
		ParityShards: data[2],
		Compressed:   data[3]&flagCompressed != 0,
		BodySize:     binary.BigEndian.Uint32(data[4:8]),
	}
	copy(s.Root[:], data[8:40])
	dataLen := binary.BigEndian.Uint32(data[40:44])
	if len(data) < shardHeaderSize+int(dataLen) {
		return Shard{}, ErrShardTruncated
	}
	s.Data = append([]byte(nil), data[shardHeaderSize:shardHeaderSize+int(dataLen)]...)
	return s, nil
}

// Config sets the shard geometry and compression for a Codec.
type Config struct {
	DataShards   int // dimensions carrying data
	ParityShards int // dimensions that may be lost
	Compression  CompressionLevel
}

// Codec scatters a payload into data+parity shards, one per dimension,
// using Reed-Solomon coding.
type Codec struct {
	enc reedsolomon.Encoder
	cfg Config
}

// NewCodec creates a scatter codec. DataShards and ParityShards must
// both be positive and sum to at most 256 (the tag space).
func NewCodec(cfg Config) (*Codec, error) {
	if cfg.DataShards <= 0 || cfg.ParityShards <= 0 ||
		cfg.DataShards+cfg.ParityShards > 256 {
		return nil, ErrInvalidConfig
	}
	enc, err := reedsolomon.New(cfg.DataShards, cfg.ParityShards)
	if err != nil {
		return nil, err
	}
	return &Codec{enc: enc, cfg: cfg}, nil
}

// TotalShards returns data + parity.
func (c *Codec) TotalShards() int { return c.cfg.DataShards + c.cfg.ParityShards }

// Scatter splits a payload into TotalShards self-describing shards.
// The payload is LZ4-compressed first when that shrinks it.
func (c *Codec) Scatter(payload []byte) ([]Shard, error) {
	body, compressed := maybeCompress(payload, c.cfg.Compression)

	split, err := c.enc.Split(body)
	if err != nil {
		return nil, err
	}
	if err := c.enc.Encode(split); err != nil {
		return nil, err
	}

	hashes := make([][]byte, len(split))
	for i, sh := range split {
		hashes[i] = HashShard(sh)
	}
	tree, err := BuildMerkleTree(hashes)
	if err != nil {
		return nil, err
	}
	var root [32]byte
	copy(root[:], tree.Root())

	out := make([]Shard, len(split))
	for i, sh := range split {
		out[i] = Shard{
			Index:        uint8(i),
			DataShards:   uint8(c.cfg.DataShards),
			ParityShards: uint8(c.cfg.ParityShards),
			Compressed:   compressed,
			BodySize:     uint32(len(body)),
			Root:         root,
			Data:         sh,
		}
	}
	return out, nil
}

// Gatherer incrementally collects shards arriving on different
// dimensions and reassembles the payload once enough have landed.
type Gatherer struct {
	initialized  bool
	dataShards   int
	parityShards int
	bodySize     uint32
	compressed   bool
	root         [32]byte
	shards       [][]byte
	received     int
}

// NewGatherer creates an empty gatherer; geometry is learned from the
// first shard.
func NewGatherer() *Gatherer { return &Gatherer{} }

// Add accepts one shard. Shards from a different set (root or
// geometry mismatch) are rejected; duplicates are ignored.
func (g *Gatherer) Add(s Shard) error {
	if !g.initialized {
		if s.DataShards == 0 {
			return ErrShardMismatch
		}
		g.dataShards = int(s.DataShards)
		g.parityShards = int(s.ParityShards)
		g.bodySize = s.BodySize
		g.compressed = s.Compressed
		g.root = s.Root
		g.shards = make([][]byte, g.dataShards+g.parityShards)
		g.initialized = true
	}
	if int(s.DataShards) != g.dataShards || int(s.ParityShards) != g.parityShards ||
		s.Root != g.root || s.BodySize != g.bodySize {
		return ErrShardMismatch
	}
	if int(s.Index) >= len(g.shards) {
		return ErrShardMismatch
	}
	if g.shards[s.Index] == nil {
		g.shards[s.Index] = s.Data
		g.received++
	}
	return nil
}

// Complete reports whether enough shards have arrived to reassemble.
func (g *Gatherer) Complete() bool {
	return g.initialized && g.received >= g.dataShards
}

// Assemble reconstructs missing shards, verifies the set against the
// Merkle root, and returns the original payload.
func (g *Gatherer) Assemble() ([]byte, error) {
	if !g.Complete() {
		return nil, ErrNotEnoughShards
	}

	enc, err := reedsolomon.New(g.dataShards, g.parityShards)
	if err != nil {
		return nil, err
	}
	if err := enc.Reconstruct(g.shards); err != nil {
		if errors.Is(err, reedsolomon.ErrTooFewShards) {
			return nil, ErrTooManyLost
		}
		return nil, err
	}

	hashes := make([][]byte, len(g.shards))
	for i, sh := range g.shards {
		hashes[i] = HashShard(sh)
	}
	tree, err := BuildMerkleTree(hashes)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare(tree.Root(), g.root[:]) != 1 {
		return nil, ErrRootMismatch
	}

	body := make([]byte, 0, g.bodySize)
	for i := 0; i < g.dataShards && len(body) < int(g.bodySize); i++ {
		remaining := int(g.bodySize) - len(body)
		if remaining >= len(g.shards[i]) {
			body = append(body, g.shards[i]...)
		} else {
			body = append(body, g.shards[i][:remaining]...)
		}
	}

	if g.compressed {
		return Decompress(body)
	}
	return body, nil
}
