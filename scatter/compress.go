package scatter

import (
	"bytes"
	"errors"
	"io"
	"sync"

	"github.com/pierrec/lz4/v4"
)

var (
	ErrCompressionFailed   = errors.New("scatter: compression failed")
	ErrDecompressionFailed = errors.New("scatter: decompression failed")
)

// CompressionLevel controls the speed/ratio tradeoff for shard
// compression.
type CompressionLevel int

const (
	CompressionFast    CompressionLevel = iota // fastest, lower ratio
	CompressionDefault                         // balanced
	CompressionBest                            // best ratio, slower
)

// Writer/reader pools keep per-shard allocations off the route path.
var compressorPool = sync.Pool{
	New: func() interface{} {
		return lz4.NewWriter(nil)
	},
}

var decompressorPool = sync.Pool{
	New: func() interface{} {
		return lz4.NewReader(nil)
	},
}

// Compress compresses data with LZ4, chosen for its speed on
// commodity hardware.
func Compress(data []byte, level CompressionLevel) ([]byte, error) {
	var buf bytes.Buffer
	w := compressorPool.Get().(*lz4.Writer)
	defer compressorPool.Put(w)

	w.Reset(&buf)

	switch level {
	case CompressionFast:
		_ = w.Apply(lz4.CompressionLevelOption(lz4.Fast))
	case CompressionBest:
		_ = w.Apply(lz4.CompressionLevelOption(lz4.Level9))
	default:
		_ = w.Apply(lz4.CompressionLevelOption(lz4.Level4))
	}

	if _, err := w.Write(data); err != nil {
		return nil, ErrCompressionFailed
	}
	if err := w.Close(); err != nil {
		return nil, ErrCompressionFailed
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress.
func Decompress(data []byte) ([]byte, error) {
	r := decompressorPool.Get().(*lz4.Reader)
	defer decompressorPool.Put(r)

	r.Reset(bytes.NewReader(data))

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, ErrDecompressionFailed
	}
	return buf.Bytes(), nil
}

// maybeCompress compresses data when it actually shrinks it.
func maybeCompress(data []byte, level CompressionLevel) ([]byte, bool) {
	compressed, err := Compress(data, level)
	if err != nil || len(compressed) >= len(data) {
		return data, false
	}
	return compressed, true
}
