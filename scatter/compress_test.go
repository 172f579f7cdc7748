package scatter

import (
	"bytes"
	"testing"
)

func TestCompressRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("scatterlink "), 512)

	for _, level := range []CompressionLevel{CompressionFast, CompressionDefault, CompressionBest} {
		compressed, err := Compress(data, level)
		if err != nil {
			t.Fatalf("Compress level %d: %v", level, err)
		}
		if len(compressed) >= len(data) {
			t.Fatalf("level %d: repetitive input did not shrink (%d -> %d)", level, len(data), len(compressed))
		}
		out, err := Decompress(compressed)
		if err != nil {
			t.Fatalf("Decompress level %d: %v", level, err)
		}
		if !bytes.Equal(out, data) {
			t.Fatalf("level %d: round trip mismatch", level)
		}
	}
}

func TestDecompressGarbage(t *testing.T) {
	if _, err := Decompress([]byte("definitely not an lz4 frame")); err != ErrDecompressionFailed {
		t.Fatalf("expected ErrDecompressionFailed, got %v", err)
	}
}

func TestMaybeCompressSkipsIncompressible(t *testing.T) {
	// Short high-entropy-ish input: the lz4 frame overhead alone makes
	// compression a loss, so the original bytes must pass through.
	data := []byte{0x7f, 0x01, 0xa9, 0x33}
	out, compressed := maybeCompress(data, CompressionDefault)
	if compressed {
		t.Fatalf("tiny input reported as compressed")
	}
	if !bytes.Equal(out, data) {
		t.Fatalf("pass-through modified the data")
	}
}

func TestMaybeCompressTakesRepetitive(t *testing.T) {
	data := bytes.Repeat([]byte{0x42}, 4096)
	out, compressed := maybeCompress(data, CompressionDefault)
	if !compressed {
		t.Fatalf("repetitive input not compressed")
	}
	if len(out) >= len(data) {
		t.Fatalf("compressed output not smaller")
	}
	back, err := Decompress(out)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(back, data) {
		t.Fatalf("round trip mismatch")
	}
}
