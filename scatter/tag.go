package scatter

import "errors"

// TagOverhead is the fixed size the tag transform adds.
const TagOverhead = 1

var ErrMissingTag = errors.New("scatter: payload shorter than dimension tag")

// Tag prepends the one-byte dimension tag to payload. The input slice
// is not modified.
func Tag(dimension uint8, payload []byte) []byte {
	out := make([]byte, 1+len(payload))
	out[0] = dimension
	copy(out[1:], payload)
	return out
}

// Strip recovers the dimension tag and the original payload.
func Strip(tagged []byte) (uint8, []byte, error) {
	if len(tagged) < TagOverhead {
		return 0, nil, ErrMissingTag
	}
	return tagged[0], tagged[1:], nil
}
