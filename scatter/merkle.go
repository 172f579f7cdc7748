package scatter

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
)

var (
	ErrMerkleEmpty      = errors.New("scatter: no shard hashes provided")
	ErrMerkleProofFail  = errors.New("scatter: merkle proof verification failed")
	ErrMerkleIndexRange = errors.New("scatter: shard index out of range")
)

// MerkleTree binds a scattered shard set together: the root travels in
// every shard header, so a gatherer can verify the reassembled set
// without any side channel.
type MerkleTree struct {
	leaves [][]byte
	nodes  [][]byte // full binary tree stored as array
	root   []byte
}

// BuildMerkleTree constructs a tree from SHA-256 shard hashes.
func BuildMerkleTree(shardHashes [][]byte) (*MerkleTree, error) {
	if len(shardHashes) == 0 {
		return nil, ErrMerkleEmpty
	}

	// Pad leaf count to a power of two with hashes of empty input.
	n := 1
	for n < len(shardHashes) {
		n *= 2
	}
	leaves := make([][]byte, n)
	for i := range leaves {
		if i < len(shardHashes) {
			leaves[i] = shardHashes[i]
		} else {
			h := sha256.Sum256(nil)
			leaves[i] = h[:]
		}
	}

	nodes := make([][]byte, 2*n-1)
	for i, leaf := range leaves {
		nodes[n-1+i] = leaf
	}
	for i := n - 2; i >= 0; i-- {
		h := sha256.Sum256(append(append([]byte(nil), nodes[2*i+1]...), nodes[2*i+2]...))
		nodes[i] = h[:]
	}

	return &MerkleTree{leaves: leaves, nodes: nodes, root: nodes[0]}, nil
}

// Root returns the Merkle root hash.
func (m *MerkleTree) Root() []byte { return m.root }

// RootHex returns the root as a hex string.
func (m *MerkleTree) RootHex() string { return hex.EncodeToString(m.root) }

// Proof carries the sibling hashes needed to verify one shard against
// the root.
type Proof struct {
	ShardIndex int
	ShardHash  []byte
	Siblings   [][]byte // from leaf to root
	IsLeft     []bool   // true if the sibling sits on the left
}

func (m *MerkleTree) GenerateProof(shardIndex int) (Proof, error) {
	n := len(m.leaves)
	if shardIndex < 0 || shardIndex >= n {
		return Proof{}, ErrMerkleIndexRange
	}

	var siblings [][]byte
	var isLeft []bool
	idx := n - 1 + shardIndex

	for idx > 0 {
		siblingIdx := idx + 1
		if idx%2 == 0 {
			siblingIdx = idx - 1
		}
		siblings = append(siblings, m.nodes[siblingIdx])
		isLeft = append(isLeft, idx%2 == 0)
		idx = (idx - 1) / 2
	}

	return Proof{
		ShardIndex: shardIndex,
		ShardHash:  m.leaves[shardIndex],
		Siblings:   siblings,
		IsLeft:     isLeft,
	}, nil
}

// VerifyProof verifies a shard proof against the expected root.
func VerifyProof(proof Proof, expectedRoot []byte) error {
	current := proof.ShardHash
	for i, sibling := range proof.Siblings {
		var combined []byte
		if proof.IsLeft[i] {
			combined = append(append([]byte(nil), sibling...), current...)
		} else {
			combined = append(append([]byte(nil), current...), sibling...)
		}
		h := sha256.Sum256(combined)
		current = h[:]
	}

	if subtle.ConstantTimeCompare(current, expectedRoot) != 1 {
		return ErrMerkleProofFail
	}
	return nil
}

// HashShard computes the SHA-256 hash of a shard's data.
func HashShard(data []byte) []byte {
	h := sha256.Sum256(data)
	return h[:]
}
