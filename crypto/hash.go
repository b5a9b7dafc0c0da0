// Package crypto implements numi-core's C1 primitives: BLAKE3 hashing and
// Merkle roots, Dilithium post-quantum signatures, Argon2id+BLAKE3 proof of
// work, and constant-time comparison (spec.md §4.1).
package crypto

import (
	"github.com/zeebo/blake3"

	"github.com/numi-chain/numi-core/common"
)

// Hash computes the BLAKE3-256 digest of data (spec.md §4.1 "hash(bytes) → H").
func Hash(data []byte) common.Hash {
	sum := blake3.Sum256(data)
	return common.Hash(sum)
}

// MerkleRoot computes the BLAKE3 Merkle root over leaves, pairwise, with the
// last element of an odd-sized level duplicated before pairing (spec.md
// §4.1/§4.2). An empty leaf list hashes to the all-zero hash.
func MerkleRoot(leaves []common.Hash) common.Hash {
	if len(leaves) == 0 {
		return common.Hash{}
	}
	level := make([]common.Hash, len(leaves))
	copy(level, leaves)

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]common.Hash, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			buf := make([]byte, 0, 64)
			buf = append(buf, level[i].Bytes()...)
			buf = append(buf, level[i+1].Bytes()...)
			next = append(next, Hash(buf))
		}
		level = next
	}
	return level[0]
}
