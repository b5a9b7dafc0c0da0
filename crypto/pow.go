package crypto

import (
	"encoding/binary"
	"math/big"

	"golang.org/x/crypto/argon2"

	"github.com/numi-chain/numi-core/common"
	"github.com/numi-chain/numi-core/crypto/argon2params"
)

// PowHash computes Argon2id(preimage ∥ nonce, salt, params) and then
// BLAKE3-256 over the Argon2 output (spec.md §4.1 "pow_hash"). nonce is
// appended in little-endian, matching the canonical encoding's integer
// byte order (spec.md §4.2, §6).
func PowHash(preimage []byte, nonce uint64, salt []byte, p argon2params.Params) common.Hash {
	buf := make([]byte, len(preimage)+8)
	copy(buf, preimage)
	binary.LittleEndian.PutUint64(buf[len(preimage):], nonce)

	argonOut := argon2.IDKey(buf, salt, p.TimeCost, p.MemoryCostKiB, p.Parallelism, p.OutputLength)
	return Hash(argonOut)
}

// DifficultyToTarget computes target = 2^(256-d) - 1 (spec.md §4.1), packed
// as a 256-bit big-endian integer.
func DifficultyToTarget(d uint32) *big.Int {
	if d >= 256 {
		return big.NewInt(0)
	}
	t := new(big.Int).Lsh(big.NewInt(1), uint(256-d))
	return t.Sub(t, big.NewInt(1))
}

// VerifyPow reports whether pow_hash(preimage, nonce) — interpreted as a
// big-endian 256-bit integer — is at or below target(difficulty) (spec.md
// §4.1 invariant 7).
func VerifyPow(preimage []byte, salt []byte, nonce uint64, p argon2params.Params, difficulty uint32) bool {
	digest := PowHash(preimage, nonce, salt, p)
	value := new(big.Int).SetBytes(digest.Bytes())
	target := DifficultyToTarget(difficulty)
	return value.Cmp(target) <= 0
}
