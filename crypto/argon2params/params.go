// Package argon2params holds the Argon2id parameter struct shared by the
// params (chain config) and crypto (PoW) packages, split out to avoid an
// import cycle between them.
package argon2params

// Params are the Argon2id parameters fixed as chain consensus parameters
// (spec.md §4.1): every node must use identical values or PoW verification
// across the network diverges.
type Params struct {
	MemoryCostKiB uint32
	TimeCost      uint32
	Parallelism   uint8
	OutputLength  uint32
	SaltLength    int
}
