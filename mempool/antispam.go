package mempool

import (
	"hash/fnv"

	"github.com/steakknife/bloomfilter"
)

// recentlyRejected tracks txids that were rejected for a reason that will
// not change on its own (malformed encoding, unsupported kind, bad
// signature) so a retransmitting peer is answered from the filter instead
// of re-running full admission every time. The filter is consulted as a
// fast-reject check: it never causes a transaction to be accepted, but a
// false positive rejects a never-seen transaction as MalformedTransaction
// without validating it.
type recentlyRejected struct {
	filter *bloomfilter.Filter
}

func newRecentlyRejected(maxElements uint64, falsePositiveRate float64) *recentlyRejected {
	f, err := bloomfilter.NewOptimal(maxElements, falsePositiveRate)
	if err != nil {
		// Degenerate parameters would be a programming error in
		// mainnet/devnet config, not a runtime condition; fall back to a
		// default 1024-element, 1% false-positive filter rather than
		// letting admission fail outright.
		f, _ = bloomfilter.NewOptimal(1024, 0.01)
	}
	return &recentlyRejected{filter: f}
}

func (r *recentlyRejected) mark(txid []byte) {
	r.filter.Add(fnvOf(txid))
}

func (r *recentlyRejected) seen(txid []byte) bool {
	return r.filter.Contains(fnvOf(txid))
}

func fnvOf(b []byte) *fnvHash {
	h := fnv.New64()
	h.Write(b)
	return &fnvHash{sum: h.Sum64()}
}

// fnvHash adapts a precomputed 64-bit digest to hash.Hash64 so it can be
// passed straight to bloomfilter.Filter without rehashing the full txid on
// every Add/Contains call.
type fnvHash struct{ sum uint64 }

func (f *fnvHash) Sum64() uint64           { return f.sum }
func (f *fnvHash) Write(p []byte) (int, error) { return len(p), nil }
func (f *fnvHash) Sum(b []byte) []byte     { return b }
func (f *fnvHash) Reset()                  {}
func (f *fnvHash) Size() int               { return 8 }
func (f *fnvHash) BlockSize() int          { return 8 }
