package params

import (
	"github.com/pbnjay/memory"

	"github.com/numi-chain/numi-core/xerrors"
)

// maxArgon2MemoryFraction bounds a single PoW verification's Argon2id
// working set to this fraction of total system RAM. Block validation runs
// the hash inline on the consensus goroutine, so a memory_cost_kib picked
// without regard to the host would make every submit_block call a forced
// swap storm rather than a rejection.
const maxArgon2MemoryFraction = 4

// ValidateResources checks the configured Argon2id memory cost against the
// host's total RAM (spec.md §4.1's Argon2id parameters are consensus-wide,
// so this is a startup sanity check, never a consensus rule: two nodes
// with different amounts of RAM must still agree on PoW validity).
func (c *ConsensusConfig) ValidateResources() error {
	total := memory.TotalMemory()
	if total == 0 {
		// Unknown on this platform/container; nothing to compare against.
		return nil
	}
	needed := uint64(c.Argon2.MemoryCostKiB) * 1024
	if needed*maxArgon2MemoryFraction > total {
		return xerrors.ResourceError("argon2_memory_cost_exceeds_system_ram", nil)
	}
	return nil
}
