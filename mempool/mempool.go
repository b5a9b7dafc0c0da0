// Package mempool holds unconfirmed transactions awaiting block inclusion
// (spec.md §4.5). It is deliberately decoupled from the consensus engine
// and the store: it receives an immutable AccountLookup handle and knows
// nothing about blocks, reorg bookkeeping, or persistence beyond that.
package mempool

import (
	"sort"
	"sync"

	"github.com/numi-chain/numi-core/common"
	"github.com/numi-chain/numi-core/core/types"
	"github.com/numi-chain/numi-core/log"
	"github.com/numi-chain/numi-core/params"
)

// ValidationResult is the admission outcome surface (spec.md §4.5).
type ValidationResult int

const (
	Valid ValidationResult = iota
	InvalidSignature
	InvalidNonce
	InsufficientBalance
	FeeTooLow
	UnsupportedKind
	Expired
	NonceConflict
	PoolFull
	RateLimited
	MalformedTransaction
)

func (r ValidationResult) String() string {
	switch r {
	case Valid:
		return "Valid"
	case InvalidSignature:
		return "InvalidSignature"
	case InvalidNonce:
		return "InvalidNonce"
	case InsufficientBalance:
		return "InsufficientBalance"
	case FeeTooLow:
		return "FeeTooLow"
	case UnsupportedKind:
		return "UnsupportedKind"
	case Expired:
		return "Expired"
	case NonceConflict:
		return "NonceConflict"
	case PoolFull:
		return "PoolFull"
	case RateLimited:
		return "RateLimited"
	case MalformedTransaction:
		return "MalformedTransaction"
	default:
		return "Unknown"
	}
}

// AccountLookup is the only view the mempool has into account state — a
// handle passed at construction rather than a reference back into the
// engine or the store (SPEC_FULL.md §9 rearchitected pattern).
type AccountLookup interface {
	GetAccount(sender common.PubKey) (*types.AccountState, error)
}

// entry wraps a pending transaction with the bookkeeping needed for
// priority ordering and eviction.
type entry struct {
	tx         *types.Transaction
	receivedAt uint64
	size       int
	feeRate    uint64 // fee * FeeRateScale / size, spec.md §4.5 "Priority ordering"
}

// less implements the pool's total order: primary key -feeRate (higher fee
// rate first), ties broken by earliest received_at, further ties by txid.
func (e *entry) less(o *entry) bool {
	if e.feeRate != o.feeRate {
		return e.feeRate > o.feeRate
	}
	if e.receivedAt != o.receivedAt {
		return e.receivedAt < o.receivedAt
	}
	eid, oid := e.tx.ID(), o.tx.ID()
	for i := range eid {
		if eid[i] != oid[i] {
			return eid[i] < oid[i]
		}
	}
	return false
}

// Pool is the mempool's concrete state: a per-sender sorted run of pending
// nonces plus a flat id index, guarded by one RWMutex (spec.md §7
// "cross-sender admissions may proceed in parallel" is not attempted here —
// a single mutex is the teacher's own concurrency idiom for shared maps and
// is simpler to reason about correctly than per-sender locking).
type Pool struct {
	mu       sync.RWMutex
	cfg      *params.ConsensusConfig
	accounts AccountLookup
	limiter  SubmissionLimiter
	rejected *recentlyRejected
	logger   log.Logger

	bySender map[string]map[uint64]*entry // AccountKey() -> nonce -> entry
	byID     map[common.Hash]*entry
	bytes    uint64
}

// New builds a Pool. accounts is the engine's read-only account view;
// limiter may be nil, in which case a local in-process limiter is created
// from cfg.MaxSubmissionsPerAccountPerHour.
func New(cfg *params.ConsensusConfig, accounts AccountLookup, limiter SubmissionLimiter) *Pool {
	if limiter == nil {
		limiter = newLocalLimiter(cfg.MaxSubmissionsPerAccountPerHour)
	}
	return &Pool{
		cfg:      cfg,
		accounts: accounts,
		limiter:  limiter,
		rejected: newRecentlyRejected(uint64(cfg.MaxPoolCount)*4+1024, 0.01),
		logger:   log.NewModuleLogger(log.Mempool),
		bySender: make(map[string]map[uint64]*entry),
		byID:     make(map[common.Hash]*entry),
	}
}

func feeRate(fee uint64, size int, scale uint64) uint64 {
	if size == 0 {
		return 0
	}
	return fee * scale / uint64(size)
}

// structuralValidate applies spec.md §4.2's rules that don't require chain
// context: well-formed kind, non-coinbase, signature verifies, not expired.
func (p *Pool) structuralValidate(tx *types.Transaction, now uint64) ValidationResult {
	if tx.IsUnsupported() {
		return UnsupportedKind
	}
	if tx.IsCoinbase() {
		// Rule 2: MiningReward is only ever valid as a block's leading
		// coinbase, never as a standalone mempool submission.
		return UnsupportedKind
	}
	if tx.Expiry < now {
		return Expired
	}
	if len(tx.SenderPublicKey) == 0 || len(tx.Signature) == 0 {
		return MalformedTransaction
	}
	if !tx.VerifySignature() {
		return InvalidSignature
	}
	return Valid
}

// Submit implements spec.md §4.5's nine-step admission algorithm.
func (p *Pool) Submit(tx *types.Transaction, now uint64) ValidationResult {
	id := tx.ID().Bytes()
	if p.rejected.seen(id) {
		// Already rejected for a reason that can't change on its own
		// (malformed, unsupported kind, bad signature): skip straight past
		// structural validation instead of re-verifying a Dilithium
		// signature against a retransmit we've already answered.
		return MalformedTransaction
	}

	if res := p.structuralValidate(tx, now); res != Valid {
		if res != Expired {
			p.rejected.mark(id)
		}
		return res
	}

	sender := tx.SenderPublicKey.AccountKey()

	p.mu.Lock()
	defer p.mu.Unlock()

	account, err := p.accounts.GetAccount(tx.SenderPublicKey)
	if err != nil {
		account = &types.AccountState{}
	}

	if tx.Nonce <= account.Nonce {
		return InvalidNonce
	}

	size := tx.Size()
	rate := feeRate(tx.Fee, size, p.cfg.FeeRateScale)

	if !p.sufficientBalanceLocked(sender, account, tx) {
		return InsufficientBalance
	}

	if tx.Fee < p.cfg.MinFee || tx.Fee*10000 < p.cfg.FeeRateFloorPer10k*uint64(size) {
		return FeeTooLow
	}

	if !p.limiter.Allow(sender) {
		return RateLimited
	}

	existing, hasExisting := p.bySender[sender][tx.Nonce]
	if hasExisting {
		if tx.Fee*100 < existing.tx.Fee*p.cfg.RBFBumpPercent {
			return NonceConflict
		}
	}

	if !p.makeRoomLocked(uint64(size), rate) {
		return PoolFull
	}

	if hasExisting {
		p.removeLocked(existing)
		p.logger.Debug("replaced by fee bump", "sender", sender, "nonce", tx.Nonce)
	}
	e := &entry{tx: tx, receivedAt: now, size: size, feeRate: rate}
	p.insertLocked(sender, e)
	return Valid
}

// sufficientBalanceLocked implements rule 5: the sum of amount+fee across
// every eligible pending tx of sender, plus the candidate tx, must not
// exceed the account balance.
func (p *Pool) sufficientBalanceLocked(sender string, account *types.AccountState, tx *types.Transaction) bool {
	total := tx.Fee
	if tx.Data.Kind == types.KindTransfer {
		total += tx.Data.Amount
	}
	for nonce, e := range p.bySender[sender] {
		if nonce == tx.Nonce {
			continue
		}
		total += e.tx.Fee
		if e.tx.Data.Kind == types.KindTransfer {
			total += e.tx.Data.Amount
		}
	}
	return total <= account.Balance
}

func (p *Pool) insertLocked(sender string, e *entry) {
	if p.bySender[sender] == nil {
		p.bySender[sender] = make(map[uint64]*entry)
	}
	p.bySender[sender][e.tx.Nonce] = e
	p.byID[e.tx.ID()] = e
	p.bytes += uint64(e.size)
}

func (p *Pool) removeLocked(e *entry) {
	sender := e.tx.SenderPublicKey.AccountKey()
	delete(p.bySender[sender], e.tx.Nonce)
	if len(p.bySender[sender]) == 0 {
		delete(p.bySender, sender)
	}
	delete(p.byID, e.tx.ID())
	p.bytes -= uint64(e.size)
}

// makeRoomLocked implements rule 9: evict the lowest fee-rate entries until
// there is room for an incoming transaction of the given size and rate.
// Refuses only if, after evicting everything evictable, room still can't be
// made without evicting something at or above the incoming rate.
func (p *Pool) makeRoomLocked(incomingSize uint64, incomingRate uint64) bool {
	for p.bytes+incomingSize > p.cfg.MaxPoolBytes || len(p.byID)+1 > p.cfg.MaxPoolCount {
		victim := p.lowestFeeRateLocked()
		if victim == nil || victim.feeRate >= incomingRate {
			return false
		}
		p.removeLocked(victim)
	}
	return true
}

func (p *Pool) lowestFeeRateLocked() *entry {
	var worst *entry
	for _, e := range p.byID {
		if worst == nil || worst.less(e) {
			worst = e
		}
	}
	return worst
}

// orderedLocked returns every pending entry sorted by the pool's total
// order (highest fee-rate first).
func (p *Pool) orderedLocked() []*entry {
	out := make([]*entry, 0, len(p.byID))
	for _, e := range p.byID {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].less(out[j]) })
	return out
}

// GetBlockTemplate implements spec.md §4.5's get_block_template: highest
// fee-rate first, but only the contiguous per-sender nonce run starting at
// account.nonce+1 is eligible, and the result never exceeds maxBytes or
// maxCount.
func (p *Pool) GetBlockTemplate(maxBytes uint64, maxCount int) []*types.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()

	nextEligible := make(map[string]uint64, len(p.bySender))
	for sender := range p.bySender {
		var pk common.PubKey
		for _, e := range p.bySender[sender] {
			pk = e.tx.SenderPublicKey
			break
		}
		account, err := p.accounts.GetAccount(pk)
		if err != nil {
			account = &types.AccountState{}
		}
		nextEligible[sender] = account.Nonce + 1
	}

	// A single pass over the fee-sorted list can encounter a sender's nonce
	// k+1 before its nonce k if k has a lower fee rate; that entry must
	// become eligible once k is selected rather than being skipped forever.
	// Repeat full passes until one makes no further progress — bounded by
	// the longest contiguous per-sender run, never by pool size.
	ordered := p.orderedLocked()
	selected := make(map[common.Hash]bool, len(ordered))
	var out []*types.Transaction
	var total uint64
	for {
		progressed := false
		for _, e := range ordered {
			if len(out) >= maxCount {
				break
			}
			id := e.tx.ID()
			if selected[id] {
				continue
			}
			sender := e.tx.SenderPublicKey.AccountKey()
			if e.tx.Nonce != nextEligible[sender] {
				continue
			}
			if total+uint64(e.size) > maxBytes {
				continue
			}
			out = append(out, e.tx)
			total += uint64(e.size)
			nextEligible[sender]++
			selected[id] = true
			progressed = true
		}
		if !progressed || len(out) >= maxCount {
			break
		}
	}
	return out
}

// OnBlockApplied implements on_block_applied: drop every included tx. No
// per-sender re-check runs here — GetBlockTemplate re-derives eligibility
// from the current account state on every call, so this only removes the
// included ids themselves.
func (p *Pool) OnBlockApplied(block *types.Block) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, tx := range block.Transactions {
		if tx.IsCoinbase() {
			continue
		}
		if e, ok := p.byID[tx.ID()]; ok {
			p.removeLocked(e)
		}
	}
}

// OnReorg implements on_reorg: transactions from removed blocks are
// re-admitted at the new tip (dropping whatever no longer validates);
// transactions newly included in the added branch are removed from the
// pool.
func (p *Pool) OnReorg(removed, added []*types.Block) {
	p.mu.Lock()
	for _, block := range added {
		for _, tx := range block.Transactions {
			if tx.IsCoinbase() {
				continue
			}
			if e, ok := p.byID[tx.ID()]; ok {
				p.removeLocked(e)
			}
		}
	}
	p.mu.Unlock()

	now := latestTimestamp(removed)
	for _, block := range removed {
		for _, tx := range block.Transactions {
			if tx.IsCoinbase() {
				continue
			}
			p.Submit(tx, now)
		}
	}
}

func latestTimestamp(blocks []*types.Block) uint64 {
	var max uint64
	for _, b := range blocks {
		if b.Header.Timestamp > max {
			max = b.Header.Timestamp
		}
	}
	return max
}

// Tick implements tick(now): evict expired transactions and enforce size
// caps against no particular incoming transaction (lowest fee-rate first).
func (p *Pool) Tick(now uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var expired, evicted int
	for _, e := range p.orderedLocked() {
		if e.tx.Expiry < now {
			p.removeLocked(e)
			expired++
		}
	}
	for p.bytes > p.cfg.MaxPoolBytes || len(p.byID) > p.cfg.MaxPoolCount {
		victim := p.lowestFeeRateLocked()
		if victim == nil {
			break
		}
		p.removeLocked(victim)
		evicted++
	}
	if expired > 0 || evicted > 0 {
		p.logger.Info("tick swept pool", "expired", expired, "evicted_for_size", evicted, "remaining", len(p.byID))
	}
}

func (p *Pool) PendingCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byID)
}

func (p *Pool) PendingBytes() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.bytes
}
