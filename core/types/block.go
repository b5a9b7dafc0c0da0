package types

import (
	"time"

	"github.com/numi-chain/numi-core/common"
	"github.com/numi-chain/numi-core/crypto"
	"github.com/numi-chain/numi-core/xerrors"
)

// MaxFutureSkewSeconds bounds how far into the future a header timestamp
// may sit relative to the validator's clock (spec.md §4.2).
const MaxFutureSkewSeconds = 120

// BlockHeader is spec.md §3's BlockHeader.
type BlockHeader struct {
	Version         uint32
	Height          uint64
	Timestamp       uint64
	PreviousHash    common.Hash
	MerkleRoot      common.Hash
	Difficulty      uint32
	Nonce           uint64
	MinerPublicKey  common.PubKey
	Signature       []byte
}

// decodeHeader parses the full (signature-included) header encoding
// produced by encode(false). Used by BlockMetadata persistence.
func decodeHeader(b []byte) (*BlockHeader, error) {
	d := newDecoder(b)
	h := &BlockHeader{}
	var err error
	if h.Version, err = d.U32(); err != nil {
		return nil, xerrors.Malformed("header_version", err)
	}
	if h.Height, err = d.U64(); err != nil {
		return nil, xerrors.Malformed("header_height", err)
	}
	if h.Timestamp, err = d.U64(); err != nil {
		return nil, xerrors.Malformed("header_timestamp", err)
	}
	if err := d.readHash(&h.PreviousHash); err != nil {
		return nil, xerrors.Malformed("header_previous_hash", err)
	}
	if err := d.readHash(&h.MerkleRoot); err != nil {
		return nil, xerrors.Malformed("header_merkle_root", err)
	}
	if h.Difficulty, err = d.U32(); err != nil {
		return nil, xerrors.Malformed("header_difficulty", err)
	}
	if h.Nonce, err = d.U64(); err != nil {
		return nil, xerrors.Malformed("header_nonce", err)
	}
	miner, err := d.Bytes()
	if err != nil {
		return nil, xerrors.Malformed("header_miner_public_key", err)
	}
	h.MinerPublicKey = miner
	sig, err := d.Bytes()
	if err != nil {
		return nil, xerrors.Malformed("header_signature", err)
	}
	h.Signature = sig
	return h, nil
}

func (h *BlockHeader) encode(forHash bool) []byte {
	e := &encoder{}
	e.PutU32(h.Version)
	e.PutU64(h.Height)
	e.PutU64(h.Timestamp)
	e.buf.Write(h.PreviousHash.Bytes())
	e.buf.Write(h.MerkleRoot.Bytes())
	e.PutU32(h.Difficulty)
	e.PutU64(h.Nonce)
	e.PutBytes(h.MinerPublicKey)
	if forHash {
		e.PutBytes(nil)
	} else {
		e.PutBytes(h.Signature)
	}
	return e.Bytes()
}

// Hash returns BLAKE3(encode(header with signature stripped)) (spec.md §4.2).
func (h *BlockHeader) Hash() common.Hash { return crypto.Hash(h.encode(true)) }

// PowPreimage is the byte string the PoW hash is computed over: the header
// encoding with both signature and nonce stripped, since nonce is the
// value varied by the miner and re-appended by PowHash itself.
func (h *BlockHeader) PowPreimage() []byte {
	cp := *h
	cp.Nonce = 0
	cp.Signature = nil
	e := &encoder{}
	e.PutU32(cp.Version)
	e.PutU64(cp.Height)
	e.PutU64(cp.Timestamp)
	e.buf.Write(cp.PreviousHash.Bytes())
	e.buf.Write(cp.MerkleRoot.Bytes())
	e.PutU32(cp.Difficulty)
	e.PutBytes(cp.MinerPublicKey)
	return e.Bytes()
}

// Sign signs the header hash (signature-stripped encoding) with kp.
func (h *BlockHeader) Sign(kp *crypto.KeyPair) error {
	sig, err := crypto.Sign(kp, h.Hash().Bytes())
	if err != nil {
		return err
	}
	h.Signature = sig
	return nil
}

// VerifySignature checks the header signature against MinerPublicKey.
func (h *BlockHeader) VerifySignature() bool {
	return crypto.Verify(h.MinerPublicKey, h.Hash().Bytes(), h.Signature)
}

// Block is spec.md §3's Block: {header, transactions}.
type Block struct {
	Header       BlockHeader
	Transactions []*Transaction
}

// Coinbase returns transactions[0], which must be the MiningReward.
func (b *Block) Coinbase() *Transaction {
	if len(b.Transactions) == 0 {
		return nil
	}
	return b.Transactions[0]
}

// ComputeMerkleRoot recomputes the Merkle root over this block's tx ids.
func (b *Block) ComputeMerkleRoot() common.Hash {
	ids := make([]common.Hash, len(b.Transactions))
	for i, tx := range b.Transactions {
		ids[i] = tx.ID()
	}
	return crypto.MerkleRoot(ids)
}

// Hash returns the block hash (header hash).
func (b *Block) Hash() common.Hash { return b.Header.Hash() }

// Size returns the block's serialized size.
func (b *Block) Size() int {
	n := len(b.Header.encode(false))
	for _, tx := range b.Transactions {
		n += tx.Size()
	}
	return n
}

// SelfValidate performs the structural, chain-context-free checks of
// spec.md §4.2: header bounds, single leading coinbase, non-coinbase
// signature/expiry checks, size/count limits, and the Merkle root.
func (b *Block) SelfValidate(now time.Time, maxBlockSize uint64, maxTxPerBlock int) error {
	if b.Header.Timestamp > uint64(now.Unix())+MaxFutureSkewSeconds {
		return xerrors.Misbehaving(xerrors.KindConsensusViolation, "timestamp_too_far_future", nil)
	}
	if b.Header.Difficulty < 1 {
		return xerrors.Misbehaving(xerrors.KindConsensusViolation, "difficulty_below_minimum", nil)
	}
	if len(b.Transactions) == 0 || !b.Transactions[0].IsCoinbase() {
		return xerrors.Misbehaving(xerrors.KindConsensusViolation, "missing_or_misplaced_coinbase", nil)
	}
	for i, tx := range b.Transactions {
		if i == 0 {
			continue
		}
		if tx.IsCoinbase() {
			return xerrors.Misbehaving(xerrors.KindConsensusViolation, "extra_coinbase", nil)
		}
		if tx.IsUnsupported() {
			return xerrors.UnsupportedKind("contract_transaction")
		}
		if !tx.VerifySignature() {
			return xerrors.Misbehaving(xerrors.KindCryptoFailure, "bad_transaction_signature", nil)
		}
		if tx.Expiry < b.Header.Timestamp {
			return xerrors.Misbehaving(xerrors.KindConsensusViolation, "transaction_expired", nil)
		}
	}
	if uint64(b.Size()) > maxBlockSize {
		return xerrors.Misbehaving(xerrors.KindMalformed, "block_too_large", nil)
	}
	if len(b.Transactions) > maxTxPerBlock {
		return xerrors.Misbehaving(xerrors.KindMalformed, "too_many_transactions", nil)
	}
	if b.ComputeMerkleRoot() != b.Header.MerkleRoot {
		return xerrors.Misbehaving(xerrors.KindMalformed, "merkle_root_mismatch", nil)
	}
	return nil
}

// CoinbaseAmount returns the coinbase's minted amount, or 0 if absent.
func (b *Block) CoinbaseAmount() uint64 {
	cb := b.Coinbase()
	if cb == nil {
		return 0
	}
	return cb.Data.Amount
}

// FeesTotal sums the fees of every non-coinbase transaction.
func (b *Block) FeesTotal() uint64 {
	var total uint64
	for i, tx := range b.Transactions {
		if i == 0 {
			continue
		}
		total += tx.Fee
	}
	return total
}
