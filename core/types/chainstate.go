package types

import (
	"io"
	"math/big"

	"github.com/numi-chain/numi-core/common"
)

// BlockStatus is a BlockMetadata's position relative to the current
// best chain (spec.md §3 "status ∈ {Main, Side, Orphan, Invalid}").
type BlockStatus uint8

const (
	StatusMain BlockStatus = iota
	StatusSide
	StatusOrphan
	StatusInvalid
)

// AccountDiff is one entry of a block's undo log: the full prior state of
// an account touched while applying the block, captured on first touch
// (spec.md §4.7.4 "store a per-block undo log of account diffs in the
// block's metadata at apply time").
type AccountDiff struct {
	Key      []byte // raw public-key account key
	Previous AccountState
}

// BlockMetadata is the engine's per-block index entry (spec.md §3).
type BlockMetadata struct {
	Block          *Block
	CumulativeWork *big.Int
	Status         BlockStatus
	ReceivedAt     uint64
	UndoLog        []AccountDiff
}

func u128Bytes(v *big.Int) []byte {
	b := make([]byte, 16)
	v.FillBytes(b)
	return b
}

func (m *BlockMetadata) Encode() []byte {
	e := &encoder{}
	e.PutBytes(m.Block.Header.encode(false))
	e.PutU32(uint32(len(m.Block.Transactions)))
	for _, tx := range m.Block.Transactions {
		e.PutBytes(tx.Encode())
	}
	e.buf.Write(u128Bytes(m.CumulativeWork))
	e.PutU8(uint8(m.Status))
	e.PutU64(m.ReceivedAt)
	e.PutU32(uint32(len(m.UndoLog)))
	for _, d := range m.UndoLog {
		e.PutBytes(d.Key)
		e.buf.Write(d.Previous.Encode())
	}
	return e.Bytes()
}

func DecodeBlockMetadata(b []byte) (*BlockMetadata, error) {
	d := newDecoder(b)
	headerBytes, err := d.Bytes()
	if err != nil {
		return nil, err
	}
	header, err := decodeHeader(headerBytes)
	if err != nil {
		return nil, err
	}
	n, err := d.U32()
	if err != nil {
		return nil, err
	}
	txs := make([]*Transaction, n)
	for i := range txs {
		txBytes, err := d.Bytes()
		if err != nil {
			return nil, err
		}
		tx, err := DecodeTransaction(txBytes)
		if err != nil {
			return nil, err
		}
		txs[i] = tx
	}
	workBytes := make([]byte, 16)
	if _, err := io.ReadFull(d.r, workBytes); err != nil {
		return nil, err
	}
	status, err := d.U8()
	if err != nil {
		return nil, err
	}
	receivedAt, err := d.U64()
	if err != nil {
		return nil, err
	}
	undoCount, err := d.U32()
	if err != nil {
		return nil, err
	}
	undo := make([]AccountDiff, undoCount)
	for i := range undo {
		key, err := d.Bytes()
		if err != nil {
			return nil, err
		}
		raw := make([]byte, 24)
		if _, err := io.ReadFull(d.r, raw); err != nil {
			return nil, err
		}
		prev, err := DecodeAccountState(raw)
		if err != nil {
			return nil, err
		}
		undo[i] = AccountDiff{Key: key, Previous: *prev}
	}
	return &BlockMetadata{
		Block:          &Block{Header: *header, Transactions: txs},
		CumulativeWork: new(big.Int).SetBytes(workBytes),
		Status:         BlockStatus(status),
		ReceivedAt:     receivedAt,
		UndoLog:        undo,
	}, nil
}

// ChainState is the consensus engine's tip snapshot (spec.md §3).
type ChainState struct {
	TipHash           common.Hash
	TipHeight         uint64
	CumulativeWork    *big.Int
	CurrentDifficulty uint32
	TotalSupply       uint64
	FinalizedHeight   uint64
	FinalizedHash     common.Hash
}

func (cs *ChainState) Encode() []byte {
	e := &encoder{}
	e.buf.Write(cs.TipHash[:])
	e.PutU64(cs.TipHeight)
	e.buf.Write(u128Bytes(cs.CumulativeWork))
	e.PutU32(cs.CurrentDifficulty)
	e.PutU64(cs.TotalSupply)
	e.PutU64(cs.FinalizedHeight)
	e.buf.Write(cs.FinalizedHash[:])
	return e.Bytes()
}

func DecodeChainState(b []byte) (*ChainState, error) {
	d := newDecoder(b)
	cs := &ChainState{}
	if err := d.readHash(&cs.TipHash); err != nil {
		return nil, err
	}
	var err error
	if cs.TipHeight, err = d.U64(); err != nil {
		return nil, err
	}
	work := make([]byte, 16)
	if _, err := io.ReadFull(d.r, work); err != nil {
		return nil, err
	}
	cs.CumulativeWork = new(big.Int).SetBytes(work)
	if cs.CurrentDifficulty, err = d.U32(); err != nil {
		return nil, err
	}
	if cs.TotalSupply, err = d.U64(); err != nil {
		return nil, err
	}
	if cs.FinalizedHeight, err = d.U64(); err != nil {
		return nil, err
	}
	if err := d.readHash(&cs.FinalizedHash); err != nil {
		return nil, err
	}
	return cs, nil
}

// Checkpoint is a finality anchor emitted every CHECKPOINT_INTERVAL blocks
// (spec.md §3, §4.7.5).
type Checkpoint struct {
	Height         uint64
	BlockHash      common.Hash
	CumulativeWork *big.Int
	StateRoot      common.Hash
}

func (c *Checkpoint) Encode() []byte {
	e := &encoder{}
	e.PutU64(c.Height)
	e.buf.Write(c.BlockHash[:])
	e.buf.Write(u128Bytes(c.CumulativeWork))
	e.buf.Write(c.StateRoot[:])
	return e.Bytes()
}

func DecodeCheckpoint(b []byte) (*Checkpoint, error) {
	d := newDecoder(b)
	c := &Checkpoint{}
	var err error
	if c.Height, err = d.U64(); err != nil {
		return nil, err
	}
	if err := d.readHash(&c.BlockHash); err != nil {
		return nil, err
	}
	work := make([]byte, 16)
	if _, err := io.ReadFull(d.r, work); err != nil {
		return nil, err
	}
	c.CumulativeWork = new(big.Int).SetBytes(work)
	if err := d.readHash(&c.StateRoot); err != nil {
		return nil, err
	}
	return c, nil
}
