package types

import (
	"github.com/numi-chain/numi-core/common"
	"github.com/numi-chain/numi-core/crypto"
	"github.com/numi-chain/numi-core/xerrors"
)

// Kind enumerates TransactionKind variants (spec.md §3).
type Kind uint8

const (
	KindTransfer Kind = iota
	KindMiningReward
	KindContractDeploy
	KindContractCall
)

const maxMemoBytes = 256

// TransactionData is the variant payload. Exactly one of these is set per
// Transaction, selected by Kind.
type TransactionData struct {
	Kind Kind

	// Transfer
	To     common.PubKey
	Amount uint64
	Memo   *string

	// MiningReward
	BlockHeight uint64
	// Amount is shared with Transfer.

	// ContractDeploy / ContractCall: opaque payload, always rejected at
	// validation (spec.md §3 "MUST be rejected with a dedicated
	// unsupported-kind error"). Kept only so a well-formed wire message can
	// be decoded far enough to produce that error instead of failing to
	// decode at all.
	ContractPayload []byte
}

// Transaction is spec.md §3's Transaction: {sender_public_key, kind, nonce,
// fee, expiry, signature}.
type Transaction struct {
	SenderPublicKey common.PubKey
	Data            TransactionData
	Nonce           uint64
	Fee             uint64
	Expiry          uint64
	Signature       []byte
}

func (tx *Transaction) encode(forHash bool) []byte {
	e := &encoder{}
	e.PutBytes(tx.SenderPublicKey)
	e.PutU8(uint8(tx.Data.Kind))
	switch tx.Data.Kind {
	case KindTransfer:
		e.PutBytes(tx.Data.To)
		e.PutU64(tx.Data.Amount)
		e.PutOptionalString(tx.Data.Memo)
	case KindMiningReward:
		e.PutU64(tx.Data.BlockHeight)
		e.PutU64(tx.Data.Amount)
	case KindContractDeploy, KindContractCall:
		e.PutBytes(tx.Data.ContractPayload)
	}
	e.PutU64(tx.Nonce)
	e.PutU64(tx.Fee)
	e.PutU64(tx.Expiry)
	if forHash {
		e.PutBytes(nil)
	} else {
		e.PutBytes(tx.Signature)
	}
	return e.Bytes()
}

// ID returns the canonical transaction id: BLAKE3 over the encoding with
// the signature field zeroed (spec.md §4.2 "txid = BLAKE3(encode(tx with
// signature stripped))").
func (tx *Transaction) ID() common.Hash {
	return crypto.Hash(tx.encode(true))
}

// Encode returns the full on-wire encoding, signature included.
func (tx *Transaction) Encode() []byte { return tx.encode(false) }

// DecodeTransaction parses the canonical encoding produced by Encode.
func DecodeTransaction(b []byte) (*Transaction, error) {
	d := newDecoder(b)
	tx := &Transaction{}

	sender, err := d.Bytes()
	if err != nil {
		return nil, xerrors.Malformed("transaction_sender", err)
	}
	tx.SenderPublicKey = sender

	kindByte, err := d.U8()
	if err != nil {
		return nil, xerrors.Malformed("transaction_kind", err)
	}
	tx.Data.Kind = Kind(kindByte)

	switch tx.Data.Kind {
	case KindTransfer:
		to, err := d.Bytes()
		if err != nil {
			return nil, xerrors.Malformed("transfer_to", err)
		}
		amount, err := d.U64()
		if err != nil {
			return nil, xerrors.Malformed("transfer_amount", err)
		}
		memo, err := d.OptionalString()
		if err != nil {
			return nil, xerrors.Malformed("transfer_memo", err)
		}
		if memo != nil && len(*memo) > maxMemoBytes {
			return nil, xerrors.Malformed("transfer_memo_too_long", nil)
		}
		tx.Data.To, tx.Data.Amount, tx.Data.Memo = to, amount, memo
	case KindMiningReward:
		h, err := d.U64()
		if err != nil {
			return nil, xerrors.Malformed("reward_height", err)
		}
		a, err := d.U64()
		if err != nil {
			return nil, xerrors.Malformed("reward_amount", err)
		}
		tx.Data.BlockHeight, tx.Data.Amount = h, a
	case KindContractDeploy, KindContractCall:
		payload, err := d.Bytes()
		if err != nil {
			return nil, xerrors.Malformed("contract_payload", err)
		}
		tx.Data.ContractPayload = payload
	default:
		return nil, xerrors.Malformed("unknown_transaction_kind", nil)
	}

	if tx.Nonce, err = d.U64(); err != nil {
		return nil, xerrors.Malformed("transaction_nonce", err)
	}
	if tx.Fee, err = d.U64(); err != nil {
		return nil, xerrors.Malformed("transaction_fee", err)
	}
	if tx.Expiry, err = d.U64(); err != nil {
		return nil, xerrors.Malformed("transaction_expiry", err)
	}
	sig, err := d.Bytes()
	if err != nil {
		return nil, xerrors.Malformed("transaction_signature", err)
	}
	tx.Signature = sig
	return tx, nil
}

// IsUnsupported reports whether this is a kind the engine must refuse
// cleanly (spec.md §3 "MUST be rejected ... Never panic").
func (tx *Transaction) IsUnsupported() bool {
	return tx.Data.Kind == KindContractDeploy || tx.Data.Kind == KindContractCall
}

// IsCoinbase reports whether tx is a MiningReward.
func (tx *Transaction) IsCoinbase() bool { return tx.Data.Kind == KindMiningReward }

// Sign signs the transaction's id with kp and sets Signature. Coinbase
// transactions are never signed by this path (SPEC_FULL.md §EXP-3 decision
// 3) — the miner package never calls Sign on a MiningReward.
func (tx *Transaction) Sign(kp *crypto.KeyPair) error {
	id := tx.ID()
	sig, err := crypto.Sign(kp, id.Bytes())
	if err != nil {
		return err
	}
	tx.Signature = sig
	return nil
}

// VerifySignature checks the transaction signature against its sender
// public key and id (spec.md §4.2 "signature verifies against txid").
func (tx *Transaction) VerifySignature() bool {
	return crypto.Verify(tx.SenderPublicKey, tx.ID().Bytes(), tx.Signature)
}

// Size returns the serialized size in bytes, used for fee-rate and block
// size accounting (spec.md §4.5, §4.2).
func (tx *Transaction) Size() int { return len(tx.Encode()) }
