package types

// AccountState is spec.md §3's AccountState: {balance, nonce, created_at}.
// The zero value represents an account that has never been touched —
// the consensus state layer treats a missing entry as this zero value
// rather than as an error (spec.md §4.7.6).
type AccountState struct {
	Balance   uint64
	Nonce     uint64
	CreatedAt uint64
}

// IsEmpty reports whether this is an untouched (never credited or debited)
// account: zero balance, zero nonce and zero CreatedAt.
func (a *AccountState) IsEmpty() bool {
	return a.Balance == 0 && a.Nonce == 0 && a.CreatedAt == 0
}

func (a *AccountState) Encode() []byte {
	e := &encoder{}
	e.PutU64(a.Balance)
	e.PutU64(a.Nonce)
	e.PutU64(a.CreatedAt)
	return e.Bytes()
}

func DecodeAccountState(b []byte) (*AccountState, error) {
	d := newDecoder(b)
	a := &AccountState{}
	var err error
	if a.Balance, err = d.U64(); err != nil {
		return nil, err
	}
	if a.Nonce, err = d.U64(); err != nil {
		return nil, err
	}
	if a.CreatedAt, err = d.U64(); err != nil {
		return nil, err
	}
	return a, nil
}
