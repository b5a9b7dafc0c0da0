// Copyright 2018 The go-klaytn Authors
// This file is part of the go-klaytn library.
//
// The go-klaytn library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-klaytn library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-klaytn library. If not, see <http://www.gnu.org/licenses/>.

// Package common holds the handful of byte-slice types shared across every
// numi-core package: the 32-byte BLAKE3 hash, and raw public-key bytes used
// as the canonical account key (spec.md §3: "the canonical account key is
// the raw public key bytes").
package common

import (
	"encoding/hex"
	"fmt"
)

// interfaces satisfied for encoding/json purposes: without these, Hash (a
// byte array, not a slice) would marshal as a JSON array of small integers
// and PubKey would round-trip fine on its own (json already base64-encodes
// byte slices) but inconsistently with Hash's rendering. Both render as the
// same hex string common.Hash.String()/common.PubKey.String() already
// produce, so REST responses (api/rest.go) and the chaindatafetcher's kafka
// payloads read the same hex the rest of the system logs.

const HashLength = 32

// Hash is a 32-byte BLAKE3 digest.
type Hash [HashLength]byte

func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) > HashLength {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
	return h
}

func (h Hash) Bytes() []byte  { return h[:] }
func (h Hash) String() string { return hex.EncodeToString(h[:]) }
func (h Hash) IsZero() bool   { return h == Hash{} }

// getShardIndex implements common.CacheKey so Hash can key a sharded LRU
// cache (see cache.go), the same scheme klaytn's block/header caches use.
func (h Hash) getShardIndex(shardMask int) int {
	return int(h[HashLength-1]) & shardMask
}

// PubKey is the raw Dilithium public-key byte string. It is the canonical
// account key: any Base58/hex rendering is cosmetic and happens only at the
// RPC surface (spec.md §3, §9 "Rearchitected patterns").
type PubKey []byte

func (p PubKey) String() string { return hex.EncodeToString(p) }

func (p PubKey) Equal(o PubKey) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// AccountKey turns a PubKey into a string holding the same bytes, usable as
// a Go map key, since []byte cannot key a map directly.
func (p PubKey) AccountKey() string { return string(p) }

func (h Hash) Format(f fmt.State, c rune) {
	fmt.Fprintf(f, "%s", h.String())
}

func (h Hash) MarshalJSON() ([]byte, error) {
	return []byte(`"` + h.String() + `"`), nil
}

func (h *Hash) UnmarshalJSON(data []byte) error {
	s, err := unquoteJSONString(data)
	if err != nil {
		return err
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	*h = BytesToHash(b)
	return nil
}

func (p PubKey) MarshalJSON() ([]byte, error) {
	return []byte(`"` + p.String() + `"`), nil
}

func (p *PubKey) UnmarshalJSON(data []byte) error {
	s, err := unquoteJSONString(data)
	if err != nil {
		return err
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	*p = b
	return nil
}

// unquoteJSONString strips the surrounding quotes from a JSON string
// literal without pulling in encoding/json just for that.
func unquoteJSONString(data []byte) (string, error) {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return "", fmt.Errorf("common: expected a JSON string, got %q", data)
	}
	return string(data[1 : len(data)-1]), nil
}
