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

package common

import (
	"errors"
	"math"

	lru "github.com/hashicorp/golang-lru"

	"github.com/numi-chain/numi-core/log"
)

type CacheType int

const (
	LRUCacheType CacheType = iota
	LRUShardCacheType
	ARCCacheType
)

var DefaultCacheType CacheType = LRUCacheType
var CacheScale int = 100 // cache size = preset size * CacheScale / 100
var logger = log.NewModuleLogger(log.Common)

type CacheKey interface {
	getShardIndex(shardMask int) int
}

// Cache is the generic caching interface used by the persistent store
// (block-metadata and account-state caches) and the mempool (per-sender
// pending-nonce caches).
type Cache interface {
	Add(key CacheKey, value interface{}) (evicted bool)
	Get(key CacheKey) (value interface{}, ok bool)
	Contains(key CacheKey) bool
	Remove(key CacheKey)
	Len() int
	Purge()
}

type lruCache struct {
	lru *lru.Cache
}

func (c *lruCache) Add(key CacheKey, value interface{}) (evicted bool) { return c.lru.Add(key, value) }
func (c *lruCache) Get(key CacheKey) (interface{}, bool)               { return c.lru.Get(key) }
func (c *lruCache) Contains(key CacheKey) bool                         { return c.lru.Contains(key) }
func (c *lruCache) Remove(key CacheKey)                                { c.lru.Remove(key) }
func (c *lruCache) Len() int                                           { return c.lru.Len() }
func (c *lruCache) Purge()                                             { c.lru.Purge() }

type arcCache struct {
	arc *lru.ARCCache
}

func (c *arcCache) Add(key CacheKey, value interface{}) (evicted bool) {
	c.arc.Add(key, value)
	return true
}
func (c *arcCache) Get(key CacheKey) (interface{}, bool) { return c.arc.Get(key) }
func (c *arcCache) Contains(key CacheKey) bool           { return c.arc.Contains(key) }
func (c *arcCache) Remove(key CacheKey)                  { c.arc.Remove(key) }
func (c *arcCache) Len() int                              { return c.arc.Len() }
func (c *arcCache) Purge()                                { c.arc.Purge() }

type lruShardCache struct {
	shards         []*lru.Cache
	shardIndexMask int
}

func (c *lruShardCache) Add(key CacheKey, val interface{}) (evicted bool) {
	return c.shards[key.getShardIndex(c.shardIndexMask)].Add(key, val)
}
func (c *lruShardCache) Get(key CacheKey) (interface{}, bool) {
	return c.shards[key.getShardIndex(c.shardIndexMask)].Get(key)
}
func (c *lruShardCache) Contains(key CacheKey) bool {
	return c.shards[key.getShardIndex(c.shardIndexMask)].Contains(key)
}
func (c *lruShardCache) Remove(key CacheKey) {
	c.shards[key.getShardIndex(c.shardIndexMask)].Remove(key)
}
func (c *lruShardCache) Len() int {
	n := 0
	for _, s := range c.shards {
		n += s.Len()
	}
	return n
}
func (c *lruShardCache) Purge() {
	for _, shard := range c.shards {
		s := shard
		go s.Purge()
	}
}

func NewCache(config CacheConfiger) (Cache, error) {
	if config == nil {
		return nil, errors.New("cache config is nil")
	}
	return config.newCache()
}

type CacheConfiger interface {
	newCache() (Cache, error)
}

type LRUConfig struct {
	CacheSize int
}

func (c LRUConfig) newCache() (Cache, error) {
	cacheSize := c.CacheSize * CacheScale / 100
	if cacheSize < 1 {
		cacheSize = 1
	}
	l, err := lru.New(cacheSize)
	return &lruCache{l}, err
}

type LRUShardConfig struct {
	CacheSize int
	NumShards int
}

const (
	minShardSize = 10
	minNumShards = 2
)

func (c LRUShardConfig) newCache() (Cache, error) {
	cacheSize := c.CacheSize * CacheScale / 100
	if cacheSize < 1 {
		logger.Error("negative cache size", "cacheSize", cacheSize, "cacheScale", CacheScale)
		return nil, errors.New("must provide a positive size")
	}

	numShards := c.makeNumShardsPowOf2()
	shard := &lruShardCache{shards: make([]*lru.Cache, numShards), shardIndexMask: numShards - 1}
	shardSize := cacheSize / numShards
	if shardSize < 1 {
		shardSize = 1
	}
	for i := 0; i < numShards; i++ {
		l, err := lru.New(shardSize)
		if err != nil {
			return nil, err
		}
		shard.shards[i] = l
	}
	return shard, nil
}

func (c LRUShardConfig) makeNumShardsPowOf2() int {
	maxNumShards := float64(c.CacheSize * CacheScale / 100 / minShardSize)
	if maxNumShards < minNumShards {
		return minNumShards
	}
	numShards := int(math.Min(float64(c.NumShards), maxNumShards))
	preNumShards := minNumShards
	for numShards > minNumShards {
		preNumShards = numShards
		numShards = numShards & (numShards - 1)
	}
	return preNumShards
}

type ARCConfig struct {
	CacheSize int
}

func (c ARCConfig) newCache() (Cache, error) {
	arc, err := lru.NewARC(c.CacheSize)
	return &arcCache{arc}, err
}
