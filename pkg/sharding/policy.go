package sharding

import (
	"math/rand/v2"
	"slices"
	"sort"
	"strconv"

	"github.com/spaolacci/murmur3"
)

// Policy picks the shard new data is placed on.
type Policy interface {
	// Allocate returns one of ids. key identifies the entity being placed
	// and may be empty.
	Allocate(ids []int, key string) int
}

// RandomPolicy picks a uniformly random shard and ignores the key.
type RandomPolicy struct{}

// Allocate implements Policy.
func (RandomPolicy) Allocate(ids []int, _ string) int {
	return ids[rand.IntN(len(ids))]
}

// DefaultVirtualNodes is the number of ring positions per shard used when a
// HashRingPolicy does not set one.
const DefaultVirtualNodes = 64

// HashRingPolicy places keys with consistent hashing, so adding a shard
// moves only the keys that land on its ring positions. An empty key falls
// back to a random shard.
type HashRingPolicy struct {
	VirtualNodes int

	ring    []uint32
	owner   map[uint32]int
	builtOn []int
}

// Allocate implements Policy.
func (p *HashRingPolicy) Allocate(ids []int, key string) int {
	if key == "" {
		return RandomPolicy{}.Allocate(ids, key)
	}
	if !slices.Equal(p.builtOn, ids) {
		p.build(ids)
	}
	hash := murmur3.Sum32([]byte(key))
	idx := sort.Search(len(p.ring), func(i int) bool { return p.ring[i] >= hash })
	if idx == len(p.ring) {
		idx = 0
	}
	return p.owner[p.ring[idx]]
}

func (p *HashRingPolicy) build(ids []int) {
	vnodes := p.VirtualNodes
	if vnodes <= 0 {
		vnodes = DefaultVirtualNodes
	}
	p.ring = make([]uint32, 0, len(ids)*vnodes)
	p.owner = make(map[uint32]int, len(ids)*vnodes)
	for _, id := range ids {
		for i := range vnodes {
			hash := murmur3.Sum32([]byte(strconv.Itoa(id) + "#" + strconv.Itoa(i)))
			if _, taken := p.owner[hash]; taken {
				continue
			}
			p.ring = append(p.ring, hash)
			p.owner[hash] = id
		}
	}
	slices.Sort(p.ring)
	p.builtOn = slices.Clone(ids)
}
