package placement

import (
	"hash/crc32"
	"sort"
	"strconv"
	"sync"
)

// ConsistentHash maps service ids to lanes through a hash ring. Each lane
// owns `replicas` virtual nodes so a handful of lanes still spread evenly.
//
//	Hash Ring:
//	                  0
//	                ╱   ╲
//	         W1 ●           ● W0
//	           │  id ◆──►   │   (clockwise to nearest node → W0)
//	         W2 ●           ● W0' (virtual node of W0)
//	                ╲   ╱
//
// The ring is built for the pool size seen on the first Pick and rebuilt
// only if a different size is asked for.
type ConsistentHash struct {
	replicas int

	mu    sync.Mutex
	size  int
	ring  []uint32       // Sorted hash values on the ring
	nodes map[uint32]int // Hash value → lane index
}

// NewConsistentHash creates a ring with the given virtual nodes per lane
// (100 when replicas <= 0).
func NewConsistentHash(replicas int) *ConsistentHash {
	if replicas <= 0 {
		replicas = 100
	}
	return &ConsistentHash{replicas: replicas}
}

func (p *ConsistentHash) build(n int) {
	p.size = n
	p.ring = make([]uint32, 0, n*p.replicas)
	p.nodes = make(map[uint32]int, n*p.replicas)
	for lane := 0; lane < n; lane++ {
		for i := 0; i < p.replicas; i++ {
			hash := crc32.ChecksumIEEE([]byte("worker-" + strconv.Itoa(lane) + "#" + strconv.Itoa(i)))
			if _, taken := p.nodes[hash]; taken {
				continue
			}
			p.ring = append(p.ring, hash)
			p.nodes[hash] = lane
		}
	}
	sort.Slice(p.ring, func(i, j int) bool { return p.ring[i] < p.ring[j] })
}

// Pick hashes the service id and walks clockwise to the first virtual node.
func (p *ConsistentHash) Pick(serviceID any, n int) int {
	if n <= 1 {
		return 0
	}
	hash := crc32.ChecksumIEEE([]byte(key(serviceID)))

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.size != n {
		p.build(n)
	}
	idx := sort.Search(len(p.ring), func(i int) bool { return p.ring[i] >= hash })
	if idx == len(p.ring) {
		idx = 0
	}
	return p.nodes[p.ring[idx]]
}

func (p *ConsistentHash) Name() string {
	return "ConsistentHash"
}
