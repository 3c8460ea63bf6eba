package execution

import (
	"sync"
	"time"
)

// VU 是一个虚拟用户，记录其迭代次数。
type VU struct {
	ID         int
	Iterations int64
	StartTime  time.Time
}

// VUPool 管理一个场景的虚拟用户。
type VUPool struct {
	maxVUs int
	vus    map[int]*VU
	inUse  map[int]bool
	mu     sync.Mutex
}

// NewVUPool 创建 VU 池。
func NewVUPool(maxVUs int) *VUPool {
	return &VUPool{
		maxVUs: maxVUs,
		vus:    make(map[int]*VU),
		inUse:  make(map[int]bool),
	}
}

// Acquire 获取指定 ID 的 VU，ID 越界或已被占用时返回 nil。
func (p *VUPool) Acquire(id int) *VU {
	p.mu.Lock()
	defer p.mu.Unlock()

	if id < 0 || id >= p.maxVUs || p.inUse[id] {
		return nil
	}

	vu, exists := p.vus[id]
	if !exists {
		vu = &VU{ID: id}
		p.vus[id] = vu
	}
	vu.StartTime = time.Now()
	p.inUse[id] = true
	return vu
}

// Release 将 VU 释放回池中。
func (p *VUPool) Release(vu *VU) {
	if vu == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inUse[vu.ID] = false
}

// RecordIteration 增加 VU 的迭代计数。
func (p *VUPool) RecordIteration(vu *VU) {
	p.mu.Lock()
	defer p.mu.Unlock()
	vu.Iterations++
}

// ActiveCount 返回活跃 VU 的数量。
func (p *VUPool) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	count := 0
	for _, inUse := range p.inUse {
		if inUse {
			count++
		}
	}
	return count
}

// Iterations 返回每个 VU 的迭代次数。
func (p *VUPool) Iterations() map[int]int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	result := make(map[int]int64, len(p.vus))
	for id, vu := range p.vus {
		result[id] = vu.Iterations
	}
	return result
}

// TotalIterations 返回全部 VU 的迭代次数之和。
func (p *VUPool) TotalIterations() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	var total int64
	for _, vu := range p.vus {
		total += vu.Iterations
	}
	return total
}

// Size 返回池的容量。
func (p *VUPool) Size() int {
	return p.maxVUs
}
