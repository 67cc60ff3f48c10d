package utils

import "sync"

// RingArray keeps the last N samples, e.g. durations of sync cycles in milliseconds
type RingArray struct {
	mutex sync.Mutex
	full  bool
	curr  int
	arr   []uint64
}

func NewRingArray(size int) *RingArray {
	if size <= 0 {
		panic("size must be positive")
	}
	return &RingArray{
		arr: make([]uint64, size),
	}
}

func (ra *RingArray) Push(value uint64) {
	ra.mutex.Lock()
	defer ra.mutex.Unlock()
	ra.arr[ra.curr] = value
	ra.curr = (ra.curr + 1) % len(ra.arr)
	ra.full = ra.full || ra.curr == 0
}

func (ra *RingArray) len__() int {
	if ra.full {
		return len(ra.arr)
	}
	return ra.curr
}

func (ra *RingArray) Len() int {
	ra.mutex.Lock()
	defer ra.mutex.Unlock()
	return ra.len__()
}

// Avg of the samples, 0 if empty
func (ra *RingArray) Avg() uint64 {
	ra.mutex.Lock()
	defer ra.mutex.Unlock()
	n := ra.len__()
	if n == 0 {
		return 0
	}
	var sum uint64
	for i := 0; i < n; i++ {
		sum += ra.arr[i]
	}
	return sum / uint64(n)
}

func (ra *RingArray) Max() uint64 {
	ra.mutex.Lock()
	defer ra.mutex.Unlock()
	var ret uint64
	for i := 0; i < ra.len__(); i++ {
		if ra.arr[i] > ret {
			ret = ra.arr[i]
		}
	}
	return ret
}
