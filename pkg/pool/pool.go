// Buffer pools for the motion hot path
//
// Every motion allocates a deflection path and a chunk of samples, and a
// print waiting for drips issues a motion every poll interval. These pools
// let the path transform and modulator reuse those buffers:
//
//	path := pool.GetPath(n)
//	defer pool.PutPath(path)
//
// A buffer must not be used after it is returned.
//
// Copyright (C) 2026 Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package pool

import (
	"sync"
	"sync/atomic"

	"peachy-go/pkg/audio"
)

// MaxPooled is the largest capacity kept in a pool. Larger buffers are left
// to the garbage collector.
const MaxPooled = 8192

// buffers pools slices of T. Pointers are stored so Put does not allocate.
type buffers[T any] struct {
	pool         sync.Pool
	hits, misses atomic.Uint64
}

func (b *buffers[T]) get(n int) []T {
	if p, ok := b.pool.Get().(*[]T); ok && cap(*p) >= n {
		b.hits.Add(1)
		s := (*p)[:n]
		clear(s)
		return s
	}
	b.misses.Add(1)
	return make([]T, n)
}

func (b *buffers[T]) put(s []T) {
	if s == nil || cap(s) > MaxPooled {
		return
	}
	s = s[:0]
	b.pool.Put(&s)
}

var (
	paths   buffers[audio.Deflection]
	samples buffers[audio.Frame]
)

// GetPath returns a zeroed path of length n.
func GetPath(n int) audio.Path { return paths.get(n) }

// PutPath returns p to the pool.
func PutPath(p audio.Path) { paths.put(p) }

// GetSamples returns a zeroed (silent) chunk of n frames.
func GetSamples(n int) audio.Samples { return samples.get(n) }

// PutSamples returns s to the pool.
func PutSamples(s audio.Samples) { samples.put(s) }

// Stats counts pool reuse. A miss is a Get that had to allocate.
type Stats struct {
	PathHits, PathMisses       uint64
	SamplesHits, SamplesMisses uint64
}

// ReadStats returns the counters since start.
func ReadStats() Stats {
	return Stats{
		PathHits:      paths.hits.Load(),
		PathMisses:    paths.misses.Load(),
		SamplesHits:   samples.hits.Load(),
		SamplesMisses: samples.misses.Load(),
	}
}
