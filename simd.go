// Copyright 2025 go-jpeg2000 Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package jp2view

import (
	"sync"

	"github.com/ajroetker/go-highway/hwy/contrib/image"
	"github.com/ajroetker/go-highway/hwy/contrib/workerpool"
)

// rctBuf holds 6 pooled SIMD-aligned planes for the inverse color
// transform (Y, Cb, Cr in; R, G, B out).
type rctBuf struct {
	imgs [6]*image.Image[int32]
	w, h int
}

var rctBufPool = sync.Pool{New: func() any { return new(rctBuf) }}

func getRCTBuf(w, h int) *rctBuf {
	buf := rctBufPool.Get().(*rctBuf)
	if buf.w != w || buf.h != h {
		for i := range buf.imgs {
			buf.imgs[i] = image.NewImage[int32](w, h)
		}
		buf.w = w
		buf.h = h
	}
	return buf
}

func putRCTBuf(buf *rctBuf) {
	rctBufPool.Put(buf)
}

// inverseRCT applies G = Y - ((Cb + Cr) >> 2), R = Cr + G, B = Cb + G
// across the buffer's input planes into its output planes.
func (buf *rctBuf) inverseRCT() {
	image.BaseInverseRCT(buf.imgs[0], buf.imgs[1], buf.imgs[2], buf.imgs[3], buf.imgs[4], buf.imgs[5])
}

// rowRunner splits row ranges across a worker pool, or runs them inline
// when no pool is configured.
type rowRunner struct {
	pool *workerpool.Pool
}

func newRowRunner(workers int) rowRunner {
	if workers <= 1 {
		return rowRunner{}
	}
	return rowRunner{pool: workerpool.New(workers)}
}

func (r rowRunner) rows(n int, fn func(start, end int)) {
	if r.pool == nil {
		fn(0, n)
		return
	}
	r.pool.ParallelFor(n, fn)
}

func (r rowRunner) close() {
	if r.pool != nil {
		r.pool.Close()
	}
}
