// Package mempool keeps sized buffers for the hot paths of detection and
// recognition (binary masks, component labels and input tensors).
package mempool

import "sync"

const step = 1024

// sizeClass rounds n up to the next multiple of 1024 to reduce churn.
func sizeClass(n int) int {
	if n <= step {
		return step
	}
	return (n + step - 1) / step * step
}

type pool[T any] struct {
	classes sync.Map // size class -> *sync.Pool
}

func (p *pool[T]) class(cls int) *sync.Pool {
	v, _ := p.classes.LoadOrStore(cls, &sync.Pool{New: func() any { return make([]T, cls) }})
	return v.(*sync.Pool) //nolint:forcetypeassert // only *sync.Pool is stored
}

func (p *pool[T]) get(n int) []T {
	n = max(n, 0)
	cls := sizeClass(n)
	buf, ok := p.class(cls).Get().([]T)
	if !ok || cap(buf) < cls {
		buf = make([]T, cls)
	}
	buf = buf[:n]
	clear(buf)
	return buf
}

func (p *pool[T]) put(buf []T) {
	if buf == nil {
		return
	}
	cls := sizeClass(cap(buf))
	if cls != cap(buf) {
		// Not one of ours; let the GC have it.
		return
	}
	p.class(cls).Put(buf[:cap(buf)]) //nolint:staticcheck
}

var (
	float32Pool pool[float32]
	boolPool    pool[bool]
	int32Pool   pool[int32]
)

// GetFloat32 returns a zeroed []float32 of length n. Return it with PutFloat32.
func GetFloat32(n int) []float32 { return float32Pool.get(n) }

// PutFloat32 returns a buffer to the pool. It is safe to pass a nil slice.
func PutFloat32(buf []float32) { float32Pool.put(buf) }

// GetBool returns a zeroed []bool of length n. Return it with PutBool.
func GetBool(n int) []bool { return boolPool.get(n) }

// PutBool returns a buffer to the pool. It is safe to pass a nil slice.
func PutBool(buf []bool) { boolPool.put(buf) }

// GetInt32 returns a zeroed []int32 of length n. Return it with PutInt32.
func GetInt32(n int) []int32 { return int32Pool.get(n) }

// PutInt32 returns a buffer to the pool. It is safe to pass a nil slice.
func PutInt32(buf []int32) { int32Pool.put(buf) }
