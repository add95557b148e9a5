package window

import "wisefido-bridge/internal/models"

// DefaultCapacity 滚动窗口默认容量
const DefaultCapacity = 30

// Window 固定容量的最近读数缓冲区（环形数组，按插入顺序，满了淘汰最旧）
// 只由采集主循环持有，不做并发保护
type Window struct {
	items []models.Reading
	start int
	size  int
}

// New 创建滚动窗口，capacity <= 0 时使用默认容量
func New(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Window{items: make([]models.Reading, capacity)}
}

// Append 追加读数，超出容量时淘汰最旧的一条
func (w *Window) Append(r models.Reading) {
	capacity := len(w.items)
	if w.size < capacity {
		w.items[(w.start+w.size)%capacity] = r
		w.size++
		return
	}
	w.items[w.start] = r
	w.start = (w.start + 1) % capacity
}

// Snapshot 返回最近 k 条读数的拷贝（旧 -> 新），k 超出范围时截断
func (w *Window) Snapshot(k int) []models.Reading {
	if k <= 0 || w.size == 0 {
		return nil
	}
	if k > w.size {
		k = w.size
	}
	out := make([]models.Reading, k)
	offset := w.size - k
	for i := 0; i < k; i++ {
		out[i] = w.items[(w.start+offset+i)%len(w.items)]
	}
	return out
}

// Len 当前条数
func (w *Window) Len() int { return w.size }

// Cap 容量
func (w *Window) Cap() int { return len(w.items) }
