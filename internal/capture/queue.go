package capture

import "sync"

// chunkQueue 单个会话的音频块队列。
// 设备回调是唯一的生产者，seal 之后 push 一律被拒绝，
// 因此 drain 看到的序列是完整且固定的。
type chunkQueue struct {
	mu      sync.Mutex
	open    bool
	chunks  [][]int16
	samples int
}

func newChunkQueue() *chunkQueue {
	return &chunkQueue{
		open:   true,
		chunks: make([][]int16, 0, 256),
	}
}

// push 追加一个音频块的副本，队列已封闭时返回 false
func (q *chunkQueue) push(chunk []int16) bool {
	// 复制放在锁外，缩短回调持锁时间
	c := make([]int16, len(chunk))
	copy(c, chunk)

	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.open {
		return false
	}
	q.chunks = append(q.chunks, c)
	q.samples += len(c)
	return true
}

// seal 封闭队列，之后到达的音频块全部丢弃
func (q *chunkQueue) seal() {
	q.mu.Lock()
	q.open = false
	q.mu.Unlock()
}

// drain 按到达顺序拼接所有音频块并清空队列
func (q *chunkQueue) drain() []int16 {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]int16, 0, q.samples)
	for _, c := range q.chunks {
		out = append(out, c...)
	}
	q.chunks = nil
	q.samples = 0
	return out
}

// stats 返回当前音频块数和样本数
func (q *chunkQueue) stats() (chunks, samples int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.chunks), q.samples
}
