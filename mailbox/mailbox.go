// Package mailbox 把探针协程产生的 Update 交给引擎。
//
// 同一个 PID 在两次 Drain 之间只保留最新的一条，中间状态不可见。
package mailbox

import (
	"sync"

	"bwtop/model"
)

type Mailbox struct {
	mu      sync.Mutex
	pending map[uint32]model.Update
}

func New() *Mailbox {
	return &Mailbox{pending: make(map[uint32]model.Update)}
}

// Publish 可以被任意协程调用，锁只覆盖一次 map 写入
func (m *Mailbox) Publish(u model.Update) {
	m.mu.Lock()
	m.pending[u.PID] = u
	m.mu.Unlock()
}

// Drain 取走全部待处理事件并换上一个空 map。
// 只应由引擎调用；没有新事件时返回空 map (不是 nil)。
func (m *Mailbox) Drain() map[uint32]model.Update {
	fresh := make(map[uint32]model.Update)

	m.mu.Lock()
	out := m.pending
	m.pending = fresh
	m.mu.Unlock()

	return out
}

// Len 返回当前待处理的 PID 数量
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
