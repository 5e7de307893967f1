package probe

import (
	"strings"
	"time"

	"bwtop/model"
)

// Counters 是某个 PID 在内核 Map 里的累计流量 (同一进程的所有线程已合并)
type Counters struct {
	model.TrafficStats
	Comm string // 内核记录的线程名，拿不到 exe 路径时用来兜底
}

// Process 是从 /proc 读到的进程信息
type Process struct {
	Path string
	UID  uint32
}

// ProcessInfo 查询进程是否存活以及它的路径、uid。
// Describe 出错时返回的 Process 仍带着能读到的 UID，读不到时为 model.UnknownUID。
type ProcessInfo interface {
	Alive(pid uint32) bool
	Describe(pid uint32) (Process, error)
}

type tracked struct {
	tx, rx uint64
	path   string
	uid    uint32
	active bool // 上一次发出的速率是否非零
}

// Sampler 把连续的内核快照转换成 Update 事件。
// 不是并发安全的，只在探针的采样协程里使用。
type Sampler struct {
	device string
	info   ProcessInfo
	prev   map[uint32]*tracked
	last   time.Time
}

func NewSampler(device string, info ProcessInfo) *Sampler {
	return &Sampler{
		device: device,
		info:   info,
		prev:   make(map[uint32]*tracked),
	}
}

// Sample 计算本次快照相对上一次的变化。
// gone 是已经退出的进程，调用方应把它们从内核 Map 里删掉。
func (s *Sampler) Sample(now time.Time, snap map[uint32]Counters) (updates []model.Update, gone []uint32) {
	var elapsed float64
	if !s.last.IsZero() {
		elapsed = now.Sub(s.last).Seconds()
	}
	s.last = now

	for pid, c := range snap {
		if !s.info.Alive(pid) {
			if _, ok := s.prev[pid]; ok {
				delete(s.prev, pid)
				updates = append(updates, model.Update{PID: pid, Action: model.ActionRemove})
			}
			gone = append(gone, pid)
			continue
		}

		t, seen := s.prev[pid]
		if !seen {
			t = &tracked{}
			t.path, t.uid = s.describe(pid, c.Comm)
			s.prev[pid] = t
		}

		changed := !seen || c.TxBytes != t.tx || c.RxBytes != t.rx
		if !changed && !t.active {
			continue
		}

		// 计算瞬时速率 (Rate = (CurrentTotal - PreviousTotal) / elapsed)
		// 计数器变小说明 Map 条目被重建过，直接把当前值当作增量
		var txRate, rxRate float64
		if elapsed > 0 {
			txRate = float64(delta(c.TxBytes, t.tx)) / elapsed
			rxRate = float64(delta(c.RxBytes, t.rx)) / elapsed
		}

		t.tx, t.rx = c.TxBytes, c.RxBytes
		t.active = txRate > 0 || rxRate > 0

		updates = append(updates, model.Update{
			PID:        pid,
			AppName:    t.path,
			DeviceName: s.device,
			UID:        t.uid,
			SentBytes:  c.TxBytes,
			RecvBytes:  c.RxBytes,
			SentRate:   txRate,
			RecvRate:   rxRate,
			Action:     model.ActionUpsert,
		})
	}

	// Map 里消失的 PID 也要删除
	for pid := range s.prev {
		if _, ok := snap[pid]; !ok {
			delete(s.prev, pid)
			updates = append(updates, model.Update{PID: pid, Action: model.ActionRemove})
		}
	}

	return updates, gone
}

// describe 名字决策逻辑：优先用 /proc 的 exe 路径 (权威)，其次用内核里的 comm (兜底)
func (s *Sampler) describe(pid uint32, comm string) (string, uint32) {
	p, err := s.info.Describe(pid)
	if err != nil || p.Path == "" {
		if comm == "" {
			comm = "unknown"
		}
		return comm, p.UID
	}
	return p.Path, p.UID
}

func delta(cur, prev uint64) uint64 {
	if cur >= prev {
		return cur - prev
	}
	return cur
}

// bestComm 简单的启发式算法：选一个不像线程名的名字
func bestComm(names []string) string {
	best := ""
	for _, n := range names {
		if n == "" {
			continue
		}
		if n != "unknown" && n != "Socket Thread" && !strings.HasPrefix(n, "DNS Res") {
			return n
		}
		if best == "" {
			best = n
		}
	}
	return best
}
