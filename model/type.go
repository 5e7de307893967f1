package model

import "fmt"

// TrafficStats 对应 eBPF Map 里的 Value
// C 代码 (probe/bpf/netmon.c) 里定义了同样的结构
type TrafficStats struct {
	TxBytes uint64
	RxBytes uint64
}

// Action 描述一条 Update 是新增/更新还是删除
type Action uint8

const (
	ActionUpsert Action = iota + 1
	ActionRemove
)

func (a Action) String() string {
	switch a {
	case ActionUpsert:
		return "upsert"
	case ActionRemove:
		return "remove"
	default:
		return fmt.Sprintf("action(%d)", uint8(a))
	}
}

// Status 是探针启动后的状态
type Status uint8

const (
	StatusOK Status = iota
	StatusFailure // 网络设备不可访问 (例如没有权限加载 eBPF)
)

func (s Status) String() string {
	if s == StatusFailure {
		return "failure"
	}
	return "ok"
}

// UnknownUID 表示读不到进程属主，等同内核里的 (uid_t)-1
const UnknownUID = ^uint32(0)

// Update 是探针发出的一条事件，每个 PID 一条
type Update struct {
	PID        uint32
	AppName    string // 可执行文件路径，显示名取 basename
	DeviceName string
	UID        uint32 // 读不到时为 UnknownUID

	// 进程启动以来的累计字节数
	SentBytes uint64
	RecvBytes uint64

	// 最近一个采样周期的速率 (Bytes/s)
	SentRate float64
	RecvRate float64

	Action Action
}

// Handle 是展示层分配的行位置标识
// 引擎只保存和回传，从不解释它的值
type Handle uint64

// RowValues 是每次 upsert 都会刷新的字段
type RowValues struct {
	DeviceName string
	UserName   string
	SentBytes  uint64
	RecvBytes  uint64
	SentRate   float64
	RecvRate   float64
}

// Row 是引擎持有的一行进程记录
type Row struct {
	PID         uint32
	DisplayName string // 创建时固定
	Path        string // 创建时固定
	Handle      Handle

	RowValues
}

// Totals 是所有当前行的汇总，每个周期重新计算
type Totals struct {
	SentBytes uint64
	RecvBytes uint64
	SentRate  float64
	RecvRate  float64
}
