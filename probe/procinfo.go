package probe

import (
	"github.com/shirou/gopsutil/v4/process"
	"golang.org/x/xerrors"

	"bwtop/model"
)

// procInfo 通过 gopsutil 读取 /proc
type procInfo struct{}

func NewProcessInfo() ProcessInfo {
	return procInfo{}
}

func (procInfo) Alive(pid uint32) bool {
	ok, err := process.PidExists(int32(pid))
	return err == nil && ok
}

func (procInfo) Describe(pid uint32) (Process, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return Process{UID: model.UnknownUID}, xerrors.Errorf("open process %d: %w", pid, err)
	}

	out := Process{UID: model.UnknownUID}
	if uids, err := p.Uids(); err == nil && len(uids) > 0 {
		out.UID = uids[0]
	}

	exe, err := p.Exe()
	if err != nil {
		// 内核线程或权限不足时没有 exe，退回到进程名
		name, nerr := p.Name()
		if nerr != nil {
			return Process{UID: out.UID}, xerrors.Errorf("read exe of %d: %w", pid, err)
		}
		exe = name
	}
	out.Path = exe
	return out, nil
}
