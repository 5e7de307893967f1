//go:build linux

package probe

import (
	"context"

	"cdr.dev/slog/v3"
	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/rlimit"
	"golang.org/x/xerrors"

	"bwtop/model"
)

// processKey 对应 bpf/netmon.c 里的 struct process_key
type processKey struct {
	Pid  uint32
	Comm [16]int8
}

type ebpfObjects struct {
	KprobeTcpSendmsg     *ebpf.Program `ebpf:"kprobe_tcp_sendmsg"`
	KprobeTcpCleanupRbuf *ebpf.Program `ebpf:"kprobe_tcp_cleanup_rbuf"`
	KprobeUdpSendmsg     *ebpf.Program `ebpf:"kprobe_udp_sendmsg"`
	KprobeUdpRecvmsg     *ebpf.Program `ebpf:"kprobe_udp_recvmsg"`
	KretprobeUdpRecvmsg  *ebpf.Program `ebpf:"kretprobe_udp_recvmsg"`

	ProcStats *ebpf.Map `ebpf:"proc_stats"`
	UdpRecv   *ebpf.Map `ebpf:"udp_recv_ctx"`
}

func (o *ebpfObjects) Close() error {
	for _, p := range []*ebpf.Program{
		o.KprobeTcpSendmsg, o.KprobeTcpCleanupRbuf, o.KprobeUdpSendmsg,
		o.KprobeUdpRecvmsg, o.KretprobeUdpRecvmsg,
	} {
		if p != nil {
			_ = p.Close()
		}
	}
	for _, m := range []*ebpf.Map{o.ProcStats, o.UdpRecv} {
		if m != nil {
			_ = m.Close()
		}
	}
	return nil
}

type ebpfSource struct {
	objs  ebpfObjects
	links []link.Link
}

// OpenEBPF 加载编译好的 BPF 对象文件并挂载内核钩子
func OpenEBPF(ctx context.Context, objectPath string, logger slog.Logger) (Source, error) {
	// eBPF map 需要锁定内存，Linux 默认限制很小 (64KB)，不移除会导致加载失败
	if err := rlimit.RemoveMemlock(); err != nil {
		return nil, xerrors.Errorf("remove memlock rlimit: %w", err)
	}

	spec, err := ebpf.LoadCollectionSpec(objectPath)
	if err != nil {
		return nil, xerrors.Errorf("load bpf object %q: %w", objectPath, err)
	}

	s := &ebpfSource{}
	if err := spec.LoadAndAssign(&s.objs, nil); err != nil {
		return nil, xerrors.Errorf("load bpf programs: %w", err)
	}

	// TCP 发送 (kprobe/tcp_sendmsg) 和接收 (kprobe/tcp_cleanup_rbuf，数据被用户态取走时触发) 是必须的
	required := []struct {
		symbol string
		prog   *ebpf.Program
	}{
		{"tcp_sendmsg", s.objs.KprobeTcpSendmsg},
		{"tcp_cleanup_rbuf", s.objs.KprobeTcpCleanupRbuf},
	}
	for _, r := range required {
		kp, err := link.Kprobe(r.symbol, r.prog, nil)
		if err != nil {
			_ = s.Close()
			return nil, xerrors.Errorf("attach kprobe %s: %w", r.symbol, err)
		}
		s.links = append(s.links, kp)
	}

	// UDP 挂载失败只记录日志
	if kp, err := link.Kprobe("udp_sendmsg", s.objs.KprobeUdpSendmsg, nil); err != nil {
		logger.Warn(ctx, "attach udp tx probe", slog.Error(err))
	} else {
		s.links = append(s.links, kp)
	}
	// UDP 接收入口记录上下文，出口读取返回值 (Bytes)
	if kp, err := link.Kprobe("udp_recvmsg", s.objs.KprobeUdpRecvmsg, nil); err != nil {
		logger.Warn(ctx, "attach udp rx probe", slog.Error(err))
	} else {
		s.links = append(s.links, kp)
	}
	if kp, err := link.Kretprobe("udp_recvmsg", s.objs.KretprobeUdpRecvmsg, nil); err != nil {
		logger.Warn(ctx, "attach udp rx ret probe", slog.Error(err))
	} else {
		s.links = append(s.links, kp)
	}

	return s, nil
}

// Snapshot 遍历 BPF Map，把同一 PID 下不同线程的流量聚合在一起
func (s *ebpfSource) Snapshot() (map[uint32]Counters, error) {
	type agg struct {
		stats model.TrafficStats
		names []string
	}
	byPID := make(map[uint32]*agg)

	var key processKey
	var stats model.TrafficStats
	iter := s.objs.ProcStats.Iterate()
	for iter.Next(&key, &stats) {
		a, ok := byPID[key.Pid]
		if !ok {
			a = &agg{}
			byPID[key.Pid] = a
		}
		a.stats.TxBytes += stats.TxBytes
		a.stats.RxBytes += stats.RxBytes
		if name := parseComm(key.Comm); name != "" {
			a.names = append(a.names, name)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, xerrors.Errorf("iterate proc_stats: %w", err)
	}

	out := make(map[uint32]Counters, len(byPID))
	for pid, a := range byPID {
		out[pid] = Counters{TrafficStats: a.stats, Comm: bestComm(a.names)}
	}
	return out, nil
}

func (s *ebpfSource) Forget(pid uint32) error {
	var keys []processKey
	var key processKey
	var stats model.TrafficStats
	iter := s.objs.ProcStats.Iterate()
	for iter.Next(&key, &stats) {
		if key.Pid == pid {
			keys = append(keys, key)
		}
	}
	if err := iter.Err(); err != nil {
		return xerrors.Errorf("iterate proc_stats: %w", err)
	}

	for i := range keys {
		if err := s.objs.ProcStats.Delete(&keys[i]); err != nil && !xerrors.Is(err, ebpf.ErrKeyNotExist) {
			return xerrors.Errorf("delete pid %d: %w", pid, err)
		}
	}
	return nil
}

func (s *ebpfSource) Close() error {
	for _, l := range s.links {
		_ = l.Close()
	}
	return s.objs.Close()
}

// parseComm 解析 C 语言传来的 [16]int8 字符串
func parseComm(chars [16]int8) string {
	var buf []byte
	for _, v := range chars {
		if v == 0 {
			break
		}
		buf = append(buf, byte(v))
	}
	return string(buf)
}
