package probe

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bwtop/model"
)

type fakeInfo struct {
	dead  map[uint32]bool
	procs map[uint32]Process
	calls map[uint32]int
}

func newFakeInfo() *fakeInfo {
	return &fakeInfo{
		dead:  make(map[uint32]bool),
		procs: make(map[uint32]Process),
		calls: make(map[uint32]int),
	}
}

func (f *fakeInfo) Alive(pid uint32) bool { return !f.dead[pid] }

func (f *fakeInfo) Describe(pid uint32) (Process, error) {
	f.calls[pid]++
	p, ok := f.procs[pid]
	if !ok {
		return Process{UID: model.UnknownUID}, errors.New("no such process")
	}
	return p, nil
}

func counters(tx, rx uint64, comm string) Counters {
	return Counters{TrafficStats: model.TrafficStats{TxBytes: tx, RxBytes: rx}, Comm: comm}
}

func byPID(updates []model.Update) map[uint32]model.Update {
	out := make(map[uint32]model.Update, len(updates))
	for _, u := range updates {
		out[u.PID] = u
	}
	return out
}

func TestSamplerFirstSnapshot(t *testing.T) {
	info := newFakeInfo()
	info.procs[100] = Process{Path: "/usr/bin/curl", UID: 1000}
	s := NewSampler("any", info)

	now := time.Unix(1000, 0)
	updates, gone := s.Sample(now, map[uint32]Counters{100: counters(2048, 10, "curl")})

	require.Len(t, updates, 1)
	assert.Empty(t, gone)
	u := updates[0]
	assert.Equal(t, model.ActionUpsert, u.Action)
	assert.Equal(t, "/usr/bin/curl", u.AppName)
	assert.Equal(t, "any", u.DeviceName)
	assert.Equal(t, uint32(1000), u.UID)
	assert.Equal(t, uint64(2048), u.SentBytes)
	assert.Zero(t, u.SentRate, "no previous sample to compute a rate from")
}

func TestSamplerRates(t *testing.T) {
	info := newFakeInfo()
	info.procs[1] = Process{Path: "/bin/a"}
	s := NewSampler("any", info)

	start := time.Unix(1000, 0)
	s.Sample(start, map[uint32]Counters{1: counters(100, 0, "a")})

	updates, _ := s.Sample(start.Add(2*time.Second), map[uint32]Counters{
		1: counters(300, 50, "a"),
		2: counters(64, 0, "late"),
	})
	got := byPID(updates)
	require.Len(t, got, 2)
	assert.Equal(t, 100.0, got[1].SentRate)
	assert.Equal(t, 25.0, got[1].RecvRate)

	// 新出现的进程全部流量都发生在这个间隔内
	assert.Equal(t, 32.0, got[2].SentRate)
	assert.Equal(t, "late", got[2].AppName, "falls back to comm when /proc has no exe")
	assert.Equal(t, model.UnknownUID, got[2].UID, "unreadable owner must not look like root")
}

func TestSamplerDropsRateToZeroOnce(t *testing.T) {
	info := newFakeInfo()
	s := NewSampler("any", info)

	now := time.Unix(1000, 0)
	s.Sample(now, map[uint32]Counters{1: counters(0, 0, "a")})
	updates, _ := s.Sample(now.Add(time.Second), map[uint32]Counters{1: counters(10, 0, "a")})
	require.Len(t, updates, 1)
	assert.Equal(t, 10.0, updates[0].SentRate)

	updates, _ = s.Sample(now.Add(2*time.Second), map[uint32]Counters{1: counters(10, 0, "a")})
	require.Len(t, updates, 1)
	assert.Zero(t, updates[0].SentRate)

	updates, _ = s.Sample(now.Add(3*time.Second), map[uint32]Counters{1: counters(10, 0, "a")})
	assert.Empty(t, updates)
}

func TestSamplerCounterReset(t *testing.T) {
	s := NewSampler("any", newFakeInfo())

	now := time.Unix(1000, 0)
	s.Sample(now, map[uint32]Counters{1: counters(500, 0, "a")})
	updates, _ := s.Sample(now.Add(time.Second), map[uint32]Counters{1: counters(20, 0, "a")})

	require.Len(t, updates, 1)
	assert.Equal(t, 20.0, updates[0].SentRate)
	assert.Equal(t, uint64(20), updates[0].SentBytes)
}

func TestSamplerRemovesExitedProcesses(t *testing.T) {
	info := newFakeInfo()
	s := NewSampler("any", info)

	now := time.Unix(1000, 0)
	s.Sample(now, map[uint32]Counters{
		1: counters(1, 0, "a"),
		2: counters(1, 0, "b"),
		3: counters(1, 0, "c"),
	})

	info.dead[1] = true
	updates, gone := s.Sample(now.Add(time.Second), map[uint32]Counters{
		1: counters(1, 0, "a"),
		3: counters(1, 0, "c"),
	})

	got := byPID(updates)
	require.Len(t, got, 2)
	assert.Equal(t, model.ActionRemove, got[1].Action)
	assert.Equal(t, model.ActionRemove, got[2].Action, "vanished from the map")
	assert.Equal(t, []uint32{1}, gone)

	// 已经删除的进程不会重复发 REMOVE
	updates, gone = s.Sample(now.Add(2*time.Second), map[uint32]Counters{
		1: counters(1, 0, "a"),
		3: counters(1, 0, "c"),
	})
	assert.Empty(t, updates)
	assert.Equal(t, []uint32{1}, gone)
}

func TestSamplerDescribesOnce(t *testing.T) {
	info := newFakeInfo()
	info.procs[1] = Process{Path: "/bin/a"}
	s := NewSampler("any", info)

	now := time.Unix(1000, 0)
	for i := 0; i < 5; i++ {
		s.Sample(now.Add(time.Duration(i)*time.Second), map[uint32]Counters{1: counters(uint64(i), 0, "a")})
	}
	assert.Equal(t, 1, info.calls[1])
}

func TestBestComm(t *testing.T) {
	tests := []struct {
		names []string
		want  string
	}{
		{nil, ""},
		{[]string{"Socket Thread", "firefox"}, "firefox"},
		{[]string{"DNS Res~ver #1", ""}, "DNS Res~ver #1"},
		{[]string{"", "unknown"}, "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, bestComm(tt.names), "%v", tt.names)
	}
}
