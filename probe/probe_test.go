package probe

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cdr.dev/slog/v3/sloggers/slogtest"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"bwtop/mailbox"
	"bwtop/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSource struct {
	mu        sync.Mutex
	snap      map[uint32]Counters
	forgotten []uint32
	closed    bool
}

func (f *fakeSource) set(snap map[uint32]Counters) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = snap
}

func (f *fakeSource) Snapshot() (map[uint32]Counters, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[uint32]Counters, len(f.snap))
	for k, v := range f.snap {
		out[k] = v
	}
	return out, nil
}

func (f *fakeSource) Forget(pid uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forgotten = append(f.forgotten, pid)
	return nil
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type recordingUsers struct {
	mu   sync.Mutex
	uids []uint32
}

func (r *recordingUsers) Lookup(uid uint32) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uids = append(r.uids, uid)
	return "alice"
}

func TestProbeStartFailure(t *testing.T) {
	ctx := context.Background()
	p := New(Options{
		Open:    func() (Source, error) { return nil, ErrUnsupported },
		Mailbox: mailbox.New(),
		Info:    newFakeInfo(),
		Logger:  slogtest.Make(t, nil),
		Clock:   quartz.NewMock(t),
	})

	assert.Equal(t, model.StatusFailure, p.Start(ctx))
	assert.Equal(t, model.StatusFailure, p.Status())
	require.NoError(t, p.Stop())
}

func TestProbePublishesSamples(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clock := quartz.NewMock(t)
	trap := clock.Trap().TickerFunc("probe", "sample")
	defer trap.Close()

	src := &fakeSource{}
	src.set(map[uint32]Counters{100: counters(2048, 0, "curl")})
	info := newFakeInfo()
	info.procs[100] = Process{Path: "/usr/bin/curl", UID: 1000}
	mb := mailbox.New()
	users := &recordingUsers{}

	p := New(Options{
		Open:     func() (Source, error) { return src, nil },
		Mailbox:  mb,
		Info:     info,
		Users:    users,
		Device:   "eth0",
		Interval: 500 * time.Millisecond,
		Logger:   slogtest.Make(t, nil),
		Clock:    clock,
	})
	require.Equal(t, model.StatusOK, p.Start(ctx))

	call := trap.MustWait(ctx)
	assert.Equal(t, 500*time.Millisecond, call.Duration)
	call.Release(ctx)

	clock.Advance(500 * time.Millisecond).MustWait(ctx)
	got := mb.Drain()
	require.Len(t, got, 1)
	assert.Equal(t, "/usr/bin/curl", got[100].AppName)
	assert.Equal(t, "eth0", got[100].DeviceName)
	assert.Equal(t, model.ActionUpsert, got[100].Action)
	users.mu.Lock()
	assert.Equal(t, []uint32{1000}, users.uids, "owner resolved before the update reaches the engine")
	users.mu.Unlock()

	info.dead[100] = true
	clock.Advance(500 * time.Millisecond).MustWait(ctx)
	got = mb.Drain()
	require.Len(t, got, 1)
	assert.Equal(t, model.ActionRemove, got[100].Action)

	require.NoError(t, p.Stop())
	src.mu.Lock()
	defer src.mu.Unlock()
	assert.True(t, src.closed)
	assert.Equal(t, []uint32{100}, src.forgotten)
}

func TestProbeStopWithoutStart(t *testing.T) {
	p := New(Options{
		Open:   func() (Source, error) { return nil, errors.New("unused") },
		Logger: slogtest.Make(t, nil),
	})
	require.NoError(t, p.Stop())
}
