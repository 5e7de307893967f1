package ui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bwtop/model"
)

func TestTableRowsSortedByRate(t *testing.T) {
	rows := []*tuiRow{
		{pid: 30, name: "idle", values: model.RowValues{SentBytes: 10}},
		{pid: 20, name: "curl", path: "/usr/bin/curl", values: model.RowValues{SentBytes: 2048, SentRate: 1024, UserName: "alice", DeviceName: "eth0"}},
		{pid: 10, name: "ssh", values: model.RowValues{RecvRate: 4096}},
		{pid: 5, name: "cron"},
	}

	got := tableRows(rows)
	require.Len(t, got, 5)
	assert.Equal(t, tableHeader, got[0])
	assert.Equal(t, "10", got[1][0])
	assert.Equal(t, "20", got[2][0])
	assert.Equal(t, "5", got[3][0], "same rate falls back to pid order")
	assert.Equal(t, "30", got[4][0])
	assert.Equal(t, []string{"20", "curl", "/usr/bin/curl", "eth0", "alice", "2.00 KB", "0 B", "1.00 KB/s", "0 B/s"}, got[2])
	assert.Len(t, got[0], len(got[2]), "header and rows have the same columns")
}

func TestBoardRows(t *testing.T) {
	b := newBoard()
	curl := b.create(100, "curl", "/usr/bin/curl")
	ssh := b.create(200, "ssh", "/usr/bin/ssh")
	require.NotEqual(t, curl, ssh)

	b.update(curl, model.RowValues{SentRate: 10, UserName: "alice"})
	b.update(ssh, model.RowValues{RecvRate: 20})
	got := b.table()
	require.Len(t, got, 3)
	assert.Equal(t, []string{"200", "ssh", "/usr/bin/ssh"}, got[1][:3])
	assert.Equal(t, []string{"100", "curl", "/usr/bin/curl"}, got[2][:3])
	assert.Equal(t, "alice", got[2][4])

	b.remove(ssh)
	// 已删除的句柄上的更新被忽略
	b.update(ssh, model.RowValues{RecvRate: 99})
	got = b.table()
	require.Len(t, got, 2)
	assert.Equal(t, "100", got[1][0])
}

func TestBoardWarningSurvivesRefresh(t *testing.T) {
	b := newBoard()
	b.warn("Failed to access network device(s).")
	b.refresh(model.Totals{SentRate: 5}, "Sent: 0 B")
	b.refresh(model.Totals{RecvRate: 7}, "Sent: 1 B")

	assert.Equal(t, "[Failed to access network device(s).](fg:red)\nSent: 1 B", b.status())
	assert.Equal(t, []float64{5, 0}, b.txHistory)
	assert.Equal(t, []float64{0, 7}, b.rxHistory)
}

func TestBoardWithoutWarning(t *testing.T) {
	b := newBoard()
	b.refresh(model.Totals{}, "Sent: 0 B")
	assert.Equal(t, "Sent: 0 B", b.status())
}

func TestPushHistory(t *testing.T) {
	var h []float64
	for i := 0; i < historySize+10; i++ {
		h = pushHistory(h, float64(i))
	}
	require.Len(t, h, historySize)
	assert.Equal(t, float64(10), h[0])
	assert.Equal(t, float64(historySize+9), peak(h))
}

func TestStatusText(t *testing.T) {
	assert.Equal(t, "Sent: 0 B", statusText("", "Sent: 0 B"))
	assert.Equal(t, "[boom](fg:red)\nSent: 0 B", statusText("boom", "Sent: 0 B"))
}

func TestPlainRefresh(t *testing.T) {
	var buf bytes.Buffer
	p := NewPlain(&buf)
	p.now = func() time.Time { return time.Date(2024, 1, 1, 12, 30, 0, 0, time.UTC) }

	h := p.Create(100, "curl", "/usr/bin/curl")
	p.Create(200, "ssh", "/usr/bin/ssh")
	p.Delete(h)
	p.Refresh(model.Totals{}, "Sent: 2.00 KB")

	assert.Equal(t, "12:30:00 Sent: 2.00 KB | Processes: 1\n", buf.String())
}

func TestPlainWarn(t *testing.T) {
	var buf bytes.Buffer
	p := NewPlain(&buf)

	p.Warn("Failed to access network device(s).")

	assert.Equal(t, "Failed to access network device(s).", strings.TrimSpace(buf.String()))
}
