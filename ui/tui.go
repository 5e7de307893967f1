// Package ui 是展示层：termui 终端界面和纯文本输出两种实现。
package ui

import (
	"context"
	"fmt"
	"sort"
	"sync"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
	"golang.org/x/xerrors"

	"bwtop/format"
	"bwtop/model"
)

// 历史数据长度 (用于绘制底部波形图)
const historySize = 90

var tableHeader = []string{"PID", "进程名", "路径", "网卡", "用户", "发送总量", "接收总量", "上传速率", "下载速率"}

type tuiRow struct {
	pid    uint32
	name   string
	path   string
	values model.RowValues
}

// board 是界面要显示的全部状态：进程行、警告、汇总和速率历史。
// 不碰终端，调用方负责加锁。
type board struct {
	next model.Handle
	rows map[model.Handle]*tuiRow

	warning string
	summary string

	txHistory []float64
	rxHistory []float64
}

func newBoard() *board {
	return &board{
		rows:      make(map[model.Handle]*tuiRow),
		txHistory: make([]float64, 0),
		rxHistory: make([]float64, 0),
	}
}

func (b *board) create(pid uint32, displayName, path string) model.Handle {
	b.next++
	b.rows[b.next] = &tuiRow{pid: pid, name: displayName, path: path}
	return b.next
}

func (b *board) update(h model.Handle, v model.RowValues) {
	if r, ok := b.rows[h]; ok {
		r.values = v
	}
}

func (b *board) remove(h model.Handle) {
	delete(b.rows, h)
}

// warn 失败警告一直保留，之后的 refresh 不会覆盖
func (b *board) warn(text string) {
	b.warning = text
}

func (b *board) refresh(totals model.Totals, summary string) {
	b.summary = summary
	b.txHistory = pushHistory(b.txHistory, totals.SentRate)
	b.rxHistory = pushHistory(b.rxHistory, totals.RecvRate)
}

func (b *board) status() string {
	return statusText(b.warning, b.summary)
}

func (b *board) table() [][]string {
	rows := make([]*tuiRow, 0, len(b.rows))
	for _, r := range b.rows {
		rows = append(rows, r)
	}
	return tableRows(rows)
}

// TUI 用 termui 渲染进程表、状态栏和上传/下载波形图。
// 引擎协程调用 Refresh，主协程跑 Loop，所有组件访问都在 mu 下进行。
type TUI struct {
	mu    sync.Mutex
	board *board

	table  *widgets.Table
	status *widgets.Paragraph
	slTx   *widgets.Sparkline
	sgTx   *widgets.SparklineGroup
	slRx   *widgets.Sparkline
	sgRx   *widgets.SparklineGroup
	grid   *ui.Grid
}

// NewTUI 初始化终端，调用方负责 Close
func NewTUI() (*TUI, error) {
	if err := ui.Init(); err != nil {
		return nil, xerrors.Errorf("failed to init termui: %w", err)
	}

	t := &TUI{board: newBoard()}

	// [上] 进程表格
	t.table = widgets.NewTable()
	t.table.Title = " [ 🟢 实时监控 ] "
	t.table.Rows = [][]string{tableHeader}
	t.table.TextStyle = ui.NewStyle(ui.ColorWhite)
	t.table.RowSeparator = false
	t.table.BorderStyle.Fg = ui.ColorGreen

	// [中] 状态栏：汇总信息或失败警告
	t.status = widgets.NewParagraph()
	t.status.Title = " 汇总 "
	t.status.BorderStyle.Fg = ui.ColorYellow

	// [左下] 上传波形图
	t.slTx = widgets.NewSparkline()
	t.slTx.Data = t.board.txHistory
	t.slTx.LineColor = ui.ColorYellow
	t.slTx.TitleStyle.Fg = ui.ColorYellow
	t.sgTx = widgets.NewSparklineGroup(t.slTx)
	t.sgTx.Title = " 上传趋势 "
	t.sgTx.BorderStyle.Fg = ui.ColorYellow

	// [右下] 下载波形图
	t.slRx = widgets.NewSparkline()
	t.slRx.Data = t.board.rxHistory
	t.slRx.LineColor = ui.ColorGreen
	t.slRx.TitleStyle.Fg = ui.ColorGreen
	t.sgRx = widgets.NewSparklineGroup(t.slRx)
	t.sgRx.Title = " 下载趋势 "
	t.sgRx.BorderStyle.Fg = ui.ColorGreen

	// 屏幕垂直切成 3 份: 表格 / 状态栏 / 图表
	t.grid = ui.NewGrid()
	termWidth, termHeight := ui.TerminalDimensions()
	t.grid.SetRect(0, 0, termWidth, termHeight)
	t.grid.Set(
		ui.NewRow(0.65, ui.NewCol(1.0, t.table)),
		ui.NewRow(0.1, ui.NewCol(1.0, t.status)),
		ui.NewRow(0.25,
			ui.NewCol(0.5, t.sgTx),
			ui.NewCol(0.5, t.sgRx),
		),
	)

	return t, nil
}

func (t *TUI) Close() {
	ui.Close()
}

func (t *TUI) Create(pid uint32, displayName, path string) model.Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.board.create(pid, displayName, path)
}

func (t *TUI) Update(h model.Handle, v model.RowValues) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.board.update(h, v)
}

func (t *TUI) Delete(h model.Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.board.remove(h)
}

// Warn 失败警告一直保留在状态栏
func (t *TUI) Warn(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.board.warn(text)
	t.status.Text = t.board.status()
	ui.Render(t.grid)
}

func (t *TUI) Refresh(totals model.Totals, summary string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.board.refresh(totals, summary)
	t.status.Text = t.board.status()
	t.slTx.Data = t.board.txHistory
	t.slRx.Data = t.board.rxHistory

	// 富文本标题：带实时数据和峰值
	t.sgTx.Title = fmt.Sprintf(" 上传趋势 (实时: %s | 峰值: %s) ",
		format.Rate(totals.SentRate), format.Rate(peak(t.board.txHistory)))
	t.sgRx.Title = fmt.Sprintf(" 下载趋势 (实时: %s | 峰值: %s) ",
		format.Rate(totals.RecvRate), format.Rate(peak(t.board.rxHistory)))

	t.table.Rows = t.board.table()
	t.table.Title = fmt.Sprintf(" [ 🟢 实时监控 (进程: %d) ] ", len(t.board.rows))

	ui.Render(t.grid)
}

// Loop 处理键盘和窗口事件，按 q 或 Ctrl+C 或 ctx 取消时返回
func (t *TUI) Loop(ctx context.Context) error {
	t.mu.Lock()
	t.status.Text = t.board.status()
	ui.Render(t.grid)
	t.mu.Unlock()

	uiEvents := ui.PollEvents()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-uiEvents:
			if e.Type == ui.KeyboardEvent && (e.ID == "q" || e.ID == "<C-c>") {
				return nil
			}
			// 窗口大小改变时，重新计算布局
			if e.Type == ui.ResizeEvent {
				payload := e.Payload.(ui.Resize)
				t.mu.Lock()
				t.grid.SetRect(0, 0, payload.Width, payload.Height)
				ui.Clear()
				ui.Render(t.grid)
				t.mu.Unlock()
			}
		}
	}
}

// tableRows 按速率排序 (总速率降序，相同时按 PID)，第一行是表头
func tableRows(rows []*tuiRow) [][]string {
	sort.SliceStable(rows, func(i, j int) bool {
		rateI := rows[i].values.SentRate + rows[i].values.RecvRate
		rateJ := rows[j].values.SentRate + rows[j].values.RecvRate
		if rateI == rateJ {
			return rows[i].pid < rows[j].pid
		}
		return rateI > rateJ
	})

	out := make([][]string, 0, len(rows)+1)
	out = append(out, tableHeader)
	for _, r := range rows {
		out = append(out, []string{
			fmt.Sprintf("%d", r.pid),
			r.name,
			r.path,
			r.values.DeviceName,
			r.values.UserName,
			format.ByteCount(r.values.SentBytes),
			format.ByteCount(r.values.RecvBytes),
			format.Rate(r.values.SentRate),
			format.Rate(r.values.RecvRate),
		})
	}
	return out
}

func statusText(warning, summary string) string {
	if warning == "" {
		return summary
	}
	return fmt.Sprintf("[%s](fg:red)\n%s", warning, summary)
}

// pushHistory 不需要切除头部，直到达到 historySize
// 图表会从左边开始自然生长
func pushHistory(h []float64, v float64) []float64 {
	if len(h) >= historySize {
		h = h[1:]
	}
	return append(h, v)
}

func peak(h []float64) float64 {
	m := 0.0
	for _, v := range h {
		if v > m {
			m = v
		}
	}
	return m
}
