package ui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"bwtop/model"
)

// Plain 每次刷新输出一行汇总，适合重定向到文件或没有终端的场景
type Plain struct {
	mu   sync.Mutex
	w    io.Writer
	now  func() time.Time
	next model.Handle
	rows map[model.Handle]uint32

	warn  lipgloss.Style
	stamp lipgloss.Style
}

func NewPlain(w io.Writer) *Plain {
	r := lipgloss.NewRenderer(w)
	return &Plain{
		w:     w,
		now:   time.Now,
		rows:  make(map[model.Handle]uint32),
		warn:  r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		stamp: r.NewStyle().Faint(true),
	}
}

func (p *Plain) Create(pid uint32, _, _ string) model.Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	p.rows[p.next] = pid
	return p.next
}

func (p *Plain) Update(model.Handle, model.RowValues) {}

func (p *Plain) Delete(h model.Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.rows, h)
}

func (p *Plain) Refresh(_ model.Totals, summary string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "%s %s | Processes: %d\n",
		p.stamp.Render(p.now().Format(time.TimeOnly)), summary, len(p.rows))
}

func (p *Plain) Warn(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, p.warn.Render(text))
}
