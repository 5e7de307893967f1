// Package table 保存引擎当前跟踪的全部进程行，按 PID 索引。
//
// 行的位置标识 (model.Handle) 由展示层分配和回收，这里只负责保存。
// Table 本身没有锁：只允许引擎所在的协程访问。
package table

import (
	"iter"
	"path/filepath"

	"bwtop/model"
)

// RowPresenter 是展示层接收行变更的接口
type RowPresenter interface {
	Create(pid uint32, displayName, path string) model.Handle
	Update(h model.Handle, v model.RowValues)
	Delete(h model.Handle)
}

// UserResolver 把 uid 转成用户名
type UserResolver interface {
	Lookup(uid uint32) string
}

type Table struct {
	presenter RowPresenter
	users     UserResolver
	rows      map[uint32]*model.Row
}

func New(p RowPresenter, users UserResolver) *Table {
	return &Table{
		presenter: p,
		users:     users,
		rows:      make(map[uint32]*model.Row),
	}
}

// Upsert 新 PID 向展示层申请 handle 并建行，已有 PID 原地更新。
// 返回该行的 handle，行存在期间不变。
func (t *Table) Upsert(pid uint32, u model.Update) model.Handle {
	row, ok := t.rows[pid]
	if !ok {
		// 固定字段只在创建时设置
		name := DisplayName(u.AppName)
		row = &model.Row{
			PID:         pid,
			DisplayName: name,
			Path:        u.AppName,
			Handle:      t.presenter.Create(pid, name, u.AppName),
		}
		t.rows[pid] = row
	}

	row.RowValues = model.RowValues{
		DeviceName: u.DeviceName,
		UserName:   t.users.Lookup(u.UID),
		SentBytes:  u.SentBytes,
		RecvBytes:  u.RecvBytes,
		SentRate:   u.SentRate,
		RecvRate:   u.RecvRate,
	}
	t.presenter.Update(row.Handle, row.RowValues)
	return row.Handle
}

// Remove 删除行并把 handle 还给展示层；PID 不存在时什么都不做，返回 false
func (t *Table) Remove(pid uint32) bool {
	row, ok := t.rows[pid]
	if !ok {
		return false
	}
	delete(t.rows, pid)
	t.presenter.Delete(row.Handle)
	return true
}

// Get 返回 PID 对应行的副本
func (t *Table) Get(pid uint32) (model.Row, bool) {
	row, ok := t.rows[pid]
	if !ok {
		return model.Row{}, false
	}
	return *row, true
}

// Rows 遍历当前所有行 (副本)，顺序不保证
func (t *Table) Rows() iter.Seq[model.Row] {
	return func(yield func(model.Row) bool) {
		for _, row := range t.rows {
			if !yield(*row) {
				return
			}
		}
	}
}

func (t *Table) Len() int {
	return len(t.rows)
}

// DisplayName 取可执行文件路径的 basename
func DisplayName(path string) string {
	if path == "" {
		return "unknown"
	}
	name := filepath.Base(path)
	if name == "." || name == "/" {
		return path
	}
	return name
}
