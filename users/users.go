// Package users 把数字 uid 解析成用户名
package users

import (
	"os/user"
	"strconv"
	"sync"

	"bwtop/model"
)

// Unknown 是读不到属主时显示的用户名
const Unknown = "?"

// Resolver 缓存 uid -> 用户名，查不到时返回 uid 本身。
// 查询在锁外进行，NSS/LDAP 慢的时候不会卡住其它 uid 的缓存命中。
type Resolver struct {
	lookup func(uid string) (string, error)

	mu    sync.Mutex
	cache map[uint32]string
}

func NewResolver() *Resolver {
	return &Resolver{
		lookup: func(uid string) (string, error) {
			u, err := user.LookupId(uid)
			if err != nil {
				return "", err
			}
			return u.Username, nil
		},
		cache: make(map[uint32]string),
	}
}

// Lookup 永远不会失败
func (r *Resolver) Lookup(uid uint32) string {
	if uid == model.UnknownUID {
		return Unknown
	}

	r.mu.Lock()
	name, ok := r.cache[uid]
	r.mu.Unlock()
	if ok {
		return name
	}

	id := strconv.FormatUint(uint64(uid), 10)
	name, err := r.lookup(id)
	if err != nil || name == "" {
		name = id
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.cache[uid]; ok {
		return cached
	}
	r.cache[uid] = name
	return name
}
