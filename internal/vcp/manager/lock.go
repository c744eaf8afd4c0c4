package manager

import (
	"sync"
	"sync/atomic"
)

// lockEntry 记录一个实例锁的持有者和重入计数
type lockEntry struct {
	owner int64
	refs  int
}

// InstanceLocks 按实例 ID 的可重入互斥锁
// 同一个逻辑持有者（一次请求的调用链）可以重复加锁，计数归零时
// 唤醒所有等待者。这是宿主机本地的锁，只串行化本进程内对同一实例
// 的操作
type InstanceLocks struct {
	mu        sync.Mutex
	cond      *sync.Cond
	held      map[string]lockEntry
	nextOwner atomic.Int64
}

// NewInstanceLocks 创建实例锁表
func NewInstanceLocks() *InstanceLocks {
	l := &InstanceLocks{
		held: make(map[string]lockEntry),
	}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// NewOwner 分配一个新的持有者标识
// goroutine 没有可观察的身份，每条请求调用链在入口领一个标识并随
// context 传递，重入判定以它为准
func (l *InstanceLocks) NewOwner() int64 {
	return l.nextOwner.Add(1)
}

// Acquire 为 owner 获取 id 的锁，已被其他持有者占用时阻塞等待
func (l *InstanceLocks) Acquire(owner int64, id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for {
		entry, ok := l.held[id]
		if !ok || entry.owner == owner {
			break
		}
		l.cond.Wait()
	}

	entry := l.held[id]
	l.held[id] = lockEntry{owner: owner, refs: entry.refs + 1}
}

// Release 释放一次 Acquire，计数归零时删除条目并唤醒等待者
func (l *InstanceLocks) Release(owner int64, id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.held[id]
	if !ok || entry.owner != owner {
		return
	}
	if entry.refs <= 1 {
		delete(l.held, id)
		l.cond.Broadcast()
		return
	}
	l.held[id] = lockEntry{owner: entry.owner, refs: entry.refs - 1}
}

// IsLocked 观察 id 当前是否被任何持有者锁定，不阻塞
func (l *InstanceLocks) IsLocked(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[id]
	return ok
}

// WithGlobal 持有全局锁执行 fn
// fn 执行期间所有 Acquire 都会阻塞，fn 通过 isLocked 观察单个实例
// 的锁定状态。对账循环用它保证扫描期间锁表不变
func (l *InstanceLocks) WithGlobal(fn func(isLocked func(id string) bool) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	isLocked := func(id string) bool {
		_, ok := l.held[id]
		return ok
	}
	return fn(isLocked)
}
