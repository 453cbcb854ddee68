package orm

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// tempTableTracker 记录还没有释放的临时表
// 超时之后只输出警告，不会替调用者释放，释放只能由持有者完成
type tempTableTracker struct {
	refs    *cache.Cache
	timeout time.Duration
}

func newTempTableTracker(timeout time.Duration, logFunc func(format string, args ...any)) *tempTableTracker {
	t := &tempTableTracker{
		refs:    cache.New(timeout, timeout/2),
		timeout: timeout,
	}
	t.refs.OnEvicted(func(key string, val any) {
		ref, ok := val.(*TempTableReference)
		// Delete 也会触发这个回调
		if !ok || ref.Released() {
			return
		}
		logFunc("orm: 临时表 %s 超过 %v 没有释放，请检查是否遗漏了 Release", ref.Name(), t.timeout)
	})
	return t
}

func (t *tempTableTracker) track(ref *TempTableReference) {
	t.refs.Set(ref.id, ref, cache.DefaultExpiration)
}

func (t *tempTableTracker) untrack(ref *TempTableReference) {
	t.refs.Delete(ref.id)
}

// live 还没有释放的临时表数量
func (t *tempTableTracker) live() int {
	return t.refs.ItemCount()
}
