package orm

import (
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var (
	_ TempTableNameProvider = UniqueTempTableNames{}
	_ TempTableNameProvider = &ReusingTempTableNames{}
)

// TempTableNameProvider 给临时表分配名字
type TempTableNameProvider interface {
	// LeaseName 在 release 之前，同一个 owner 上不会再次分配这个名字
	LeaseName(owner Session, base string) (name string, release func())
	// Reuses 名字会被复用的时候，表可能已经存在，创建的时候要先清空
	Reuses() bool
}

// UniqueTempTableNames 每次都生成一个新的名字，默认的实现
type UniqueTempTableNames struct{}

func (UniqueTempTableNames) LeaseName(owner Session, base string) (string, func()) {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "tmp_" + shortBase(base) + "_" + id, func() {}
}

func (UniqueTempTableNames) Reuses() bool {
	return false
}

// ReusingTempTableNames 在同一个会话上复用已经释放的名字
// 配合 KeepOnRelease 可以避免反复建表
type ReusingTempTableNames struct {
	mutex  sync.Mutex
	leased map[Session]map[string]struct{}
}

func NewReusingTempTableNames() *ReusingTempTableNames {
	return &ReusingTempTableNames{
		leased: make(map[Session]map[string]struct{}, 4),
	}
}

// LeaseName 分配编号最小的空闲名字 tmp_<base>_1, tmp_<base>_2 ...
func (r *ReusingTempTableNames) LeaseName(owner Session, base string) (string, func()) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.leased == nil {
		r.leased = make(map[Session]map[string]struct{}, 4)
	}
	names, ok := r.leased[owner]
	if !ok {
		names = make(map[string]struct{}, 4)
		r.leased[owner] = names
	}
	prefix := "tmp_" + shortBase(base) + "_"
	var name string
	for i := 1; ; i++ {
		name = prefix + strconv.Itoa(i)
		if _, ok = names[name]; !ok {
			break
		}
	}
	names[name] = struct{}{}

	var once sync.Once
	return name, func() {
		once.Do(func() {
			r.mutex.Lock()
			defer r.mutex.Unlock()
			delete(names, name)
			if len(names) == 0 {
				delete(r.leased, owner)
			}
		})
	}
}

func (r *ReusingTempTableNames) Reuses() bool {
	return true
}

// shortBase 标识符长度有限制，postgres 是 63
func shortBase(base string) string {
	const maxBase = 20
	if len(base) > maxBase {
		return base[:maxBase]
	}
	return base
}
