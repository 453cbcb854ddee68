package valuer

import (
	"fmt"
	"reflect"
	"sync"
	"unsafe"

	"github.com/coderi421/bulkops/orm/model"
	"github.com/gotomicro/ekit/syncx"
)

// Getter 从实体上读取一个字段的值，返回的是写入数据库的表示
// entity 必须是指向 Owner 结构体的指针
type Getter func(store model.ShadowStore, entity any) (any, error)

// GetterCache 缓存每个字段的 Getter
// 一个 DB 一份，生命周期跟着 DB 的 model.Registry
type GetterCache struct {
	entries syncx.Map[model.FieldID, *getterEntry]
	logFunc func(format string, args ...any)
}

type getterEntry struct {
	once   sync.Once
	getter Getter
}

func NewGetterCache(logFunc func(format string, args ...any)) *GetterCache {
	return &GetterCache{logFunc: logFunc}
}

// GetGetter 第一次调用的时候构建，后面直接返回缓存
// 并发调用的时候只会有一个 goroutine 构建，其它的等待 once 结束，不会看到构建了一半的 Getter
func (c *GetterCache) GetGetter(m *model.Model, fd *model.Field) Getter {
	entry, ok := c.entries.Load(fd.ID)
	if !ok {
		entry, _ = c.entries.LoadOrStore(fd.ID, &getterEntry{})
	}
	entry.once.Do(func() {
		entry.getter = c.build(m, fd)
	})
	return entry.getter
}

func (c *GetterCache) build(m *model.Model, fd *model.Field) Getter {
	if fd.HasDefault() && !fd.Nullable {
		c.warnDefault(m, fd)
	}

	var getter Getter
	if fd.Shadow {
		getter = shadowGetter(fd)
	} else {
		getter = memberGetter(m, fd)
	}

	if fd.Converter != nil {
		getter = useConverter(getter, fd.Converter)
	}
	return getter
}

func (c *GetterCache) warnDefault(m *model.Model, fd *model.Field) {
	if c.logFunc == nil {
		return
	}
	entity := m.Type.Name()
	switch fd.Type.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map:
		c.logFunc("orm: 列 %s.%s 在数据库中有 DEFAULT 约束并且是 NOT NULL，批量写入时 nil 可能会被拒绝。"+
			"可以通过 PropertiesToInsert/PropertiesToUpdate 跳过 %s.%s，让数据库使用 DEFAULT 值",
			entity, fd.GoName, entity, fd.GoName)
	default:
		c.logFunc("orm: 列 %s.%s 在数据库中有 DEFAULT 约束并且是 NOT NULL，零值（false、0、空字符串等）会原样写入，DEFAULT 不会生效。"+
			"可以通过 PropertiesToInsert/PropertiesToUpdate 跳过 %s.%s，让数据库使用 DEFAULT 值",
			entity, fd.GoName, entity, fd.GoName)
	}
}

func shadowGetter(fd *model.Field) Getter {
	zero := reflect.Zero(fd.Type).Interface()
	if fd.Nullable {
		zero = nil
	}
	return func(store model.ShadowStore, entity any) (any, error) {
		if store == nil {
			return nil, fmt.Errorf("orm: 影子字段 %s 需要 ShadowStore", fd.GoName)
		}
		val, ok := store.ShadowValue(entity, fd.GoName)
		if !ok {
			return zero, nil
		}
		return val, nil
	}
}

// memberGetter 直接按照偏移量读字段，私有字段也能读
func memberGetter(m *model.Model, fd *model.Field) Getter {
	want := reflect.PointerTo(m.Type)
	return func(_ model.ShadowStore, entity any) (any, error) {
		v := reflect.ValueOf(entity)
		if v.Type() != want {
			return nil, fmt.Errorf("orm: 期望 %s，得到 %T", want, entity)
		}
		if v.IsNil() {
			return nil, fmt.Errorf("orm: %s 为 nil", want)
		}
		ptr := unsafe.Add(v.UnsafePointer(), fd.Offset)
		return reflect.NewAt(fd.Type, ptr).Elem().Interface(), nil
	}
}

func useConverter(getter Getter, conv model.Converter) Getter {
	return func(store model.ShadowStore, entity any) (any, error) {
		val, err := getter(store, entity)
		if err != nil || isNil(val) {
			return val, err
		}
		return conv.ToStorage(val)
	}
}

// isNil 带类型的 nil 指针也算 nil
func isNil(val any) bool {
	if val == nil {
		return true
	}
	v := reflect.ValueOf(val)
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map:
		return v.IsNil()
	}
	return false
}
