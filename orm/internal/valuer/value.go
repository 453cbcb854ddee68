package valuer

import (
	"database/sql"
	"fmt"
	"reflect"

	"github.com/coderi421/bulkops/orm/model"
)

// Value 是对结构体实例的内部抽象
type Value interface {
	// SetColumns 将查询结果设置到结构体上
	// 影子列的值写入 ShadowStore，有转换器的列会先经过 FromStorage
	SetColumns(rows *sql.Rows) error
}

// Creator 本质上也可以看所是 factory 模式，极其简单的 factory 模式
// val 必须是指向结构体的指针，store 可以为 nil，这时候影子列的值会被丢弃
type Creator func(val any, meta *model.Model, store model.ShadowStore) Value

// needIndirectScan 需要中转的列（影子列、带转换器的列）先扫描到 any 里面
func needIndirectScan(fd *model.Field) bool {
	return fd.Shadow || fd.Converter != nil
}

// fromStorage 把从数据库读出来的值转换回内存中的表示
func fromStorage(fd *model.Field, raw any) (any, error) {
	if raw == nil || fd.Converter == nil {
		return raw, nil
	}
	return fd.Converter.FromStorage(raw)
}

// assign 把值赋给字段，类型不一致的时候尝试类型转换
func assign(dst reflect.Value, val any) error {
	if val == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	v := reflect.ValueOf(val)
	switch {
	case v.Type().AssignableTo(dst.Type()):
		dst.Set(v)
	case v.Type().ConvertibleTo(dst.Type()):
		dst.Set(v.Convert(dst.Type()))
	case dst.Kind() == reflect.Ptr && v.Type().ConvertibleTo(dst.Type().Elem()):
		ptr := reflect.New(dst.Type().Elem())
		ptr.Elem().Set(v.Convert(dst.Type().Elem()))
		dst.Set(ptr)
	default:
		return fmt.Errorf("orm: 无法把 %T 赋值给 %s", val, dst.Type())
	}
	return nil
}

// indirectColumn 记录需要中转的列，Scan 之后再处理
type indirectColumn struct {
	field *model.Field
	raw   *any
	dst   reflect.Value
}

func (c indirectColumn) apply(entity any, store model.ShadowStore) error {
	val, err := fromStorage(c.field, *c.raw)
	if err != nil {
		return err
	}
	if c.field.Shadow {
		if store != nil {
			store.SetShadowValue(entity, c.field.GoName, val)
		}
		return nil
	}
	return assign(c.dst, val)
}

// ApplyIndirect 给 unsafe 的实现复用
func ApplyIndirect(entity any, store model.ShadowStore, fd *model.Field, raw any, dst reflect.Value) error {
	return indirectColumn{field: fd, raw: &raw, dst: dst}.apply(entity, store)
}

// NeedIndirectScan 给 unsafe 的实现复用
func NeedIndirectScan(fd *model.Field) bool {
	return needIndirectScan(fd)
}
