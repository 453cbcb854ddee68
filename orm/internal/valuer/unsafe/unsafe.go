package unsafe

import (
	"database/sql"
	"reflect"
	"unsafe"

	"github.com/coderi421/bulkops/orm/internal/errs"
	"github.com/coderi421/bulkops/orm/internal/valuer"
	"github.com/coderi421/bulkops/orm/model"
)

type unsafeValue struct {
	entity any
	addr   unsafe.Pointer // 使用 unsafe Pointer 而不是 uintptr 是因为 gc 后 uintptr 会发生变化
	meta   *model.Model
	store  model.ShadowStore
}

var _ valuer.Creator = NewUnsafeValue

func NewUnsafeValue(val any, meta *model.Model, store model.ShadowStore) valuer.Value {
	return &unsafeValue{
		entity: val,
		addr:   reflect.ValueOf(val).UnsafePointer(),
		meta:   meta,
		store:  store,
	}
}

type pending struct {
	field *model.Field
	raw   *any
	dst   reflect.Value
}

func (u unsafeValue) SetColumns(rows *sql.Rows) error {
	columns, err := rows.Columns()
	if err != nil {
		return err
	}
	if len(columns) > len(u.meta.ColumnMap) {
		return errs.ErrTooManyReturnedColumns
	}

	colValues := make([]any, len(columns))
	var later []pending
	for i, column := range columns {
		cm, ok := u.meta.ColumnMap[column]
		if !ok {
			return errs.NewErrUnknownColumn(column)
		}
		if valuer.NeedIndirectScan(cm) {
			raw := new(any)
			colValues[i] = raw
			p := pending{field: cm, raw: raw}
			if !cm.Shadow {
				p.dst = u.fieldAt(cm)
			}
			later = append(later, p)
			continue
		}
		colValues[i] = reflect.NewAt(cm.Type, unsafe.Add(u.addr, cm.Offset)).Interface()
	}

	if err = rows.Scan(colValues...); err != nil {
		return err
	}
	for _, p := range later {
		if err = valuer.ApplyIndirect(u.entity, u.store, p.field, *p.raw, p.dst); err != nil {
			return err
		}
	}
	return nil
}

func (u unsafeValue) fieldAt(cm *model.Field) reflect.Value {
	return reflect.NewAt(cm.Type, unsafe.Add(u.addr, cm.Offset)).Elem()
}
