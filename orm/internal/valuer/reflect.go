package valuer

import (
	"database/sql"
	"reflect"

	"github.com/coderi421/bulkops/orm/internal/errs"
	"github.com/coderi421/bulkops/orm/model"
)

// reflectValue 基于反射的 Value
type reflectValue struct {
	entity any
	val    reflect.Value
	meta   *model.Model
	store  model.ShadowStore
}

var _ Creator = NewReflectValue

// NewReflectValue 返回一个封装好的，基于反射实现的 Value
// 输入 val 必须是一个指向结构体实例的指针，而不能是任何其它类型
func NewReflectValue(val any, meta *model.Model, store model.ShadowStore) Value {
	return &reflectValue{
		entity: val,
		val:    reflect.ValueOf(val).Elem(),
		meta:   meta,
		store:  store,
	}
}

// SetColumns sets the values from the database to the corresponding struct.
func (r reflectValue) SetColumns(rows *sql.Rows) error {
	columnNames, err := rows.Columns()
	if err != nil {
		return err
	}

	if len(columnNames) > len(r.meta.ColumnMap) {
		return errs.ErrTooManyReturnedColumns
	}

	// colValues 和 colEleValues 实质上最终都指向同一个对象
	colValues := make([]any, len(columnNames))
	colEleValues := make([]reflect.Value, len(columnNames))
	var indirect []indirectColumn

	for i, name := range columnNames {
		field, ok := r.meta.ColumnMap[name]
		if !ok {
			return errs.NewErrUnknownColumn(name)
		}

		if needIndirectScan(field) {
			raw := new(any)
			colValues[i] = raw
			ic := indirectColumn{field: field, raw: raw}
			if !field.Shadow {
				ic.dst = r.fieldValue(field)
			}
			indirect = append(indirect, ic)
			continue
		}

		// 构建出新的 reflect.Value struct
		value := reflect.New(field.Type)
		colValues[i] = value.Interface()
		colEleValues[i] = value.Elem()
	}

	if err = rows.Scan(colValues...); err != nil {
		return err
	}

	for i, c := range columnNames {
		if !colEleValues[i].IsValid() {
			continue
		}
		cm := r.meta.ColumnMap[c]
		r.fieldValue(cm).Set(colEleValues[i])
	}

	for _, ic := range indirect {
		if err = ic.apply(r.entity, r.store); err != nil {
			return err
		}
	}
	return nil
}

// fieldValue 私有字段通过 FieldByName 拿到的 Value 不能 Set，所以用 NewAt 绕一下
func (r reflectValue) fieldValue(fd *model.Field) reflect.Value {
	fv := r.val.Field(fd.Index)
	if fv.CanSet() {
		return fv
	}
	return reflect.NewAt(fd.Type, fv.Addr().UnsafePointer()).Elem()
}
