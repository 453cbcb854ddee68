package model

import (
	"reflect"

	"github.com/coderi421/bulkops/orm/internal/errs"
)

// WithTableName is an Option function that sets the table name for a Model.
func WithTableName(tableName string) Option {
	return func(model *Model) error {
		model.TableName = tableName
		return nil
	}
}

// WithColumnName returns an Option which sets the column name for a specific Field in a model.
func WithColumnName(field, columnName string) Option {
	return func(model *Model) error {
		fd, ok := model.FieldMap[field]
		if !ok {
			return errs.NewErrUnknownField(field)
		}
		delete(model.ColumnMap, fd.ColName)
		fd.ColName = columnName
		model.ColumnMap[columnName] = fd
		return nil
	}
}

// WithPrimaryKey 替换掉标签或者约定推断出来的主键
func WithPrimaryKey(fields ...string) Option {
	return func(model *Model) error {
		pks := make([]*Field, 0, len(fields))
		for _, name := range fields {
			fd, ok := model.FieldMap[name]
			if !ok {
				return errs.NewErrUnknownField(name)
			}
			pks = append(pks, fd)
		}
		for _, fd := range model.PrimaryKeys {
			fd.PrimaryKey = false
		}
		for _, fd := range pks {
			fd.PrimaryKey = true
		}
		model.PrimaryKeys = pks
		return nil
	}
}

// WithShadowField 注册一个影子字段
// 结构体上没有这个字段，写入的时候从 ShadowStore 中读取
func WithShadowField(name, columnName string, typ reflect.Type) Option {
	return func(model *Model) error {
		if _, ok := model.FieldMap[name]; ok {
			return errs.NewConfigurationError("orm: 字段 %s 已经存在", name)
		}
		if columnName == "" {
			columnName = underscoreName(name)
		}
		fd := &Field{
			ID:       FieldID{Owner: model.Type, Name: name},
			ColName:  columnName,
			GoName:   name,
			Type:     typ,
			Index:    -1,
			Nullable: isNullableType(typ),
			Shadow:   true,
		}
		model.Fields = append(model.Fields, fd)
		model.FieldMap[name] = fd
		model.ColumnMap[columnName] = fd
		return nil
	}
}

// WithConverter 设置值转换器
func WithConverter(field string, c Converter) Option {
	return withField(field, func(fd *Field) {
		fd.Converter = c
	})
}

// WithDefaultValue 声明列上有字面量 DEFAULT 约束
func WithDefaultValue(field string, val any) Option {
	return withField(field, func(fd *Field) {
		fd.DefaultValue = val
	})
}

// WithDefaultSQL 声明列上有数据库计算的 DEFAULT 约束
func WithDefaultSQL(field string, sql string) Option {
	return withField(field, func(fd *Field) {
		fd.DefaultSQL = sql
	})
}

// WithComputed 声明计算列
func WithComputed(field string) Option {
	return withField(field, func(fd *Field) {
		fd.Computed = true
	})
}

func WithColumnType(field string, columnType string) Option {
	return withField(field, func(fd *Field) {
		fd.ColumnType = columnType
	})
}

func WithNullable(field string, nullable bool) Option {
	return withField(field, func(fd *Field) {
		fd.Nullable = nullable
	})
}

func withField(field string, fn func(fd *Field)) Option {
	return func(model *Model) error {
		fd, ok := model.FieldMap[field]
		if !ok {
			return errs.NewErrUnknownField(field)
		}
		fn(fd)
		return nil
	}
}
