package model

import "reflect"

// Option is a function type that modifies a Model.
type Option func(model *Model) error

// Model 结构体映射db后的结构
type Model struct {
	// TableName 结构体对应的表名
	TableName string
	// Type 结构体类型，不是指针
	Type reflect.Type
	// Fields 按照结构体中定义的顺序排列，影子字段追加在最后
	Fields    []*Field
	FieldMap  map[string]*Field // 结构体 属性名 attr name 为 key  ItemId
	ColumnMap map[string]*Field // DB column name 为 key    item_id
	// PrimaryKeys 主键，可能是联合主键
	PrimaryKeys []*Field
	// Temp 只用作临时表的结构，不对应真实的表
	Temp bool
}

// FieldID 字段的身份
// 同一个模型里，两次查找得到的 FieldID 是相等的，可以直接作为 map 的 key
type FieldID struct {
	Owner reflect.Type
	Name  string
}

// Field 字段相关的属性
type Field struct {
	ID      FieldID
	ColName string       // 数据库中的字段名
	GoName  string       // go struct 中的名字
	Type    reflect.Type // go 中的数据类型，转换成 reflect.Value 的时候，知道是什么类型，不然那没法转
	// Offset 相对于对象起始地址的字段偏移量
	// uintptr 这个类型的值，只是简单记录一下位置
	Offset uintptr
	// Index 在结构体中的下标，影子字段为 -1
	Index int

	Nullable   bool
	PrimaryKey bool
	// Shadow 影子字段，结构体里面没有对应的字段，值存放在 ShadowStore 里
	Shadow bool
	// Computed 数据库计算列，不能写入
	Computed bool
	// Converter 内存中的值和存储的值之间的转换
	Converter Converter
	// DefaultValue 和 DefaultSQL 对应列上的 DEFAULT 约束
	DefaultValue any
	DefaultSQL   string
	// ColumnType 建临时表时使用的列类型，为空就根据 Type 推断
	ColumnType string
}

// HasDefault 列上有 DEFAULT 约束
func (f *Field) HasDefault() bool {
	return f.DefaultValue != nil || f.DefaultSQL != ""
}

// StorageType 写入数据库的值的类型
func (f *Field) StorageType() reflect.Type {
	if st, ok := f.Converter.(StorageTyper); ok {
		return st.StorageType()
	}
	return f.Type
}

// Converter 值转换器
// nil 不会经过转换器
type Converter interface {
	ToStorage(val any) (any, error)
	FromStorage(val any) (any, error)
}

// StorageTyper 转换器可以声明存储的类型，建临时表的时候用得上
type StorageTyper interface {
	StorageType() reflect.Type
}

// ConverterFuncs 用两个方法组装一个 Converter
type ConverterFuncs struct {
	To      func(val any) (any, error)
	From    func(val any) (any, error)
	Storage reflect.Type
}

func (c ConverterFuncs) ToStorage(val any) (any, error) {
	return c.To(val)
}

func (c ConverterFuncs) FromStorage(val any) (any, error) {
	if c.From == nil {
		return val, nil
	}
	return c.From(val)
}

func (c ConverterFuncs) StorageType() reflect.Type {
	return c.Storage
}

// ShadowStore 保存影子字段的值
// entity 是指向结构体的指针
type ShadowStore interface {
	ShadowValue(entity any, field string) (any, bool)
	SetShadowValue(entity any, field string, val any)
}

// 我们支持的全部标签上的 key 都放在这里
// 方便用户查找，和我们后期维护
const (
	tagKeyColumn     = "column"
	tagKeyPK         = "pk"
	tagKeyComputed   = "computed"
	tagKeyDefault    = "default"
	tagKeyDefaultSQL = "default_sql"
	tagKeyType       = "type"
	tagKeyNullable   = "nullable"
	tagORMName       = "orm"
)

// TableName 用户实现这个接口来返回自定义的表名
type TableName interface {
	TableName() string
}

// TempTable 实现这个接口的类型只用作临时表的结构
type TempTable interface {
	TempTable() bool
}
