package model

import (
	"database/sql/driver"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/coderi421/bulkops/orm/internal/errs"
	"github.com/gotomicro/ekit/syncx"
)

type Registry interface {
	Get(val any) (*Model, error)
	Register(val any, opts ...Option) (*Model, error)
}

// 这种包变量对测试不友好，缺乏隔离
//
//	var defaultRegistry = &registry{
//		models: make(map[reflect.Type]*model, 16),
//	}
type registry struct {
	// reflect.Type 可以解决命名冲突的问题
	models syncx.Map[reflect.Type, *Model]
}

func NewRegistry() Registry {
	return &registry{}
}

// Get fetches the model associated with a given value.
// If the model is not found in the registry, it is parsed and stored for future use.
func (r *registry) Get(val any) (*Model, error) {
	typ := reflect.TypeOf(val)
	m, ok := r.models.Load(typ)
	if ok {
		return m, nil
	}
	return r.Register(val)
}

// Register registers a model in the registry with the given options.
// It parses the model and applies the provided options,
// then it stores the model in the registry, replacing any earlier registration.
func (r *registry) Register(val any, opts ...Option) (*Model, error) {
	m, err := r.parseModel(val)
	if err != nil {
		return nil, err
	}

	for _, opt := range opts {
		err = opt(m)
		if err != nil {
			return nil, err
		}
	}

	r.models.Store(reflect.TypeOf(val), m)
	return m, nil
}

// parseModel parses a given value and returns a new model or an error.
// It checks if the type is a pointer to a struct and generates the fields of the model.
// orm:"key1=value1,key2=value2"
func (r *registry) parseModel(val any) (*Model, error) {
	typ := reflect.TypeOf(val)

	// Only support one-level pointer as input, e.g. *User does not support **User and User
	if typ == nil || typ.Kind() != reflect.Ptr || typ.Elem().Kind() != reflect.Struct {
		return nil, errs.ErrPointerOnly
	}
	typ = typ.Elem()

	numField := typ.NumField()
	fields := make([]*Field, 0, numField)
	fds := make(map[string]*Field, numField)
	colMap := make(map[string]*Field, numField)
	var pks []*Field

	for i := 0; i < numField; i++ {
		fdStruct := typ.Field(i)

		tags, err := r.parseTag(fdStruct.Tag)
		if err != nil {
			return nil, err
		}

		// If the colName is "", use the default  ItemId -> item_id
		colName := tags[tagKeyColumn]
		if colName == "" {
			colName = underscoreName(fdStruct.Name)
		}

		f := &Field{
			ID:         FieldID{Owner: typ, Name: fdStruct.Name},
			ColName:    colName,
			GoName:     fdStruct.Name,
			Type:       fdStruct.Type,
			Offset:     fdStruct.Offset,
			Index:      i,
			Nullable:   isNullableType(fdStruct.Type),
			DefaultSQL: tags[tagKeyDefaultSQL],
			ColumnType: tags[tagKeyType],
		}
		if dv, ok := tags[tagKeyDefault]; ok {
			f.DefaultValue = dv
		}
		if f.PrimaryKey, err = boolTag(tags, tagKeyPK); err != nil {
			return nil, err
		}
		if f.Computed, err = boolTag(tags, tagKeyComputed); err != nil {
			return nil, err
		}
		if nv, ok := tags[tagKeyNullable]; ok {
			if f.Nullable, err = strconv.ParseBool(nv); err != nil {
				return nil, errs.NewErrInvalidTagContent(tagKeyNullable + "=" + nv)
			}
		}
		if f.PrimaryKey {
			pks = append(pks, f)
		}

		fields = append(fields, f)
		fds[fdStruct.Name] = f
		colMap[colName] = f
	}

	// 没有显式声明主键的时候，约定 Id 或者 ID 是主键
	if len(pks) == 0 {
		for _, name := range []string{"Id", "ID"} {
			if f, ok := fds[name]; ok {
				f.PrimaryKey = true
				pks = append(pks, f)
				break
			}
		}
	}

	var tableName string
	if tn, ok := val.(TableName); ok {
		tableName = tn.TableName()
	}
	if tableName == "" {
		tableName = underscoreName(typ.Name())
	}

	var temp bool
	if tt, ok := val.(TempTable); ok {
		temp = tt.TempTable()
	}

	return &Model{
		TableName:   tableName,
		Type:        typ,
		Fields:      fields,
		FieldMap:    fds,
		ColumnMap:   colMap,
		PrimaryKeys: pks,
		Temp:        temp,
	}, nil
}

// parseTag parses the given struct tag and returns a map of key-value pairs.
// If the tag is empty, it returns an empty map and no error.
// If the tag contains an invalid key-value pair, it returns an error.
func (r *registry) parseTag(tag reflect.StructTag) (map[string]string, error) {
	ormTag := tag.Get(tagORMName)
	if ormTag == "" {
		// Return an empty map so that the caller doesn't need to check for nil
		return map[string]string{}, nil
	}

	pairs := strings.Split(ormTag, ",")
	res := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		// default_sql 的值里面可能有 =，所以只切第一个
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 || kv[0] == "" {
			return nil, errs.NewErrInvalidTagContent(pair)
		}
		res[kv[0]] = kv[1]
	}

	return res, nil
}

func boolTag(tags map[string]string, key string) (bool, error) {
	v, ok := tags[key]
	if !ok {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errs.NewErrInvalidTagContent(key + "=" + v)
	}
	return b, nil
}

var valuerType = reflect.TypeOf((*driver.Valuer)(nil)).Elem()

// isNullableType 指针、接口、切片、map 以及 sql.NullXXX 这一类的类型可以存 NULL
func isNullableType(typ reflect.Type) bool {
	switch typ.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map:
		return true
	case reflect.Struct:
		// sql.NullString, sql.NullInt64 ...
		if _, ok := typ.FieldByName("Valid"); ok && typ.Implements(valuerType) {
			return true
		}
	}
	return false
}

// underscoreName converts a given name to underscore case.
// It replaces any uppercase letter with an underscore followed by the lowercase letter.
// UserName -> user_name
func underscoreName(name string) string {
	var buf []byte
	for i, v := range name {
		if unicode.IsUpper(v) {
			if i != 0 {
				buf = append(buf, '_')
			}
			buf = append(buf, byte(unicode.ToLower(v)))
		} else {
			buf = append(buf, byte(v))
		}
	}
	return string(buf)
}
