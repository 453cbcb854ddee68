package orm

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/coderi421/bulkops/orm/internal/errs"
	"github.com/coderi421/bulkops/orm/model"
	"github.com/google/uuid"
)

var (
	MySQL    Dialect = &mysqlDialect{}
	SQLite3  Dialect = &sqlite3Dialect{}
	Postgres Dialect = &postgresDialect{}
	// MySQLLoadData 批量插入的时候使用 LOAD DATA LOCAL INFILE
	// 需要服务端开启 local_infile
	MySQLLoadData Dialect = &mysqlDialect{loadData: true}
)

// Dialect 屏蔽不同数据库之间的差异
// 方法都是私有的，用户只能选择我们提供的实现
type Dialect interface {
	// Name 方言名字，会出现在 ProviderExecutionError 里面
	Name() string
	quoter() byte
	placeholder(sb *strings.Builder, n int)
	// maxParams 单条语句允许的参数数量上限
	maxParams() int
	// nullSafeEqual 两边都是 NULL 的时候也认为相等的比较符
	nullSafeEqual() string
	buildUpsert(b *builder, u *upsert) error
	buildTruncate(b *builder, table string, inTx bool)
	buildCreateTempTable(b *builder, name string, ifNotExists bool)
	buildDropTempTable(b *builder, name string)
	buildCreateIndex(b *builder, index, table string, cols []string, ifNotExists bool)
	// columnType 根据 go 类型推断列类型，key 表示列在主键或者索引里
	columnType(typ reflect.Type, key bool) (string, bool)
	// errorCode 从驱动的错误里面提取错误码
	errorCode(err error) string
}

// upsert 冲突列和冲突时更新的列，都是列名
type upsert struct {
	conflictColumns []string
	updateColumns   []string
}

// nativeInserter 数据库自带的批量导入，例如 COPY 和 LOAD DATA
type nativeInserter interface {
	// nativeInsert 返回 false 说明当前会话用不了，退化成多行 INSERT
	nativeInsert(sess Session, table string, cols []string) (*nativeInsert, bool)
}

type nativeInsert struct {
	query string
	run   func(ctx context.Context, src rowSource) (int64, error)
}

type standardSQL struct {
}

func (s standardSQL) placeholder(sb *strings.Builder, n int) {
	sb.WriteByte('?')
}

func (s standardSQL) maxParams() int {
	return 65535
}

func (s standardSQL) buildCreateTempTable(b *builder, name string, ifNotExists bool) {
	b.sb.WriteString("CREATE TEMP TABLE ")
	if ifNotExists {
		b.sb.WriteString("IF NOT EXISTS ")
	}
	b.quote(name)
}

func (s standardSQL) buildCreateIndex(b *builder, index, table string, cols []string, ifNotExists bool) {
	b.sb.WriteString("CREATE INDEX ")
	if ifNotExists {
		b.sb.WriteString("IF NOT EXISTS ")
	}
	b.quote(index)
	b.sb.WriteString(" ON ")
	b.quote(table)
	b.sb.WriteString(" (")
	b.quoteColumns(cols)
	b.sb.WriteByte(')')
}

// columnKind 跨数据库的列类型分类
type columnKind int

const (
	kindUnknown columnKind = iota
	kindBool
	kindInt16
	kindInt32
	kindInt64
	kindFloat32
	kindFloat64
	kindString
	kindBytes
	kindTime
	kindUUID
)

var (
	timeType  = reflect.TypeOf(time.Time{})
	uuidType  = reflect.TypeOf(uuid.UUID{})
	bytesType = reflect.TypeOf([]byte(nil))

	nullTypes = map[reflect.Type]columnKind{
		reflect.TypeOf(sql.NullString{}):  kindString,
		reflect.TypeOf(sql.NullInt64{}):   kindInt64,
		reflect.TypeOf(sql.NullInt32{}):   kindInt32,
		reflect.TypeOf(sql.NullInt16{}):   kindInt16,
		reflect.TypeOf(sql.NullByte{}):    kindInt16,
		reflect.TypeOf(sql.NullFloat64{}): kindFloat64,
		reflect.TypeOf(sql.NullBool{}):    kindBool,
		reflect.TypeOf(sql.NullTime{}):    kindTime,
		reflect.TypeOf(uuid.NullUUID{}):   kindUUID,
	}
)

func classify(typ reflect.Type) columnKind {
	if typ == nil {
		return kindUnknown
	}
	for typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	switch typ {
	case timeType:
		return kindTime
	case uuidType:
		return kindUUID
	case bytesType:
		return kindBytes
	}
	if k, ok := nullTypes[typ]; ok {
		return k
	}
	switch typ.Kind() {
	case reflect.Bool:
		return kindBool
	case reflect.Int8, reflect.Int16, reflect.Uint8:
		return kindInt16
	case reflect.Int32, reflect.Uint16:
		return kindInt32
	case reflect.Int, reflect.Int64, reflect.Uint32, reflect.Uint, reflect.Uint64:
		return kindInt64
	case reflect.Float32:
		return kindFloat32
	case reflect.Float64:
		return kindFloat64
	case reflect.String:
		return kindString
	case reflect.Slice:
		if typ.Elem().Kind() == reflect.Uint8 {
			return kindBytes
		}
	}
	return kindUnknown
}

// fieldColumnType type 标签优先，否则按照存储类型推断
func fieldColumnType(d Dialect, fd *model.Field, key bool) (string, error) {
	if fd.ColumnType != "" {
		return fd.ColumnType, nil
	}
	typ, ok := d.columnType(fd.StorageType(), key)
	if !ok {
		return "", errs.NewErrUnsupportedColumnType(fd.GoName, fd.StorageType())
	}
	return typ, nil
}

// wrapExecErr 把驱动的错误包装成 ProviderExecutionError
// 我们自己的错误原样返回
func wrapExecErr(d Dialect, op, table, query string, err error) error {
	if err == nil {
		return nil
	}
	var (
		ve *errs.ValidationError
		ce *errs.ConfigurationError
		pe *errs.ProviderExecutionError
	)
	if errors.As(err, &ve) || errors.As(err, &ce) || errors.As(err, &pe) ||
		errors.Is(err, errs.ErrTempTableReleased) {
		return err
	}
	return &errs.ProviderExecutionError{
		Dialect: d.Name(),
		Op:      op,
		Table:   table,
		SQL:     query,
		Code:    d.errorCode(err),
		Err:     err,
	}
}
