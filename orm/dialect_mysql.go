package orm

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
)

type mysqlDialect struct {
	standardSQL
	// loadData 批量插入的时候使用 LOAD DATA LOCAL INFILE
	loadData bool
}

func (m *mysqlDialect) Name() string {
	return "mysql"
}

func (m *mysqlDialect) quoter() byte {
	return '`'
}

func (m *mysqlDialect) nullSafeEqual() string {
	return "<=>"
}

// buildUpsert mysql 根据表上全部的唯一索引判断冲突，conflictColumns 只在没有更新列的时候使用
func (m *mysqlDialect) buildUpsert(b *builder, u *upsert) error {
	b.sb.WriteString(" ON DUPLICATE KEY UPDATE ")
	if len(u.updateColumns) == 0 {
		// 没有要更新的列，相当于忽略冲突的行
		// 不用 INSERT IGNORE，它会吞掉其它错误
		b.quote(u.conflictColumns[0])
		b.sb.WriteByte('=')
		b.quote(u.conflictColumns[0])
		return nil
	}
	for idx, col := range u.updateColumns {
		if idx > 0 {
			b.sb.WriteByte(',')
		}
		// "INSERT INTO `test_model`(`id`,`first_name`) VALUES(?,?),(?,?) ON DUPLICATE KEY UPDATE `first_name`=VALUES(`first_name`)"
		b.quote(col)
		b.sb.WriteString("=VALUES(")
		b.quote(col)
		b.sb.WriteByte(')')
	}
	return nil
}

// buildTruncate TRUNCATE 会隐式提交事务，所以在事务里面退化成 DELETE
func (m *mysqlDialect) buildTruncate(b *builder, table string, inTx bool) {
	if inTx {
		b.sb.WriteString("DELETE FROM ")
	} else {
		b.sb.WriteString("TRUNCATE TABLE ")
	}
	b.quote(table)
}

func (m *mysqlDialect) buildCreateTempTable(b *builder, name string, ifNotExists bool) {
	b.sb.WriteString("CREATE TEMPORARY TABLE ")
	if ifNotExists {
		b.sb.WriteString("IF NOT EXISTS ")
	}
	b.quote(name)
}

func (m *mysqlDialect) buildDropTempTable(b *builder, name string) {
	b.sb.WriteString("DROP TEMPORARY TABLE IF EXISTS ")
	b.quote(name)
}

// buildCreateIndex mysql 不支持 CREATE INDEX IF NOT EXISTS
func (m *mysqlDialect) buildCreateIndex(b *builder, index, table string, cols []string, ifNotExists bool) {
	m.standardSQL.buildCreateIndex(b, index, table, cols, false)
}

func (m *mysqlDialect) columnType(typ reflect.Type, key bool) (string, bool) {
	switch classify(typ) {
	case kindBool:
		return "BOOLEAN", true
	case kindInt16:
		return "SMALLINT", true
	case kindInt32:
		return "INT", true
	case kindInt64:
		return "BIGINT", true
	case kindFloat32:
		return "FLOAT", true
	case kindFloat64:
		return "DOUBLE", true
	case kindString:
		// TEXT 不能直接作为主键
		if key {
			return "VARCHAR(255)", true
		}
		return "LONGTEXT", true
	case kindBytes:
		if key {
			return "VARBINARY(255)", true
		}
		return "LONGBLOB", true
	case kindTime:
		return "DATETIME(6)", true
	case kindUUID:
		return "CHAR(36)", true
	}
	return "", false
}

func (m *mysqlDialect) errorCode(err error) string {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return strconv.Itoa(int(me.Number))
	}
	return ""
}

func (m *mysqlDialect) nativeInsert(sess Session, table string, cols []string) (*nativeInsert, bool) {
	if !m.loadData {
		return nil, false
	}
	name := "bulkops_" + uuid.NewString()
	b := newBuilder(m)
	b.sb.WriteString("LOAD DATA LOCAL INFILE 'Reader::")
	b.sb.WriteString(name)
	b.sb.WriteString("' INTO TABLE ")
	b.quote(table)
	b.sb.WriteString(` CHARACTER SET utf8mb4 FIELDS TERMINATED BY '\t' ESCAPED BY '\\' LINES TERMINATED BY '\n' (`)
	b.quoteColumns(cols)
	b.sb.WriteByte(')')
	query := b.sb.String()

	return &nativeInsert{
		query: query,
		run: func(ctx context.Context, src rowSource) (int64, error) {
			pr, pw := io.Pipe()
			mysql.RegisterReaderHandler(name, func() io.Reader { return pr })
			defer mysql.DeregisterReaderHandler(name)

			done := make(chan struct{})
			go func() {
				defer close(done)
				_ = pw.CloseWithError(writeLoadData(pw, src))
			}()
			res, err := sess.execContext(ctx, query)
			// 驱动提前失败的时候，让写入的 goroutine 退出
			_ = pr.Close()
			<-done
			if err != nil {
				return 0, err
			}
			return res.RowsAffected()
		},
	}, true
}

var loadDataEscaper = strings.NewReplacer(
	`\`, `\\`,
	"\t", `\t`,
	"\n", `\n`,
	"\r", `\r`,
	"\x00", `\0`,
)

// writeLoadData 按照 LOAD DATA 默认的格式写出每一行
// 字段用 \t 分隔，行用 \n 分隔，NULL 写成 \N
func writeLoadData(w io.Writer, src rowSource) error {
	var sb strings.Builder
	for {
		row, ok, err := src()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		sb.Reset()
		for i, val := range row {
			if i > 0 {
				sb.WriteByte('\t')
			}
			if err = writeLoadDataValue(&sb, val); err != nil {
				return err
			}
		}
		sb.WriteByte('\n')
		if _, err = io.WriteString(w, sb.String()); err != nil {
			return err
		}
	}
}

func writeLoadDataValue(sb *strings.Builder, val any) error {
	if v, ok := val.(driver.Valuer); ok {
		rv := reflect.ValueOf(val)
		if rv.Kind() == reflect.Ptr && rv.IsNil() {
			val = nil
		} else {
			dv, err := v.Value()
			if err != nil {
				return err
			}
			val = dv
		}
	}
	rv := reflect.ValueOf(val)
	for rv.IsValid() && rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			val = nil
			break
		}
		rv = rv.Elem()
		val = rv.Interface()
	}
	switch v := val.(type) {
	case nil:
		sb.WriteString(`\N`)
	case string:
		_, _ = loadDataEscaper.WriteString(sb, v)
	case []byte:
		if v == nil {
			sb.WriteString(`\N`)
			return nil
		}
		_, _ = loadDataEscaper.WriteString(sb, string(v))
	case bool:
		if v {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	case time.Time:
		// 和驱动发送参数的时候保持一致：零值写成 0000-00-00，其它的转换到 UTC
		if v.IsZero() {
			sb.WriteString("0000-00-00")
			return nil
		}
		sb.WriteString(v.UTC().Format("2006-01-02 15:04:05.999999"))
	case float32:
		sb.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	case float64:
		sb.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	default:
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			sb.WriteString(strconv.FormatInt(rv.Int(), 10))
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			sb.WriteString(strconv.FormatUint(rv.Uint(), 10))
		case reflect.String:
			_, _ = loadDataEscaper.WriteString(sb, rv.String())
		case reflect.Bool:
			return writeLoadDataValue(sb, rv.Bool())
		default:
			return fmt.Errorf("orm: LOAD DATA 不支持的值类型 %T", val)
		}
	}
	return nil
}
