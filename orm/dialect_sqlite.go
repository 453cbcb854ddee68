package orm

import (
	"errors"
	"reflect"
	"strconv"

	"github.com/mattn/go-sqlite3"
)

type sqlite3Dialect struct {
	standardSQL
}

func (s *sqlite3Dialect) Name() string {
	return "sqlite3"
}

func (s *sqlite3Dialect) quoter() byte {
	return '`'
}

// maxParams 老版本的 SQLITE_MAX_VARIABLE_NUMBER 是 999
func (s *sqlite3Dialect) maxParams() int {
	return 999
}

func (s *sqlite3Dialect) nullSafeEqual() string {
	return "IS"
}

func (s *sqlite3Dialect) buildUpsert(b *builder, u *upsert) error {
	b.sb.WriteString(" ON CONFLICT(")
	b.quoteColumns(u.conflictColumns)
	b.sb.WriteByte(')')
	if len(u.updateColumns) == 0 {
		b.sb.WriteString(" DO NOTHING")
		return nil
	}
	b.sb.WriteString(" DO UPDATE SET ")
	for idx, col := range u.updateColumns {
		if idx > 0 {
			b.sb.WriteByte(',')
		}
		b.quote(col)
		b.sb.WriteString("=excluded.")
		b.quote(col)
	}
	return nil
}

// buildTruncate sqlite 没有 TRUNCATE，DELETE 不带 WHERE 会走 truncate optimization
func (s *sqlite3Dialect) buildTruncate(b *builder, table string, inTx bool) {
	b.sb.WriteString("DELETE FROM ")
	b.quote(table)
}

func (s *sqlite3Dialect) buildDropTempTable(b *builder, name string) {
	// 限定 temp，不会误删同名的普通表
	b.sb.WriteString("DROP TABLE IF EXISTS temp.")
	b.quote(name)
}

func (s *sqlite3Dialect) columnType(typ reflect.Type, key bool) (string, bool) {
	switch classify(typ) {
	case kindBool, kindInt16, kindInt32, kindInt64:
		return "INTEGER", true
	case kindFloat32, kindFloat64:
		return "REAL", true
	case kindString, kindUUID:
		return "TEXT", true
	case kindBytes:
		return "BLOB", true
	case kindTime:
		return "DATETIME", true
	}
	return "", false
}

func (s *sqlite3Dialect) errorCode(err error) string {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return strconv.Itoa(int(se.ExtendedCode))
	}
	return ""
}
