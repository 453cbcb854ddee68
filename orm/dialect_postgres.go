package orm

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
)

// errNotPgx 连接不是 pgx 驱动的，用不了 COPY
var errNotPgx = errors.New("orm: 底层连接不是 pgx")

type postgresDialect struct {
	standardSQL
}

func (p *postgresDialect) Name() string {
	return "postgres"
}

func (p *postgresDialect) quoter() byte {
	return '"'
}

func (p *postgresDialect) placeholder(sb *strings.Builder, n int) {
	sb.WriteByte('$')
	sb.WriteString(strconv.Itoa(n))
}

func (p *postgresDialect) nullSafeEqual() string {
	return "IS NOT DISTINCT FROM"
}

func (p *postgresDialect) buildUpsert(b *builder, u *upsert) error {
	b.sb.WriteString(" ON CONFLICT (")
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
		b.sb.WriteString("=EXCLUDED.")
		b.quote(col)
	}
	return nil
}

// buildTruncate postgres 的 TRUNCATE 是事务性的
func (p *postgresDialect) buildTruncate(b *builder, table string, inTx bool) {
	b.sb.WriteString("TRUNCATE TABLE ")
	b.quote(table)
}

func (p *postgresDialect) buildDropTempTable(b *builder, name string) {
	b.sb.WriteString("DROP TABLE IF EXISTS pg_temp.")
	b.quote(name)
}

func (p *postgresDialect) columnType(typ reflect.Type, key bool) (string, bool) {
	switch classify(typ) {
	case kindBool:
		return "BOOLEAN", true
	case kindInt16:
		return "SMALLINT", true
	case kindInt32:
		return "INTEGER", true
	case kindInt64:
		return "BIGINT", true
	case kindFloat32:
		return "REAL", true
	case kindFloat64:
		return "DOUBLE PRECISION", true
	case kindString:
		return "TEXT", true
	case kindBytes:
		return "BYTEA", true
	case kindTime:
		return "TIMESTAMPTZ", true
	case kindUUID:
		return "UUID", true
	}
	return "", false
}

func (p *postgresDialect) errorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// nativeInsert 使用 COPY FROM STDIN
// 事务里面拿不到底层连接，退化成多行 INSERT
func (p *postgresDialect) nativeInsert(sess Session, table string, cols []string) (*nativeInsert, bool) {
	rc, ok := unwrapSession(sess).(rawConner)
	if !ok {
		return nil, false
	}
	b := newBuilder(p)
	b.sb.WriteString("COPY ")
	b.quote(table)
	b.sb.WriteString(" (")
	b.quoteColumns(cols)
	b.sb.WriteString(") FROM STDIN")

	return &nativeInsert{
		query: b.sb.String(),
		run: func(ctx context.Context, src rowSource) (int64, error) {
			var n int64
			err := rc.raw(ctx, func(driverConn any) error {
				c, ok := driverConn.(*stdlib.Conn)
				if !ok {
					return errNotPgx
				}
				var err error
				n, err = c.Conn().CopyFrom(ctx, pgx.Identifier{table}, cols, pgx.CopyFromFunc(func() ([]any, error) {
					row, ok, err := src()
					if err != nil || !ok {
						return nil, err
					}
					return row, nil
				}))
				return err
			})
			return n, err
		},
	}, true
}
