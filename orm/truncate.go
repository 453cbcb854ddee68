package orm

import (
	"context"

	"github.com/coderi421/bulkops/orm/internal/errs"
)

// Truncate 清空 T 对应的表，保留表结构
// 只用作临时表结构的类型会返回 ConfigurationError
func Truncate[T any](ctx context.Context, sess Session) error {
	if sess == nil {
		return errs.ErrNilSession
	}
	c := sess.getCore()
	m, err := c.r.Get(new(T))
	if err != nil {
		return err
	}
	if m.Temp {
		return errs.NewErrNotRealTable(m.TableName)
	}

	b := newBuilder(c.dialect)
	c.dialect.buildTruncate(&b, m.TableName, inTx(sess))
	return exec(ctx, sess, c, &QueryContext{
		Type:    TypeTruncate,
		Builder: &staticQuery{SQL: b.sb.String()},
		Model:   m,
		Table:   m.TableName,
	}).Err
}
