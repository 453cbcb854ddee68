package orm

import (
	"context"
	"errors"

	"github.com/coderi421/bulkops/orm/internal/errs"
	"github.com/coderi421/bulkops/orm/model"
)

// bulkWrite 批量插入和 upsert 共用的执行计划
type bulkWrite struct {
	op      string
	table   string
	model   *model.Model
	columns []string
	upsert  *upsert
	// batchSize 每条语句的最大行数
	batchSize int
	// temp 写入的是临时表
	temp bool
}

// execBulkWrite 先尝试数据库自带的批量导入，用不了就退化成分批的多行 INSERT
// 多条语句放在同一个事务里面
func (c core) execBulkWrite(ctx context.Context, sess Session, w bulkWrite, src rowSource) (int64, error) {
	src, ok, err := src.peek()
	if err != nil || !ok {
		return 0, err
	}

	if w.upsert == nil {
		if ni, ok := c.dialect.(nativeInserter); ok {
			if native, ok := ni.nativeInsert(sess, w.table, w.columns); ok {
				n, err := c.execNative(ctx, w, native, src)
				if !errors.Is(err, errNotPgx) {
					return n, err
				}
			}
		}
	}

	var total int64
	err = runInTx(ctx, sess, func(sess Session) error {
		var err error
		total, err = c.execBatches(ctx, sess, w, src)
		return err
	})
	return total, err
}

func (c core) execNative(ctx context.Context, w bulkWrite, native *nativeInsert, src rowSource) (int64, error) {
	var root Handler = func(ctx context.Context, qc *QueryContext) *QueryResult {
		n, err := native.run(ctx, src)
		return &QueryResult{
			Result: affectedRows(n),
			Err:    wrapExecErr(c.dialect, qc.Type, qc.Table, native.query, err),
		}
	}
	res := c.chain(root)(ctx, &QueryContext{
		Type:    w.op,
		Builder:   &staticQuery{SQL: native.query},
		Model:     w.model,
		Table:     w.table,
		TempTable: w.temp,
	})
	return rowsAffected(res)
}

func (c core) execBatches(ctx context.Context, sess Session, w bulkWrite, src rowSource) (int64, error) {
	width := len(w.columns)
	if width == 0 {
		return 0, errs.NewConfigurationError("orm: %s 没有可以写入的列", w.table)
	}
	perStmt := min(w.batchSize, c.dialect.maxParams()/width)
	if perStmt < 1 {
		return 0, errs.NewConfigurationError("orm: %s 的列数超过了单条语句的参数上限", w.table)
	}

	var total int64
	for {
		args := make([]any, 0, perStmt*width)
		rows := 0
		for rows < perStmt {
			row, ok, err := src()
			if err != nil {
				return total, err
			}
			if !ok {
				break
			}
			args = append(args, row...)
			rows++
		}
		if rows == 0 {
			return total, nil
		}

		query, err := c.insertSQL(w, rows)
		if err != nil {
			return total, err
		}
		res := exec(ctx, sess, c, &QueryContext{
			Type:    w.op,
			Builder:   &staticQuery{SQL: query, Args: args},
			Model:     w.model,
			Table:     w.table,
			TempTable: w.temp,
		})
		n, err := rowsAffected(res)
		total += n
		if err != nil {
			return total, err
		}
		if rows < perStmt {
			return total, nil
		}
	}
}

func (c core) insertSQL(w bulkWrite, rows int) (string, error) {
	stmt := &insertStatement{
		builder: newBuilder(c.dialect),
		table:   w.table,
		columns: w.columns,
		rows:    rows,
		upsert:  w.upsert,
	}
	return c.cachedSQL(stmt.cacheKey(w.op), func() (string, error) {
		q, err := stmt.Build()
		if err != nil {
			return "", err
		}
		return q.SQL, nil
	})
}

func rowsAffected(res *QueryResult) (int64, error) {
	if res.Err != nil {
		return 0, res.Err
	}
	r := execResult(res)
	return r.RowsAffected()
}
