package orm

import (
	"context"
	"database/sql"

	"github.com/coderi421/bulkops/orm/internal/errs"
	"github.com/coderi421/bulkops/orm/internal/valuer"
	"github.com/coderi421/bulkops/orm/model"
	lru "github.com/hashicorp/golang-lru"
)

type core struct {
	dialect    Dialect
	r          model.Registry // 存储数据库表和 struct 映射关系的实例
	valCreator valuer.Creator // 与DB交互映射的实现
	getters    *valuer.GetterCache
	mdls       []Middleware
	logFunc    func(format string, args ...any)
	shadow     model.ShadowStore
	// stmts 缓存拼好的批量语句，key 里面带上了批次的行数
	stmts      *lru.Cache
	tempTables *tempTableTracker
}

// cachedSQL 相同的表、列、行数拼出来的语句是一样的
func (c core) cachedSQL(key string, build func() (string, error)) (string, error) {
	if c.stmts == nil {
		return build()
	}
	if q, ok := c.stmts.Get(key); ok {
		return q.(string), nil
	}
	q, err := build()
	if err != nil {
		return "", err
	}
	c.stmts.Add(key, q)
	return q, nil
}

// chain 按照注册的顺序，第一个中间件在最外层
func (c core) chain(root Handler) Handler {
	handler := root
	for j := len(c.mdls) - 1; j >= 0; j-- {
		handler = c.mdls[j](handler)
	}
	return handler
}

func exec(ctx context.Context, sess Session, c core, qc *QueryContext) *QueryResult {
	var root Handler = func(ctx context.Context, qc *QueryContext) *QueryResult {
		q, err := qc.Builder.Build()
		if err != nil {
			return &QueryResult{Err: err}
		}
		res, err := sess.execContext(ctx, q.SQL, q.Args...)
		return &QueryResult{
			Result: res,
			Err:    wrapExecErr(c.dialect, qc.Type, qc.Table, q.SQL, err),
		}
	}
	return c.chain(root)(ctx, qc)
}

// execResult 把 QueryResult 转换成 Result
func execResult(res *QueryResult) Result {
	if res.Result != nil {
		return Result{
			err: res.Err,
			res: res.Result.(sql.Result),
		}
	}
	return Result{err: res.Err}
}

func get[T any](ctx context.Context, c core, sess Session, qc *QueryContext) *QueryResult {
	var root Handler = func(ctx context.Context, qc *QueryContext) *QueryResult {
		q, err := qc.Builder.Build()
		if err != nil {
			return &QueryResult{Err: err}
		}
		rows, err := sess.queryContext(ctx, q.SQL, q.Args...)
		if err != nil {
			return &QueryResult{Err: wrapExecErr(c.dialect, qc.Type, qc.Table, q.SQL, err)}
		}
		defer func() { _ = rows.Close() }()

		if !rows.Next() {
			if err = rows.Err(); err != nil {
				return &QueryResult{Err: err}
			}
			return &QueryResult{Err: errs.ErrNoRows}
		}

		// 创建与 db table 对应的 *struct
		tp := new(T)
		val := c.valCreator(tp, qc.Model, c.shadow)
		// 使用存在映射关系的实体 val， 将 rows 中的数据 映射到 *struct[T] 中
		err = val.SetColumns(rows)
		return &QueryResult{Result: tp, Err: err}
	}
	return c.chain(root)(ctx, qc)
}

func getMulti[T any](ctx context.Context, c core, sess Session, qc *QueryContext) *QueryResult {
	var root Handler = func(ctx context.Context, qc *QueryContext) *QueryResult {
		q, err := qc.Builder.Build()
		if err != nil {
			return &QueryResult{Err: err}
		}
		rows, err := sess.queryContext(ctx, q.SQL, q.Args...)
		if err != nil {
			return &QueryResult{Err: wrapExecErr(c.dialect, qc.Type, qc.Table, q.SQL, err)}
		}
		defer func() { _ = rows.Close() }()

		res := make([]*T, 0, 16)
		for rows.Next() {
			tp := new(T)
			if err = c.valCreator(tp, qc.Model, c.shadow).SetColumns(rows); err != nil {
				return &QueryResult{Err: err}
			}
			res = append(res, tp)
		}
		return &QueryResult{Result: res, Err: rows.Err()}
	}
	return c.chain(root)(ctx, qc)
}
