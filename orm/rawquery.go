package orm

import (
	"context"
)

// RawQuerier 执行原生 SQL，结果集按照 T 的映射关系读取
// 例如临时表和普通表的 JOIN
type RawQuerier[T any] struct {
	core
	sess Session
	sql  string
	args []any
}

// RawQuery 创建一个 RawQuerier 实例
// 泛型参数 T 是目标类型。
// 例如，如果查询 User 的数据，那么 T 就是 User
func RawQuery[T any](sess Session, query string, args ...any) *RawQuerier[T] {
	return &RawQuerier[T]{
		core: sess.getCore(),
		sess: sess,
		sql:  query,
		args: args,
	}
}

func (r *RawQuerier[T]) Build() (*Query, error) {
	return &Query{
		SQL:  r.sql,
		Args: r.args,
	}, nil
}

func (r *RawQuerier[T]) Exec(ctx context.Context) Result {
	m, err := r.r.Get(new(T))
	if err != nil {
		return Result{err: err}
	}
	return execResult(exec(ctx, r.sess, r.core, &QueryContext{
		Type:    TypeRaw,
		Builder: r,
		Model:   m,
		Table:   m.TableName,
	}))
}

func (r *RawQuerier[T]) Get(ctx context.Context) (*T, error) {
	// 获取 model 在中间件中使用
	m, err := r.r.Get(new(T))
	if err != nil {
		return nil, err
	}
	res := get[T](ctx, r.core, r.sess, &QueryContext{
		Type:    TypeRaw,
		Builder: r,
		Model:   m,
		Table:   m.TableName,
	})
	if res.Result != nil {
		return res.Result.(*T), res.Err
	}
	return nil, res.Err
}

func (r *RawQuerier[T]) GetMulti(ctx context.Context) ([]*T, error) {
	m, err := r.r.Get(new(T))
	if err != nil {
		return nil, err
	}
	res := getMulti[T](ctx, r.core, r.sess, &QueryContext{
		Type:    TypeRaw,
		Builder: r,
		Model:   m,
		Table:   m.TableName,
	})
	if res.Err != nil {
		return nil, res.Err
	}
	return res.Result.([]*T), nil
}
