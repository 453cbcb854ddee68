package recover

import (
	"context"
	"fmt"

	"github.com/coderi421/bulkops/orm"
)

// MiddlewareBuilder 把执行过程中的 panic 转换成错误
// 例如 Converter 里面的 panic。事务由批量操作自己回滚
type MiddlewareBuilder struct {
	LogFunc func(qc *orm.QueryContext, err any)
}

func (m MiddlewareBuilder) Build() orm.Middleware {
	return func(next orm.Handler) orm.Handler {
		return func(ctx context.Context, qc *orm.QueryContext) (res *orm.QueryResult) {
			defer func() {
				if err := recover(); err != nil {
					res = &orm.QueryResult{Err: fmt.Errorf("orm: %s %s 发生 panic: %v", qc.Type, qc.Table, err)}
					// 万一 LogFunc 也panic，那我们也无能为力了
					if m.LogFunc != nil {
						m.LogFunc(qc, err)
					}
				}
			}()
			return next(ctx, qc)
		}
	}
}
