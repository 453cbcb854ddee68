package querylog

import (
	"context"
	"log"

	"github.com/coderi421/bulkops/orm"
)

// MiddlewareBuilder 输出执行的 SQL 和参数
type MiddlewareBuilder struct {
	logFunc func(query string, args []any)
	// skipArgs 批量写入的参数可能非常多，可以只输出 SQL
	skipArgs bool
}

func NewBuilder() *MiddlewareBuilder {
	return &MiddlewareBuilder{}
}

// LogFunc 这里如果需要配置的参数比较多，可以使用 函数选项模式
func (m *MiddlewareBuilder) LogFunc(fn func(query string, args []any)) *MiddlewareBuilder {
	m.logFunc = fn
	return m
}

func (m *MiddlewareBuilder) SkipArgs() *MiddlewareBuilder {
	m.skipArgs = true
	return m
}

func (m *MiddlewareBuilder) Build() orm.Middleware {
	logFunc := m.logFunc
	if logFunc == nil {
		logFunc = func(query string, args []any) {
			log.Printf("sql: %s, args: %v", query, args)
		}
	}
	skipArgs := m.skipArgs
	return func(next orm.Handler) orm.Handler {
		return func(ctx context.Context, qc *orm.QueryContext) *orm.QueryResult {
			q, err := qc.Builder.Build()
			if err != nil {
				// 构造 SQL 失败，后面也执行不了
				return &orm.QueryResult{Err: err}
			}
			args := q.Args
			if skipArgs {
				args = nil
			}
			logFunc(q.SQL, args)
			return next(ctx, qc)
		}
	}
}
