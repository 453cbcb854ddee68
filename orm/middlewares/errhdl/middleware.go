package errhdl

import (
	"context"
	"errors"
	"fmt"

	"github.com/coderi421/bulkops/orm"
)

// MiddlewareBuilder 按照数据库的错误码，把 ProviderExecutionError 转换成业务上的错误
// 原来的错误依旧可以通过 errors.As 拿到
type MiddlewareBuilder struct {
	// 这种设计只能映射固定的错误
	codes map[string]error
}

func NewMiddlewareBuilder() *MiddlewareBuilder {
	return &MiddlewareBuilder{
		codes: map[string]error{},
	}
}

// AddCode 注册错误码，例如 mysql 的 1062，postgres 的 23505
func (m *MiddlewareBuilder) AddCode(code string, err error) *MiddlewareBuilder {
	m.codes[code] = err
	return m
}

func (m *MiddlewareBuilder) Build() orm.Middleware {
	return func(next orm.Handler) orm.Handler {
		return func(ctx context.Context, qc *orm.QueryContext) *orm.QueryResult {
			res := next(ctx, qc)
			var pe *orm.ProviderExecutionError
			if res == nil || !errors.As(res.Err, &pe) {
				return res
			}
			if target, ok := m.codes[pe.Code]; ok {
				// 只修改 Err, 这样其他中间件还能继续操作
				res.Err = fmt.Errorf("%w: %w", target, res.Err)
			}
			return res
		}
	}
}
