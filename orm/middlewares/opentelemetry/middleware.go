package opentelemetry

import (
	"context"

	"github.com/coderi421/bulkops/orm"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/coderi421/bulkops/orm/middlewares/opentelemetry"

type MiddlewareBuilder struct {
	// Tracer 为 nil 的时候使用全局的 TracerProvider
	Tracer trace.Tracer
}

func (m MiddlewareBuilder) Build() orm.Middleware {
	tracer := m.Tracer
	if tracer == nil {
		// 创建 tracer 实例
		tracer = otel.GetTracerProvider().Tracer(instrumentationName)
	}
	return func(next orm.Handler) orm.Handler {
		return func(ctx context.Context, qc *orm.QueryContext) *orm.QueryResult {
			ctx, span := tracer.Start(ctx, qc.Type+" "+qc.Table, trace.WithSpanKind(trace.SpanKindClient))
			defer span.End()

			span.SetAttributes(
				attribute.String("component", "orm"),
				attribute.String("db.operation", qc.Type),
				attribute.String("db.table", qc.Table),
			)
			if qc.Model != nil {
				span.SetAttributes(attribute.String("db.model", qc.Model.TableName))
			}
			if q, err := qc.Builder.Build(); err == nil {
				span.SetAttributes(attribute.String("db.statement", q.SQL))
			}

			res := next(ctx, qc)
			if res.Err != nil {
				span.RecordError(res.Err)
				span.SetStatus(codes.Error, res.Err.Error())
			}
			return res
		}
	}
}
