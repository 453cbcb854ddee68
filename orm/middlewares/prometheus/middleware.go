package prometheus

import (
	"context"
	"time"

	"github.com/coderi421/bulkops/orm"
	"github.com/prometheus/client_golang/prometheus"
)

type MiddlewareBuilder struct {
	Namespace string
	Subsystem string
	Name      string
	Help      string
	// Registerer 为 nil 的时候使用 prometheus.DefaultRegisterer
	Registerer prometheus.Registerer
}

func (m MiddlewareBuilder) Build() orm.Middleware {
	vector := prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Name:      m.Name,
		Subsystem: m.Subsystem,
		Namespace: m.Namespace,
		Help:      m.Help,
		Objectives: map[float64]float64{
			0.5:   0.01,
			0.75:  0.01,
			0.90:  0.01,
			0.99:  0.001,  // 99 线
			0.999: 0.0001, // 999 线
		},
	}, []string{"type", "table", "status"})

	reg := m.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(vector)

	return func(next orm.Handler) orm.Handler {
		return func(ctx context.Context, qc *orm.QueryContext) (res *orm.QueryResult) {
			// 开始时间
			startTime := time.Now()
			// defer 算结束时间
			defer func() {
				duration := time.Since(startTime).Milliseconds()
				status := "ok"
				if res == nil || res.Err != nil {
					status = "error"
				}
				vector.WithLabelValues(qc.Type, tableLabel(qc), status).Observe(float64(duration))
			}()
			return next(ctx, qc)
		}
	}
}

// tableLabel 临时表每次的名字都不一样，统一使用 temp_table，避免标签无限增长
func tableLabel(qc *orm.QueryContext) string {
	switch {
	case qc.TempTable:
		return "temp_table"
	case qc.Model != nil:
		return qc.Model.TableName
	case qc.Table == "":
		return "unknown"
	}
	return qc.Table
}
