package orm

import (
	"context"

	"github.com/coderi421/bulkops/orm/model"
)

// 批量操作以及查询的类型，中间件里面用 QueryContext.Type 区分
const (
	TypeSelect          = "SELECT"
	TypeRaw             = "RAW"
	TypeBulkInsert      = "BULK_INSERT"
	TypeBulkUpdate      = "BULK_UPDATE"
	TypeBulkUpsert      = "BULK_UPSERT"
	TypeTruncate        = "TRUNCATE"
	TypeTempTableCreate = "TEMP_TABLE_CREATE"
	TypeTempTableDrop   = "TEMP_TABLE_DROP"
)

// QueryContext 中间件的上下文，冗余了 Builder model 等，是因为还没有执行 sql 前，有的中间件，需要使用这些信息
type QueryContext struct {
	// Type 声明查询类型。即 SELECT, BULK_INSERT, TRUNCATE 等
	Type string

	// builder 使用的时候，大多数情况下你需要转换到具体的类型
	// 才能篡改查询
	Builder QueryBuilder
	// Model 可能为 nil，例如按照自定义结构创建的临时表
	Model *model.Model
	// Table 实际操作的表，临时表的名字和 Model.TableName 不同
	Table string
	// TempTable Table 是临时表，名字每次都可能不一样
	TempTable bool
}

type QueryResult struct {
	// Result 在不同的查询里面，类型是不同的
	// Selector.Get 里面，这会是单个结果
	// Selector.GetMulti，这会是一个切片
	// 其它情况下，它会是 sql.Result 类型
	Result any
	Err    error
}

type Middleware func(next Handler) Handler

type Handler func(ctx context.Context, qc *QueryContext) *QueryResult
