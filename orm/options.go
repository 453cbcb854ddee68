package orm

import (
	"context"
	"time"
)

// defaultBatchSize 单条 INSERT 语句最多的行数，还会受到参数数量上限的约束
const defaultBatchSize = 1000

// BulkInsertOptions 批量插入的配置
// 操作开始之后，对配置的修改不会影响正在执行的操作
type BulkInsertOptions struct {
	// PropertiesToInsert 为 nil 的时候插入全部非计算列
	PropertiesToInsert Properties
	// BatchSize 每条语句的最大行数，0 使用默认值
	BatchSize int
	// Timeout 整个操作的超时时间，0 代表不额外设置超时
	Timeout time.Duration
}

type BulkUpdateOptions struct {
	// PropertiesToUpdate 为 nil 的时候更新除匹配列之外的全部非计算列
	PropertiesToUpdate Properties
	// PropertiesToMatchOn 为 nil 的时候使用主键
	PropertiesToMatchOn Properties
	Timeout             time.Duration
}

type BulkInsertOrUpdateOptions struct {
	PropertiesToInsert  Properties
	PropertiesToUpdate  Properties
	PropertiesToMatchOn Properties
	BatchSize           int
	Timeout             time.Duration
}

// PrimaryKeyCreation 临时表的主键
type PrimaryKeyCreation int

const (
	// PrimaryKeyEntityKey 使用实体的主键，没有主键就不建
	PrimaryKeyEntityKey PrimaryKeyCreation = iota
	PrimaryKeyNone
	// PrimaryKeyAllColumns 全部列组成主键
	PrimaryKeyAllColumns
)

type TempTableCreateOptions struct {
	// NameProvider 为 nil 的时候使用 UniqueTempTableNames
	NameProvider       TempTableNameProvider
	PrimaryKeyCreation PrimaryKeyCreation
	// Indexes 每一个元素是一个索引，使用字段名
	Indexes [][]string
	// TruncateIfExists 表已经存在的时候清空它，而不是报错
	TruncateIfExists bool
	// KeepOnRelease 释放的时候不删除表
	KeepOnRelease bool
}

type TempTableInsertOptions struct {
	TempTableCreateOptions
	BulkInsertOptions
}

func batchSizeOf(size int) int {
	if size <= 0 {
		return defaultBatchSize
	}
	return size
}

// withTimeout 0 代表不设置
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
