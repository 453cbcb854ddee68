package orm

import (
	"context"
	"iter"
	"slices"

	"github.com/coderi421/bulkops/orm/internal/errs"
	"github.com/coderi421/bulkops/orm/internal/valuer"
	"github.com/coderi421/bulkops/orm/model"
	"github.com/gotomicro/ekit/slice"
)

// BulkInserter 批量插入，不会回写自增主键之类的值
type BulkInserter[T any] struct {
	core
	sess Session
	opts BulkInsertOptions
	// table 不为空的时候写入这张表，临时表使用
	table string
	err   error
}

func NewBulkInserter[T any](sess Session) *BulkInserter[T] {
	if sess == nil {
		return &BulkInserter[T]{err: errs.ErrNilSession}
	}
	return &BulkInserter[T]{
		core: sess.getCore(),
		sess: sess,
	}
}

// Options 配置会被复制一份
func (i *BulkInserter[T]) Options(opts BulkInsertOptions) *BulkInserter[T] {
	opts.PropertiesToInsert = slices.Clone(opts.PropertiesToInsert)
	i.opts = opts
	return i
}

// Exec 空切片什么也不做，nil 或者存在 nil 元素会返回 ValidationError
func (i *BulkInserter[T]) Exec(ctx context.Context, entities []*T) Result {
	if entities == nil {
		return Result{err: errs.ErrNilEntities}
	}
	if slices.Contains(entities, nil) {
		return Result{err: errs.ErrNilEntity}
	}
	return bulkResult(i.exec(ctx, sliceNext(entities)))
}

// ExecSeq 按需从 seq 中读取实体，不会一次性把全部数据放在内存里
// seq 中间出现 nil 的时候，已经写入的批次会随着事务回滚
func (i *BulkInserter[T]) ExecSeq(ctx context.Context, seq iter.Seq[*T]) Result {
	if seq == nil {
		return Result{err: errs.ErrNilEntities}
	}
	next, stop := pullNext(seq)
	defer stop()
	return bulkResult(i.exec(ctx, next))
}

func (i *BulkInserter[T]) exec(ctx context.Context, next func() (*T, bool)) (int64, error) {
	if i.err != nil {
		return 0, i.err
	}
	w, fields, err := i.plan()
	if err != nil {
		return 0, err
	}
	ctx, cancel := withTimeout(ctx, i.opts.Timeout)
	defer cancel()
	src := entityRows(i.shadow, gettersOf(i.core, w.model, fields), next)
	return i.execBulkWrite(ctx, i.sess, w, src)
}

func (i *BulkInserter[T]) plan() (bulkWrite, []*model.Field, error) {
	m, err := i.r.Get(new(T))
	if err != nil {
		return bulkWrite{}, nil, err
	}
	table := i.table
	if table == "" {
		if m.Temp {
			return bulkWrite{}, nil, errs.NewErrNotRealTable(m.TableName)
		}
		table = m.TableName
	}
	fields, err := resolveProperties(m, i.opts.PropertiesToInsert, roleInsert, nil)
	if err != nil {
		return bulkWrite{}, nil, err
	}
	return bulkWrite{
		op:        TypeBulkInsert,
		table:     table,
		model:     m,
		columns:   columnNames(fields),
		batchSize: batchSizeOf(i.opts.BatchSize),
		temp:      i.table != "",
	}, fields, nil
}

func gettersOf(c core, m *model.Model, fields []*model.Field) []valuer.Getter {
	return slice.Map(fields, func(idx int, fd *model.Field) valuer.Getter {
		return c.getters.GetGetter(m, fd)
	})
}

// BulkInsert 批量插入 entities
func BulkInsert[T any](ctx context.Context, sess Session, entities []*T, opts BulkInsertOptions) error {
	return NewBulkInserter[T](sess).Options(opts).Exec(ctx, entities).Err()
}
