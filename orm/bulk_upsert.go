package orm

import (
	"context"
	"iter"
	"slices"

	"github.com/coderi421/bulkops/orm/internal/errs"
	"github.com/coderi421/bulkops/orm/model"
)

// BulkUpserter 插入或者更新，每一批数据是一条语句，冲突由数据库处理
// 匹配列上必须有主键或者唯一索引
type BulkUpserter[T any] struct {
	core
	sess Session
	opts BulkInsertOrUpdateOptions
	err  error
}

func NewBulkUpserter[T any](sess Session) *BulkUpserter[T] {
	if sess == nil {
		return &BulkUpserter[T]{err: errs.ErrNilSession}
	}
	return &BulkUpserter[T]{
		core: sess.getCore(),
		sess: sess,
	}
}

func (u *BulkUpserter[T]) Options(opts BulkInsertOrUpdateOptions) *BulkUpserter[T] {
	opts.PropertiesToInsert = slices.Clone(opts.PropertiesToInsert)
	opts.PropertiesToUpdate = slices.Clone(opts.PropertiesToUpdate)
	opts.PropertiesToMatchOn = slices.Clone(opts.PropertiesToMatchOn)
	u.opts = opts
	return u
}

func (u *BulkUpserter[T]) Exec(ctx context.Context, entities []*T) Result {
	if entities == nil {
		return Result{err: errs.ErrNilEntities}
	}
	if slices.Contains(entities, nil) {
		return Result{err: errs.ErrNilEntity}
	}
	return bulkResult(u.exec(ctx, sliceNext(entities)))
}

func (u *BulkUpserter[T]) ExecSeq(ctx context.Context, seq iter.Seq[*T]) Result {
	if seq == nil {
		return Result{err: errs.ErrNilEntities}
	}
	next, stop := pullNext(seq)
	defer stop()
	return bulkResult(u.exec(ctx, next))
}

func (u *BulkUpserter[T]) exec(ctx context.Context, next func() (*T, bool)) (int64, error) {
	if u.err != nil {
		return 0, u.err
	}
	w, fields, err := u.plan()
	if err != nil {
		return 0, err
	}
	ctx, cancel := withTimeout(ctx, u.opts.Timeout)
	defer cancel()
	src := entityRows(u.shadow, gettersOf(u.core, w.model, fields), next)
	return u.execBulkWrite(ctx, u.sess, w, src)
}

func (u *BulkUpserter[T]) plan() (bulkWrite, []*model.Field, error) {
	m, err := u.r.Get(new(T))
	if err != nil {
		return bulkWrite{}, nil, err
	}
	if m.Temp {
		return bulkWrite{}, nil, errs.NewErrNotRealTable(m.TableName)
	}
	match, err := resolveProperties(m, u.opts.PropertiesToMatchOn, roleMatch, nil)
	if err != nil {
		return bulkWrite{}, nil, err
	}
	insert, err := resolveProperties(m, u.opts.PropertiesToInsert, roleInsert, nil)
	if err != nil {
		return bulkWrite{}, nil, err
	}
	if fd, ok := containsAll(insert, match); !ok {
		return bulkWrite{}, nil, errs.NewConfigurationError("orm: 匹配列 %s 必须包含在插入列里", fd.GoName)
	}
	update, err := resolveProperties(m, u.opts.PropertiesToUpdate, roleUpdate, match)
	if err != nil {
		return bulkWrite{}, nil, err
	}
	// 冲突时更新列取的是 VALUES 里面的值，所以更新列也要写进 VALUES
	values := unionFields(insert, update)
	return bulkWrite{
		op:      TypeBulkUpsert,
		table:   m.TableName,
		model:   m,
		columns: columnNames(values),
		upsert: &upsert{
			conflictColumns: columnNames(match),
			updateColumns:   columnNames(update),
		},
		batchSize: batchSizeOf(u.opts.BatchSize),
	}, values, nil
}

// BulkInsertOrUpdate 已经存在的行更新，不存在的插入，返回数据库报告的影响行数
func BulkInsertOrUpdate[T any](ctx context.Context, sess Session, entities []*T, opts BulkInsertOrUpdateOptions) (int64, error) {
	return NewBulkUpserter[T](sess).Options(opts).Exec(ctx, entities).RowsAffected()
}
