package orm

import (
	"context"
	"iter"
	"slices"
	"strings"

	"github.com/coderi421/bulkops/orm/internal/errs"
	"github.com/coderi421/bulkops/orm/model"
)

// updateStatement 单行的 UPDATE 语句，匹配列使用 NULL 安全的比较
// UPDATE `t` SET `a`=?,`b`=? WHERE `k` IS ?
type updateStatement struct {
	builder
	table string
	set   []string
	match []string
}

func (u *updateStatement) Build() (*Query, error) {
	if len(u.set) == 0 {
		return nil, errs.ErrNoUpdatedColumns
	}
	u.sb.WriteString("UPDATE ")
	u.quote(u.table)
	u.sb.WriteString(" SET ")
	for i, col := range u.set {
		if i > 0 {
			u.sb.WriteByte(',')
		}
		u.quote(col)
		u.sb.WriteByte('=')
		u.param()
	}
	u.sb.WriteString(" WHERE ")
	for i, col := range u.match {
		if i > 0 {
			u.sb.WriteString(" AND ")
		}
		u.quote(col)
		u.sb.WriteByte(' ')
		u.sb.WriteString(u.dialect.nullSafeEqual())
		u.sb.WriteByte(' ')
		u.param()
	}
	return &Query{SQL: u.sb.String()}, nil
}

// BulkUpdater 按照匹配列找到已有的行并覆盖更新列
// 每个实体执行一条 UPDATE，按照输入的顺序，在同一个事务里面
// 匹配列不唯一的时候，全部匹配的行都会被更新，后面的实体覆盖前面的
// 没有匹配到的实体会被跳过，不会插入
type BulkUpdater[T any] struct {
	core
	sess Session
	opts BulkUpdateOptions
	err  error
}

func NewBulkUpdater[T any](sess Session) *BulkUpdater[T] {
	if sess == nil {
		return &BulkUpdater[T]{err: errs.ErrNilSession}
	}
	return &BulkUpdater[T]{
		core: sess.getCore(),
		sess: sess,
	}
}

func (u *BulkUpdater[T]) Options(opts BulkUpdateOptions) *BulkUpdater[T] {
	opts.PropertiesToUpdate = slices.Clone(opts.PropertiesToUpdate)
	opts.PropertiesToMatchOn = slices.Clone(opts.PropertiesToMatchOn)
	u.opts = opts
	return u
}

// Exec 返回的 Result 里面是全部语句影响行数的总和
func (u *BulkUpdater[T]) Exec(ctx context.Context, entities []*T) Result {
	if entities == nil {
		return Result{err: errs.ErrNilEntities}
	}
	if slices.Contains(entities, nil) {
		return Result{err: errs.ErrNilEntity}
	}
	return bulkResult(u.exec(ctx, sliceNext(entities)))
}

func (u *BulkUpdater[T]) ExecSeq(ctx context.Context, seq iter.Seq[*T]) Result {
	if seq == nil {
		return Result{err: errs.ErrNilEntities}
	}
	next, stop := pullNext(seq)
	defer stop()
	return bulkResult(u.exec(ctx, next))
}

func (u *BulkUpdater[T]) exec(ctx context.Context, next func() (*T, bool)) (int64, error) {
	if u.err != nil {
		return 0, u.err
	}
	m, set, match, err := u.plan()
	if err != nil {
		return 0, err
	}

	// 先更新列，再匹配列，和占位符的顺序一致
	getters := gettersOf(u.core, m, append(slices.Clone(set), match...))
	src, ok, err := entityRows(u.shadow, getters, next).peek()
	if err != nil || !ok {
		return 0, err
	}

	stmt := &updateStatement{
		builder: newBuilder(u.dialect),
		table:   m.TableName,
		set:     columnNames(set),
		match:   columnNames(match),
	}
	key := u.dialect.Name() + "|" + TypeBulkUpdate + "|" + m.TableName + "|" +
		strings.Join(stmt.set, ",") + "|" + strings.Join(stmt.match, ",")
	query, err := u.cachedSQL(key, func() (string, error) {
		q, err := stmt.Build()
		if err != nil {
			return "", err
		}
		return q.SQL, nil
	})
	if err != nil {
		return 0, err
	}

	ctx, cancel := withTimeout(ctx, u.opts.Timeout)
	defer cancel()

	var root Handler = func(ctx context.Context, qc *QueryContext) *QueryResult {
		var total int64
		err := runInTx(ctx, u.sess, func(sess Session) error {
			ps, err := sess.prepareContext(ctx, query)
			if err != nil {
				return err
			}
			defer func() { _ = ps.Close() }()
			for {
				row, ok, err := src()
				if err != nil {
					return err
				}
				if !ok {
					return nil
				}
				res, err := ps.ExecContext(ctx, row...)
				if err != nil {
					return err
				}
				n, err := res.RowsAffected()
				if err != nil {
					return err
				}
				total += n
			}
		})
		return &QueryResult{
			Result: affectedRows(total),
			Err:    wrapExecErr(u.dialect, qc.Type, qc.Table, query, err),
		}
	}
	res := u.chain(root)(ctx, &QueryContext{
		Type:    TypeBulkUpdate,
		Builder: &staticQuery{SQL: query},
		Model:   m,
		Table:   m.TableName,
	})
	return rowsAffected(res)
}

func (u *BulkUpdater[T]) plan() (*model.Model, []*model.Field, []*model.Field, error) {
	m, err := u.r.Get(new(T))
	if err != nil {
		return nil, nil, nil, err
	}
	if m.Temp {
		return nil, nil, nil, errs.NewErrNotRealTable(m.TableName)
	}
	match, err := resolveProperties(m, u.opts.PropertiesToMatchOn, roleMatch, nil)
	if err != nil {
		return nil, nil, nil, err
	}
	set, err := resolveProperties(m, u.opts.PropertiesToUpdate, roleUpdate, match)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(set) == 0 {
		return nil, nil, nil, errs.ErrNoUpdatedColumns
	}
	return m, set, match, nil
}

// BulkUpdate 批量更新，返回影响的行数
func BulkUpdate[T any](ctx context.Context, sess Session, entities []*T, opts BulkUpdateOptions) (int64, error) {
	return NewBulkUpdater[T](sess).Options(opts).Exec(ctx, entities).RowsAffected()
}
