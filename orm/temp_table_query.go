package orm

import (
	"context"
	"errors"
	"slices"

	"github.com/coderi421/bulkops/orm/internal/errs"
)

// TempTable1 一列值的临时表结构
type TempTable1[C1 any] struct {
	Column1 C1
}

func (*TempTable1[C1]) TableName() string { return "temp_table_1" }

func (*TempTable1[C1]) TempTable() bool { return true }

// TempTable2 两列值的临时表结构
type TempTable2[C1, C2 any] struct {
	Column1 C1
	Column2 C2
}

func (*TempTable2[C1, C2]) TableName() string { return "temp_table_2" }

func (*TempTable2[C1, C2]) TempTable() bool { return true }

// TempTableQuery 刚写入临时表的数据，临时表释放之后查询都会失败
type TempTableQuery[T any] struct {
	ref *TempTableReference
}

func (q *TempTableQuery[T]) Reference() *TempTableReference {
	return q.ref
}

// Selector 以临时表为 FROM 的查询，可以继续加 WHERE、ORDER BY 等
func (q *TempTableQuery[T]) Selector() *Selector[T] {
	b := newBuilder(q.ref.c.dialect)
	b.quote(q.ref.name)
	s := NewSelector[T](q.ref.Session()).From(b.sb.String())
	s.temp = true
	return s
}

func (q *TempTableQuery[T]) GetMulti(ctx context.Context) ([]*T, error) {
	return q.Selector().GetMulti(ctx)
}

func (q *TempTableQuery[T]) Count(ctx context.Context) (int64, error) {
	return countRows(ctx, q.ref)
}

func (q *TempTableQuery[T]) Release(ctx context.Context) error {
	return q.ref.Release(ctx)
}

// TempTableRowsQuery 自定义结构临时表上的查询，按照列的顺序返回每一行
type TempTableRowsQuery struct {
	ref     *TempTableReference
	columns []string
}

func (q *TempTableRowsQuery) Reference() *TempTableReference {
	return q.ref
}

func (q *TempTableRowsQuery) Columns() []string {
	return slices.Clone(q.columns)
}

func (q *TempTableRowsQuery) Rows(ctx context.Context) ([][]any, error) {
	c := q.ref.c
	b := newBuilder(c.dialect)
	b.sb.WriteString("SELECT ")
	b.quoteColumns(q.columns)
	b.sb.WriteString(" FROM ")
	b.quote(q.ref.name)

	sess := q.ref.Session()
	var root Handler = func(ctx context.Context, qc *QueryContext) *QueryResult {
		query, err := qc.Builder.Build()
		if err != nil {
			return &QueryResult{Err: err}
		}
		rows, err := sess.queryContext(ctx, query.SQL, query.Args...)
		if err != nil {
			return &QueryResult{Err: wrapExecErr(c.dialect, qc.Type, qc.Table, query.SQL, err)}
		}
		defer func() { _ = rows.Close() }()
		res := make([][]any, 0, 16)
		for rows.Next() {
			vals := make([]any, len(q.columns))
			ptrs := make([]any, len(q.columns))
			for i := range vals {
				ptrs[i] = &vals[i]
			}
			if err = rows.Scan(ptrs...); err != nil {
				return &QueryResult{Err: err}
			}
			res = append(res, vals)
		}
		return &QueryResult{Result: res, Err: rows.Err()}
	}
	res := c.chain(root)(ctx, &QueryContext{
		Type:    TypeSelect,
		Builder:   &staticQuery{SQL: b.sb.String()},
		Table:     q.ref.name,
		TempTable: true,
	})
	if res.Err != nil {
		return nil, res.Err
	}
	return res.Result.([][]any), nil
}

func (q *TempTableRowsQuery) Count(ctx context.Context) (int64, error) {
	return countRows(ctx, q.ref)
}

func (q *TempTableRowsQuery) Release(ctx context.Context) error {
	return q.ref.Release(ctx)
}

func countRows(ctx context.Context, ref *TempTableReference) (int64, error) {
	c := ref.c
	b := newBuilder(c.dialect)
	b.sb.WriteString("SELECT COUNT(*) FROM ")
	b.quote(ref.name)

	sess := ref.Session()
	var root Handler = func(ctx context.Context, qc *QueryContext) *QueryResult {
		query, err := qc.Builder.Build()
		if err != nil {
			return &QueryResult{Err: err}
		}
		rows, err := sess.queryContext(ctx, query.SQL, query.Args...)
		if err != nil {
			return &QueryResult{Err: wrapExecErr(c.dialect, qc.Type, qc.Table, query.SQL, err)}
		}
		defer func() { _ = rows.Close() }()
		if !rows.Next() {
			return &QueryResult{Err: errors.Join(errs.ErrNoRows, rows.Err())}
		}
		var n int64
		err = rows.Scan(&n)
		return &QueryResult{Result: n, Err: err}
	}
	res := c.chain(root)(ctx, &QueryContext{
		Type:    TypeSelect,
		Builder:   &staticQuery{SQL: b.sb.String()},
		Model:     ref.model,
		Table:     ref.name,
		TempTable: true,
	})
	if res.Err != nil {
		return 0, res.Err
	}
	return res.Result.(int64), nil
}

// insertIntoTempTable 建表之后写入，写入失败会释放临时表
func insertIntoTempTable[T any](ctx context.Context, sess Session, next func() (*T, bool), opts TempTableInsertOptions) (*TempTableQuery[T], error) {
	if sess == nil {
		return nil, errs.ErrNilSession
	}
	c := sess.getCore()
	m, err := c.r.Get(new(T))
	if err != nil {
		return nil, err
	}
	fields, err := resolveProperties(m, opts.PropertiesToInsert, roleInsert, nil)
	if err != nil {
		return nil, err
	}
	spec, err := entityTempSpec(c.dialect, m, fields, opts.TempTableCreateOptions)
	if err != nil {
		return nil, err
	}
	ref, err := createTempTable(ctx, sess, spec, opts.TempTableCreateOptions)
	if err != nil {
		return nil, err
	}

	inserter := NewBulkInserter[T](ref.Session()).Options(opts.BulkInsertOptions)
	inserter.table = ref.name
	if _, err = inserter.exec(ctx, next); err != nil {
		return nil, errors.Join(err, ref.Release(ctx))
	}
	ref.populated()
	return &TempTableQuery[T]{ref: ref}, nil
}

// BulkInsertIntoTempTable 把 entities 写入一张新的临时表，返回上面的查询
// 用完之后调用 Release
func BulkInsertIntoTempTable[T any](ctx context.Context, sess Session, entities []*T, opts TempTableInsertOptions) (*TempTableQuery[T], error) {
	if entities == nil {
		return nil, errs.ErrNilEntities
	}
	if slices.Contains(entities, nil) {
		return nil, errs.ErrNilEntity
	}
	return insertIntoTempTable(ctx, sess, sliceNext(entities), opts)
}

// BulkInsertValuesIntoTempTable 一列值的临时表，列名是 column1
func BulkInsertValuesIntoTempTable[C1 any](ctx context.Context, sess Session, values []C1, opts TempTableInsertOptions) (*TempTableQuery[TempTable1[C1]], error) {
	if values == nil {
		return nil, errs.ErrNilEntities
	}
	i := 0
	return insertIntoTempTable(ctx, sess, func() (*TempTable1[C1], bool) {
		if i >= len(values) {
			return nil, false
		}
		v := &TempTable1[C1]{Column1: values[i]}
		i++
		return v, true
	}, opts)
}

// BulkInsertValuesIntoTempTable2 两列值的临时表，列名是 column1 和 column2
func BulkInsertValuesIntoTempTable2[C1, C2 any](ctx context.Context, sess Session, values []TempTable2[C1, C2], opts TempTableInsertOptions) (*TempTableQuery[TempTable2[C1, C2]], error) {
	if values == nil {
		return nil, errs.ErrNilEntities
	}
	i := 0
	return insertIntoTempTable(ctx, sess, func() (*TempTable2[C1, C2], bool) {
		if i >= len(values) {
			return nil, false
		}
		v := &values[i]
		i++
		return v, true
	}, opts)
}

// BulkInsertRowsIntoTempTable 任意列数的临时表，每一行的值按照 shape.Columns 的顺序排列
func BulkInsertRowsIntoTempTable(ctx context.Context, sess Session, shape TempTableShape, rows [][]any, opts TempTableInsertOptions) (*TempTableRowsQuery, error) {
	if rows == nil {
		return nil, errs.ErrNilEntities
	}
	if sess == nil {
		return nil, errs.ErrNilSession
	}
	c := sess.getCore()
	spec, err := shapeTempSpec(c.dialect, shape, opts.TempTableCreateOptions)
	if err != nil {
		return nil, err
	}
	columns := spec.columnNames()
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, errs.NewValidationError("orm: 第 %d 行有 %d 个值，需要 %d 个", i+1, len(row), len(columns))
		}
	}
	ref, err := createTempTable(ctx, sess, spec, opts.TempTableCreateOptions)
	if err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, opts.Timeout)
	defer cancel()
	_, err = c.execBulkWrite(ctx, ref.Session(), bulkWrite{
		op:        TypeBulkInsert,
		table:     ref.name,
		columns:   columns,
		batchSize: batchSizeOf(opts.BatchSize),
		temp:      true,
	}, rawRows(rows, len(columns)))
	if err != nil {
		return nil, errors.Join(err, ref.Release(ctx))
	}
	ref.populated()
	return &TempTableRowsQuery{ref: ref, columns: columns}, nil
}
