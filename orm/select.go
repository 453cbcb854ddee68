package orm

import (
	"context"

	"github.com/coderi421/bulkops/orm/internal/errs"
)

// Selector represents a query selector that allows building SQL SELECT statements.
// It holds the necessary information to construct the query.
type Selector[T any] struct {
	// select delete 都需要使用
	builder
	core
	sess Session

	table   string      // table is the name of the table to select from.
	where   []Predicate // where holds the WHERE predicates for the query.
	having  []Predicate
	columns []Selectable
	groupBy []Column
	orderBy []OrderBy
	offset  int
	limit   int
	// temp table 是临时表
	temp bool
}

// NewSelector creates a new instance of Selector.
func NewSelector[T any](sess Session) *Selector[T] {
	return &Selector[T]{
		core: sess.getCore(),
		sess: sess,
	}
}

// Select 检索指定 column
func (s *Selector[T]) Select(cols ...Selectable) *Selector[T] {
	s.columns = cols
	return s
}

// From sets the table name for the selector.
// 这里不会处理引号，让用户自己知道自己在做什么
func (s *Selector[T]) From(tbl string) *Selector[T] {
	s.table = tbl
	return s
}

// Build generates a SQL query for selecting all columns from a table.
// It returns the generated query as a *Query struct or an error if there was any.
func (s *Selector[T]) Build() (*Query, error) {
	var err error
	// 中间件可能会提前调用 Build，每次都从头开始拼
	s.builder = newBuilder(s.core.dialect)
	s.model, err = s.r.Get(new(T))
	if err != nil {
		return nil, err
	}

	s.sb.WriteString("SELECT ")
	if err = s.buildColumns(); err != nil {
		return nil, err
	}
	s.sb.WriteString(" FROM ")

	if s.table == "" {
		s.quote(s.model.TableName)
	} else {
		s.sb.WriteString(s.table)
	}

	// construct where
	if len(s.where) > 0 {
		// 没有将 WHERE 也放到 buildPredicates 中，是因为可能有 HAVING 的情况
		s.sb.WriteString(" WHERE ")
		if err = s.buildPredicates(s.where); err != nil {
			return nil, err
		}
	}

	// 分组
	if len(s.groupBy) > 0 {
		s.sb.WriteString(" GROUP BY ")
		for i, c := range s.groupBy {
			if i > 0 {
				s.sb.WriteByte(',')
			}
			if err = s.buildColumn(c); err != nil {
				return nil, err
			}
		}
	}

	// 筛选
	if len(s.having) > 0 {
		s.sb.WriteString(" HAVING ")
		if err = s.buildPredicates(s.having); err != nil {
			return nil, err
		}
	}

	// 排序
	if len(s.orderBy) > 0 {
		s.sb.WriteString(" ORDER BY ")
		if err = s.buildOrderBy(); err != nil {
			return nil, err
		}
	}

	// 分页
	if s.limit > 0 {
		s.sb.WriteString(" LIMIT ")
		s.param()
		s.addArgs(s.limit)
	}

	// 偏移量
	if s.offset > 0 {
		s.sb.WriteString(" OFFSET ")
		s.param()
		s.addArgs(s.offset)
	}

	s.sb.WriteString(";")

	return &Query{
		SQL:  s.sb.String(),
		Args: s.args,
	}, nil
}

func (s *Selector[T]) buildColumns() error {
	if len(s.columns) == 0 {
		s.sb.WriteByte('*')
		return nil
	}

	for i, c := range s.columns {
		if i > 0 {
			s.sb.WriteByte(',')
		}

		switch val := c.(type) {
		case Column:
			if err := s.buildColumn(val); err != nil {
				return err
			}
			s.buildAs(val.alias)
		case Aggregate:
			if err := s.buildAggregate(val, true); err != nil {
				return err
			}
		case RawExpr:
			s.sb.WriteString(val.raw)
			if len(val.args) != 0 {
				s.params += len(val.args)
				s.addArgs(val.args...)
			}
		default:
			return errs.NewErrUnsupportedSelectable(c)
		}
	}

	return nil
}

func (s *Selector[T]) buildOrderBy() error {
	for i, ob := range s.orderBy {
		if i > 0 {
			s.sb.WriteByte(',')
		}
		if err := s.buildColumn(Column{name: ob.col}); err != nil {
			return err
		}
		s.sb.WriteByte(' ')
		s.sb.WriteString(ob.order)
	}
	return nil
}

// Where 用于构造 WHERE 查询条件。如果 ps 长度为 0，那么不会构造 WHERE 部分
func (s *Selector[T]) Where(ps ...Predicate) *Selector[T] {
	s.where = ps
	return s
}

func (s *Selector[T]) GroupBy(cols ...Column) *Selector[T] {
	s.groupBy = cols
	return s
}

func (s *Selector[T]) Having(ps ...Predicate) *Selector[T] {
	s.having = ps
	return s
}

func (s *Selector[T]) Offset(offset int) *Selector[T] {
	s.offset = offset
	return s
}

func (s *Selector[T]) Limit(limit int) *Selector[T] {
	s.limit = limit
	return s
}

func (s *Selector[T]) OrderBy(orderBys ...OrderBy) *Selector[T] {
	s.orderBy = orderBys
	return s
}

// Get 根据拼接成的 sql 文，到 db 中获取数据
func (s *Selector[T]) Get(ctx context.Context) (*T, error) {
	m, err := s.r.Get(new(T))
	if err != nil {
		return nil, err
	}
	res := get[T](ctx, s.core, s.sess, &QueryContext{
		Type:    TypeSelect,
		Builder:   s,
		Model:     m,
		Table:     s.tableName(m.TableName),
		TempTable: s.temp,
	})
	if res.Result != nil {
		return res.Result.(*T), res.Err
	}
	return nil, res.Err
}

func (s *Selector[T]) GetMulti(ctx context.Context) ([]*T, error) {
	m, err := s.r.Get(new(T))
	if err != nil {
		return nil, err
	}
	res := getMulti[T](ctx, s.core, s.sess, &QueryContext{
		Type:    TypeSelect,
		Builder:   s,
		Model:     m,
		Table:     s.tableName(m.TableName),
		TempTable: s.temp,
	})
	if res.Err != nil {
		return nil, res.Err
	}
	return res.Result.([]*T), nil
}

func (s *Selector[T]) tableName(def string) string {
	if s.table != "" {
		return s.table
	}
	return def
}

// Selectable 暂时没什么作用只是用作标记，可检索指定字段的标记
// 使用接口为的是：让 聚合函数， columns， 以及 RawExpr（原生sql） 都能作为参数传入统一个函数，做统一处理
type Selectable interface {
	selectable()
}

type OrderBy struct {
	col   string
	order string
}

func Asc(col string) OrderBy {
	return OrderBy{
		col:   col,
		order: "ASC",
	}
}

func Desc(col string) OrderBy {
	return OrderBy{
		col:   col,
		order: "DESC",
	}
}
