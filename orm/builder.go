package orm

import (
	"strings"

	"github.com/coderi421/bulkops/orm/internal/errs"
	"github.com/coderi421/bulkops/orm/model"
)

type builder struct {
	sb    strings.Builder // sb is used to build the SQL query string.
	args  []any           // args holds the arguments for the query.
	model *model.Model    // model is the model associated with the selector.

	dialect Dialect
	quoter  byte
	// params 已经写出去的占位符数量，postgres 的 $n 需要
	params int
}

func newBuilder(d Dialect) builder {
	return builder{
		dialect: d,
		quoter:  d.quoter(),
	}
}

// buildPredicates builds the predicates for the given list of predicates.
func (b *builder) buildPredicates(ps []Predicate) error {
	// Take the first predicate as the starting node.
	p := ps[0]

	// Iterate through the remaining predicates.
	for i := 1; i < len(ps); i++ {
		// Merge multiple predicates using the `And` method.
		p = p.And(ps[i])
	}

	// Recursively process the where statement.
	return b.buildExpression(p)
}

// buildExpression builds the SQL query for the given expression.
// It takes an expression as input and recursively constructs the SQL query.
func (b *builder) buildExpression(e Expression) error {
	// Column 代表是列名，直接拼接列名
	// value 代表参数，加入参数列表
	// Predicate 代表一个查询条件：
	// 如果左边是一个 Predicate，那么加上括号
	// 递归构造左边
	// 构造操作符
	// 如果右边是一个 Predicate，那么加上括号
	if e == nil {
		return nil
	}

	switch expr := e.(type) {
	case Column:
		return b.buildColumn(expr)
	case value:
		b.param()
		b.addArgs(expr.val)
	case Aggregate:
		return b.buildAggregate(expr, false)
	case RawExpr:
		// 执行原生 sql 语句
		b.sb.WriteString(expr.raw)
		if len(expr.args) != 0 {
			// 原生表达式里面自己写了占位符
			b.params += len(expr.args)
			b.addArgs(expr.args...)
		}
	case Predicate:
		// 如果左边有复杂结构，则在最外边套一层括号
		_, lp := expr.left.(Predicate)
		if lp {
			b.sb.WriteByte('(')
		}
		if err := b.buildExpression(expr.left); err != nil {
			return err
		}
		if lp {
			b.sb.WriteByte(')')
		}

		if expr.op == "" {
			// 只有左边，例如 RawExpr.AsPredicate
			return nil
		}

		if expr.left != nil {
			b.sb.WriteByte(' ')
		}
		b.sb.WriteString(expr.op.String())
		b.sb.WriteByte(' ')

		_, rp := expr.right.(Predicate)
		if rp {
			b.sb.WriteByte('(')
		}
		if err := b.buildExpression(expr.right); err != nil {
			return err
		}
		if rp {
			b.sb.WriteByte(')')
		}
	default:
		return errs.NewErrUnsupportedExpressionType(expr)
	}

	return nil
}

// buildColumn 把字段名翻译成列名
func (b *builder) buildColumn(c Column) error {
	fd, ok := b.model.FieldMap[c.name]
	if !ok {
		return errs.NewErrUnknownField(c.name)
	}
	b.quote(fd.ColName)
	return nil
}

func (b *builder) buildAggregate(a Aggregate, useAlias bool) error {
	b.sb.WriteString(a.fn)
	b.sb.WriteByte('(')
	if a.arg == "*" {
		b.sb.WriteByte('*')
	} else if err := b.buildColumn(Column{name: a.arg}); err != nil {
		return err
	}
	b.sb.WriteByte(')')
	if useAlias {
		b.buildAs(a.alias)
	}
	return nil
}

func (b *builder) buildAs(alias string) {
	if alias == "" {
		return
	}
	b.sb.WriteString(" AS ")
	b.quote(alias)
}

func (b *builder) quote(name string) {
	b.sb.WriteByte(b.quoter)
	b.sb.WriteString(name)
	b.sb.WriteByte(b.quoter)
}

// quoteColumns `a`,`b`,`c`
func (b *builder) quoteColumns(cols []string) {
	for i, c := range cols {
		if i > 0 {
			b.sb.WriteByte(',')
		}
		b.quote(c)
	}
}

// param 写一个占位符，参数需要另外加
func (b *builder) param() {
	b.params++
	b.dialect.placeholder(&b.sb, b.params)
}

// paramGroup (?,?,?)
func (b *builder) paramGroup(n int) {
	b.sb.WriteByte('(')
	for i := 0; i < n; i++ {
		if i > 0 {
			b.sb.WriteByte(',')
		}
		b.param()
	}
	b.sb.WriteByte(')')
}

func (b *builder) addArgs(args ...any) {
	if b.args == nil {
		b.args = make([]any, 0, 8)
	}
	b.args = append(b.args, args...)
}
