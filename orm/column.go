package orm

// 只拼接 where 中的 一组条件

type Column struct {
	name  string
	alias string
}

func (c Column) expr() {}

func (c Column) selectable() {}

type value struct {
	val any
}

func (v value) expr() {}

// valueOf creates a new value object with the given value.
func valueOf(val any) value {
	return value{val: val}
}

// C 使用结构体中的字段名，而不是列名
func C(name string) Column {
	return Column{name: name}
}

// As 这里使用 值 作为接收者，每次都返回一个新的
func (c Column) As(alias string) Column {
	return Column{
		name:  c.name,
		alias: alias,
	}
}

// EQ 例如 C("id").Eq(12)
func (c Column) EQ(arg any) Predicate {
	return Predicate{
		left:  c,
		op:    opEQ,
		right: exprOf(arg), // 如果 arg 不是 Expression 类型 就让他变成这个类型
	}
}

// LT 例如 C("id").LT(12)
func (c Column) LT(arg any) Predicate {
	return Predicate{
		left:  c,
		op:    opLT,
		right: exprOf(arg),
	}
}

func (c Column) GT(arg any) Predicate {
	return Predicate{
		left:  c,
		op:    opGT,
		right: exprOf(arg),
	}
}
