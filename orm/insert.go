package orm

import (
	"strconv"
	"strings"

	"github.com/coderi421/bulkops/orm/internal/errs"
)

// insertStatement 一批多行的 INSERT 语句，只拼占位符，参数由调用者按行填充
// INSERT INTO `t` (`a`,`b`) VALUES (?,?),(?,?)
type insertStatement struct {
	builder
	table   string
	columns []string
	rows    int
	// upsert 不为 nil 的时候追加冲突处理
	upsert *upsert
}

func (i *insertStatement) Build() (*Query, error) {
	if i.rows == 0 {
		return nil, errs.ErrInsertZeroRow
	}
	i.sb.WriteString("INSERT INTO ")
	i.quote(i.table)
	i.sb.WriteString(" (")
	i.quoteColumns(i.columns)
	i.sb.WriteString(") VALUES ")
	for r := 0; r < i.rows; r++ {
		// 构建 VALUES (?,?,?), (?,?,?)
		if r > 0 {
			i.sb.WriteByte(',')
		}
		i.paramGroup(len(i.columns))
	}
	if i.upsert != nil {
		if err := i.dialect.buildUpsert(&i.builder, i.upsert); err != nil {
			return nil, err
		}
	}
	return &Query{SQL: i.sb.String()}, nil
}

// cacheKey 同一个 key 拼出来的 SQL 一定相同
func (i *insertStatement) cacheKey(op string) string {
	var sb strings.Builder
	sb.WriteString(i.dialect.Name())
	sb.WriteByte('|')
	sb.WriteString(op)
	sb.WriteByte('|')
	sb.WriteString(i.table)
	sb.WriteByte('|')
	sb.WriteString(strings.Join(i.columns, ","))
	sb.WriteByte('|')
	sb.WriteString(strconv.Itoa(i.rows))
	if i.upsert != nil {
		sb.WriteString("|on:")
		sb.WriteString(strings.Join(i.upsert.conflictColumns, ","))
		sb.WriteString("|set:")
		sb.WriteString(strings.Join(i.upsert.updateColumns, ","))
	}
	return sb.String()
}
