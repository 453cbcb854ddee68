package orm

import (
	"iter"

	"github.com/coderi421/bulkops/orm/internal/errs"
	"github.com/coderi421/bulkops/orm/internal/valuer"
	"github.com/coderi421/bulkops/orm/model"
)

// rowSource 按行产出要写入的值，ok 为 false 表示没有更多数据
// 行是按需产出的，不会把全部输入物化到内存里
type rowSource func() (row []any, ok bool, err error)

// peek 先取出第一行，用来判断输入是否为空
// 返回的 rowSource 会重新产出第一行
func (src rowSource) peek() (rowSource, bool, error) {
	first, ok, err := src()
	if err != nil || !ok {
		return nil, false, err
	}
	replayed := false
	return func() ([]any, bool, error) {
		if !replayed {
			replayed = true
			return first, true, nil
		}
		return src()
	}, true, nil
}

// entityRows 把实体转换成行，每一列的值都经过 getter 读取
func entityRows[T any](store model.ShadowStore, getters []valuer.Getter, next func() (*T, bool)) rowSource {
	return func() ([]any, bool, error) {
		entity, ok := next()
		if !ok {
			return nil, false, nil
		}
		if entity == nil {
			return nil, false, errs.ErrNilEntity
		}
		row := make([]any, len(getters))
		for i, g := range getters {
			val, err := g(store, entity)
			if err != nil {
				return nil, false, err
			}
			row[i] = val
		}
		return row, true, nil
	}
}

// sliceNext 切片的迭代器
func sliceNext[T any](entities []*T) func() (*T, bool) {
	i := 0
	return func() (*T, bool) {
		if i >= len(entities) {
			return nil, false
		}
		e := entities[i]
		i++
		return e, true
	}
}

// pullNext 把 iter.Seq 转换成拉取的形式，用完必须调用 stop
func pullNext[T any](seq iter.Seq[*T]) (next func() (*T, bool), stop func()) {
	return iter.Pull(seq)
}

// rawRows 自定义结构临时表的行
func rawRows(rows [][]any, width int) rowSource {
	i := 0
	return func() ([]any, bool, error) {
		if i >= len(rows) {
			return nil, false, nil
		}
		row := rows[i]
		i++
		if len(row) != width {
			return nil, false, errs.NewValidationError("orm: 第 %d 行有 %d 个值，需要 %d 个", i, len(row), width)
		}
		return row, true, nil
	}
}
