package orm

import (
	"slices"

	"github.com/coderi421/bulkops/orm/internal/errs"
	"github.com/coderi421/bulkops/orm/model"
	"github.com/gotomicro/ekit/slice"
)

// Properties 参与操作的字段，使用 go 结构体中的字段名
// nil 代表没有指定，使用默认值；空切片代表显式指定了空集合
type Properties []string

// Props 按照传入的顺序去重
func Props(names ...string) Properties {
	res := make(Properties, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		res = append(res, n)
	}
	return res
}

type propertyRole int

const (
	roleInsert propertyRole = iota
	roleUpdate
	roleMatch
)

func (r propertyRole) String() string {
	switch r {
	case roleInsert:
		return "insert"
	case roleUpdate:
		return "update"
	default:
		return "match"
	}
}

// resolveProperties 得到某个角色下，有序且不重复的字段
// 默认值：insert 是全部非计算列；update 是全部非计算列减去 exclude（匹配列）；match 是主键
func resolveProperties(m *model.Model, props Properties, role propertyRole, exclude []*model.Field) ([]*model.Field, error) {
	if props == nil {
		return defaultProperties(m, role, exclude)
	}
	if len(props) == 0 {
		if role == roleMatch {
			return nil, errs.ErrEmptyMatchSet
		}
		return nil, errs.NewConfigurationError("orm: %s 的 %s 字段不能为空", m.TableName, role)
	}

	res := make([]*model.Field, 0, len(props))
	seen := make(map[model.FieldID]struct{}, len(props))
	for _, name := range props {
		fd, ok := m.FieldMap[name]
		if !ok {
			return nil, errs.NewErrUnknownField(name)
		}
		if fd.Computed && role != roleMatch {
			return nil, errs.NewErrNotInsertable(name)
		}
		if _, ok = seen[fd.ID]; ok {
			continue
		}
		seen[fd.ID] = struct{}{}
		res = append(res, fd)
	}
	return res, nil
}

func defaultProperties(m *model.Model, role propertyRole, exclude []*model.Field) ([]*model.Field, error) {
	if role == roleMatch {
		if len(m.PrimaryKeys) == 0 {
			return nil, errs.NewErrNoPrimaryKey(m.TableName)
		}
		return m.PrimaryKeys, nil
	}

	excluded := make(map[model.FieldID]struct{}, len(exclude))
	if role == roleUpdate {
		for _, fd := range exclude {
			excluded[fd.ID] = struct{}{}
		}
	}
	res := make([]*model.Field, 0, len(m.Fields))
	for _, fd := range m.Fields {
		if fd.Computed {
			continue
		}
		if _, ok := excluded[fd.ID]; ok {
			continue
		}
		res = append(res, fd)
	}
	return res, nil
}

func columnNames(fields []*model.Field) []string {
	return slice.Map(fields, func(idx int, fd *model.Field) string {
		return fd.ColName
	})
}

// unionFields 保持 fields 的顺序，再追加 extra 里面没有出现过的字段
func unionFields(fields []*model.Field, extra []*model.Field) []*model.Field {
	res := make([]*model.Field, 0, len(fields)+len(extra))
	seen := make(map[model.FieldID]struct{}, len(fields)+len(extra))
	for _, fd := range slices.Concat(fields, extra) {
		if _, ok := seen[fd.ID]; ok {
			continue
		}
		seen[fd.ID] = struct{}{}
		res = append(res, fd)
	}
	return res
}

// containsAll 插入列必须包含匹配列，否则新插入的行没法再被找到
func containsAll(fields []*model.Field, sub []*model.Field) (*model.Field, bool) {
	set := make(map[model.FieldID]struct{}, len(fields))
	for _, fd := range fields {
		set[fd.ID] = struct{}{}
	}
	for _, fd := range sub {
		if _, ok := set[fd.ID]; !ok {
			return fd, false
		}
	}
	return nil, true
}
