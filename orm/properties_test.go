package orm

import (
	"testing"

	"github.com/coderi421/bulkops/orm/internal/errs"
	"github.com/coderi421/bulkops/orm/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProps(t *testing.T) {
	assert.Equal(t, Properties{"Name", "Id"}, Props("Name", "Id", "Name"))
	assert.NotNil(t, Props())
	assert.Empty(t, Props())
}

func TestResolveProperties(t *testing.T) {
	type Order struct {
		Id      int64
		Sku     string
		Total   int `orm:"computed=true"`
		Comment string
	}
	m, err := model.NewRegistry().Get(&Order{})
	require.NoError(t, err)
	fd := func(names ...string) []*model.Field {
		res := make([]*model.Field, 0, len(names))
		for _, n := range names {
			res = append(res, m.FieldMap[n])
		}
		return res
	}

	testCases := []struct {
		name    string
		props   Properties
		role    propertyRole
		exclude []*model.Field
		want    []*model.Field
		wantErr error
	}{
		{
			name: "default insert skips computed",
			role: roleInsert,
			want: fd("Id", "Sku", "Comment"),
		},
		{
			name:    "default update skips match",
			role:    roleUpdate,
			exclude: fd("Sku"),
			want:    fd("Id", "Comment"),
		},
		{
			name: "default match is primary key",
			role: roleMatch,
			want: fd("Id"),
		},
		{
			name:  "explicit keeps order and removes duplicates",
			props: Properties{"Comment", "Sku", "Comment"},
			role:  roleInsert,
			want:  fd("Comment", "Sku"),
		},
		{
			// 显式指定的更新列不会去掉匹配列
			name:    "explicit update may include match",
			props:   Props("Sku"),
			role:    roleUpdate,
			exclude: fd("Sku"),
			want:    fd("Sku"),
		},
		{
			name:  "computed can be matched",
			props: Props("Total"),
			role:  roleMatch,
			want:  fd("Total"),
		},
		{
			name:    "computed can not be updated",
			props:   Props("Total"),
			role:    roleUpdate,
			wantErr: errs.NewErrNotInsertable("Total"),
		},
		{
			name:    "empty match",
			props:   Props(),
			role:    roleMatch,
			wantErr: errs.ErrEmptyMatchSet,
		},
		{
			name:    "empty insert",
			props:   Props(),
			role:    roleInsert,
			wantErr: errs.NewConfigurationError("orm: %s 的 %s 字段不能为空", "order", roleInsert),
		},
		{
			name:    "unknown",
			props:   Props("sku"),
			role:    roleInsert,
			wantErr: errs.NewErrUnknownField("sku"),
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := resolveProperties(m, tc.props, tc.role, tc.exclude)
			assert.Equal(t, tc.wantErr, err)
			if err != nil {
				return
			}
			assert.Equal(t, tc.want, res)
		})
	}
}

func TestContainsAll(t *testing.T) {
	m, err := model.NewRegistry().Get(&Product{})
	require.NoError(t, err)
	id, name := m.FieldMap["Id"], m.FieldMap["Name"]

	_, ok := containsAll([]*model.Field{id, name}, []*model.Field{name})
	assert.True(t, ok)
	missing, ok := containsAll([]*model.Field{name}, []*model.Field{id})
	assert.False(t, ok)
	assert.Same(t, id, missing)
}

func TestUnionFields(t *testing.T) {
	m, err := model.NewRegistry().Get(&Product{})
	require.NoError(t, err)
	id, name, note := m.FieldMap["Id"], m.FieldMap["Name"], m.FieldMap["Note"]

	res := unionFields([]*model.Field{id, name}, []*model.Field{name, note})
	assert.Equal(t, []*model.Field{id, name, note}, res)
}
