package prometheus

import (
	"context"
	"reflect"
	"testing"

	"github.com/coderi421/bulkops/orm"
	"github.com/coderi421/bulkops/orm/model"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type User struct {
	Id   int64
	Name string
}

func TestMiddlewareBuilder_Build(t *testing.T) {
	reg := prometheus.NewRegistry()
	builder := MiddlewareBuilder{
		Namespace:  "bulkops",
		Subsystem:  "orm",
		Name:       "query",
		Help:       "orm 执行时间",
		Registerer: reg,
	}
	db, err := orm.Open("sqlite3", "file:prometheus_build?cache=shared&mode=memory",
		orm.DBWithMiddlewares(builder.Build()))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	require.NoError(t, orm.RawQuery[User](db, "CREATE TABLE user (id INTEGER PRIMARY KEY, name TEXT)").Exec(ctx).Err())
	require.NoError(t, orm.BulkInsert(ctx, db, []*User{{Id: 1, Name: "Tom"}}, orm.BulkInsertOptions{}))
	_, err = orm.NewSelector[User](db).GetMulti(ctx)
	require.NoError(t, err)
	// 主键冲突
	require.Error(t, orm.BulkInsert(ctx, db, []*User{{Id: 1, Name: "Tom"}}, orm.BulkInsertOptions{}))

	// RAW, BULK_INSERT ok, SELECT, BULK_INSERT error
	n, err := testutil.GatherAndCount(reg, "bulkops_orm_query")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestMiddlewareBuilder_tempTableSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	builder := MiddlewareBuilder{
		Namespace:  "bulkops",
		Subsystem:  "orm",
		Name:       "temp",
		Help:       "orm 执行时间",
		Registerer: reg,
	}
	db, err := orm.Open("sqlite3", "file:prometheus_temp?cache=shared&mode=memory",
		orm.DBWithMiddlewares(builder.Build()))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	shape := orm.TempTableShape{
		Name: "pairs",
		Columns: []orm.TempTableColumn{
			{Name: "k", Type: reflect.TypeOf(int64(0))},
			{Name: "v", Type: reflect.TypeOf("")},
		},
	}
	for i := 0; i < 5; i++ {
		q, err := orm.BulkInsertRowsIntoTempTable(ctx, db, shape, [][]any{{int64(i), "v"}}, orm.TempTableInsertOptions{})
		require.NoError(t, err)
		_, err = q.Rows(ctx)
		require.NoError(t, err)
		_, err = q.Count(ctx)
		require.NoError(t, err)
		require.NoError(t, q.Release(ctx))
	}

	// TEMP_TABLE_CREATE, BULK_INSERT, SELECT, TEMP_TABLE_DROP，和临时表的个数无关
	n, err := testutil.GatherAndCount(reg, "bulkops_orm_temp")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestTableLabel(t *testing.T) {
	testCases := []struct {
		name string
		qc   *orm.QueryContext
		want string
	}{
		{
			name: "model",
			qc:   &orm.QueryContext{Type: orm.TypeBulkInsert, Table: "tmp_user_1", Model: &model.Model{TableName: "user"}},
			want: "user",
		},
		{
			name: "entity temp table",
			qc:   &orm.QueryContext{Type: orm.TypeBulkInsert, Table: "tmp_user_0a1b", Model: &model.Model{TableName: "user"}, TempTable: true},
			want: "temp_table",
		},
		{
			name: "shape temp table",
			qc:   &orm.QueryContext{Type: orm.TypeSelect, Table: "tmp_pairs_0a1b", TempTable: true},
			want: "temp_table",
		},
		{
			name: "table without model",
			qc:   &orm.QueryContext{Type: orm.TypeRaw, Table: "user"},
			want: "user",
		},
		{
			name: "unknown",
			qc:   &orm.QueryContext{Type: orm.TypeRaw},
			want: "unknown",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tableLabel(tc.qc))
		})
	}
}
