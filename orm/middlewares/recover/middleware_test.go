package recover

import (
	"context"
	"reflect"
	"testing"

	"github.com/coderi421/bulkops/orm"
	"github.com/coderi421/bulkops/orm/model"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type User struct {
	Id   int64
	Name string
}

func TestMiddlewareBuilder_Build(t *testing.T) {
	var recovered []any
	builder := MiddlewareBuilder{
		LogFunc: func(qc *orm.QueryContext, err any) {
			recovered = append(recovered, err)
		},
	}
	db, err := orm.Open("sqlite3", "file:recover_build?cache=shared&mode=memory",
		orm.DBWithMiddlewares(builder.Build()))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	// Getter 第一次使用的时候就缓存了，所以转换器要在使用之前注册
	_, err = db.Registry().Register(&User{}, model.WithConverter("Name", model.ConverterFuncs{
		To: func(val any) (any, error) {
			if val == "boom" {
				panic("发生panic 了")
			}
			return val, nil
		},
		Storage: reflect.TypeOf(""),
	}))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, orm.RawQuery[User](db, "CREATE TABLE user (id INTEGER PRIMARY KEY, name TEXT)").Exec(ctx).Err())
	require.NoError(t, orm.RawQuery[User](db, "INSERT INTO user (id, name) VALUES (1, 'Tom')").Exec(ctx).Err())

	// 第二个实体在事务里面才会被读取
	_, err = orm.BulkUpdate(ctx, db, []*User{{Id: 1, Name: "Jerry"}, {Id: 1, Name: "boom"}}, orm.BulkUpdateOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "发生panic 了")
	assert.Equal(t, []any{"发生panic 了"}, recovered)

	// 事务已经回滚，连接也还能用
	u, err := orm.NewSelector[User](db).Where(orm.C("Id").EQ(1)).Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Tom", u.Name)
}
