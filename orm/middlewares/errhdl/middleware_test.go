package errhdl

import (
	"context"
	"errors"
	"testing"

	"github.com/coderi421/bulkops/orm"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type User struct {
	Id   int64
	Name string
}

var ErrDuplicateUser = errors.New("用户已经存在")

func TestMiddlewareBuilder_Build(t *testing.T) {
	// SQLITE_CONSTRAINT_PRIMARYKEY
	builder := NewMiddlewareBuilder().AddCode("1555", ErrDuplicateUser)
	db, err := orm.Open("sqlite3", "file:errhdl_build?cache=shared&mode=memory",
		orm.DBWithMiddlewares(builder.Build()))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	require.NoError(t, orm.RawQuery[User](db, "CREATE TABLE user (id INTEGER PRIMARY KEY, name TEXT)").Exec(ctx).Err())
	require.NoError(t, orm.BulkInsert(ctx, db, []*User{{Id: 1, Name: "Tom"}}, orm.BulkInsertOptions{}))

	err = orm.BulkInsert(ctx, db, []*User{{Id: 1, Name: "Tom"}}, orm.BulkInsertOptions{})
	assert.ErrorIs(t, err, ErrDuplicateUser)
	assert.True(t, orm.IsProviderExecutionError(err))

	// 没有注册的错误码保持原样
	_, err = orm.NewSelector[User](db).From("`nope`").GetMulti(ctx)
	assert.True(t, orm.IsProviderExecutionError(err))
	assert.False(t, errors.Is(err, ErrDuplicateUser))
}
