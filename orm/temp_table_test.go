package orm

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/coderi421/bulkops/orm/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkInsertValuesIntoTempTable(t *testing.T) {
	db := memoryDB(t)

	q, err := BulkInsertValuesIntoTempTable(context.Background(), db, []int64{3, 1, 2}, TempTableInsertOptions{})
	require.NoError(t, err)
	ref := q.Reference()
	assert.True(t, strings.HasPrefix(ref.Name(), "tmp_temp_table_1_"))
	assert.Equal(t, TempTablePopulated, ref.State())

	got, err := q.Selector().OrderBy(Asc("Column1")).GetMulti(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []*TempTable1[int64]{{Column1: 1}, {Column1: 2}, {Column1: 3}}, got)

	n, err := q.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	require.NoError(t, q.Release(context.Background()))
	assert.Equal(t, TempTableReleased, ref.State())
	// 重复释放是安全的
	require.NoError(t, q.Release(context.Background()))

	_, err = q.GetMulti(context.Background())
	assert.ErrorIs(t, err, ErrTempTableReleased)
	_, err = q.Count(context.Background())
	assert.ErrorIs(t, err, ErrTempTableReleased)
}

func TestBulkInsertValuesIntoTempTable_empty(t *testing.T) {
	db := memoryDB(t)

	_, err := BulkInsertValuesIntoTempTable[string](context.Background(), db, nil, TempTableInsertOptions{})
	assert.Equal(t, errs.ErrNilEntities, err)

	// 空输入也会建表，查询返回空
	q, err := BulkInsertValuesIntoTempTable(context.Background(), db, []string{}, TempTableInsertOptions{})
	require.NoError(t, err)
	defer func() { _ = q.Release(context.Background()) }()
	got, err := q.GetMulti(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBulkInsertValuesIntoTempTable2(t *testing.T) {
	db := memoryDB(t)

	q, err := BulkInsertValuesIntoTempTable2(context.Background(), db, []TempTable2[int64, string]{
		{Column1: 1, Column2: "a"},
		{Column1: 2, Column2: "b"},
	}, TempTableInsertOptions{
		TempTableCreateOptions: TempTableCreateOptions{PrimaryKeyCreation: PrimaryKeyAllColumns},
	})
	require.NoError(t, err)
	defer func() { _ = q.Release(context.Background()) }()

	got, err := q.Selector().Where(C("Column2").EQ("b")).GetMulti(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []*TempTable2[int64, string]{{Column1: 2, Column2: "b"}}, got)
}

func TestBulkInsertIntoTempTable_joinRealTable(t *testing.T) {
	db := memoryDB(t)
	seedProducts(t, db)

	q, err := BulkInsertValuesIntoTempTable(context.Background(), db, []int64{1, 3}, TempTableInsertOptions{})
	require.NoError(t, err)
	defer func() { _ = q.Release(context.Background()) }()

	// 临时表只在它所在的连接上可见，所以要用 ref.Session()
	query := fmt.Sprintf("SELECT p.* FROM product p JOIN `%s` t ON p.id = t.column1 ORDER BY p.id", q.Reference().Name())
	got, err := RawQuery[Product](q.Reference().Session(), query).GetMulti(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "apple", got[0].Name)
	assert.Equal(t, "cherry", got[1].Name)
}

func TestBulkInsertIntoTempTable_entities(t *testing.T) {
	db := memoryDB(t)

	entities := []*Product{
		{Id: 2, Name: "b", Price: 2, Note: strPtr("x"), Count: 1},
		{Id: 1, Name: "a", Price: 1, Count: 1},
	}
	q, err := BulkInsertIntoTempTable(context.Background(), db, entities, TempTableInsertOptions{
		TempTableCreateOptions: TempTableCreateOptions{Indexes: [][]string{{"Name"}, {"Price", "Count"}}},
		BulkInsertOptions:      BulkInsertOptions{BatchSize: 1},
	})
	require.NoError(t, err)
	defer func() { _ = q.Release(context.Background()) }()

	got, err := q.Selector().OrderBy(Asc("Id")).GetMulti(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []*Product{entities[1], entities[0]}, got)

	// 真实的 product 表不受影响，这里根本没有建
	_, err = NewSelector[Product](db).GetMulti(context.Background())
	assert.True(t, IsProviderExecutionError(err))
}

func TestBulkInsertIntoTempTable_validation(t *testing.T) {
	db := memoryDB(t)
	testCases := []struct {
		name       string
		entities   []*Product
		opts       TempTableInsertOptions
		wantErr    error
		wantValErr bool
		wantCfgErr bool
	}{
		{
			name:    "nil entities",
			wantErr: errs.ErrNilEntities,
		},
		{
			name:     "nil element",
			entities: []*Product{nil},
			wantErr:  errs.ErrNilEntity,
		},
		{
			name:     "unknown index field",
			entities: []*Product{},
			opts: TempTableInsertOptions{
				TempTableCreateOptions: TempTableCreateOptions{Indexes: [][]string{{"Nope"}}},
			},
			wantErr: errs.NewErrUnknownField("Nope"),
		},
		{
			name:     "index field not inserted",
			entities: []*Product{},
			opts: TempTableInsertOptions{
				TempTableCreateOptions: TempTableCreateOptions{Indexes: [][]string{{"Price"}}},
				BulkInsertOptions:      BulkInsertOptions{PropertiesToInsert: Props("Id", "Name")},
			},
			wantCfgErr: true,
		},
		{
			name:     "key not inserted",
			entities: []*Product{},
			opts: TempTableInsertOptions{
				BulkInsertOptions: BulkInsertOptions{PropertiesToInsert: Props("Name")},
			},
			wantCfgErr: true,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := BulkInsertIntoTempTable(context.Background(), db, tc.entities, tc.opts)
			switch {
			case tc.wantValErr:
				assert.True(t, IsValidationError(err), "%v", err)
			case tc.wantCfgErr:
				assert.True(t, IsConfigurationError(err), "%v", err)
			default:
				assert.Equal(t, tc.wantErr, err)
			}
		})
	}
}

func TestBulkInsertIntoTempTable_insertFailureReleases(t *testing.T) {
	db := memoryDB(t)

	// 主键重复，写入失败之后临时表被删掉
	_, err := BulkInsertValuesIntoTempTable(context.Background(), db, []int64{1, 1}, TempTableInsertOptions{
		TempTableCreateOptions: TempTableCreateOptions{PrimaryKeyCreation: PrimaryKeyAllColumns},
	})
	assert.True(t, IsProviderExecutionError(err))
	assert.Equal(t, 0, db.tempTables.live())
}

func TestBulkInsertRowsIntoTempTable(t *testing.T) {
	db := memoryDB(t)
	shape := TempTableShape{
		Name: "pairs",
		Columns: []TempTableColumn{
			{Name: "k", Type: reflect.TypeOf(int64(0))},
			{Name: "v", Type: reflect.TypeOf(""), Nullable: true},
			{Name: "w", SQLType: "REAL"},
		},
		PrimaryKey: []string{"k"},
	}

	q, err := BulkInsertRowsIntoTempTable(context.Background(), db, shape, [][]any{
		{int64(1), "a", 1.5},
		{int64(2), nil, 2.5},
	}, TempTableInsertOptions{
		TempTableCreateOptions: TempTableCreateOptions{Indexes: [][]string{{"v", "w"}}},
	})
	require.NoError(t, err)
	defer func() { _ = q.Release(context.Background()) }()
	assert.True(t, strings.HasPrefix(q.Reference().Name(), "tmp_pairs_"))
	assert.Equal(t, []string{"k", "v", "w"}, q.Columns())

	rows, err := q.Rows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][]any{
		{int64(1), "a", 1.5},
		{int64(2), nil, 2.5},
	}, rows)

	n, err := q.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestBulkInsertRowsIntoTempTable_validation(t *testing.T) {
	db := memoryDB(t)
	one := []TempTableColumn{{Name: "k", Type: reflect.TypeOf(0)}}
	testCases := []struct {
		name       string
		shape      TempTableShape
		rows       [][]any
		wantErr    error
		wantValErr bool
		wantCfgErr bool
	}{
		{
			name:    "nil rows",
			shape:   TempTableShape{Columns: one},
			wantErr: errs.ErrNilEntities,
		},
		{
			name:    "no columns",
			rows:    [][]any{},
			wantErr: errs.ErrTempTableEmpty,
		},
		{
			name:       "row width",
			shape:      TempTableShape{Columns: one},
			rows:       [][]any{{1, 2}},
			wantValErr: true,
		},
		{
			name: "duplicate column",
			shape: TempTableShape{Columns: []TempTableColumn{
				{Name: "k", Type: reflect.TypeOf(0)}, {Name: "k", Type: reflect.TypeOf(0)},
			}},
			rows:       [][]any{},
			wantValErr: true,
		},
		{
			name:       "unknown key column",
			shape:      TempTableShape{Columns: one, PrimaryKey: []string{"x"}},
			rows:       [][]any{},
			wantValErr: true,
		},
		{
			name:       "unsupported type",
			shape:      TempTableShape{Columns: []TempTableColumn{{Name: "k", Type: reflect.TypeOf(struct{}{})}}},
			rows:       [][]any{},
			wantCfgErr: true,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := BulkInsertRowsIntoTempTable(context.Background(), db, tc.shape, tc.rows, TempTableInsertOptions{})
			switch {
			case tc.wantValErr:
				assert.True(t, IsValidationError(err), "%v", err)
			case tc.wantCfgErr:
				assert.True(t, IsConfigurationError(err), "%v", err)
			default:
				assert.Equal(t, tc.wantErr, err)
			}
		})
	}
}

func TestCreateTempTable_inTx(t *testing.T) {
	db := memoryDB(t)
	seedProducts(t, db)

	err := db.DoTx(context.Background(), func(ctx context.Context, tx *Tx) error {
		q, err := BulkInsertValuesIntoTempTable(ctx, tx, []int64{2}, TempTableInsertOptions{})
		if err != nil {
			return err
		}
		// 事务提交之前释放
		defer func() { _ = q.Release(ctx) }()

		query := fmt.Sprintf("DELETE FROM product WHERE id IN (SELECT column1 FROM `%s`)", q.Reference().Name())
		return RawQuery[Product](q.Reference().Session(), query).Exec(ctx).Err()
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, tableRows(t, db, "product"))
}

func TestUsingTempTable_releasesOnError(t *testing.T) {
	db := memoryDB(t)
	var ref *TempTableReference
	err := UsingTempTable[Product](context.Background(), db, TempTableCreateOptions{},
		func(ctx context.Context, r *TempTableReference) error {
			ref = r
			return assert.AnError
		})
	assert.ErrorIs(t, err, assert.AnError)
	require.NotNil(t, ref)
	assert.True(t, ref.Released())
}

func TestReusingTempTableNames(t *testing.T) {
	db := memoryDB(t)
	names := NewReusingTempTableNames()
	conn, err := db.Conn(context.Background())
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	opts := TempTableInsertOptions{
		TempTableCreateOptions: TempTableCreateOptions{NameProvider: names, KeepOnRelease: true},
	}
	q1, err := BulkInsertValuesIntoTempTable(context.Background(), conn, []int64{1, 2}, opts)
	require.NoError(t, err)
	q2, err := BulkInsertValuesIntoTempTable(context.Background(), conn, []int64{3}, opts)
	require.NoError(t, err)
	assert.Equal(t, "tmp_temp_table_1_1", q1.Reference().Name())
	assert.Equal(t, "tmp_temp_table_1_2", q2.Reference().Name())

	require.NoError(t, q1.Release(context.Background()))
	// 名字被复用，表还在，但是旧的数据被清空了
	q3, err := BulkInsertValuesIntoTempTable(context.Background(), conn, []int64{7}, opts)
	require.NoError(t, err)
	assert.Equal(t, "tmp_temp_table_1_1", q3.Reference().Name())
	got, err := q3.GetMulti(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []*TempTable1[int64]{{Column1: 7}}, got)

	require.NoError(t, q2.Release(context.Background()))
	require.NoError(t, q3.Release(context.Background()))
}

func TestReusingTempTableNames_perOwner(t *testing.T) {
	names := NewReusingTempTableNames()
	db := memoryDB(t)
	c1, err := db.Conn(context.Background())
	require.NoError(t, err)
	defer func() { _ = c1.Close() }()
	c2, err := db.Conn(context.Background())
	require.NoError(t, err)
	defer func() { _ = c2.Close() }()

	n1, release1 := names.LeaseName(c1, "product")
	n2, release2 := names.LeaseName(c2, "product")
	assert.Equal(t, "tmp_product_1", n1)
	assert.Equal(t, "tmp_product_1", n2)
	n3, release3 := names.LeaseName(c1, "product")
	assert.Equal(t, "tmp_product_2", n3)

	release1()
	release1()
	n4, _ := names.LeaseName(c1, "product")
	assert.Equal(t, "tmp_product_1", n4)
	release2()
	release3()
}

func TestUniqueTempTableNames(t *testing.T) {
	n1, _ := UniqueTempTableNames{}.LeaseName(nil, "a_very_long_table_name_that_keeps_going")
	n2, _ := UniqueTempTableNames{}.LeaseName(nil, "a_very_long_table_name_that_keeps_going")
	assert.NotEqual(t, n1, n2)
	assert.True(t, strings.HasPrefix(n1, "tmp_a_very_long_table_na_"))
	assert.LessOrEqual(t, len(n1), 63)
}

func TestTempTableTracker_warnsOnLeak(t *testing.T) {
	var (
		mu   sync.Mutex
		logs []string
	)
	db := memoryDB(t,
		DBWithTempTableLeakTimeout(20*time.Millisecond),
		DBWithLogFunc(func(format string, args ...any) {
			mu.Lock()
			defer mu.Unlock()
			logs = append(logs, fmt.Sprintf(format, args...))
		}))

	released, err := CreateTempTable[TempTable1[int64]](context.Background(), db, TempTableCreateOptions{})
	require.NoError(t, err)
	require.NoError(t, released.Release(context.Background()))

	leaked, err := CreateTempTable[TempTable1[int64]](context.Background(), db, TempTableCreateOptions{})
	require.NoError(t, err)
	defer func() { _ = leaked.Release(context.Background()) }()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(logs) > 0
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	// 只有没有释放的那张表会被警告
	require.Len(t, logs, 1)
	assert.Contains(t, logs[0], leaked.Name())
	assert.False(t, leaked.Released())
}

func TestCreateTempTable_ddl(t *testing.T) {
	testCases := []struct {
		name    string
		dialect Dialect
		mock    func(mock sqlmock.Sqlmock)
		opts    TempTableCreateOptions
		wantErr bool
	}{
		{
			name:    "mysql",
			dialect: MySQL,
			opts:    TempTableCreateOptions{Indexes: [][]string{{"Name"}}},
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(regexpQuote("CREATE TEMPORARY TABLE `tmp_product_") + `[0-9a-f]{32}` +
					regexpQuote("` (`id` BIGINT NOT NULL, `name` VARCHAR(255) NOT NULL, `price` DOUBLE NOT NULL, "+
						"`note` LONGTEXT NULL, `count` BIGINT NOT NULL, PRIMARY KEY (`id`))")).
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectExec(`CREATE INDEX .*ix_tmp_product_[0-9a-f]{32}_1.* \(` + "`name`" + `\)`).
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectExec("DROP TEMPORARY TABLE IF EXISTS `tmp_product_[0-9a-f]{32}`").
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
		},
		{
			name:    "postgres",
			dialect: Postgres,
			opts:    TempTableCreateOptions{PrimaryKeyCreation: PrimaryKeyNone},
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(regexpQuote(`CREATE TEMP TABLE "tmp_product_`) + `[0-9a-f]{32}` +
					regexpQuote(`" ("id" BIGINT NOT NULL, "name" TEXT NOT NULL, "price" DOUBLE PRECISION NOT NULL, `+
						`"note" TEXT NULL, "count" BIGINT NOT NULL)`)).
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectExec(`DROP TABLE IF EXISTS pg_temp\."tmp_product_[0-9a-f]{32}"`).
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
		},
		{
			// 建索引失败，已经建好的表要删掉
			name:    "index failure drops the table",
			dialect: MySQL,
			opts:    TempTableCreateOptions{Indexes: [][]string{{"Name"}}},
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("CREATE TEMPORARY TABLE .*").WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectExec("CREATE INDEX .*").WillReturnError(assert.AnError)
				mock.ExpectExec("DROP TEMPORARY TABLE IF EXISTS .*").WillReturnResult(sqlmock.NewResult(0, 0))
			},
			wantErr: true,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockDB, mock, err := sqlmock.New()
			require.NoError(t, err)
			db, err := OpenDB(mockDB, DBWithDialect(tc.dialect))
			require.NoError(t, err)
			tc.mock(mock)

			ref, err := CreateTempTable[Product](context.Background(), db, tc.opts)
			if tc.wantErr {
				assert.True(t, IsProviderExecutionError(err))
				assert.ErrorIs(t, err, assert.AnError)
			} else {
				require.NoError(t, err)
				require.NoError(t, ref.Release(context.Background()))
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCreateTempTable_reuseFailureKeepsTable(t *testing.T) {
	var failIndex atomic.Bool
	failing := func(next Handler) Handler {
		return func(ctx context.Context, qc *QueryContext) *QueryResult {
			q, err := qc.Builder.Build()
			if err == nil && failIndex.Load() && strings.HasPrefix(q.SQL, "CREATE INDEX") {
				return &QueryResult{Err: assert.AnError}
			}
			return next(ctx, qc)
		}
	}
	db := memoryDB(t, DBWithMiddlewares(failing))
	conn, err := db.Conn(context.Background())
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	opts := TempTableInsertOptions{
		TempTableCreateOptions: TempTableCreateOptions{
			NameProvider:  NewReusingTempTableNames(),
			KeepOnRelease: true,
			Indexes:       [][]string{{"Column1"}},
		},
	}
	q1, err := BulkInsertValuesIntoTempTable(context.Background(), conn, []int64{1, 2}, opts)
	require.NoError(t, err)
	name := q1.Reference().Name()
	require.NoError(t, q1.Release(context.Background()))

	// 复用名字的时候建索引失败，之前留下来的表不能被删掉
	failIndex.Store(true)
	_, err = BulkInsertValuesIntoTempTable(context.Background(), conn, []int64{3}, opts)
	assert.ErrorIs(t, err, assert.AnError)

	rows, err := conn.queryContext(context.Background(), "SELECT COUNT(*) FROM "+name)
	require.NoError(t, err)
	_ = rows.Close()

	failIndex.Store(false)
	q2, err := BulkInsertValuesIntoTempTable(context.Background(), conn, []int64{3}, opts)
	require.NoError(t, err)
	assert.Equal(t, name, q2.Reference().Name())
	got, err := q2.GetMulti(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []*TempTable1[int64]{{Column1: 3}}, got)
	require.NoError(t, q2.Release(context.Background()))
}
