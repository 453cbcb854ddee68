package orm

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/coderi421/bulkops/orm/internal/valuer"
	"github.com/coderi421/bulkops/orm/internal/valuer/unsafe"
	"github.com/coderi421/bulkops/orm/model"
	lru "github.com/hashicorp/golang-lru"
)

type DBOption func(*DB)

// DB 是 sql.DB 的装饰器
type DB struct {
	core
	db *sql.DB

	stmtCacheSize int
	leakTimeout   time.Duration
}

// Open 创建一个 DB 实例。
// 默认情况下，该 DB 根据驱动名字选择方言
// 如果你使用的是其它驱动，那么需要使用 DBWithDialect 指定方言
func Open(driver string, dsn string, opts ...DBOption) (*DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if d, ok := dialectOfDriver(driver); ok {
		opts = append([]DBOption{DBWithDialect(d)}, opts...)
	}
	return OpenDB(db, opts...)
}

// OpenDB 可以利用一个已经打开的 sql.DB 创建 DB
// 一般用于测试，例如传入 sqlmock 的 sql.DB
func OpenDB(db *sql.DB, opts ...DBOption) (*DB, error) {
	res := &DB{
		core: core{
			dialect:    SQLite3,
			r:          model.NewRegistry(),
			valCreator: unsafe.NewUnsafeValue,
			logFunc:    log.Printf,
			shadow:     NewShadowState(),
		},
		db:            db,
		stmtCacheSize: 128,
		leakTimeout:   10 * time.Minute,
	}
	for _, opt := range opts {
		opt(res)
	}

	res.getters = valuer.NewGetterCache(res.logFunc)
	if res.stmtCacheSize > 0 {
		c, err := lru.New(res.stmtCacheSize)
		if err != nil {
			return nil, err
		}
		res.stmts = c
	}
	if res.leakTimeout > 0 {
		res.tempTables = newTempTableTracker(res.leakTimeout, res.logFunc)
	}
	return res, nil
}

// MustOpen 创建一个 DB，如果失败则会 panic
func MustOpen(driver string, dsn string, opts ...DBOption) *DB {
	db, err := Open(driver, dsn, opts...)
	if err != nil {
		panic(err)
	}
	return db
}

func dialectOfDriver(driver string) (Dialect, bool) {
	switch driver {
	case "sqlite3":
		return SQLite3, true
	case "mysql":
		return MySQL, true
	case "pgx", "postgres":
		return Postgres, true
	}
	return nil, false
}

func DBWithDialect(dialect Dialect) DBOption {
	return func(db *DB) {
		db.dialect = dialect
	}
}

func DBWithRegistry(r model.Registry) DBOption {
	return func(db *DB) {
		db.r = r
	}
}

// DBUseReflect 使用反射来读取结果集，默认是 unsafe
func DBUseReflect() DBOption {
	return func(db *DB) {
		db.valCreator = valuer.NewReflectValue
	}
}

func DBWithMiddlewares(mdls ...Middleware) DBOption {
	return func(db *DB) {
		db.mdls = mdls
	}
}

// DBWithLogFunc 替换默认的 log.Printf
// 例如默认值警告、临时表泄露都会通过它输出
func DBWithLogFunc(fn func(format string, args ...any)) DBOption {
	return func(db *DB) {
		db.logFunc = fn
	}
}

// DBWithShadowStore 影子字段的值从这里读取
func DBWithShadowStore(store model.ShadowStore) DBOption {
	return func(db *DB) {
		db.shadow = store
	}
}

// DBWithStatementCacheSize 设置为 0 则不缓存
func DBWithStatementCacheSize(size int) DBOption {
	return func(db *DB) {
		db.stmtCacheSize = size
	}
}

// DBWithTempTableLeakTimeout 临时表超过这个时间没有释放，就会输出一条警告
// 设置为 0 则不检查
func DBWithTempTableLeakTimeout(timeout time.Duration) DBOption {
	return func(db *DB) {
		db.leakTimeout = timeout
	}
}

// Registry 返回模型注册中心，用来注册影子字段、转换器等
func (db *DB) Registry() model.Registry {
	return db.r
}

// ShadowStore 返回影子字段的存储
func (db *DB) ShadowStore() model.ShadowStore {
	return db.shadow
}

func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	tx, err := db.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx, core: db.core}, nil
}

// DoTx 将会开启事务执行 fn。如果 fn 返回错误或者发生 panic，事务将会回滚，
// 否则提交事务
func (db *DB) DoTx(ctx context.Context,
	fn func(ctx context.Context, tx *Tx) error,
	opts *sql.TxOptions) (err error) {
	var tx *Tx
	tx, err = db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	panicked := true
	defer func() {
		if panicked {
			_ = tx.Rollback()
		}
	}()
	err = fn(ctx, tx)
	panicked = false
	if err != nil {
		return err
	}
	return tx.Commit()
}

// Conn 从连接池里面拿出一个连接
// 临时表只在创建它的连接上可见，所以需要固定连接
func (db *DB) Conn(ctx context.Context) (*Conn, error) {
	conn, err := db.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &Conn{conn: conn, core: db.core}, nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

func (db *DB) getCore() core {
	return db.core
}

func (db *DB) queryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.db.QueryContext(ctx, query, args...)
}

func (db *DB) execContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.db.ExecContext(ctx, query, args...)
}

func (db *DB) prepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	return db.db.PrepareContext(ctx, query)
}

func (db *DB) beginTx(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	return db.BeginTx(ctx, opts)
}

// pin 拿一个独占的连接，release 之后放回连接池
func (db *DB) pin(ctx context.Context) (Session, func() error, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, nil, err
	}
	return conn, conn.Close, nil
}

func (db *DB) raw(ctx context.Context, fn func(driverConn any) error) error {
	conn, err := db.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()
	return conn.Raw(fn)
}
