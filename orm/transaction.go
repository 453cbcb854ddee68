package orm

import (
	"context"
	"database/sql"
	"errors"
)

var (
	_ Session = &Tx{}
	_ Session = &DB{}
	_ Session = &Conn{}

	_ txBeginner = &DB{}
	_ txBeginner = &Conn{}
	_ pinner     = &DB{}
	_ pinner     = &Conn{}
	_ pinner     = &Tx{}
	_ rawConner  = &DB{}
	_ rawConner  = &Conn{}
)

// Session 代表一个抽象的概念，即会话
// DB、Conn 和 Tx 都是会话，批量操作接受任意一种
type Session interface {
	getCore() core
	queryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	execContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	prepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// txBeginner 可以开启事务的会话
// 事务本身不实现这个接口，批量操作会直接加入已有的事务
type txBeginner interface {
	beginTx(ctx context.Context, opts *sql.TxOptions) (*Tx, error)
}

// pinner 把后续的操作固定在同一个连接上
type pinner interface {
	pin(ctx context.Context) (Session, func() error, error)
}

// rawConner 可以拿到驱动层面的连接，例如 pgx 的 COPY
type rawConner interface {
	raw(ctx context.Context, fn func(driverConn any) error) error
}

// sessionUnwrapper 包装过的会话，能力以里面的会话为准
type sessionUnwrapper interface {
	unwrap() Session
}

func unwrapSession(sess Session) Session {
	for {
		u, ok := sess.(sessionUnwrapper)
		if !ok {
			return sess
		}
		sess = u.unwrap()
	}
}

// runInTx 多条语句的批量操作要么全部成功，要么全部失败
// 调用者已经开启事务的话，就加入调用者的事务，由调用者决定提交还是回滚
func runInTx(ctx context.Context, sess Session, fn func(sess Session) error) (err error) {
	b, ok := unwrapSession(sess).(txBeginner)
	if !ok {
		return fn(sess)
	}
	tx, err := b.beginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		// panic 或者出错都会回滚
		_ = tx.RollbackIfNotCommit()
	}()
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// inTx 会话是否已经处于事务中
func inTx(sess Session) bool {
	_, ok := unwrapSession(sess).(txBeginner)
	return !ok
}

type Tx struct {
	core
	tx *sql.Tx
}

func (t *Tx) getCore() core {
	return t.core
}

func (t *Tx) queryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, query, args...)
}

func (t *Tx) execContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, query, args...)
}

func (t *Tx) prepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	return t.tx.PrepareContext(ctx, query)
}

// pin 事务本来就固定在一个连接上
func (t *Tx) pin(ctx context.Context) (Session, func() error, error) {
	return t, func() error { return nil }, nil
}

func (t *Tx) Commit() error {
	return t.tx.Commit()
}

func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}

func (t *Tx) RollbackIfNotCommit() error {
	err := t.tx.Rollback()
	if !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

// Conn 独占的一个连接，用完必须 Close 放回连接池
type Conn struct {
	core
	conn *sql.Conn
}

func (c *Conn) getCore() core {
	return c.core
}

func (c *Conn) queryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.conn.QueryContext(ctx, query, args...)
}

func (c *Conn) execContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.conn.ExecContext(ctx, query, args...)
}

func (c *Conn) prepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	return c.conn.PrepareContext(ctx, query)
}

func (c *Conn) beginTx(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	return c.BeginTx(ctx, opts)
}

func (c *Conn) pin(ctx context.Context) (Session, func() error, error) {
	return c, func() error { return nil }, nil
}

func (c *Conn) raw(ctx context.Context, fn func(driverConn any) error) error {
	return c.conn.Raw(fn)
}

func (c *Conn) BeginTx(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	tx, err := c.conn.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx, core: c.core}, nil
}

func (c *Conn) Close() error {
	return c.conn.Close()
}
