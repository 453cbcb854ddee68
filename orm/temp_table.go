package orm

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"strconv"
	"sync/atomic"

	"github.com/coderi421/bulkops/orm/internal/errs"
	"github.com/coderi421/bulkops/orm/model"
	"github.com/google/uuid"
)

// TempTableState 临时表的生命周期
type TempTableState int32

const (
	TempTableCreated TempTableState = iota + 1
	TempTablePopulated
	TempTableReleased
)

// TempTableReference 持有一张临时表以及它所在的连接
// 临时表只在创建它的连接上可见，所以 DB 会话会独占一个连接，直到 Release
// 在事务上创建的临时表，要在提交或者回滚之前 Release
// 只能由一个 goroutine 持有
type TempTableReference struct {
	c     core
	id    string
	name  string
	model *model.Model
	// sess 固定在一个连接上的会话
	sess        Session
	closeConn   func() error
	releaseName func()
	keep        bool
	state       atomic.Int32
}

func (r *TempTableReference) Name() string {
	return r.name
}

// Session 在临时表所在的连接上执行其它操作，例如和普通表 JOIN
// 临时表释放之后，通过它执行的操作都会返回 ErrTempTableReleased
func (r *TempTableReference) Session() Session {
	return &tempSession{Session: r.sess, ref: r}
}

func (r *TempTableReference) State() TempTableState {
	return TempTableState(r.state.Load())
}

func (r *TempTableReference) Released() bool {
	return r.State() == TempTableReleased
}

// Release 删除临时表并且归还连接，重复调用是安全的
// 删除失败会返回错误，但是连接依旧会被归还
func (r *TempTableReference) Release(ctx context.Context) error {
	for {
		s := r.state.Load()
		if TempTableState(s) == TempTableReleased {
			return nil
		}
		if r.state.CompareAndSwap(s, int32(TempTableReleased)) {
			break
		}
	}
	if r.c.tempTables != nil {
		r.c.tempTables.untrack(r)
	}

	var err error
	if !r.keep {
		b := newBuilder(r.c.dialect)
		r.c.dialect.buildDropTempTable(&b, r.name)
		err = exec(ctx, r.sess, r.c, &QueryContext{
			Type:      TypeTempTableDrop,
			Builder:   &staticQuery{SQL: b.sb.String()},
			Model:     r.model,
			Table:     r.name,
			TempTable: true,
		}).Err
	}
	r.releaseName()
	return errors.Join(err, r.closeConn())
}

func (r *TempTableReference) populated() {
	r.state.CompareAndSwap(int32(TempTableCreated), int32(TempTablePopulated))
}

// tempSession 释放之后拒绝执行
type tempSession struct {
	Session
	ref *TempTableReference
}

func (s *tempSession) unwrap() Session {
	return s.Session
}

func (s *tempSession) queryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if s.ref.Released() {
		return nil, errs.ErrTempTableReleased
	}
	return s.Session.queryContext(ctx, query, args...)
}

func (s *tempSession) execContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if s.ref.Released() {
		return nil, errs.ErrTempTableReleased
	}
	return s.Session.execContext(ctx, query, args...)
}

func (s *tempSession) prepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	if s.ref.Released() {
		return nil, errs.ErrTempTableReleased
	}
	return s.Session.prepareContext(ctx, query)
}

// TempTableColumn 自定义临时表结构中的一列
type TempTableColumn struct {
	Name string
	// Type 用来推断列类型，SQLType 不为空的时候优先使用 SQLType
	Type     reflect.Type
	SQLType  string
	Nullable bool
}

// TempTableShape 不依赖实体类型的临时表结构
type TempTableShape struct {
	// Name 表名前缀，为空使用 temp_table
	Name       string
	Columns    []TempTableColumn
	PrimaryKey []string
}

type tempColumn struct {
	name     string
	sqlType  string
	nullable bool
}

// tempTableSpec 建表需要的全部信息，都是列名
type tempTableSpec struct {
	base       string
	model      *model.Model
	columns    []tempColumn
	primaryKey []string
	indexes    [][]string
}

// entityTempSpec 根据实体的字段推断临时表结构
func entityTempSpec(d Dialect, m *model.Model, fields []*model.Field, opts TempTableCreateOptions) (tempTableSpec, error) {
	if len(fields) == 0 {
		return tempTableSpec{}, errs.ErrTempTableEmpty
	}
	inTable := make(map[model.FieldID]struct{}, len(fields))
	for _, fd := range fields {
		inTable[fd.ID] = struct{}{}
	}
	lookup := func(name string) (*model.Field, error) {
		fd, ok := m.FieldMap[name]
		if !ok {
			return nil, errs.NewErrUnknownField(name)
		}
		if _, ok = inTable[fd.ID]; !ok {
			return nil, errs.NewConfigurationError("orm: 字段 %s 不在临时表中", name)
		}
		return fd, nil
	}

	var pk []*model.Field
	switch opts.PrimaryKeyCreation {
	case PrimaryKeyEntityKey:
		for _, fd := range m.PrimaryKeys {
			if _, err := lookup(fd.GoName); err != nil {
				return tempTableSpec{}, err
			}
		}
		pk = m.PrimaryKeys
	case PrimaryKeyAllColumns:
		pk = fields
	}

	indexes := make([][]string, 0, len(opts.Indexes))
	keys := make(map[model.FieldID]struct{}, len(fields))
	for _, fd := range pk {
		keys[fd.ID] = struct{}{}
	}
	for _, idx := range opts.Indexes {
		cols := make([]string, 0, len(idx))
		for _, name := range idx {
			fd, err := lookup(name)
			if err != nil {
				return tempTableSpec{}, err
			}
			keys[fd.ID] = struct{}{}
			cols = append(cols, fd.ColName)
		}
		if len(cols) > 0 {
			indexes = append(indexes, cols)
		}
	}

	columns := make([]tempColumn, 0, len(fields))
	for _, fd := range fields {
		_, key := keys[fd.ID]
		typ, err := fieldColumnType(d, fd, key)
		if err != nil {
			return tempTableSpec{}, err
		}
		columns = append(columns, tempColumn{name: fd.ColName, sqlType: typ, nullable: fd.Nullable})
	}
	return tempTableSpec{
		base:       m.TableName,
		model:      m,
		columns:    columns,
		primaryKey: columnNames(pk),
		indexes:    indexes,
	}, nil
}

// shapeTempSpec 自定义结构的临时表，Indexes 里面使用列名
func shapeTempSpec(d Dialect, shape TempTableShape, opts TempTableCreateOptions) (tempTableSpec, error) {
	if len(shape.Columns) == 0 {
		return tempTableSpec{}, errs.ErrTempTableEmpty
	}
	known := make(map[string]struct{}, len(shape.Columns))
	names := make([]string, 0, len(shape.Columns))
	for _, col := range shape.Columns {
		if col.Name == "" {
			return tempTableSpec{}, errs.NewValidationError("orm: 临时表的列名不能为空")
		}
		if _, ok := known[col.Name]; ok {
			return tempTableSpec{}, errs.NewValidationError("orm: 临时表的列 %s 重复", col.Name)
		}
		known[col.Name] = struct{}{}
		names = append(names, col.Name)
	}
	check := func(cols []string) error {
		for _, c := range cols {
			if _, ok := known[c]; !ok {
				return errs.NewValidationError("orm: 临时表没有列 %s", c)
			}
		}
		return nil
	}

	var pk []string
	switch opts.PrimaryKeyCreation {
	case PrimaryKeyEntityKey:
		pk = shape.PrimaryKey
	case PrimaryKeyAllColumns:
		pk = names
	}
	if err := check(pk); err != nil {
		return tempTableSpec{}, err
	}
	keys := make(map[string]struct{}, len(names))
	for _, c := range pk {
		keys[c] = struct{}{}
	}
	indexes := make([][]string, 0, len(opts.Indexes))
	for _, idx := range opts.Indexes {
		if err := check(idx); err != nil {
			return tempTableSpec{}, err
		}
		for _, c := range idx {
			keys[c] = struct{}{}
		}
		if len(idx) > 0 {
			indexes = append(indexes, idx)
		}
	}

	columns := make([]tempColumn, 0, len(shape.Columns))
	for _, col := range shape.Columns {
		typ := col.SQLType
		if typ == "" {
			_, key := keys[col.Name]
			var ok bool
			if typ, ok = d.columnType(col.Type, key); !ok {
				return tempTableSpec{}, errs.NewErrUnsupportedColumnType(col.Name, col.Type)
			}
		}
		columns = append(columns, tempColumn{name: col.Name, sqlType: typ, nullable: col.Nullable})
	}

	base := shape.Name
	if base == "" {
		base = "temp_table"
	}
	return tempTableSpec{
		base:       base,
		columns:    columns,
		primaryKey: pk,
		indexes:    indexes,
	}, nil
}

func (s tempTableSpec) columnNames() []string {
	names := make([]string, len(s.columns))
	for i, c := range s.columns {
		names[i] = c.name
	}
	return names
}

// createTempTable 建表要么成功，要么不留下任何东西
// 复用已有的表（TruncateIfExists 或者复用名字）的时候，失败不会删除表
func createTempTable(ctx context.Context, sess Session, spec tempTableSpec, opts TempTableCreateOptions) (*TempTableReference, error) {
	c := sess.getCore()
	p, ok := unwrapSession(sess).(pinner)
	if !ok {
		return nil, errs.NewConfigurationError("orm: 当前会话不支持临时表")
	}
	pinned, closeConn, err := p.pin(ctx)
	if err != nil {
		return nil, wrapExecErr(c.dialect, TypeTempTableCreate, spec.base, "", err)
	}

	provider := opts.NameProvider
	if provider == nil {
		provider = UniqueTempTableNames{}
	}
	name, releaseName := provider.LeaseName(pinned, spec.base)
	ref := &TempTableReference{
		c:           c,
		id:          uuid.NewString(),
		name:        name,
		model:       spec.model,
		sess:        pinned,
		closeConn:   closeConn,
		releaseName: releaseName,
		keep:        opts.KeepOnRelease,
	}

	reuse := provider.Reuses() || opts.TruncateIfExists
	if err = ref.create(ctx, spec, reuse); err != nil {
		releaseName()
		return nil, errors.Join(err, closeConn())
	}
	ref.state.Store(int32(TempTableCreated))
	if c.tempTables != nil {
		c.tempTables.track(ref)
	}
	return ref, nil
}

func (r *TempTableReference) create(ctx context.Context, spec tempTableSpec, reuse bool) error {
	d := r.c.dialect
	b := newBuilder(d)
	d.buildCreateTempTable(&b, r.name, reuse)
	b.sb.WriteString(" (")
	for i, col := range spec.columns {
		if i > 0 {
			b.sb.WriteString(", ")
		}
		b.quote(col.name)
		b.sb.WriteByte(' ')
		b.sb.WriteString(col.sqlType)
		if col.nullable {
			b.sb.WriteString(" NULL")
		} else {
			b.sb.WriteString(" NOT NULL")
		}
	}
	if len(spec.primaryKey) > 0 {
		b.sb.WriteString(", PRIMARY KEY (")
		b.quoteColumns(spec.primaryKey)
		b.sb.WriteByte(')')
	}
	b.sb.WriteByte(')')

	if err := r.ddl(ctx, b.sb.String()); err != nil {
		return err
	}

	statements := make([]string, 0, len(spec.indexes)+1)
	if reuse {
		tb := newBuilder(d)
		d.buildTruncate(&tb, r.name, inTx(r.sess))
		statements = append(statements, tb.sb.String())
	}
	for i, cols := range spec.indexes {
		ib := newBuilder(d)
		d.buildCreateIndex(&ib, "ix_"+r.name+"_"+strconv.Itoa(i+1), r.name, cols, reuse)
		statements = append(statements, ib.sb.String())
	}
	for _, q := range statements {
		if err := r.ddl(ctx, q); err != nil {
			if reuse {
				// IF NOT EXISTS 的时候表可能是之前留下来的，不归这次调用删除
				return err
			}
			// 建索引失败，把表删掉
			db := newBuilder(d)
			d.buildDropTempTable(&db, r.name)
			return errors.Join(err, r.ddl(ctx, db.sb.String()))
		}
	}
	return nil
}

func (r *TempTableReference) ddl(ctx context.Context, query string) error {
	return exec(ctx, r.sess, r.c, &QueryContext{
		Type:      TypeTempTableCreate,
		Builder:   &staticQuery{SQL: query},
		Model:     r.model,
		Table:     r.name,
		TempTable: true,
	}).Err
}

// CreateTempTable 按照 T 的全部非计算列建一张临时表
func CreateTempTable[T any](ctx context.Context, sess Session, opts TempTableCreateOptions) (*TempTableReference, error) {
	if sess == nil {
		return nil, errs.ErrNilSession
	}
	c := sess.getCore()
	m, err := c.r.Get(new(T))
	if err != nil {
		return nil, err
	}
	fields, err := defaultProperties(m, roleInsert, nil)
	if err != nil {
		return nil, err
	}
	spec, err := entityTempSpec(c.dialect, m, fields, opts)
	if err != nil {
		return nil, err
	}
	return createTempTable(ctx, sess, spec, opts)
}

// CreateTempTableFromShape 按照自定义结构建临时表
func CreateTempTableFromShape(ctx context.Context, sess Session, shape TempTableShape, opts TempTableCreateOptions) (*TempTableReference, error) {
	if sess == nil {
		return nil, errs.ErrNilSession
	}
	spec, err := shapeTempSpec(sess.getCore().dialect, shape, opts)
	if err != nil {
		return nil, err
	}
	return createTempTable(ctx, sess, spec, opts)
}

// UsingTempTable 创建临时表并执行 fn，fn 返回之后一定会释放临时表
func UsingTempTable[T any](ctx context.Context, sess Session, opts TempTableCreateOptions,
	fn func(ctx context.Context, ref *TempTableReference) error) (err error) {
	ref, err := CreateTempTable[T](ctx, sess, opts)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, ref.Release(ctx))
	}()
	return fn(ctx, ref)
}
