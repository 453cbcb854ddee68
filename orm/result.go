package orm

import (
	"database/sql"
	"errors"
)

type Result struct {
	err error
	res sql.Result
}

// LastInsertId 重新 database sql 的 Result 方法 做一层拦截
func (r Result) LastInsertId() (int64, error) {
	if r.err != nil {
		return 0, r.err
	}
	return r.res.LastInsertId()
}

func (r Result) RowsAffected() (int64, error) {
	if r.err != nil {
		return 0, r.err
	}
	if r.res == nil {
		return 0, nil
	}
	return r.res.RowsAffected()
}

func (r Result) Err() error {
	return r.err
}

// affectedRows 批量操作累计的影响行数
// 批量操作跨越多条语句，没有意义上的 LastInsertId
type affectedRows int64

func (a affectedRows) LastInsertId() (int64, error) {
	return 0, errors.New("orm: 批量操作不支持 LastInsertId")
}

func (a affectedRows) RowsAffected() (int64, error) {
	return int64(a), nil
}

func bulkResult(n int64, err error) Result {
	return Result{err: err, res: affectedRows(n)}
}
