package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrPointerOnly 只支持一级指针作为输入
	// 看到这个 error 说明你输入了其它的东西
	// 我们并不希望用户能够直接使用 err == ErrPointerOnly
	// 所以放在我们的 internal 包里
	ErrPointerOnly = &ConfigurationError{msg: "orm: 只支持指向结构体的一级指针作为输入，例如 *User"}

	ErrNoRows                 = errors.New("orm: 没有数据")
	ErrTooManyReturnedColumns = errors.New("orm: 过多列")
	ErrInsertZeroRow          = errors.New("orm: 插入 0 行")
	ErrNoUpdatedColumns       = &ConfigurationError{msg: "orm: 未指定更新的列"}

	ErrNilEntities      = &ValidationError{msg: "orm: entities 不能为 nil"}
	ErrNilEntity        = &ValidationError{msg: "orm: entities 中存在 nil 元素"}
	ErrNilSession       = &ValidationError{msg: "orm: session 不能为 nil"}
	ErrEmptyMatchSet    = &ConfigurationError{msg: "orm: 匹配列不能为空"}
	ErrTempTableEmpty   = &ConfigurationError{msg: "orm: 临时表至少需要一列"}

	// ErrTempTableReleased 临时表已经被释放，基于它的查询都失效了
	ErrTempTableReleased = errors.New("orm: 临时表已释放")
)

// ValidationError 参数不合法，例如 nil 输入或者未知字段
// 一定在访问数据库之前返回
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

// ConfigurationError 列或者主键配置无法执行，例如没有主键也没有指定匹配列
type ConfigurationError struct {
	msg string
}

func (e *ConfigurationError) Error() string {
	return e.msg
}

// ProviderExecutionError 数据库拒绝了批量语句
// 原样把数据库的错误带出去，并附上执行时的上下文
type ProviderExecutionError struct {
	Dialect string
	Op      string
	Table   string
	SQL     string
	// Code 数据库驱动给出的错误码，拿不到就是空字符串
	Code string
	Err  error
}

func (e *ProviderExecutionError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("orm: %s %s 在 %s 上执行失败 (code %s): %v", e.Dialect, e.Op, e.Table, e.Code, e.Err)
	}
	return fmt.Sprintf("orm: %s %s 在 %s 上执行失败: %v", e.Dialect, e.Op, e.Table, e.Err)
}

func (e *ProviderExecutionError) Unwrap() error {
	return e.Err
}

func NewValidationError(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

func NewConfigurationError(format string, args ...any) error {
	return &ConfigurationError{msg: fmt.Sprintf(format, args...)}
}

// NewErrUnknownField 返回代表未知字段的错误
// 一般意味着你可能输入的是列名，或者输入了错误的字段名
func NewErrUnknownField(fd string) error {
	return NewValidationError("orm: 未知字段 %s", fd)
}

// NewErrUnknownColumn 返回代表未知列的错误
// 一般意味着你使用了错误的列名
// 注意和 NewErrUnknownField 区别
func NewErrUnknownColumn(col string) error {
	return fmt.Errorf("orm: 未知列 %s", col)
}

func NewErrUnsupportedExpressionType(exp any) error {
	return fmt.Errorf("orm: 不支持的表达式 %v", exp)
}

func NewErrUnsupportedSelectable(exp any) error {
	return fmt.Errorf("orm: 不支持的目标列 %v", exp)
}

func NewErrUnsupportedAssignableType(exp any) error {
	return fmt.Errorf("orm: 不支持的赋值表达式 %v", exp)
}

// NewErrInvalidTagContent 返回代表标签格式错误的错误
func NewErrInvalidTagContent(tag string) error {
	return NewConfigurationError("orm: 错误的标签设置: %s", tag)
}

// NewErrNotInsertable 计算列不能写入
func NewErrNotInsertable(fd string) error {
	return NewValidationError("orm: 字段 %s 是计算列，不能写入", fd)
}

func NewErrNoPrimaryKey(table string) error {
	return NewConfigurationError("orm: 表 %s 没有主键，必须指定匹配列", table)
}

func NewErrUnsupportedColumnType(fd string, typ any) error {
	return NewConfigurationError("orm: 无法推断字段 %s 的列类型 %v，请使用 type 标签指定", fd, typ)
}

func NewErrNotRealTable(table string) error {
	return NewConfigurationError("orm: %s 不是一张真实的表", table)
}
