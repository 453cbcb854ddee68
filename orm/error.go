package orm

import (
	"errors"

	"github.com/coderi421/bulkops/orm/internal/errs"
)

// 将内部的 sentinel error 暴露出去
var (
	// ErrNoRows 代表没有找到数据
	ErrNoRows = errs.ErrNoRows
	// ErrTempTableReleased 临时表释放之后，基于它的查询都会返回这个错误
	ErrTempTableReleased = errs.ErrTempTableReleased
)

type (
	// ValidationError 参数错误，在访问数据库之前返回
	ValidationError = errs.ValidationError
	// ConfigurationError 列、主键配置错误，在访问数据库之前返回
	ConfigurationError = errs.ConfigurationError
	// ProviderExecutionError 数据库执行失败，不会自动重试
	ProviderExecutionError = errs.ProviderExecutionError
)

func IsValidationError(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

func IsConfigurationError(err error) bool {
	var e *ConfigurationError
	return errors.As(err, &e)
}

func IsProviderExecutionError(err error) bool {
	var e *ProviderExecutionError
	return errors.As(err, &e)
}
