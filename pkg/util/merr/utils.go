// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package merr

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

// Code 返回给定错误对应的错误码。
// 注意：取的是 Cause 链最底层的叶子错误码。
func Code(err error) int32 {
	if err == nil {
		return 0
	}

	cause := errors.Cause(err)
	switch specificErr := cause.(type) {
	case gardenError:
		return specificErr.code()

	default:
		if errors.Is(specificErr, context.Canceled) {
			return CanceledCode
		} else if errors.Is(specificErr, context.DeadlineExceeded) {
			return TimeoutCode
		} else {
			return errUnexpected.code()
		}
	}
}

func IsRetryableErr(err error) bool {
	if err, ok := err.(gardenError); ok {
		return err.retriable
	}

	return false
}

func IsCanceledOrTimeout(err error) bool {
	return errors.IsAny(err, context.Canceled, context.DeadlineExceeded)
}

// GetErrorType 返回错误的归类（系统错误 / 输入错误）。
// 非本项目错误码体系下的错误一律视为系统错误。
func GetErrorType(err error) ErrorType {
	if merr, ok := errors.Cause(err).(gardenError); ok {
		return merr.errType
	}

	return SystemError
}

// CombineCode 返回用于指标标签的错误码字符串。
func CombineCode(err error) string {
	return fmt.Sprintf("%d", Code(err))
}

// Schema 相关错误封装。

func WrapErrSchemaDefinition(schema string, reason string, msg ...string) error {
	err := wrapFieldsWithDesc(ErrSchemaDefinition, reason, value("schema", schema))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrSchemaFrozen(schema string, msg ...string) error {
	err := wrapFields(ErrSchemaFrozen, value("schema", schema))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrSchemaMethod(schema string, method string, msg ...string) error {
	err := wrapFields(ErrSchemaMethod,
		value("schema", schema),
		value("method", method),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// WrapErrSchemaDuplicateField 报告同一张字段表内重复的输出名。
func WrapErrSchemaDuplicateField(schema string, names []string, msg ...string) error {
	quoted := lo.Map(names, func(name string, _ int) string {
		return fmt.Sprintf("%q", name)
	})
	err := wrapFieldsWithDesc(ErrSchemaDefinition,
		"duplicate output names",
		value("schema", schema),
		value("fields", strings.Join(quoted, ",")),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// Field 相关错误封装。

func WrapErrFieldMissing(field string, msg ...string) error {
	err := wrapFields(ErrFieldMissing, value("field", field))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrFieldConversion(field string, raw any, cause error) error {
	desc := fmt.Sprintf("%v (%T)", raw, raw)
	if cause != nil {
		desc = cause.Error()
	}
	return wrapFieldsWithDesc(ErrFieldConversion, desc,
		value("field", field),
	)
}

func WrapErrFieldNotCall(field string, raw any) error {
	return wrapFieldsWithDesc(ErrFieldNotCall,
		fmt.Sprintf("value of type %T is not a zero-arg callable", raw),
		value("field", field),
	)
}

// Target 相关错误封装。

func WrapErrTargetList(msg ...string) error {
	err := error(ErrTargetList)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrTargetNotList(target any, msg ...string) error {
	err := wrapFields(ErrTargetNotList, value("target", fmt.Sprintf("%T", target)))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrSerializerAsync(schema string, fields []string) error {
	return wrapFields(ErrSerializerAsync,
		value("schema", schema),
		value("asyncFields", strings.Join(fields, ",")),
	)
}

func wrapFields(err gardenError, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.detail = err.msg
	return err
}

func wrapFieldsWithDesc(err gardenError, desc string, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.msg += ": " + desc
	err.detail = err.msg
	return err
}

type errorField interface {
	String() string
}

type valueField struct {
	name  string
	value any
}

func value(name string, value any) valueField {
	return valueField{
		name,
		value,
	}
}

func (f valueField) String() string {
	return fmt.Sprintf("%s=%v", f.name, f.value)
}
