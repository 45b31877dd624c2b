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
	"github.com/cockroachdb/errors"
)

const (
	CanceledCode int32 = 10000
	TimeoutCode  int32 = 10001
)

type ErrorType int32

const (
	SystemError ErrorType = 0
	InputError  ErrorType = 1
)

var ErrorTypeName = map[ErrorType]string{
	SystemError: "system_error",
	InputError:  "input_error",
}

func (err ErrorType) String() string {
	return ErrorTypeName[err]
}

// Define leaf errors here,
// WARN: take care to add new error,
// check whether you can use the errors below before adding a new one.
// Name: Err + related prefix + error name
var (
	// Schema 相关：字段表定义/编译期错误。
	ErrSchemaDefinition = newGardenError("invalid schema definition", 100, false)
	ErrSchemaFrozen     = newGardenError("schema already compiled", 101, false)
	ErrSchemaMethod     = newGardenError("method handler not found", 102, false)

	// Field 相关：单次序列化运行中的字段级错误。
	ErrFieldMissing    = newGardenError("field attribute missing", 200, false, WithErrorType(InputError))
	ErrFieldConversion = newGardenError("field value not convertible", 201, false, WithErrorType(InputError))
	ErrFieldNotCall    = newGardenError("field value not callable", 202, false)

	// Target 相关：序列化目标与 many 标志不匹配。
	ErrTargetList    = newGardenError("cannot serialize an object from a list target", 300, false, WithErrorType(InputError))
	ErrTargetNotList = newGardenError("cannot serialize a list from a non-iterable target", 301, false, WithErrorType(InputError))

	// Serializer 实例相关。
	ErrSerializerAsync = newGardenError("schema contains async fields, use AsyncSerializer", 400, false)

	// never allow programmer using this, keep only for converting unknown error to gardenError
	errUnexpected = newGardenError("unexpected error", 1, false)
)

type errorOption func(*gardenError)

func WithDetail(detail string) errorOption {
	return func(err *gardenError) {
		err.detail = detail
	}
}

func WithErrorType(etype ErrorType) errorOption {
	return func(err *gardenError) {
		err.errType = etype
	}
}

// gardenError 是本项目错误码体系的叶子错误类型。
// 通过 errCode 判等，因此经过 errors.Wrap 之后依然可以用 errors.Is 命中叶子错误。
type gardenError struct {
	msg       string
	detail    string
	retriable bool
	errCode   int32
	errType   ErrorType
}

func newGardenError(msg string, code int32, retriable bool, options ...errorOption) gardenError {
	err := gardenError{
		msg:       msg,
		detail:    msg,
		retriable: retriable,
		errCode:   code,
	}

	for _, option := range options {
		option(&err)
	}
	return err
}

func (e gardenError) code() int32 {
	return e.errCode
}

func (e gardenError) Error() string {
	return e.msg
}

func (e gardenError) Detail() string {
	return e.detail
}

func (e gardenError) Is(err error) bool {
	cause := errors.Cause(err)
	if cause, ok := cause.(gardenError); ok {
		return e.errCode == cause.errCode
	}
	return false
}
