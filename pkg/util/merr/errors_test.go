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
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/suite"
)

type ErrSuite struct {
	suite.Suite
}

func (s *ErrSuite) TestCode() {
	err := WrapErrFieldMissing("title")
	wrapped := errors.Wrap(err, "failed to serialize record")
	s.ErrorIs(wrapped, ErrFieldMissing)
	s.Equal(Code(ErrFieldMissing), Code(wrapped))
	s.Equal(TimeoutCode, Code(context.DeadlineExceeded))
	s.Equal(CanceledCode, Code(context.Canceled))
	s.Equal(errUnexpected.errCode, Code(errUnexpected))

	sameCodeErr := newGardenError("new error", ErrFieldMissing.errCode, false)
	s.True(sameCodeErr.Is(ErrFieldMissing))
}

func (s *ErrSuite) TestWrap() {
	// Schema 相关错误。
	s.ErrorIs(WrapErrSchemaDefinition("UserSchema", "no fields declared"), ErrSchemaDefinition)
	s.ErrorIs(WrapErrSchemaFrozen("UserSchema", "add after compile"), ErrSchemaFrozen)
	s.ErrorIs(WrapErrSchemaMethod("UserSchema", "get_plus"), ErrSchemaMethod)
	s.ErrorIs(WrapErrSchemaDuplicateField("UserSchema", []string{"id", "id"}), ErrSchemaDefinition)

	// Field 相关错误。
	s.ErrorIs(WrapErrFieldMissing("title", "record 3"), ErrFieldMissing)
	s.ErrorIs(WrapErrFieldConversion("count", "not-a-number", nil), ErrFieldConversion)
	s.ErrorIs(WrapErrFieldNotCall("fn", 42), ErrFieldNotCall)

	// Target 相关错误。
	s.ErrorIs(WrapErrTargetList("many flag unset"), ErrTargetList)
	s.ErrorIs(WrapErrTargetNotList(1), ErrTargetNotList)
	s.ErrorIs(WrapErrSerializerAsync("UserSchema", []string{"avatar"}), ErrSerializerAsync)
}

func (s *ErrSuite) TestErrorType() {
	s.Equal(InputError, GetErrorType(WrapErrFieldMissing("title")))
	s.Equal(InputError, GetErrorType(WrapErrTargetList()))
	s.Equal(SystemError, GetErrorType(WrapErrSchemaMethod("UserSchema", "get_plus")))
	s.Equal(SystemError, GetErrorType(errors.New("some random error")))
	s.Equal("input_error", InputError.String())
}

func (s *ErrSuite) TestIsCanceledOrTimeout() {
	s.True(IsCanceledOrTimeout(context.Canceled))
	s.True(IsCanceledOrTimeout(context.DeadlineExceeded))
	s.False(IsCanceledOrTimeout(ErrFieldMissing))
	s.False(IsRetryableErr(ErrFieldMissing))
}

func TestErrors(t *testing.T) {
	suite.Run(t, new(ErrSuite))
}
