// Copyright 2021 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"bytes"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

// testingWriter 将日志写入 testing.T 的输出，便于失败时定位。
type testingWriter struct {
	t zaptest.TestingT
}

func (w testingWriter) Write(p []byte) (int, error) {
	n := len(p)
	p = bytes.TrimRight(p, "\n")
	w.t.Logf("%s", p)
	return n, nil
}

func (w testingWriter) Sync() error {
	return nil
}

// NewTestLogger 创建一个把输出重定向到测试框架的 Logger。
func NewTestLogger(t zaptest.TestingT, level zapcore.Level) *zap.Logger {
	writer := testingWriter{t: t}
	cfg := &Config{Format: "text"}
	return zap.New(
		zapcore.NewCore(newEncoder(cfg), writer, level),
		zap.ErrorOutput(writer),
	)
}

// SetupTestLogger 将全局 Logger 替换为测试 Logger，并返回恢复函数。
func SetupTestLogger(t zaptest.TestingT) func() {
	prevL, prevP := L(), P()
	lg := NewTestLogger(t, zapcore.DebugLevel)
	ReplaceGlobals(lg, &ZapProperties{
		Core:   lg.Core(),
		Syncer: testingWriter{t: t},
		Level:  zap.NewAtomicLevelAt(zapcore.DebugLevel),
	})
	return func() {
		ReplaceGlobals(prevL, prevP)
	}
}
