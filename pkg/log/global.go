// Copyright 2019 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	_globalL atomic.Value // *zap.Logger
	_globalS atomic.Value // *zap.SugaredLogger
	_globalP atomic.Value // *ZapProperties
)

type ctxLogKeyType struct{}

// CtxLogKey 是向 context.Context 中注入 Logger 使用的键。
var CtxLogKey = ctxLogKeyType{}

func init() {
	lg, props := newStdLogger()
	ReplaceGlobals(lg, props)
}

// L 返回全局 Logger。
func L() *zap.Logger {
	return _globalL.Load().(*zap.Logger)
}

// S 返回全局 SugaredLogger。
func S() *zap.SugaredLogger {
	return _globalS.Load().(*zap.SugaredLogger)
}

// P 返回全局 Logger 对应的 ZapProperties。
func P() *ZapProperties {
	return _globalP.Load().(*ZapProperties)
}

// ReplaceGlobals 替换全局 Logger 及其属性。
func ReplaceGlobals(logger *zap.Logger, props *ZapProperties) {
	_globalL.Store(logger)
	_globalS.Store(logger.Sugar())
	_globalP.Store(props)
}

// SetLevel 动态修改全局日志级别。
func SetLevel(level zapcore.Level) {
	P().Level.SetLevel(level)
}

// GetLevel 返回当前全局日志级别。
func GetLevel() zapcore.Level {
	return P().Level.Level()
}

// Ctx 返回 context 中携带的 Logger；
// context 中没有 Logger 时返回全局 Logger。
func Ctx(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return L()
	}
	if lg, ok := ctx.Value(CtxLogKey).(*zap.Logger); ok && lg != nil {
		return lg
	}
	return L()
}

// WithCtx 将 Logger 注入 context，供下游通过 Ctx 取回。
func WithCtx(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, CtxLogKey, logger)
}

// With 基于全局 Logger 追加字段并返回新的 Logger。
func With(fields ...zap.Field) *zap.Logger {
	return L().With(fields...)
}

// Debug 在 Debug 级别输出一条日志。
// 消息包含调用处传入的字段以及 Logger 已经携带的字段。
func Debug(msg string, fields ...zap.Field) {
	L().Debug(msg, fields...)
}

// Info 在 Info 级别输出一条日志。
// 消息包含调用处传入的字段以及 Logger 已经携带的字段。
func Info(msg string, fields ...zap.Field) {
	L().Info(msg, fields...)
}

// Warn 在 Warn 级别输出一条日志。
// 消息包含调用处传入的字段以及 Logger 已经携带的字段。
func Warn(msg string, fields ...zap.Field) {
	L().Warn(msg, fields...)
}

// Error 在 Error 级别输出一条日志。
// 消息包含调用处传入的字段以及 Logger 已经携带的字段。
func Error(msg string, fields ...zap.Field) {
	L().Error(msg, fields...)
}

// Fatal 在 Fatal 级别输出一条日志并终止进程。
func Fatal(msg string, fields ...zap.Field) {
	L().Fatal(msg, fields...)
}
