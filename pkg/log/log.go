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
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ZapProperties 记录一次 InitLogger 产生的可复用组件。
type ZapProperties struct {
	Core   zapcore.Core
	Syncer zapcore.WriteSyncer
	Level  zap.AtomicLevel
}

// InitLogger 根据配置初始化一个 zap Logger。
// 返回的 ZapProperties 可用于后续动态调整日志级别。
func InitLogger(cfg *Config, opts ...zap.Option) (*zap.Logger, *ZapProperties, error) {
	cfg.normalize()

	var outputs []zapcore.WriteSyncer
	if len(cfg.File.Filename) > 0 {
		lg, err := initFileLog(&cfg.File)
		if err != nil {
			return nil, nil, err
		}
		outputs = append(outputs, zapcore.AddSync(lg))
	}
	if cfg.Stdout || len(outputs) == 0 {
		stdOut, _, err := zap.Open("stdout")
		if err != nil {
			return nil, nil, err
		}
		outputs = append(outputs, stdOut)
	}
	syncer := zap.CombineWriteSyncers(outputs...)

	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, nil, errors.Wrapf(err, "log: invalid level %q", cfg.Level)
	}

	core := zapcore.NewCore(newEncoder(cfg), syncer, level)
	opts = append(cfg.buildOptions(syncer), opts...)
	lg := zap.New(core, opts...)

	props := &ZapProperties{
		Core:   core,
		Syncer: syncer,
		Level:  level,
	}
	return lg, props, nil
}

// initFileLog 基于 lumberjack 初始化带滚动能力的文件日志输出。
func initFileLog(cfg *FileLogConfig) (*lumberjack.Logger, error) {
	filename := cfg.Filename
	if cfg.RootPath != "" {
		filename = filepath.Join(cfg.RootPath, filename)
	}
	if st, err := os.Stat(filename); err == nil {
		if st.IsDir() {
			return nil, errors.New("log: can't use directory as log file name")
		}
	}

	return &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxDays,
		LocalTime:  true,
	}, nil
}

func newEncoder(cfg *Config) zapcore.Encoder {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeDuration = zapcore.StringDurationEncoder
	if cfg.DisableTimestamp {
		encCfg.TimeKey = zapcore.OmitKey
	}

	switch cfg.Format {
	case "json":
		return zapcore.NewJSONEncoder(encCfg)
	default:
		// text 与 console 均使用控制台编码。
		return zapcore.NewConsoleEncoder(encCfg)
	}
}

// newStdLogger 创建默认的标准输出 Logger，供进程启动早期使用。
func newStdLogger() (*zap.Logger, *ZapProperties) {
	cfg := &Config{Stdout: true}
	lg, props, err := InitLogger(cfg, zap.AddCallerSkip(1))
	if err != nil {
		// 默认配置下初始化不可能失败。
		panic(err)
	}
	return lg, props
}
