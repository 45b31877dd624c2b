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

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	serializeSubsystem = "serialize"

	// engine 标签取值。
	SyncEngineLabel  = "sync"
	AsyncEngineLabel = "async"

	// status 标签取值。
	SuccessLabel = "success"
	FailLabel    = "fail"
)

var (
	serializeMetricsRegisterOnce sync.Once

	// SerializeTotal 统计序列化运行次数，按引擎和结果分类。
	SerializeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: gardenNamespace,
			Subsystem: serializeSubsystem,
			Name:      "total",
			Help:      "序列化运行总次数",
		}, []string{engineLabelName, schemaLabelName, statusLabelName})

	// SerializeRecords 统计成功产出的记录（输出 mapping）数量。
	SerializeRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: gardenNamespace,
			Subsystem: serializeSubsystem,
			Name:      "records",
			Help:      "序列化成功产出的记录数量",
		}, []string{engineLabelName, schemaLabelName})

	// SerializeErrors 统计失败次数，按错误码分类。
	SerializeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: gardenNamespace,
			Subsystem: serializeSubsystem,
			Name:      "errors",
			Help:      "序列化失败次数（按错误码）",
		}, []string{engineLabelName, schemaLabelName, codeLabelName})

	// SerializeLatency 统计单次序列化运行的耗时，单位为毫秒。
	SerializeLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: gardenNamespace,
			Subsystem: serializeSubsystem,
			Name:      "latency",
			Help:      "单次序列化运行耗时（毫秒）",
			Buckets:   buckets,
		}, []string{engineLabelName, schemaLabelName})
)

// RegisterSerializeMetrics 将序列化相关指标注册到给定 Registerer。
// 重复调用只会注册一次。
func RegisterSerializeMetrics(r prometheus.Registerer) {
	serializeMetricsRegisterOnce.Do(func() {
		r.MustRegister(SerializeTotal)
		r.MustRegister(SerializeRecords)
		r.MustRegister(SerializeErrors)
		r.MustRegister(SerializeLatency)
	})
}
