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
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// gardenNamespace 是当前项目所有 Prometheus 指标使用的命名空间。
	gardenNamespace = "shape_garden"

	// 以下为当前使用的通用标签名。
	engineLabelName = "engine"
	schemaLabelName = "schema"
	statusLabelName = "status"
	codeLabelName   = "error_code"
)

var (
	// buckets 为序列化耗时直方图的桶划分，单位为毫秒。
	// 从 0.1ms 起按 2 的幂扩展，共 14 个桶。
	buckets = prometheus.ExponentialBuckets(0.1, 2, 14)

	metricRegisterer prometheus.Registerer
)

// GetRegisterer 返回全局 Prometheus Registerer。
// 如果尚未通过 Register 显式设置，则返回 prometheus.DefaultRegisterer。
func GetRegisterer() prometheus.Registerer {
	if metricRegisterer == nil {
		return prometheus.DefaultRegisterer
	}
	return metricRegisterer
}

// Register 设置全局 Prometheus Registerer，并注册当前项目的全部指标。
func Register(r prometheus.Registerer) {
	metricRegisterer = r
	RegisterSerializeMetrics(r)
}
