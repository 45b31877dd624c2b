package shape

import (
	"context"
	"time"

	"github.com/lk2023060901/shape-garden-go/pkg/metrics"
	"github.com/lk2023060901/shape-garden-go/pkg/util/merr"
)

// Serializer 是同步序列化引擎的一次性实例：
// 绑定一个 Schema、一个目标对象（或对象列表）和一个只读 Context。
//
// 输出在首次访问时计算并记忆，之后的访问直接返回缓存结果；
// 目标对象在此之后发生的变化不会反映到输出中。
// 单个实例不支持并发使用，需要并发时请为每个调用方各建实例。
type Serializer struct {
	schema *Schema
	table  *compiledSchema
	target any
	many   bool
	rc     Context

	serialized     map[string]any
	serializedMany []map[string]any
	done           bool
	doneMany       bool
}

type serializerOptions struct {
	many bool
	rc   Context
}

// SerializerOption 用于配置序列化器实例的选项函数。
type SerializerOption func(*serializerOptions)

// Many 声明目标是对象的有序集合，输出为逐项序列化的有序序列。
func Many() SerializerOption {
	return func(o *serializerOptions) {
		o.many = true
	}
}

// WithContext 为本次序列化提供只读 Context，
// 供 method 字段处理函数使用。
func WithContext(values map[string]any) SerializerOption {
	return func(o *serializerOptions) {
		o.rc = NewContext(values)
	}
}

// NewSerializer 创建一个同步序列化器实例。
//
// 定义错误（含 schema 编译失败、表内含异步字段）以及
// 目标与 many 标志不匹配都会在这里立即返回。
func NewSerializer(schema *Schema, target any, opts ...SerializerOption) (*Serializer, error) {
	var o serializerOptions
	for _, opt := range opts {
		opt(&o)
	}

	table, err := schema.ensureCompiled()
	if err != nil {
		return nil, err
	}
	if table.hasAsync() {
		return nil, merr.WrapErrSerializerAsync(schema.name, table.asyncFields)
	}
	if err := validateTarget(target, o.many, false); err != nil {
		return nil, err
	}

	return &Serializer{
		schema: schema,
		table:  table,
		target: target,
		many:   o.many,
		rc:     o.rc,
	}, nil
}

// validateTarget 校验目标与 many 标志的匹配关系。
// allowStream 为 true 时（异步引擎）额外接受通道与 iter.Seq。
func validateTarget(target any, many bool, allowStream bool) error {
	if target == nil {
		return nil
	}
	isList := isListTarget(target)
	if isList && !many {
		return merr.WrapErrTargetList()
	}
	if many && !isList {
		if allowStream && isStreamTarget(target) {
			return nil
		}
		return merr.WrapErrTargetNotList(target)
	}
	return nil
}

// Serialized 返回单对象序列化结果，结果在实例内记忆。
func (s *Serializer) Serialized() (map[string]any, error) {
	if s.done {
		return s.serialized, nil
	}

	start := time.Now()
	out, err := serializeItem(context.Background(), s.table, s.rc, s.target)
	if err != nil {
		s.observe(err, 0, start)
		return nil, err
	}

	s.serialized = out
	s.done = true
	s.observe(nil, 1, start)
	return out, nil
}

// SerializedMany 返回对象列表的序列化结果，
// 输出序列与输入顺序一一对应；结果在实例内记忆。
func (s *Serializer) SerializedMany() ([]map[string]any, error) {
	if s.doneMany {
		return s.serializedMany, nil
	}

	start := time.Now()
	items, err := listItems(s.target)
	if err != nil {
		s.observe(err, 0, start)
		return nil, err
	}

	results := make([]map[string]any, len(items))
	for i, item := range items {
		m, err := serializeItem(context.Background(), s.table, s.rc, item)
		if err != nil {
			s.observe(err, 0, start)
			return nil, err
		}
		results[i] = m
	}

	s.serializedMany = results
	s.doneMany = true
	s.observe(nil, len(results), start)
	return results, nil
}

// Serialize 按 many 标志分派到 Serialized 或 SerializedMany。
// 返回值类型为 map[string]any 或 []map[string]any。
func (s *Serializer) Serialize() (any, error) {
	if s.many {
		return s.SerializedMany()
	}
	return s.Serialized()
}

func (s *Serializer) observe(err error, records int, start time.Time) {
	observeRun(metrics.SyncEngineLabel, s.schema.name, err, records, start)
}

// observeRun 上报一次序列化运行的指标。
func observeRun(engine, schema string, err error, records int, start time.Time) {
	elapsed := float64(time.Since(start).Microseconds()) / 1000.0
	metrics.SerializeLatency.WithLabelValues(engine, schema).Observe(elapsed)
	if err != nil {
		metrics.SerializeTotal.WithLabelValues(engine, schema, metrics.FailLabel).Inc()
		metrics.SerializeErrors.WithLabelValues(engine, schema, merr.CombineCode(err)).Inc()
		return
	}
	metrics.SerializeTotal.WithLabelValues(engine, schema, metrics.SuccessLabel).Inc()
	metrics.SerializeRecords.WithLabelValues(engine, schema).Add(float64(records))
}
