package shape

import (
	"context"
	"iter"
	"reflect"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lk2023060901/shape-garden-go/pkg/metrics"
	"github.com/lk2023060901/shape-garden-go/pkg/util/conc"
)

// AsyncSerializer 是异步序列化引擎的一次性实例。
//
// 与同步引擎共享同一张编译字段表和同一套字段算法，区别在于：
//   - 异步 method 字段的处理函数携带 ctx，允许阻塞等待；
//   - many 模式对“不同对象”并发展开，结果按输入顺序重组；
//     单个对象内部的字段仍严格按表序求值；
//   - 首个失败会取消同一次调用中尚未完成的兄弟任务，绝不产出部分结果。
//
// 输出同样在首次访问时计算并记忆。单个实例不支持并发使用。
type AsyncSerializer struct {
	schema *Schema
	table  *compiledSchema
	target any
	many   bool
	rc     Context

	pool        *conc.Pool[map[string]any]
	concurrency int

	serialized     map[string]any
	serializedMany []map[string]any
	done           bool
	doneMany       bool
}

type asyncOptions struct {
	many        bool
	rc          Context
	pool        *conc.Pool[map[string]any]
	concurrency int
}

// AsyncOption 用于配置异步序列化器实例的选项函数。
type AsyncOption func(*asyncOptions)

// AsyncMany 声明目标是对象集合。
// 除切片/数组外，还接受接收通道与 iter.Seq[any]，按到达顺序展开。
func AsyncMany() AsyncOption {
	return func(o *asyncOptions) {
		o.many = true
	}
}

// AsyncWithContext 为本次序列化提供只读 Context。
func AsyncWithContext(values map[string]any) AsyncOption {
	return func(o *asyncOptions) {
		o.rc = NewContext(values)
	}
}

// WithPool 指定 many 模式使用的协程池；
// 不指定时使用 errgroup 直接并发。
func WithPool(pool *conc.Pool[map[string]any]) AsyncOption {
	return func(o *asyncOptions) {
		o.pool = pool
	}
}

// WithConcurrency 限制 many 模式同时进行的对象序列化数量。
// 仅对 errgroup 路径生效，0 表示不限制。
func WithConcurrency(n int) AsyncOption {
	return func(o *asyncOptions) {
		o.concurrency = n
	}
}

// NewAsyncSerializer 创建一个异步序列化器实例。
// 纯同步的 Schema 也可以由异步引擎执行。
func NewAsyncSerializer(schema *Schema, target any, opts ...AsyncOption) (*AsyncSerializer, error) {
	var o asyncOptions
	for _, opt := range opts {
		opt(&o)
	}

	table, err := schema.ensureCompiled()
	if err != nil {
		return nil, err
	}
	if err := validateTarget(target, o.many, true); err != nil {
		return nil, err
	}

	return &AsyncSerializer{
		schema:      schema,
		table:       table,
		target:      target,
		many:        o.many,
		rc:          o.rc,
		pool:        o.pool,
		concurrency: o.concurrency,
	}, nil
}

// Serialized 返回单对象序列化结果，结果在实例内记忆。
func (s *AsyncSerializer) Serialized(ctx context.Context) (map[string]any, error) {
	if s.done {
		return s.serialized, nil
	}

	start := time.Now()
	out, err := serializeItem(ctx, s.table, s.rc, s.target)
	if err != nil {
		s.observe(err, 0, start)
		return nil, err
	}

	s.serialized = out
	s.done = true
	s.observe(nil, 1, start)
	return out, nil
}

// SerializedMany 返回对象集合的序列化结果。
// 无论各对象的求值以何种先后完成，输出序列始终与输入顺序一致。
func (s *AsyncSerializer) SerializedMany(ctx context.Context) ([]map[string]any, error) {
	if s.doneMany {
		return s.serializedMany, nil
	}

	start := time.Now()
	items, err := collectItems(ctx, s.target)
	if err != nil {
		s.observe(err, 0, start)
		return nil, err
	}

	var results []map[string]any
	if s.pool != nil {
		results, err = s.serializeManyPooled(ctx, items)
	} else {
		results, err = s.serializeManyGroup(ctx, items)
	}
	if err != nil {
		s.observe(err, 0, start)
		return nil, err
	}

	s.serializedMany = results
	s.doneMany = true
	s.observe(nil, len(results), start)
	return results, nil
}

// Serialize 按 many 标志分派到 Serialized 或 SerializedMany。
func (s *AsyncSerializer) Serialize(ctx context.Context) (any, error) {
	if s.many {
		return s.SerializedMany(ctx)
	}
	return s.Serialized(ctx)
}

// serializeManyGroup 通过 errgroup 并发展开各对象。
// 首个失败会取消组内 ctx，其余任务在下一个字段边界退出。
func (s *AsyncSerializer) serializeManyGroup(ctx context.Context, items []any) ([]map[string]any, error) {
	results := make([]map[string]any, len(items))

	g, gctx := errgroup.WithContext(ctx)
	if s.concurrency > 0 {
		g.SetLimit(s.concurrency)
	}
	for i := range items {
		g.Go(func() error {
			m, err := serializeItem(gctx, s.table, s.rc, items[i])
			if err != nil {
				return err
			}
			results[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// serializeManyPooled 将各对象的序列化提交到协程池。
// 任一任务失败会立即取消派生 ctx，未开始的任务直接以取消态返回；
// 所有 Future 都会被等待，避免任务泄漏。
//
// 注意：池满时失败任务要排队等待空闲 worker 才能开始，
// 取消信号的传播延迟因此受在跑任务的阻塞时长约束。
func (s *AsyncSerializer) serializeManyPooled(ctx context.Context, items []any) ([]map[string]any, error) {
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 触发取消的那个错误只记录一次；
	// 兄弟任务随后返回的取消态不得掩盖真正的失败原因。
	var (
		failOnce sync.Once
		failErr  error
	)

	futures := make([]*conc.Future[map[string]any], len(items))
	for i := range items {
		item := items[i]
		futures[i] = s.pool.Submit(func() (map[string]any, error) {
			if err := cctx.Err(); err != nil {
				return nil, err
			}
			m, err := serializeItem(cctx, s.table, s.rc, item)
			if err != nil {
				failOnce.Do(func() { failErr = err })
				cancel()
				return nil, err
			}
			return m, nil
		})
	}

	awaitErr := conc.AwaitAll(futures...)
	// AwaitAll 返回后所有任务都已结束，failErr 的读取无需加锁。
	if failErr != nil {
		return nil, failErr
	}
	if awaitErr != nil {
		// 没有任务自身失败，只可能是父 ctx 被取消。
		return nil, awaitErr
	}

	results := make([]map[string]any, len(items))
	for i, future := range futures {
		results[i] = future.Value()
	}
	return results, nil
}

func (s *AsyncSerializer) observe(err error, records int, start time.Time) {
	observeRun(metrics.AsyncEngineLabel, s.schema.name, err, records, start)
}

// isStreamTarget 判断目标是否为异步引擎可消费的流式集合。
func isStreamTarget(target any) bool {
	if _, ok := target.(iter.Seq[any]); ok {
		return true
	}
	rv := reflect.ValueOf(target)
	return rv.Kind() == reflect.Chan && rv.Type().ChanDir() != reflect.SendDir
}

// collectItems 将 many 目标展开为有序的对象切片。
// 通道与 iter.Seq 按到达顺序收集，期间尊重 ctx 取消。
func collectItems(ctx context.Context, target any) ([]any, error) {
	if seq, ok := target.(iter.Seq[any]); ok {
		var items []any
		for item := range seq {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return items, nil
	}

	rv := reflect.ValueOf(target)
	if rv.Kind() == reflect.Chan && rv.Type().ChanDir() != reflect.SendDir {
		return drainChannel(ctx, rv)
	}
	return listItems(target)
}

func drainChannel(ctx context.Context, ch reflect.Value) ([]any, error) {
	var items []any
	cases := []reflect.SelectCase{
		{Dir: reflect.SelectRecv, Chan: ch},
		{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())},
	}
	for {
		chosen, v, ok := reflect.Select(cases)
		if chosen == 1 {
			return nil, ctx.Err()
		}
		if !ok {
			return items, nil
		}
		items = append(items, v.Interface())
	}
}
