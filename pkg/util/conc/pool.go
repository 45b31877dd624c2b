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

package conc

import (
	"fmt"
	"runtime"

	ants "github.com/panjf2000/ants/v2"
	"go.uber.org/atomic"
)

// Pool 是基于 ants 的泛型协程池封装。
//
// 与直接使用 ants.Pool 的区别：
//   - Submit 返回 Future，调用方可以拿到任务的返回值和错误；
//   - 任务内的 panic 会被转换为 Future 的 error，而不是打断整个进程。
type Pool[T any] struct {
	inner *ants.Pool
	opt   *poolOption

	// pending 为已提交但尚未完成的任务数。
	pending atomic.Int64
}

// NewPool 创建一个容量为 cap 的协程池。
// cap <= 0 时使用 CPU 核数作为容量。
func NewPool[T any](cap int, opts ...PoolOption) *Pool[T] {
	if cap <= 0 {
		cap = runtime.GOMAXPROCS(0)
	}

	opt := defaultPoolOption()
	for _, o := range opts {
		o(opt)
	}

	pool, err := ants.NewPool(cap, opt.antsOptions()...)
	if err != nil {
		// ants 仅在参数非法时返回错误，容量已在上面兜底，
		// 这里只可能是编程错误。
		panic(err)
	}

	return &Pool[T]{
		inner: pool,
		opt:   opt,
	}
}

// NewDefaultPool 返回一个以 CPU 核数为容量、预分配 worker 的协程池。
func NewDefaultPool[T any]() *Pool[T] {
	return NewPool[T](runtime.GOMAXPROCS(0), WithPreAlloc(true))
}

// Submit 向池中提交一个任务，并返回对应的 Future。
// 当池满且配置为非阻塞时，Future 会立即携带提交错误。
func (pool *Pool[T]) Submit(method func() (T, error)) *Future[T] {
	future := newFuture[T]()
	pool.pending.Inc()

	err := pool.inner.Submit(func() {
		defer pool.pending.Dec()
		defer close(future.ch)

		defer func() {
			if v := recover(); v != nil {
				future.err = fmt.Errorf("conc: task panicked: %v", v)
			}
		}()

		res, err := method()
		if err != nil {
			future.err = err
			return
		}
		future.value = res
	})
	if err != nil {
		pool.pending.Dec()
		future.err = err
		close(future.ch)
	}

	return future
}

// Cap 返回池的容量。
func (pool *Pool[T]) Cap() int {
	return pool.inner.Cap()
}

// Running 返回当前正在执行任务的 worker 数。
func (pool *Pool[T]) Running() int {
	return pool.inner.Running()
}

// Pending 返回已提交但尚未完成的任务数。
func (pool *Pool[T]) Pending() int64 {
	return pool.pending.Load()
}

// Free 返回池中空闲的 worker 数。
func (pool *Pool[T]) Free() int {
	return pool.inner.Free()
}

// Release 关闭协程池并回收全部 worker。
// 调用后不允许再 Submit。
func (pool *Pool[T]) Release() {
	pool.inner.Release()
}
