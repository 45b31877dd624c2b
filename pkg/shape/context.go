package shape

// Context 是一次序列化运行期间对自定义字段逻辑可见的只读映射。
//
// 约定：
//   - 在构造 Serializer / AsyncSerializer 时对传入的 map 做一次快照，
//     之后引擎与字段处理函数都只读不写；
//   - 嵌套 schema 字段递归时自动继承同一个 Context（见 DESIGN.md）。
type Context struct {
	values map[string]any
}

// NewContext 基于给定 map 创建 Context。
// 传入的 map 会被复制，调用方之后对原 map 的修改不影响 Context。
func NewContext(values map[string]any) Context {
	if len(values) == 0 {
		return Context{}
	}
	snapshot := make(map[string]any, len(values))
	for k, v := range values {
		snapshot[k] = v
	}
	return Context{values: snapshot}
}

// Get 返回指定键的值以及该键是否存在。
func (c Context) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Value 返回指定键的值，键不存在时返回 nil。
func (c Context) Value(key string) any {
	return c.values[key]
}

// Has 判断指定键是否存在。
func (c Context) Has(key string) bool {
	_, ok := c.values[key]
	return ok
}

// Len 返回 Context 中键值对的数量。
func (c Context) Len() int {
	return len(c.values)
}
