package shape

import (
	"context"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/lk2023060901/shape-garden-go/pkg/log"
	"github.com/lk2023060901/shape-garden-go/pkg/util/merr"
	"github.com/lk2023060901/shape-garden-go/pkg/util/typeutil"
)

// Schema 是序列化器的类型级定义：一组按声明顺序登记的字段，
// 外加 method 字段的处理函数表。
//
// 用法上对应“以声明方式在类型上挂字段”的模式：
//
//	user := shape.NewSchema("User").
//	        Add("id", shape.NewIntField()).
//	        Add("name", shape.NewStrField()).
//	        Add("plus", shape.NewMethodField()).
//	        Handle("get_plus", func(c shape.Context, obj any) (any, error) { ... })
//
// Extend 建立继承关系：祖先字段排在前面，
// 子类重新声明同名字段只替换行为、不改变位置。
//
// Schema 在首次被使用时编译一次并缓存；
// 编译之后继续 Add/Handle 属于定义错误。
type Schema struct {
	name   string
	base   *Schema
	access AccessMode

	fields        []declaredField
	handlers      map[string]MethodFunc
	asyncHandlers map[string]AsyncMethodFunc

	// defErr 记录构建阶段出现的定义错误，统一在编译时暴露。
	defErr error

	compileOnce sync.Once
	compiled    *compiledSchema
	compileErr  error
}

type declaredField struct {
	// name 为声明名：缺省的输出名，也是 attr 与处理函数名的缺省依据。
	name  string
	field *Field
}

// SchemaOption 用于配置 Schema 的选项函数。
type SchemaOption func(*Schema)

// WithAccessMode 设置默认属性访问模式。
// 缺省为 AttrAccess；Extend 出的子 Schema 继承父级的模式。
func WithAccessMode(mode AccessMode) SchemaOption {
	return func(s *Schema) {
		s.access = mode
	}
}

// NewSchema 创建一个空的 Schema。
func NewSchema(name string, opts ...SchemaOption) *Schema {
	s := &Schema{
		name:          name,
		access:        AttrAccess,
		handlers:      make(map[string]MethodFunc),
		asyncHandlers: make(map[string]AsyncMethodFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewDictSchema 创建一个按字符串键 map 取值的 Schema。
func NewDictSchema(name string, opts ...SchemaOption) *Schema {
	opts = append([]SchemaOption{WithAccessMode(ItemAccess)}, opts...)
	return NewSchema(name, opts...)
}

// Extend 以当前 Schema 为基础创建子 Schema。
// 子 Schema 继承全部祖先字段与处理函数，并默认沿用访问模式。
func (s *Schema) Extend(name string, opts ...SchemaOption) *Schema {
	sub := NewSchema(name, WithAccessMode(s.access))
	sub.base = s
	for _, opt := range opts {
		opt(sub)
	}
	return sub
}

// Name 返回 Schema 名称。
func (s *Schema) Name() string {
	return s.name
}

// Add 登记一个字段，name 为声明名。
// 返回 Schema 自身以便链式调用。
func (s *Schema) Add(name string, f *Field) *Schema {
	if s.isFrozen() {
		s.defErr = merr.WrapErrSchemaFrozen(s.name, "add field "+name)
		return s
	}
	if name == "" || f == nil {
		s.defErr = merr.WrapErrSchemaDefinition(s.name, "field name and descriptor must not be empty")
		return s
	}
	s.fields = append(s.fields, declaredField{name: name, field: f})
	return s
}

// Handle 注册一个同步 method 字段处理函数。
// 名称需与 method 字段的处理函数名一致（缺省 "get_" + 声明名）。
func (s *Schema) Handle(name string, fn MethodFunc) *Schema {
	if s.isFrozen() {
		s.defErr = merr.WrapErrSchemaFrozen(s.name, "register handler "+name)
		return s
	}
	if fn == nil {
		s.defErr = merr.WrapErrSchemaDefinition(s.name, "handler "+name+" is nil")
		return s
	}
	s.handlers[name] = fn
	return s
}

// HandleAsync 注册一个异步 method 字段处理函数。
func (s *Schema) HandleAsync(name string, fn AsyncMethodFunc) *Schema {
	if s.isFrozen() {
		s.defErr = merr.WrapErrSchemaFrozen(s.name, "register async handler "+name)
		return s
	}
	if fn == nil {
		s.defErr = merr.WrapErrSchemaDefinition(s.name, "async handler "+name+" is nil")
		return s
	}
	s.asyncHandlers[name] = fn
	return s
}

// Compile 显式触发编译并返回定义错误。
// 不显式调用时，编译也会在首次构造序列化器时惰性发生。
func (s *Schema) Compile() error {
	_, err := s.ensureCompiled()
	return err
}

func (s *Schema) isFrozen() bool {
	return s.compiled != nil || s.compileErr != nil
}

// ensureCompiled 编译字段表并缓存，进程内每个 Schema 只编译一次。
func (s *Schema) ensureCompiled() (*compiledSchema, error) {
	s.compileOnce.Do(func() {
		s.compiled, s.compileErr = s.compile()
		if s.compileErr != nil {
			s.compiled = nil
			return
		}
		log.Debug("schema compiled",
			zap.String("schema", s.name),
			zap.Int("fields", len(s.compiled.fields)),
			zap.Strings("asyncFields", s.compiled.asyncFields))
	})
	// 编译成功之后发生的定义错误（修改冻结 Schema）同样要暴露出来。
	if s.compileErr == nil && s.defErr != nil {
		return nil, s.defErr
	}
	return s.compiled, s.compileErr
}

// lookupHandler 自最派生的 Schema 起查找同步处理函数。
func (s *Schema) lookupHandler(name string) (MethodFunc, bool) {
	for cur := s; cur != nil; cur = cur.base {
		if fn, ok := cur.handlers[name]; ok {
			return fn, true
		}
	}
	return nil, false
}

// lookupAsyncHandler 自最派生的 Schema 起查找异步处理函数。
func (s *Schema) lookupAsyncHandler(name string) (AsyncMethodFunc, bool) {
	for cur := s; cur != nil; cur = cur.base {
		if fn, ok := cur.asyncHandlers[name]; ok {
			return fn, true
		}
	}
	return nil, false
}

// ancestorChain 返回自根基类到当前 Schema 的链。
func (s *Schema) ancestorChain() []*Schema {
	var chain []*Schema
	for cur := s; cur != nil; cur = cur.base {
		chain = append(chain, cur)
	}
	// 反转为“基类在前”。
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// hasAsyncFields 递归判断 Schema（含祖先与嵌套 schema）是否包含异步字段。
func (s *Schema) hasAsyncFields(seen typeutil.Set[*Schema]) bool {
	if seen.Contain(s) {
		return false
	}
	seen.Insert(s)

	for _, sc := range s.ancestorChain() {
		for _, df := range sc.fields {
			if df.field.kind == kindAsyncMethod {
				return true
			}
			if df.field.nested != nil && df.field.nested.hasAsyncFields(seen) {
				return true
			}
		}
	}
	return false
}

// FieldNames 返回编译后字段表的输出名，按表序排列。
// 主要用于测试与诊断。
func (s *Schema) FieldNames() ([]string, error) {
	cs, err := s.ensureCompiled()
	if err != nil {
		return nil, err
	}
	return lo.Map(cs.fields, func(f compiledField, _ int) string {
		return f.name
	}), nil
}

// 编译期检查用的 getter 函数类型。

type getterFunc func(rc Context, obj any) (any, error)

type asyncGetterFunc func(ctx context.Context, rc Context, obj any) (any, error)
