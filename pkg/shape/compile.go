package shape

import (
	"cmp"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	"github.com/lk2023060901/shape-garden-go/pkg/util/merr"
	"github.com/lk2023060901/shape-garden-go/pkg/util/typeutil"
)

// compiledSchema 是编译产物：有序、扁平化的字段表。
// 每个 Schema 编译一次，进程内缓存复用。
type compiledSchema struct {
	name   string
	access AccessMode
	fields []compiledField

	// asyncFields 为包含异步取值路径的字段输出名，
	// 非空时该表只能由 AsyncSerializer 执行。
	asyncFields []string
}

func (cs *compiledSchema) hasAsync() bool {
	return len(cs.asyncFields) > 0
}

// compiledField 是字段表中的一个条目。
type compiledField struct {
	// name 为输出名。
	name     string
	required bool
	emitNone bool

	// isAsync 标记该字段的取值路径包含异步环节。
	// 编译期静态确定，引擎无需在运行时做任何判别。
	isAsync bool

	// builtin 标记 toValue 为内置类型转换：
	// 失败时包装为转换错误；自定义转换的错误原样传播。
	builtin bool

	// get 为同步取值函数（含 call 展开），异步 method 字段除外。
	get getterFunc
	// getCtx 仅异步 method 字段填充。
	getCtx asyncGetterFunc

	// toValue 为值转换函数，nil 表示恒等。
	toValue ToValueFunc

	// nested 非空时，取到的原始值经该 Schema 递归序列化。
	nested     *Schema
	nestedMany bool
}

// tableEntry 是编译过程中的中间条目。
type tableEntry struct {
	// label 为输出名；declared 为声明名。
	label    string
	declared string
	field    *Field
	// index 为排序用的声明序号：
	// 子类覆盖同名字段时保留祖先的序号，使位置不变。
	index int64
}

// compile 将继承链上的全部字段声明编译为有序字段表。
//
// 算法：
//  1. 自基类向子类收集字段，按输出名去重；
//     重复输出名保留最先出现的声明序号（定位），采用最派生的描述符（行为）；
//  2. 同一 Schema 内部的重复输出名属于定义错误；
//  3. 按保留的声明序号稳定排序；
//  4. 逐条编译取值函数。
func (s *Schema) compile() (*compiledSchema, error) {
	if s.defErr != nil {
		return nil, s.defErr
	}

	byLabel := make(map[string]*tableEntry)
	var order []*tableEntry
	duplicated := typeutil.NewSet[string]()

	for _, sc := range s.ancestorChain() {
		local := typeutil.NewSet[string]()
		for _, df := range sc.fields {
			label := df.field.label
			if label == "" {
				label = df.name
			}
			if local.Contain(label) {
				duplicated.Insert(label)
				continue
			}
			local.Insert(label)

			if e, ok := byLabel[label]; ok {
				// 子类覆盖：行为取子类描述符，位置保留祖先序号。
				e.field = df.field
				e.declared = df.name
				continue
			}
			e := &tableEntry{
				label:    label,
				declared: df.name,
				field:    df.field,
				index:    df.field.index,
			}
			byLabel[label] = e
			order = append(order, e)
		}
	}

	if duplicated.Len() > 0 {
		return nil, merr.WrapErrSchemaDuplicateField(s.name, duplicated.Collect())
	}
	if len(order) == 0 {
		return nil, merr.WrapErrSchemaDefinition(s.name, "no fields declared")
	}

	slices.SortStableFunc(order, func(a, b *tableEntry) int {
		return cmp.Compare(a.index, b.index)
	})

	cs := &compiledSchema{
		name:   s.name,
		access: s.access,
		fields: make([]compiledField, 0, len(order)),
	}
	for _, e := range order {
		cf, err := s.compileField(e)
		if err != nil {
			return nil, err
		}
		cs.fields = append(cs.fields, cf)
	}

	cs.asyncFields = lo.FilterMap(cs.fields, func(f compiledField, _ int) (string, bool) {
		return f.name, f.isAsync
	})
	return cs, nil
}

// compileField 将一个字段声明编译为字段表条目。
func (s *Schema) compileField(e *tableEntry) (compiledField, error) {
	f := e.field
	cf := compiledField{
		name:       e.label,
		required:   f.required,
		emitNone:   f.emitNone,
		builtin:    f.toValue != nil && !f.customToValue,
		toValue:    f.toValue,
		nested:     f.nested,
		nestedMany: f.nestedMany,
	}

	switch f.kind {
	case kindMethod:
		fn := f.methodFn
		if fn == nil {
			mname := f.methodName
			if mname == "" {
				mname = "get_" + e.declared
			}
			registered, ok := s.lookupHandler(mname)
			if !ok {
				return compiledField{}, merr.WrapErrSchemaMethod(s.name, mname)
			}
			fn = registered
		}
		cf.get = func(rc Context, obj any) (any, error) {
			return fn(rc, obj)
		}

	case kindAsyncMethod:
		fn := f.asyncFn
		if fn == nil {
			mname := f.methodName
			if mname == "" {
				mname = "get_" + e.declared
			}
			registered, ok := s.lookupAsyncHandler(mname)
			if !ok {
				return compiledField{}, merr.WrapErrSchemaMethod(s.name, mname)
			}
			fn = registered
		}
		cf.isAsync = true
		cf.getCtx = asyncGetterFunc(fn)

	case kindStatic:
		value := f.static
		cf.get = func(Context, any) (any, error) {
			return value, nil
		}

	default:
		cf.get = s.compileAttrGetter(e)
	}

	// 嵌套 schema 自身含异步字段时，该条目整体视为异步。
	if f.nested != nil && f.nested.hasAsyncFields(typeutil.NewSet[*Schema]()) {
		cf.isAsync = true
	}
	return cf, nil
}

// compileAttrGetter 编译属性读取路径：
// 显式 getter 优先，否则走默认访问链；随后按需展开 call。
func (s *Schema) compileAttrGetter(e *tableEntry) getterFunc {
	f := e.field
	label := e.label

	attr := f.attr
	if attr == "" {
		attr = e.declared
	}
	mode := s.access
	call := f.call

	read := func(obj any) (any, error) {
		if f.getter != nil {
			return f.getter(obj)
		}
		v, ok := resolveAttr(obj, attr, mode)
		if !ok {
			return nil, merr.WrapErrFieldMissing(label)
		}
		return v, nil
	}

	if !call {
		return func(_ Context, obj any) (any, error) {
			return read(obj)
		}
	}
	return func(_ Context, obj any) (any, error) {
		v, err := read(obj)
		if err != nil {
			return nil, err
		}
		result, err := callValue(v)
		if err != nil {
			if errors.Is(err, errNotCallable) {
				return nil, merr.WrapErrFieldNotCall(label, v)
			}
			// 被调用函数自身的错误原样传播。
			return nil, err
		}
		return result, nil
	}
}
