package shape

import (
	"context"

	"github.com/spf13/cast"
	"go.uber.org/atomic"

	"github.com/lk2023060901/shape-garden-go/pkg/util/merr"
)

// declarationCounter 为全局声明计数器。
// 每个 Field 在构造时领取一个单调递增的序号，
// 用于跨继承链确定字段在输出中的稳定顺序。
var declarationCounter atomic.Int64

type fieldKind int

const (
	kindGeneric fieldKind = iota
	kindString
	kindInt
	kindFloat
	kindBool
	kindStatic
	kindMethod
	kindAsyncMethod
	kindNested
)

// MethodFunc 是同步 method 字段的处理函数签名。
//
//   - c  ：当前序列化运行的只读 Context；
//   - obj：被序列化的目标对象。
type MethodFunc func(c Context, obj any) (any, error)

// AsyncMethodFunc 是异步 method 字段的处理函数签名。
// 处理函数内允许阻塞等待（IO、RPC 等），应当尊重 ctx 的取消信号。
type AsyncMethodFunc func(ctx context.Context, c Context, obj any) (any, error)

// GetterFunc 是调用方显式提供的按对象取值函数。
// 属性不存在时应返回 merr.ErrFieldMissing 系错误，
// 以便 Required 策略能够识别“属性缺失”。
type GetterFunc func(obj any) (any, error)

// ToValueFunc 是字段的值转换函数。
type ToValueFunc func(v any) (any, error)

// Field 描述如何从源对象提取并转换出一个命名输出值。
//
// 一个 Field 实例在进程生命周期内只声明一次，
// 之后由 Schema 编译为字段表条目供引擎使用。
type Field struct {
	kind fieldKind

	// attr 为源属性名，为空表示使用声明名。
	attr string
	// call 表示取到的属性是否应作为零参函数调用后取返回值。
	call bool
	// label 为输出名覆盖，为空表示使用声明名。
	label string
	// required 控制属性缺失时的行为：true 则整次序列化失败，
	// false 则该字段从输出中省略。
	required bool
	// emitNone 控制取值为空（null）时的行为：true 则输出显式 null，
	// false 则该字段从输出中省略。
	emitNone bool
	// index 为声明序号。
	index int64

	// toValue 为值转换函数，nil 表示恒等。
	toValue ToValueFunc
	// customToValue 标记 toValue 来自调用方；
	// 自定义转换的错误原样传播，内置类型转换的错误包装为转换错误。
	customToValue bool

	// static 仅静态字段使用。
	static any

	// methodName 为 method 字段的处理函数注册名，
	// 为空表示按约定取 "get_" + 声明名。
	methodName string
	methodFn   MethodFunc
	asyncFn    AsyncMethodFunc

	// nested 仅嵌套 schema 字段使用。
	nested     *Schema
	nestedMany bool

	// getter 为显式提供的取值函数，优先于属性访问链。
	getter GetterFunc
}

// FieldOption 用于配置 Field 的选项函数。
type FieldOption func(*Field)

// WithAttr 指定源属性名，缺省使用字段的声明名。
func WithAttr(attr string) FieldOption {
	return func(f *Field) {
		f.attr = attr
	}
}

// WithCall 将取到的属性作为零参函数调用，取其返回值作为原始值。
func WithCall() FieldOption {
	return func(f *Field) {
		f.call = true
	}
}

// WithLabel 覆盖输出名，缺省使用字段的声明名。
func WithLabel(label string) FieldOption {
	return func(f *Field) {
		f.label = label
	}
}

// Optional 将字段标记为非必需：属性缺失时省略字段而不是报错。
func Optional() FieldOption {
	return func(f *Field) {
		f.required = false
	}
}

// EmitNone 让空值以显式 null 出现在输出中，而不是被省略。
func EmitNone() FieldOption {
	return func(f *Field) {
		f.emitNone = true
	}
}

// WithGetter 为字段提供显式取值函数，替代默认的属性访问链。
func WithGetter(fn GetterFunc) FieldOption {
	return func(f *Field) {
		f.getter = fn
	}
}

// WithToValue 为通用字段提供自定义值转换函数。
// 转换函数返回的错误原样传播。
func WithToValue(fn ToValueFunc) FieldOption {
	return func(f *Field) {
		f.toValue = fn
		f.customToValue = true
	}
}

// WithMethodName 覆盖 method 字段的处理函数注册名。
func WithMethodName(name string) FieldOption {
	return func(f *Field) {
		f.methodName = name
	}
}

// NestedMany 表示嵌套字段的原始值是对象列表，
// 逐个经嵌套 schema 序列化后输出有序序列。
func NestedMany() FieldOption {
	return func(f *Field) {
		f.nestedMany = true
	}
}

func newField(kind fieldKind, opts ...FieldOption) *Field {
	f := &Field{
		kind:     kind,
		required: true,
		index:    declarationCounter.Inc(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewField 创建一个通用字段，值转换为恒等（可用 WithToValue 自定义）。
func NewField(opts ...FieldOption) *Field {
	return newField(kindGeneric, opts...)
}

// NewStrField 创建一个字符串字段，非空值会被强制转换为字符串。
func NewStrField(opts ...FieldOption) *Field {
	f := newField(kindString, opts...)
	if f.toValue == nil {
		f.toValue = coerceString
	}
	return f
}

// NewIntField 创建一个整数字段。
// 空值或不可转换的值会产生转换错误。
func NewIntField(opts ...FieldOption) *Field {
	f := newField(kindInt, opts...)
	if f.toValue == nil {
		f.toValue = coerceInt
	}
	return f
}

// NewFloatField 创建一个浮点字段。
// 空值或不可转换的值会产生转换错误。
func NewFloatField(opts ...FieldOption) *Field {
	f := newField(kindFloat, opts...)
	if f.toValue == nil {
		f.toValue = coerceFloat
	}
	return f
}

// NewBoolField 创建一个布尔字段，非空值会被强制转换为布尔。
func NewBoolField(opts ...FieldOption) *Field {
	f := newField(kindBool, opts...)
	if f.toValue == nil {
		f.toValue = coerceBool
	}
	return f
}

// NewStaticField 创建一个静态字段：
// 每条输出记录得到完全相同的常量值，与源对象无关。
func NewStaticField(value any, opts ...FieldOption) *Field {
	f := newField(kindStatic, opts...)
	f.static = value
	return f
}

// NewMethodField 创建一个同步 method 字段。
// 字段值不取自目标对象的属性，而是调用在 Schema 上注册的处理函数；
// 处理函数名缺省为 "get_" + 声明名（可用 WithMethodName 覆盖），
// 编译时找不到处理函数属于定义错误。
func NewMethodField(opts ...FieldOption) *Field {
	return newField(kindMethod, opts...)
}

// NewMethodFieldFunc 创建一个直接绑定处理函数的同步 method 字段。
func NewMethodFieldFunc(fn MethodFunc, opts ...FieldOption) *Field {
	f := newField(kindMethod, opts...)
	f.methodFn = fn
	return f
}

// NewAsyncMethodField 创建一个异步 method 字段。
// 处理函数通过 Schema.HandleAsync 注册，只能由 AsyncSerializer 执行。
func NewAsyncMethodField(opts ...FieldOption) *Field {
	return newField(kindAsyncMethod, opts...)
}

// NewAsyncMethodFieldFunc 创建一个直接绑定处理函数的异步 method 字段。
func NewAsyncMethodFieldFunc(fn AsyncMethodFunc, opts ...FieldOption) *Field {
	f := newField(kindAsyncMethod, opts...)
	f.asyncFn = fn
	return f
}

// NewNestedField 创建一个嵌套 schema 字段：
// 原始值经 sub 递归序列化，Context 自动继承。
func NewNestedField(sub *Schema, opts ...FieldOption) *Field {
	f := newField(kindNested, opts...)
	f.nested = sub
	return f
}

// 内置类型转换函数。
// 引擎保证空值不会到达这里（空值由 emitNone 策略先行处理），
// 对 nil 的防御仅针对调用方直接复用这些函数的场景。

func coerceString(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func coerceInt(v any) (any, error) {
	if v == nil {
		return nil, merr.ErrFieldConversion
	}
	n, err := cast.ToInt64E(v)
	if err != nil {
		return nil, err
	}
	return n, nil
}

func coerceFloat(v any) (any, error) {
	if v == nil {
		return nil, merr.ErrFieldConversion
	}
	n, err := cast.ToFloat64E(v)
	if err != nil {
		return nil, err
	}
	return n, nil
}

func coerceBool(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}
