package shape

import (
	"reflect"
	"strings"
	"unicode"

	"github.com/cockroachdb/errors"
)

// AttrSource 让目标对象自行提供“按名取值”的能力。
// 实现该接口的对象优先于 map 访问和反射访问。
type AttrSource interface {
	// ShapeAttr 返回名为 name 的属性值；属性不存在时第二个返回值为 false。
	ShapeAttr(name string) (any, bool)
}

// AccessMode 决定默认属性访问链如何从目标对象上取值。
type AccessMode int

const (
	// AttrAccess 读取结构体导出字段 / 方法（对应属性访问）。
	AttrAccess AccessMode = iota
	// ItemAccess 读取字符串键 map 的条目（对应下标访问）。
	ItemAccess
)

// errNotCallable 是 callValue 的内部哨兵错误，
// 由编译出的 getter 转换为带字段名的 merr 错误。
var errNotCallable = errors.New("shape: value is not a zero-arg callable")

// isNone 判断原始值是否视为空值。
// 无类型 nil 以及值为 nil 的指针/接口/map/切片等均视为空。
func isNone(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// resolveAttr 按访问链从目标对象上取出名为 name 的属性。
//
// 解析顺序：
//  1. 目标实现 AttrSource 接口时交由对象自行取值；
//  2. ItemAccess 模式下按字符串键读取 map；
//  3. AttrAccess 模式下按反射读取导出字段，其次查找同名方法
//     （方法值本身作为属性返回，配合 WithCall 使用）。
//
// 返回 false 表示属性缺失。
func resolveAttr(obj any, name string, mode AccessMode) (any, bool) {
	if obj == nil {
		return nil, false
	}
	if src, ok := obj.(AttrSource); ok {
		return src.ShapeAttr(name)
	}

	if mode == ItemAccess {
		return resolveItem(obj, name)
	}
	return resolveField(obj, name)
}

func resolveItem(obj any, name string) (any, bool) {
	if m, ok := obj.(map[string]any); ok {
		v, ok := m[name]
		return v, ok
	}

	rv := reflect.ValueOf(obj)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	item := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
	if !item.IsValid() {
		return nil, false
	}
	return item.Interface(), true
}

func resolveField(obj any, name string) (any, bool) {
	rv := reflect.ValueOf(obj)
	elem := rv
	for elem.Kind() == reflect.Pointer {
		if elem.IsNil() {
			return nil, false
		}
		elem = elem.Elem()
	}

	if elem.Kind() == reflect.Struct {
		for _, candidate := range attrCandidates(name) {
			if fv := elem.FieldByName(candidate); fv.IsValid() && fv.CanInterface() {
				return fv.Interface(), true
			}
		}
	}

	// 字段未命中时查找同名方法，方法值作为属性返回。
	for _, candidate := range attrCandidates(name) {
		if mv := rv.MethodByName(candidate); mv.IsValid() {
			return mv.Interface(), true
		}
		// 值接收者拿不到指针方法，这里补一次指针查找。
		if rv.Kind() != reflect.Pointer {
			pv := reflect.New(rv.Type())
			pv.Elem().Set(rv)
			if mv := pv.MethodByName(candidate); mv.IsValid() {
				return mv.Interface(), true
			}
		}
	}
	return nil, false
}

// attrCandidates 返回属性名在 Go 结构体上的候选拼写：
// 原样、首字母大写、snake_case 转 CamelCase。
func attrCandidates(name string) []string {
	candidates := make([]string, 0, 3)
	candidates = append(candidates, name)

	if exported := exportedName(name); exported != name {
		candidates = append(candidates, exported)
	}
	if camel := camelName(name); camel != name {
		candidates = append(candidates, camel)
	}
	return candidates
}

func exportedName(name string) string {
	if name == "" {
		return name
	}
	runes := []rune(name)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func camelName(name string) string {
	if !strings.Contains(name, "_") {
		return exportedName(name)
	}
	parts := strings.Split(name, "_")
	var b strings.Builder
	for _, part := range parts {
		b.WriteString(exportedName(part))
	}
	return b.String()
}

// callValue 将原始值作为零参函数调用并返回其结果。
// 支持的签名：func() T 与 func() (T, error)。
func callValue(v any) (any, error) {
	switch fn := v.(type) {
	case func() any:
		return fn(), nil
	case func() (any, error):
		return fn()
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Func || rv.IsNil() {
		return nil, errNotCallable
	}
	rt := rv.Type()
	if rt.NumIn() != 0 || rt.IsVariadic() {
		return nil, errNotCallable
	}

	switch rt.NumOut() {
	case 1:
		return rv.Call(nil)[0].Interface(), nil
	case 2:
		if !rt.Out(1).Implements(reflect.TypeOf((*error)(nil)).Elem()) {
			return nil, errNotCallable
		}
		outs := rv.Call(nil)
		if err, _ := outs[1].Interface().(error); err != nil {
			return nil, err
		}
		return outs[0].Interface(), nil
	default:
		return nil, errNotCallable
	}
}
