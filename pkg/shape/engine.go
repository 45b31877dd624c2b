package shape

import (
	"context"
	"reflect"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/shape-garden-go/pkg/util/merr"
)

// serializeItem 按表序对单个对象执行序列化。
//
// 每个字段依次经历三步：
//  1. 取值：getter 失败且为“属性缺失”时，required 决定整体失败还是省略该字段；
//  2. 空值策略：原始值为空时仅由 emitNone 决定输出显式 null 还是省略，
//     转换函数不会被调用；
//  3. 转换并写入：内置转换失败包装为转换错误，自定义转换错误原样传播；
//     转换结果为空时再次套用 emitNone 策略。
//
// 任何未被省略策略吸收的错误都会中止整次序列化，不产生部分输出。
// 字段严格按表序求值，method 字段的副作用顺序因此可预期。
func serializeItem(ctx context.Context, cs *compiledSchema, rc Context, obj any) (map[string]any, error) {
	out := make(map[string]any, len(cs.fields))

	for i := range cs.fields {
		f := &cs.fields[i]

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var (
			v   any
			err error
		)
		if f.getCtx != nil {
			v, err = f.getCtx(ctx, rc, obj)
		} else {
			v, err = f.get(rc, obj)
		}
		if err != nil {
			if !f.required && errors.Is(err, merr.ErrFieldMissing) {
				continue
			}
			return nil, err
		}

		if isNone(v) {
			if f.emitNone {
				out[f.name] = nil
			}
			continue
		}

		if f.nested != nil {
			nestedOut, err := serializeNested(ctx, f, rc, v)
			if err != nil {
				return nil, err
			}
			out[f.name] = nestedOut
			continue
		}

		if f.toValue != nil {
			converted, err := f.toValue(v)
			if err != nil {
				if f.builtin {
					return nil, merr.WrapErrFieldConversion(f.name, v, err)
				}
				return nil, err
			}
			v = converted
		}

		if isNone(v) {
			if f.emitNone {
				out[f.name] = nil
			}
			continue
		}
		out[f.name] = v
	}

	return out, nil
}

// serializeNested 递归序列化嵌套 schema 字段。
// Context 自动继承到嵌套运行中。
func serializeNested(ctx context.Context, f *compiledField, rc Context, v any) (any, error) {
	nested, err := f.nested.ensureCompiled()
	if err != nil {
		return nil, err
	}

	if !f.nestedMany {
		return serializeItem(ctx, nested, rc, v)
	}

	items, err := listItems(v)
	if err != nil {
		return nil, merr.WrapErrTargetNotList(v, "nested field "+f.name)
	}
	results := make([]map[string]any, len(items))
	for i, item := range items {
		m, err := serializeItem(ctx, nested, rc, item)
		if err != nil {
			return nil, err
		}
		results[i] = m
	}
	return results, nil
}

// listItems 将切片/数组展开为 []any。
func listItems(target any) ([]any, error) {
	rv := reflect.ValueOf(target)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			items[i] = rv.Index(i).Interface()
		}
		return items, nil
	default:
		return nil, merr.WrapErrTargetNotList(target)
	}
}

// isListTarget 判断目标是否为有序集合（切片或数组）。
func isListTarget(target any) bool {
	switch reflect.ValueOf(target).Kind() {
	case reflect.Slice, reflect.Array:
		return true
	default:
		return false
	}
}
