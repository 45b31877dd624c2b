package shape

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/shape-garden-go/internal/json"
	"github.com/lk2023060901/shape-garden-go/pkg/util/merr"
)

type point struct {
	X int
	Y string
	Z float64
}

type profile struct {
	Name           string
	Bio            *string
	SuperLongThing string
}

type counterObj struct {
	hits int
}

func (c *counterObj) Views() int {
	c.hits++
	return c.hits
}

type envelope struct {
	payload map[string]any
}

func (e envelope) ShapeAttr(name string) (any, bool) {
	v, ok := e.payload[name]
	return v, ok
}

type SerializerSuite struct {
	suite.Suite
}

func (s *SerializerSuite) TestBasicStruct() {
	schema := NewSchema("Point").
		Add("x", NewIntField()).
		Add("y", NewField()).
		Add("z", NewFloatField())

	ser, err := NewSerializer(schema, point{X: 1, Y: "hello", Z: 9.5})
	s.Require().NoError(err)

	out, err := ser.Serialized()
	s.Require().NoError(err)
	s.Equal(map[string]any{"x": int64(1), "y": "hello", "z": 9.5}, out)
}

func (s *SerializerSuite) TestAttrAndLabel() {
	schema := NewSchema("Profile").
		Add("w", NewStrField(WithAttr("super_long_thing"))).
		Add("name", NewStrField(WithLabel("display_name")))

	ser, err := NewSerializer(schema, profile{Name: "ada", SuperLongThing: "ok"})
	s.Require().NoError(err)

	out, err := ser.Serialized()
	s.Require().NoError(err)
	s.Equal("ok", out["w"])
	s.Equal("ada", out["display_name"])
	s.NotContains(out, "name")
	s.NotContains(out, "super_long_thing")
}

func (s *SerializerSuite) TestMethodField() {
	schema := NewSchema("Point").
		Add("plus", NewMethodField()).
		Handle("get_plus", func(_ Context, obj any) (any, error) {
			p := obj.(point)
			return p.X + int(p.Z), nil
		})

	ser, err := NewSerializer(schema, point{X: 2, Z: 3})
	s.Require().NoError(err)

	out, err := ser.Serialized()
	s.Require().NoError(err)
	s.Equal(5, out["plus"])
}

func (s *SerializerSuite) TestMethodFieldContext() {
	schema := NewSchema("Point").
		Add("scaled", NewMethodFieldFunc(func(c Context, obj any) (any, error) {
			factor, _ := c.Get("factor")
			return obj.(point).X * factor.(int), nil
		}))

	ser, err := NewSerializer(schema, point{X: 3},
		WithContext(map[string]any{"factor": 4}))
	s.Require().NoError(err)

	out, err := ser.Serialized()
	s.Require().NoError(err)
	s.Equal(12, out["scaled"])
}

func (s *SerializerSuite) TestCallExpansion() {
	schema := NewSchema("Counter").
		Add("views", NewIntField(WithCall()))

	obj := &counterObj{}
	ser, err := NewSerializer(schema, obj)
	s.Require().NoError(err)

	out, err := ser.Serialized()
	s.Require().NoError(err)
	s.Equal(int64(1), out["views"])
}

func (s *SerializerSuite) TestCallOnNotCallable() {
	schema := NewSchema("Profile").
		Add("name", NewField(WithCall()))

	ser, err := NewSerializer(schema, profile{Name: "ada"})
	s.Require().NoError(err)

	_, err = ser.Serialized()
	s.ErrorIs(err, merr.ErrFieldNotCall)
}

func (s *SerializerSuite) TestRequiredMissing() {
	schema := NewDictSchema("Doc").
		Add("title", NewField())

	ser, err := NewSerializer(schema, map[string]any{"body": "x"})
	s.Require().NoError(err)

	_, err = ser.Serialized()
	s.ErrorIs(err, merr.ErrFieldMissing)
}

func (s *SerializerSuite) TestOptionalMissingOmitted() {
	schema := NewDictSchema("Doc").
		Add("title", NewField(Optional())).
		Add("body", NewField())

	ser, err := NewSerializer(schema, map[string]any{"body": "x"})
	s.Require().NoError(err)

	out, err := ser.Serialized()
	s.Require().NoError(err)
	s.Equal(map[string]any{"body": "x"}, out)
}

// 空值只由 emitNone 决定去留，required 不参与；
// 字符串转换不会碰到空值。
func (s *SerializerSuite) TestNonePolicy() {
	omit := NewSchema("ProfileOmit").
		Add("bio", NewStrField())
	emit := NewSchema("ProfileEmit").
		Add("bio", NewStrField(EmitNone()))

	target := profile{Name: "ada", Bio: nil}

	ser, err := NewSerializer(omit, target)
	s.Require().NoError(err)
	out, err := ser.Serialized()
	s.Require().NoError(err)
	s.NotContains(out, "bio")

	ser, err = NewSerializer(emit, target)
	s.Require().NoError(err)
	out, err = ser.Serialized()
	s.Require().NoError(err)
	s.Contains(out, "bio")
	s.Nil(out["bio"])
}

func (s *SerializerSuite) TestConversionError() {
	schema := NewDictSchema("Doc").
		Add("count", NewIntField())

	ser, err := NewSerializer(schema, map[string]any{"count": "not-a-number"})
	s.Require().NoError(err)

	_, err = ser.Serialized()
	s.ErrorIs(err, merr.ErrFieldConversion)
}

func (s *SerializerSuite) TestCustomToValueErrorPropagates() {
	sentinel := errors.New("bad title")
	schema := NewDictSchema("Doc").
		Add("title", NewField(WithToValue(func(any) (any, error) {
			return nil, sentinel
		})))

	ser, err := NewSerializer(schema, map[string]any{"title": "x"})
	s.Require().NoError(err)

	_, err = ser.Serialized()
	s.ErrorIs(err, sentinel)
	s.NotErrorIs(err, merr.ErrFieldConversion)
}

func (s *SerializerSuite) TestConvertedNonePolicy() {
	schema := NewDictSchema("Doc").
		Add("gone", NewField(WithToValue(func(any) (any, error) {
			return nil, nil
		}))).
		Add("null", NewField(EmitNone(), WithToValue(func(any) (any, error) {
			return nil, nil
		})))

	ser, err := NewSerializer(schema, map[string]any{"gone": 1, "null": 2})
	s.Require().NoError(err)

	out, err := ser.Serialized()
	s.Require().NoError(err)
	s.NotContains(out, "gone")
	s.Contains(out, "null")
	s.Nil(out["null"])
}

func (s *SerializerSuite) TestStaticField() {
	schema := NewDictSchema("Doc").
		Add("kind", NewStaticField("document")).
		Add("title", NewField())

	ser, err := NewSerializer(schema, []any{
		map[string]any{"title": "a"},
		map[string]any{"title": "b"},
	}, Many())
	s.Require().NoError(err)

	out, err := ser.SerializedMany()
	s.Require().NoError(err)
	s.Require().Len(out, 2)
	s.Equal("document", out[0]["kind"])
	s.Equal("document", out[1]["kind"])
}

func (s *SerializerSuite) TestExplicitGetter() {
	schema := NewSchema("Point").
		Add("sum", NewIntField(WithGetter(func(obj any) (any, error) {
			p := obj.(point)
			return p.X + int(p.Z), nil
		})))

	ser, err := NewSerializer(schema, point{X: 1, Z: 2})
	s.Require().NoError(err)

	out, err := ser.Serialized()
	s.Require().NoError(err)
	s.Equal(int64(3), out["sum"])
}

func (s *SerializerSuite) TestAttrSourcePriority() {
	schema := NewSchema("Envelope").
		Add("payload", NewField())

	// AttrSource 优先于反射访问：payload 结构体字段是非导出的，
	// 只有接口路径能取到值。
	target := envelope{payload: map[string]any{"payload": 42}}
	ser, err := NewSerializer(schema, target)
	s.Require().NoError(err)

	out, err := ser.Serialized()
	s.Require().NoError(err)
	s.Equal(42, out["payload"])
}

func (s *SerializerSuite) TestNestedSchema() {
	author := NewSchema("Author").
		Add("name", NewStrField())
	article := NewSchema("Article").
		Add("title", NewStrField()).
		Add("author", NewNestedField(author))

	type authorObj struct{ Name string }
	type articleObj struct {
		Title  string
		Author authorObj
	}

	ser, err := NewSerializer(article, articleObj{Title: "go", Author: authorObj{Name: "ada"}})
	s.Require().NoError(err)

	out, err := ser.Serialized()
	s.Require().NoError(err)
	s.Equal("go", out["title"])
	s.Equal(map[string]any{"name": "ada"}, out["author"])
}

func (s *SerializerSuite) TestNestedMany() {
	tag := NewSchema("Tag").
		Add("name", NewStrField())
	article := NewSchema("TaggedArticle").
		Add("tags", NewNestedField(tag, NestedMany()))

	type tagObj struct{ Name string }
	type articleObj struct{ Tags []tagObj }

	ser, err := NewSerializer(article, articleObj{Tags: []tagObj{{Name: "go"}, {Name: "web"}}})
	s.Require().NoError(err)

	out, err := ser.Serialized()
	s.Require().NoError(err)
	s.Equal([]map[string]any{{"name": "go"}, {"name": "web"}}, out["tags"])
}

func (s *SerializerSuite) TestNestedNilOmitted() {
	author := NewSchema("NestedAuthor").
		Add("name", NewStrField())
	article := NewSchema("OrphanArticle").
		Add("author", NewNestedField(author))

	type authorObj struct{ Name string }
	type articleObj struct{ Author *authorObj }

	ser, err := NewSerializer(article, articleObj{Author: nil})
	s.Require().NoError(err)

	out, err := ser.Serialized()
	s.Require().NoError(err)
	s.NotContains(out, "author")
}

func (s *SerializerSuite) TestManyOrder() {
	schema := NewSchema("Point").
		Add("x", NewIntField())

	targets := []point{{X: 3}, {X: 1}, {X: 2}}
	ser, err := NewSerializer(schema, targets, Many())
	s.Require().NoError(err)

	out, err := ser.SerializedMany()
	s.Require().NoError(err)
	s.Require().Len(out, 3)
	s.Equal(int64(3), out[0]["x"])
	s.Equal(int64(1), out[1]["x"])
	s.Equal(int64(2), out[2]["x"])
}

func (s *SerializerSuite) TestMemoization() {
	calls := 0
	schema := NewSchema("Counted").
		Add("n", NewMethodFieldFunc(func(_ Context, obj any) (any, error) {
			calls++
			return obj.(*counterObj).hits, nil
		}))

	ser, err := NewSerializer(schema, &counterObj{hits: 7})
	s.Require().NoError(err)

	first, err := ser.Serialized()
	s.Require().NoError(err)
	second, err := ser.Serialized()
	s.Require().NoError(err)
	s.Equal(first, second)
	s.Equal(1, calls)
}

func (s *SerializerSuite) TestManyMemoization() {
	calls := 0
	schema := NewSchema("CountedMany").
		Add("n", NewMethodFieldFunc(func(_ Context, _ any) (any, error) {
			calls++
			return calls, nil
		}))

	ser, err := NewSerializer(schema, []point{{X: 1}, {X: 2}}, Many())
	s.Require().NoError(err)

	_, err = ser.SerializedMany()
	s.Require().NoError(err)
	_, err = ser.SerializedMany()
	s.Require().NoError(err)
	s.Equal(2, calls)
}

func (s *SerializerSuite) TestTargetValidation() {
	schema := NewSchema("Point").
		Add("x", NewIntField())

	_, err := NewSerializer(schema, []point{{X: 1}})
	s.ErrorIs(err, merr.ErrTargetList)

	_, err = NewSerializer(schema, point{X: 1}, Many())
	s.ErrorIs(err, merr.ErrTargetNotList)
}

func (s *SerializerSuite) TestDictSchema() {
	schema := NewDictSchema("Record").
		Add("id", NewIntField()).
		Add("name", NewStrField())

	ser, err := NewSerializer(schema, map[string]any{"id": 7, "name": "ada", "extra": true})
	s.Require().NoError(err)

	out, err := ser.Serialized()
	s.Require().NoError(err)
	s.Equal(map[string]any{"id": int64(7), "name": "ada"}, out)
}

func (s *SerializerSuite) TestAsyncSchemaRejected() {
	schema := NewSchema("Clicks").
		Add("clicks", NewAsyncMethodField()).
		HandleAsync("get_clicks", func(_ context.Context, _ Context, _ any) (any, error) {
			return 1, nil
		})

	_, err := NewSerializer(schema, point{})
	s.ErrorIs(err, merr.ErrSerializerAsync)
}

func (s *SerializerSuite) TestSerializeDispatch() {
	schema := NewSchema("Point").
		Add("x", NewIntField())

	single, err := NewSerializer(schema, point{X: 1})
	s.Require().NoError(err)
	out, err := single.Serialize()
	s.Require().NoError(err)
	s.IsType(map[string]any{}, out)

	many, err := NewSerializer(schema, []point{{X: 1}}, Many())
	s.Require().NoError(err)
	out, err = many.Serialize()
	s.Require().NoError(err)
	s.IsType([]map[string]any{}, out)
}

// 输出必须能直接交给 JSON 编码器。
func (s *SerializerSuite) TestOutputEncodes() {
	author := NewSchema("EncAuthor").
		Add("name", NewStrField())
	schema := NewSchema("EncArticle").
		Add("id", NewIntField()).
		Add("score", NewFloatField()).
		Add("draft", NewBoolField()).
		Add("author", NewNestedField(author)).
		Add("missing", NewStrField(WithAttr("bio"), EmitNone()))

	type authorObj struct{ Name string }
	type articleObj struct {
		ID     int
		Score  float64
		Draft  bool
		Bio    *string
		Author authorObj
	}

	ser, err := NewSerializer(schema, []articleObj{
		{ID: 1, Score: 0.5, Author: authorObj{Name: "ada"}},
		{ID: 2, Draft: true, Author: authorObj{Name: "lin"}},
	}, Many())
	s.Require().NoError(err)

	out, err := ser.SerializedMany()
	s.Require().NoError(err)

	encoded, err := json.Marshal(out)
	s.Require().NoError(err)

	var decoded []map[string]any
	s.Require().NoError(json.Unmarshal(encoded, &decoded))
	s.Require().Len(decoded, 2)
	s.Equal("ada", decoded[0]["author"].(map[string]any)["name"])
	s.Contains(decoded[0], "missing")
	s.Nil(decoded[0]["missing"])
}

func TestSerializer(t *testing.T) {
	suite.Run(t, new(SerializerSuite))
}
