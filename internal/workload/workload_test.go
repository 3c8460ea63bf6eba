package workload

import (
	"testing"

	"github.com/ohler55/ojg/oj"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, s string) any {
	t.Helper()
	v, err := oj.ParseString(s)
	require.NoError(t, err)
	return v
}

func TestWorkload_Validate(t *testing.T) {
	list := &Step{Operation: "list", Path: "/posts", Project: MustProjection("$[*].id")}

	tests := []struct {
		name    string
		w       *Workload
		wantErr error
	}{
		{"builtin read-heavy", NewReadHeavy(), nil},
		{"builtin join-heavy", NewJoinHeavy(), nil},
		{"builtin write-and-read", NewWriteAndRead(), nil},
		{"empty", &Workload{Name: "x"}, ErrEmptyWorkload},
		{"missing operation", &Workload{Name: "x", Steps: []*Step{{Path: "/"}}}, ErrInvalidStep},
		{"duplicate operation", &Workload{Name: "x", Steps: []*Step{list, {Operation: "list", Path: "/a"}}}, ErrDuplicateOperation},
		{"unknown step", &Workload{Name: "x", Steps: []*Step{
			{Operation: "get", Path: "/posts/{id}", Consumes: "nope"},
		}}, ErrUnknownStep},
		{"self reference", &Workload{Name: "x", Steps: []*Step{
			{Operation: "get", Path: "/posts/{id}", Consumes: "get", Project: MustProjection("$.id")},
		}}, ErrForwardReference},
		{"forward reference", &Workload{Name: "x", Steps: []*Step{
			{Operation: "get", Path: "/posts/{id}", Consumes: "list"},
			list,
		}}, ErrForwardReference},
		{"consumes step without projection", &Workload{Name: "x", Steps: []*Step{
			{Operation: "list", Path: "/posts"},
			{Operation: "get", Path: "/posts/{id}", Consumes: "list"},
		}}, ErrNoProjection},
		{"unbound placeholder", &Workload{Name: "x", Steps: []*Step{
			{Operation: "get", Path: "/posts/{id}"},
		}}, ErrUnboundPlaceholder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.w.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestStep_RenderPathEscapes(t *testing.T) {
	s := &Step{Operation: "get", Path: "/posts/{id}/comments", Consumes: "list"}
	assert.Equal(t, "/posts/abc123/comments", s.RenderPath("abc123"))
	assert.Equal(t, "/posts/a%2Fb%20c/comments", s.RenderPath("a/b c"))

	plain := &Step{Operation: "list", Path: "/posts"}
	assert.Equal(t, "/posts", plain.RenderPath(""))
}

func TestWorkload_Operations(t *testing.T) {
	w := NewReadHeavy()
	assert.Equal(t, []string{"list", "getById"}, w.Operations())
	assert.Equal(t, []string{"list", "getById"}, w.ReadOperations())
	assert.Empty(t, NewWriteAndRead().ReadOperations())
}

func TestChecks(t *testing.T) {
	hasID, err := HasField("$.id")
	require.NoError(t, err)
	nonEmptyComments, err := NonEmptyAt("$[0].comments")
	require.NoError(t, err)
	eqID, err := EqualsConsumed("$.id")
	require.NoError(t, err)
	truthyID, err := Truthy("$.id")
	require.NoError(t, err)

	tests := []struct {
		name     string
		check    Check
		in       *Input
		wantPass bool
	}{
		{"status ok", StatusIn(200, 201), &Input{Status: 201}, true},
		{"status bad", StatusIn(200), &Input{Status: 404}, false},
		{"no errors absent", NoErrors(), &Input{Body: parse(t, `{"id":1}`)}, true},
		{"no errors empty array", NoErrors(), &Input{Body: parse(t, `{"errors":[]}`)}, true},
		{"no errors present", NoErrors(), &Input{Body: parse(t, `{"errors":[{"m":"x"}]}`)}, false},
		{"no errors on array body", NoErrors(), &Input{Body: parse(t, `[1]`)}, true},
		{"errors absent null", ErrorsAbsent(), &Input{Body: parse(t, `{"errors":null}`)}, true},
		{"errors absent empty array", ErrorsAbsent(), &Input{Body: parse(t, `{"errors":[]}`)}, false},
		{"non-empty array", NonEmptyArray(), &Input{Body: parse(t, `[{"id":1}]`)}, true},
		{"empty array", NonEmptyArray(), &Input{Body: parse(t, `[]`)}, false},
		{"object is not array", NonEmptyArray(), &Input{Body: parse(t, `{}`)}, false},
		{"has id", hasID, &Input{Body: parse(t, `{"id":0}`)}, true},
		{"missing id", hasID, &Input{Body: parse(t, `{"title":"x"}`)}, false},
		{"null id", hasID, &Input{Body: parse(t, `{"id":null}`)}, false},
		{"first comments", nonEmptyComments, &Input{Body: parse(t, `[{"comments":[1]},{"comments":[]}]`)}, true},
		{"first comments empty", nonEmptyComments, &Input{Body: parse(t, `[{"comments":[]}]`)}, false},
		{"equals consumed string", eqID, &Input{Body: parse(t, `{"id":"abc123"}`), Consumed: "abc123"}, true},
		{"equals consumed number", eqID, &Input{Body: parse(t, `{"id":42}`), Consumed: "42"}, true},
		{"not equal", eqID, &Input{Body: parse(t, `{"id":"x"}`), Consumed: "abc123"}, false},
		{"typed equal number", eqID, &Input{Body: parse(t, `{"id":5}`), Consumed: "5", ConsumedValue: int64(5)}, true},
		{"typed number vs float", eqID, &Input{Body: parse(t, `{"id":5}`), Consumed: "5", ConsumedValue: 5.0}, true},
		{"typed number vs string", eqID, &Input{Body: parse(t, `{"id":"5"}`), Consumed: "5", ConsumedValue: int64(5)}, false},
		{"typed string vs number", eqID, &Input{Body: parse(t, `{"id":5}`), Consumed: "5", ConsumedValue: "5"}, false},
		{"truthy id", truthyID, &Input{Body: parse(t, `{"id":"a"}`)}, true},
		{"truthy zero", truthyID, &Input{Body: parse(t, `{"id":0}`)}, false},
		{"truthy empty string", truthyID, &Input{Body: parse(t, `{"id":""}`)}, false},
		{"truthy false", truthyID, &Input{Body: parse(t, `{"id":false}`)}, false},
		{"truthy missing", truthyID, &Input{Body: parse(t, `{}`)}, false},
		{"truthy object", truthyID, &Input{Body: parse(t, `{"id":{}}`)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.check.Evaluate(tt.in)
			if tt.wantPass {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestScriptCheck(t *testing.T) {
	c, err := Script(`status === 200 && body.length === 2 && value === "x"`)
	require.NoError(t, err)
	assert.True(t, c.NeedsBody())

	assert.NoError(t, c.Evaluate(&Input{Status: 200, Body: parse(t, `[1,2]`), Consumed: "x"}))
	assert.Error(t, c.Evaluate(&Input{Status: 200, Body: parse(t, `[1]`), Consumed: "x"}))

	obj, err := Script(`body.title.indexOf("Load") === 0`)
	require.NoError(t, err)
	assert.NoError(t, obj.Evaluate(&Input{Body: parse(t, `{"title":"Load Test Post"}`)}))

	_, err = Script(`status ===`)
	assert.Error(t, err)

	_, err = Script("  ")
	assert.ErrorIs(t, err, ErrInvalidStep)

	thrower, err := Script(`body.missing.field`)
	require.NoError(t, err)
	assert.Error(t, thrower.Evaluate(&Input{Body: parse(t, `{}`)}))
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "abc", Stringify("abc"))
	assert.Equal(t, "42", Stringify(int64(42)))
	assert.Equal(t, "42", Stringify(42.0))
	assert.Equal(t, "1.5", Stringify(1.5))
	assert.Equal(t, "1700000000000", Stringify(1.7e12))
	assert.Equal(t, "true", Stringify(true))
	assert.Equal(t, "", Stringify(nil))
}

func TestProjection_Values(t *testing.T) {
	p := MustProjection("$[*].id")
	assert.Equal(t, []string{"1", "b"}, p.Values(parse(t, `[{"id":1},{"id":"b"},{"x":1}]`)))
	assert.Empty(t, p.Values(nil))
	assert.Equal(t, []any{int64(1), "b"}, p.Raw(parse(t, `[{"id":1},{"id":"b"},{"id":null}]`)))
	assert.Equal(t, "$[*].id", p.String())

	_, err := NewProjection("$[")
	assert.Error(t, err)
}

func TestUniqueID(t *testing.T) {
	a := UniqueID(fixedTime)
	b := UniqueID(fixedTime)
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^1700000000000-[0-9a-f]{9}$`, a)
}
