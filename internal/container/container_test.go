package container

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bbkernel/internal/apperr"
)

type mailer struct {
	host string
	port int
	tr   *transport
}

type transport struct{ name string }

func testOptions(built *int) []Option {
	return []Option{
		WithFactory("transport", func(c *Container, args Args) (any, error) {
			*built++
			name, _ := args.String(0)
			return &transport{name: name}, nil
		}),
		WithFactory("mailer", func(c *Container, args Args) (any, error) {
			*built++
			host, err := args.String(0)
			if err != nil {
				return nil, err
			}
			port, err := args.Int(1)
			if err != nil {
				return nil, err
			}
			tr, _ := args.At(2).(*transport)
			return &mailer{host: host, port: port, tr: tr}, nil
		}),
	}
}

func TestGet_SharedAndPrototype(t *testing.T) {
	var built int
	c := New(testOptions(&built)...)
	require.NoError(t, c.Register("transport.smtp", &Definition{Kind: "transport", Arguments: []any{"smtp"}}))
	require.NoError(t, c.Register("mailer", &Definition{Kind: "mailer", Arguments: []any{"localhost", 25, "@transport.smtp"}, Scope: ScopePrototype}))

	m1, err := c.Get("mailer")
	require.NoError(t, err)
	m2, err := c.Get("MAILER")
	require.NoError(t, err)
	assert.NotSame(t, m1, m2, "prototype services are rebuilt")
	assert.Same(t, m1.(*mailer).tr, m2.(*mailer).tr, "shared dependency is reused")
	assert.Equal(t, "smtp", m1.(*mailer).tr.name)
	assert.Equal(t, 3, built)
	assert.True(t, c.Initialized("transport.smtp"))
}

func TestGet_Errors(t *testing.T) {
	var built int
	c := New(testOptions(&built)...)
	_, err := c.Get("missing")
	assert.True(t, apperr.HasCode(err, apperr.CodeServiceNotFound))

	require.NoError(t, c.Register("x", &Definition{Kind: "nope"}))
	_, err = c.Get("x")
	assert.True(t, apperr.HasCode(err, apperr.CodeUnknownKind))

	require.NoError(t, c.Set("app", nil))
	require.NoError(t, c.Register("synthetic", &Definition{Synthetic: true}))
	_, err = c.Get("synthetic")
	assert.True(t, apperr.HasCode(err, apperr.CodeServiceNotFound))

	assert.Error(t, c.Register("bad", &Definition{Kind: "mailer", Scope: "session"}))
}

func TestParameters_Resolution(t *testing.T) {
	var built int
	c := New(testOptions(&built)...)
	require.NoError(t, c.SetParameter("mail.host", "smtp.example.org"))
	require.NoError(t, c.SetParameter("mail.port", 587))
	require.NoError(t, c.SetParameter("greeting", "hello %mail.host% at 100%%"))
	require.NoError(t, c.Register("mailer", &Definition{Kind: "mailer", Arguments: []any{"%mail.host%", "%mail.port%"}}))

	m, err := c.Get("mailer")
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.org", m.(*mailer).host)
	assert.Equal(t, 587, m.(*mailer).port)

	g, err := c.Parameter("greeting")
	require.NoError(t, err)
	assert.Equal(t, "hello smtp.example.org at 100%", g)

	require.NoError(t, c.SetParameter("loop", "%loop%"))
	_, err = c.Parameter("loop")
	assert.True(t, apperr.HasCode(err, apperr.CodeCircularReference))

	_, err = c.Parameter("absent")
	assert.True(t, apperr.HasCode(err, apperr.CodeParameterNotFound))
}

func TestOptionalReference(t *testing.T) {
	var built int
	c := New(testOptions(&built)...)
	require.NoError(t, c.Register("mailer", &Definition{Kind: "mailer", Arguments: []any{"h", 1, "@?transport.none"}}))
	require.NoError(t, c.Compile())
	m, err := c.Get("mailer")
	require.NoError(t, err)
	assert.Nil(t, m.(*mailer).tr)
}

func TestCompile(t *testing.T) {
	var built int
	c := New(testOptions(&built)...)
	require.NoError(t, c.SetParameter("host", "h"))
	require.NoError(t, c.Register("mailer", &Definition{Kind: "mailer", Arguments: []any{"%host%", 1}}))
	require.NoError(t, c.Compile())
	assert.True(t, c.IsCompiled())
	compiled, err := c.Parameter(ParamIsCompiled)
	require.NoError(t, err)
	assert.Equal(t, true, compiled)

	def, ok := c.Definition("mailer")
	require.True(t, ok)
	assert.Equal(t, "h", def.Arguments[0], "placeholders are resolved at compile time")

	err = c.Register("late", &Definition{Kind: "mailer"})
	assert.True(t, apperr.HasCode(err, apperr.CodeFrozen))
	assert.True(t, apperr.HasCode(c.SetParameter("p", 1), apperr.CodeFrozen))
	assert.NoError(t, c.Compile(), "second compile is a no-op")
}

func TestCompile_Rejects(t *testing.T) {
	cases := map[string]struct {
		defs map[string]*Definition
		code int
	}{
		"missing reference": {
			defs: map[string]*Definition{"a": {Kind: "transport", Arguments: []any{"@b"}}},
			code: apperr.CodeServiceNotFound,
		},
		"cycle": {
			defs: map[string]*Definition{
				"a": {Kind: "transport", Arguments: []any{"@b"}},
				"b": {Kind: "transport", Arguments: []any{[]any{"@a"}}},
			},
			code: apperr.CodeCircularReference,
		},
		"unknown kind": {
			defs: map[string]*Definition{"a": {Kind: "ghost"}},
			code: apperr.CodeUnknownKind,
		},
		"scope widening": {
			defs: map[string]*Definition{
				"a": {Kind: "transport", Arguments: []any{"@b"}},
				"b": {Kind: "transport", Scope: ScopeRequest},
			},
			code: apperr.CodeInvalidArgument,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			var built int
			c := New(testOptions(&built)...)
			for id, d := range tc.defs {
				require.NoError(t, c.Register(id, d))
			}
			err := c.Compile()
			assert.True(t, apperr.HasCode(err, tc.code), "got %v", err)
			assert.False(t, c.IsCompiled())
		})
	}
}

func TestRuntimeCycleDetection(t *testing.T) {
	var built int
	c := New(testOptions(&built)...)
	require.NoError(t, c.Register("a", &Definition{Kind: "transport", Arguments: []any{"@b"}}))
	require.NoError(t, c.Register("b", &Definition{Kind: "transport", Arguments: []any{"@a"}}))
	_, err := c.Get("a")
	assert.True(t, apperr.HasCode(err, apperr.CodeCircularReference))
}

func TestRequestScope(t *testing.T) {
	var built int
	c := New(testOptions(&built)...)
	require.NoError(t, c.Register("req.transport", &Definition{Kind: "transport", Arguments: []any{"req"}, Scope: ScopeRequest}))

	_, err := c.Get("req.transport")
	assert.True(t, apperr.HasCode(err, apperr.CodeServiceNotFound), "request scope inactive")

	rs1 := c.NewRequestScope()
	a, err := rs1.Get("req.transport")
	require.NoError(t, err)
	b, err := rs1.Get("req.transport")
	require.NoError(t, err)
	assert.Same(t, a, b)

	rs2 := c.NewRequestScope()
	other, err := rs2.Get("req.transport")
	require.NoError(t, err)
	assert.NotSame(t, a, other)

	rs1.Close()
	again, err := rs1.Get("req.transport")
	require.NoError(t, err)
	assert.NotSame(t, a, again)
}

func TestSetAndTags(t *testing.T) {
	var built int
	c := New(testOptions(&built)...)
	app := &struct{ name string }{"app"}
	require.NoError(t, c.Set("bbapp", app))
	got, err := c.Get("bbapp")
	require.NoError(t, err)
	assert.Same(t, app, got)

	require.NoError(t, c.Register("l1", &Definition{Kind: "transport", Tags: []Tag{{"name": "event.listener", "event": "page.render", "priority": 10}}}))
	require.NoError(t, c.Register("l2", &Definition{Kind: "transport", Tags: []Tag{{"name": "other"}}}))
	tagged := c.FindTaggedServiceIDs("event.listener")
	require.Len(t, tagged, 1)
	assert.Equal(t, "l1", tagged[0].ID)
	assert.Equal(t, "10", tagged[0].Tags[0].Attr("priority"))
	assert.Equal(t, map[string]string{"event": "page.render", "priority": "10"}, tagged[0].Tags[0].Attributes())

	require.NoError(t, c.Compile())
	assert.NoError(t, c.Set("bbapp", app), "synthetic services accept instances after compile")
	assert.Error(t, c.Set("l1", app))
	assert.Error(t, c.Set("brand.new", app))
}

func TestParseReference(t *testing.T) {
	r, ok := ParseReference("@foo")
	assert.True(t, ok)
	assert.Equal(t, Reference{ID: "foo"}, r)
	r, ok = ParseReference("@?foo")
	assert.True(t, ok)
	assert.True(t, r.Optional)
	for _, s := range []string{"foo", "@", "@?", "@@escaped"} {
		_, ok := ParseReference(s)
		assert.False(t, ok, s)
	}
	assert.True(t, strings.HasPrefix(Reference{ID: "x", Optional: true}.String(), "@?"))
}
