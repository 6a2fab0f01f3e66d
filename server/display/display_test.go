package display_test

import (
	"errors"
	"testing"

	"github.com/gate4ai/giftmessage/server/display"
	"github.com/gate4ai/giftmessage/shared/commerce"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

const key = "_gift_message"

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func line(label string, qty int, text string) *commerce.OrderLine {
	l := &commerce.OrderLine{Label: label, Quantity: qty}
	if text != "" {
		l.SetMeta(key, text)
	}
	return l
}

func TestPresent_Plain(t *testing.T) {
	a := display.New(key)
	msg := "Congratulations!!! 🎉\n<3 & love"
	l := line("Bear", 1, msg)

	for i := 0; i < 3; i++ {
		assert.Equal(t, msg, a.Present(l, display.SurfacePlain, display.ContextEmail))
	}
}

func TestPresent_HTML(t *testing.T) {
	a := display.New(key)
	l := line("Bear", 1, "Dear <Ann> & \"Bob\"\nLove")

	got := a.Present(l, display.SurfaceHTML, display.ContextOrderDetails)
	assert.Equal(t,
		`<span class="gift-message gift-message--order-details">Dear &lt;Ann&gt; &amp; &#34;Bob&#34;<br />`+"\n"+`Love</span>`,
		got)
}

func TestPresent_ContextOnlyChangesClass(t *testing.T) {
	a := display.New(key)
	l := line("Bear", 1, "Hi")
	assert.Contains(t, a.Present(l, display.SurfaceHTML, display.ContextAdmin), `gift-message--admin">Hi<`)
	assert.Contains(t, a.Present(l, display.SurfaceHTML, "Weird Context!"), `gift-message--weird-context-">Hi<`)
	assert.Contains(t, a.Present(l, display.SurfaceHTML, ""), `class="gift-message">Hi<`)
}

func TestPresent_NoMessage(t *testing.T) {
	a := display.New(key)
	assert.Equal(t, "", a.Present(line("Card", 1, ""), display.SurfaceHTML, display.ContextCart))
	assert.Equal(t, "", a.Present(line("Card", 1, ""), display.SurfacePlain, display.ContextCart))
	assert.Equal(t, "", a.Present(nil, display.SurfacePlain, display.ContextCart))
}

func TestPresent_Formatter(t *testing.T) {
	a := display.New(key, display.WithFormatter(func(rendered, text string, ctx display.Context) (string, error) {
		return "<div class=\"wrap\">" + rendered + "</div>", nil
	}))
	got := a.Present(line("Bear", 1, "Hi"), display.SurfaceHTML, display.ContextCart)
	assert.Equal(t, `<div class="wrap"><span class="gift-message gift-message--cart">Hi</span></div>`, got)

	// Plain text never goes through the formatter
	assert.Equal(t, "Hi", a.Present(line("Bear", 1, "Hi"), display.SurfacePlain, display.ContextCart))
}

func TestPresent_FormatterFailureDegradesToMessage(t *testing.T) {
	failing := display.New(key, display.WithLogger(zap.NewNop()), display.WithFormatter(func(string, string, display.Context) (string, error) {
		return "", errors.New("boom")
	}))
	assert.Equal(t, "a &lt; b", failing.Present(line("Bear", 1, "a < b"), display.SurfaceHTML, display.ContextCart))

	panicking := display.New(key, display.WithFormatter(func(string, string, display.Context) (string, error) {
		panic("bad integration")
	}))
	assert.Equal(t, "Hi", panicking.Present(line("Bear", 1, "Hi"), display.SurfaceHTML, display.ContextCart))
}

func TestCollectForOrder_PreservesOrder(t *testing.T) {
	a := display.New(key)
	o := &commerce.Order{Lines: []*commerce.OrderLine{
		line("First", 1, "One"),
		line("Second", 2, ""),
		line("Third", 3, "Three"),
	}}

	want := []display.Entry{
		{LineLabel: "First", Quantity: 1, Text: "One"},
		{LineLabel: "Third", Quantity: 3, Text: "Three"},
	}
	if diff := cmp.Diff(want, a.CollectForOrder(o)); diff != "" {
		t.Errorf("CollectForOrder mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, a.HasAny(o))
}

func TestCollectForOrder_NoDeduplication(t *testing.T) {
	a := display.New(key)
	o := &commerce.Order{Lines: []*commerce.OrderLine{
		line("Bear", 1, "Same"),
		line("Bear", 1, "Same"),
	}}
	assert.Len(t, a.CollectForOrder(o), 2)
}

func TestCollectForOrder_Empty(t *testing.T) {
	a := display.New(key)
	assert.Empty(t, a.CollectForOrder(nil))
	o := &commerce.Order{Lines: []*commerce.OrderLine{line("Card", 1, "")}}
	assert.Empty(t, a.CollectForOrder(o))
	assert.False(t, a.HasAny(o))
	assert.False(t, a.HasAny(nil))
}

func TestSurfaceString(t *testing.T) {
	assert.Equal(t, "web-html", display.SurfaceHTML.String())
	assert.Equal(t, "plain-text", display.SurfacePlain.String())
}
