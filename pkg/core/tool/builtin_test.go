package tool

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterBuiltins(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Definition{Name: "echo", Handler: echoHandler}))
	require.NoError(t, RegisterBuiltins(r, BuiltinConfig{}))

	names := r.Names()
	assert.Contains(t, names, "web.fetch")
	assert.Contains(t, names, "web.extract")
	assert.Contains(t, names, "mail.send")
	assert.Contains(t, names, "chat.send")

	// 消息类工具为高风险
	risk, ok := r.RiskOf("mail.send")
	require.True(t, ok)
	assert.Equal(t, RiskHigh, risk)
	risk, _ = r.RiskOf("chat.send")
	assert.Equal(t, RiskHigh, risk)
	risk, _ = r.RiskOf("web.fetch")
	assert.Equal(t, RiskLow, risk)
}

func TestWebFetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte("<html><body>页面内容</body></html>"))
	}))
	defer ts.Close()

	r := NewRegistry()
	require.NoError(t, RegisterBuiltins(r, BuiltinConfig{}))

	result, err := r.Invoke(context.Background(), "web.fetch",
		map[string]interface{}{"url": ts.URL}, InvocationContext{})
	require.NoError(t, err)
	assert.Contains(t, result.Output.(string), "页面内容")
}

func TestWebFetch_ErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	r := NewRegistry()
	require.NoError(t, RegisterBuiltins(r, BuiltinConfig{}))

	_, err := r.Invoke(context.Background(), "web.fetch",
		map[string]interface{}{"url": ts.URL}, InvocationContext{})
	assert.Error(t, err)
}

func TestWebExtract(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, RegisterBuiltins(r, BuiltinConfig{}))

	html := `<html><body><ul><li class="item">第一项</li><li class="item">第二项</li></ul></body></html>`
	result, err := r.Invoke(context.Background(), "web.extract",
		map[string]interface{}{"html": html, "selector": "li.item"}, InvocationContext{})
	require.NoError(t, err)
	assert.Equal(t, []string{"第一项", "第二项"}, result.Output)
}

func TestWebExtract_MissingArgs(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, RegisterBuiltins(r, BuiltinConfig{}))

	_, err := r.Invoke(context.Background(), "web.extract",
		map[string]interface{}{"html": "<p>x</p>"}, InvocationContext{})
	assert.Error(t, err)
}

func TestOutbound_NoGatewayEchoes(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, RegisterBuiltins(r, BuiltinConfig{}))

	result, err := r.Invoke(context.Background(), "chat.send",
		map[string]interface{}{"to": "ops", "text": "hello"}, InvocationContext{})
	require.NoError(t, err)

	out, ok := result.Output.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, false, out["delivered"])
}

func TestOutbound_Gateway(t *testing.T) {
	var received map[string]interface{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
		received = map[string]interface{}{"hit": true}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	r := NewRegistry()
	require.NoError(t, RegisterBuiltins(r, BuiltinConfig{OutboundURL: ts.URL}))

	result, err := r.Invoke(context.Background(), "mail.send",
		map[string]interface{}{"to": "a@b.c", "subject": "hi"}, InvocationContext{})
	require.NoError(t, err)
	assert.NotNil(t, received)

	out := result.Output.(map[string]interface{})
	assert.Equal(t, true, out["delivered"])
	assert.Equal(t, float64(1), result.Usage.Credits)
}
