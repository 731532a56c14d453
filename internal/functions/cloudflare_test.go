package functions

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"mailhook/pkg/sentinel"
)

func newTestCloudflare(t *testing.T, handler http.HandlerFunc) *Cloudflare {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewCloudflare("test-token", "acct-1", "acme", WithBaseURL(srv.URL))
}

func TestCloudflareUploadScript(t *testing.T) {
	var (
		gotPath string
		gotAuth string
		gotBody string
	)
	cf := newTestCloudflare(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		_, _ = w.Write([]byte(`{"success":true,"result":{"id":"fn-example-com"}}`))
	})

	err := cf.UploadScript(context.Background(), "fn-example-com", "export default {}")

	require.NoError(t, err)
	require.Equal(t, "PUT /accounts/acct-1/workers/scripts/fn-example-com", gotPath)
	require.Equal(t, "Bearer test-token", gotAuth)
	require.Equal(t, "export default {}", gotBody)
}

func TestCloudflareUploadScriptDefaultsCode(t *testing.T) {
	var gotBody string
	cf := newTestCloudflare(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		_, _ = w.Write([]byte(`{"success":true,"result":{}}`))
	})

	require.NoError(t, cf.UploadScript(context.Background(), "fn-example-com", ""))
	require.Equal(t, defaultCode, gotBody)
}

func TestCloudflareDeploy(t *testing.T) {
	cf := newTestCloudflare(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "POST", r.Method)
		require.Equal(t, "/accounts/acct-1/workers/scripts/fn-example-com/deployments", r.URL.Path)
		_, _ = w.Write([]byte(`{"success":true,"result":{"id":"dep-42"}}`))
	})

	id, err := cf.Deploy(context.Background(), "fn-example-com", "production")

	require.NoError(t, err)
	require.Equal(t, "dep-42", id)
}

func TestCloudflareAPIError(t *testing.T) {
	cf := newTestCloudflare(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"success":false,"errors":[{"code":10007,"message":"workers.api.error.script_too_large"}]}`))
	})

	err := cf.UploadScript(context.Background(), "fn-example-com", "big")

	require.Error(t, err)
	require.Contains(t, err.Error(), "10007")
	require.Contains(t, err.Error(), "script_too_large")
}

func TestCloudflareNotFound(t *testing.T) {
	cf := newTestCloudflare(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	_, err := cf.ScriptDetails(context.Background(), "fn-missing")
	require.ErrorIs(t, err, sentinel.ErrNotFound)

	_, err = cf.ScriptContent(context.Background(), "fn-missing")
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestCloudflareUnreachable(t *testing.T) {
	cf := NewCloudflare("t", "a", "acme", WithBaseURL("http://127.0.0.1:1"))

	err := cf.UploadScript(context.Background(), "fn-example-com", "x")
	require.True(t, errors.Is(err, sentinel.ErrUnavailable))
}

func TestCloudflareScriptContent(t *testing.T) {
	cf := newTestCloudflare(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/accounts/acct-1/workers/scripts/fn-example-com/content", r.URL.Path)
		_, _ = w.Write([]byte("export default {}"))
	})

	code, err := cf.ScriptContent(context.Background(), "fn-example-com")

	require.NoError(t, err)
	require.Equal(t, "export default {}", code)
}

func TestCloudflareInvokeURL(t *testing.T) {
	cf := NewCloudflare("t", "a", "acme")
	require.Equal(t, "https://fn-example-com.acme.workers.dev", cf.InvokeURL("fn-example-com"))
}
