package file

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/graphcms/internal/authz"
	"github.com/hanpama/graphcms/internal/errs"
	"github.com/hanpama/graphcms/internal/materialize"
	"github.com/hanpama/graphcms/internal/registry"
	"github.com/hanpama/graphcms/internal/store/memory"
)

var secret = []byte("test-secret")

func setup(t *testing.T) (*Module, *materialize.Result, http.Handler) {
	t.Helper()
	m := New(memory.NewObjectStore(), Options{Secret: secret, PublicURL: "http://cms.test/"}, zerolog.Nop())
	reg := registry.New()
	m.Register(reg)
	res, err := materialize.Compose(reg, materialize.Options{})
	require.NoError(t, err)
	r := chi.NewRouter()
	m.Routes(r)
	return m, res, r
}

func as(role authz.Role) context.Context {
	return authz.NewContext(context.Background(), &authz.Identity{Username: "u", Roles: []authz.Role{role}})
}

func form(t *testing.T, policy, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("policy", policy))
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", "application/octet-stream")
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func post(t *testing.T, h http.Handler, policy string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := form(t, policy, "upload.bin", content)
	req := httptest.NewRequest("POST", "/upload", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRequestUpload(t *testing.T) {
	_, res, _ := setup(t)

	out := res.Execute(as(authz.User), `{ file { requestUpload(size: 100, ext: "PNG") { postURL formData } } }`, nil)
	require.Empty(t, out.Errors)
	p := out.Data.(map[string]any)["file"].(map[string]any)["requestUpload"].(map[string]any)
	require.Equal(t, "http://cms.test/upload", p["postURL"])
	fd := p["formData"].(map[string]any)
	require.True(t, strings.HasSuffix(fd["key"].(string), ".png"))
	require.NotEmpty(t, fd["policy"])

	out = res.Execute(as(authz.User), `{ file { requestUpload(size: 100, ext: "p/g") { postURL } } }`, nil)
	require.Len(t, out.Errors, 1)
	require.Equal(t, errs.CodeBadUserInput, out.Errors[0].Extensions["code"])

	out = res.Execute(context.Background(), `{ file { requestUpload(size: 100, ext: "png") { postURL } } }`, nil)
	require.Len(t, out.Errors, 1)
	require.Equal(t, errs.CodeUnauthenticated, out.Errors[0].Extensions["code"])
}

func TestUploadAndDownload(t *testing.T) {
	m, res, h := setup(t)
	content := bytes.Repeat([]byte("x"), 120)
	p, err := m.RequestUpload(as(authz.User), 100, "png")
	require.NoError(t, err)

	w := post(t, h, p.FormData["policy"].(string), content)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.Equal(t, p.FormData["key"], created["name"])
	require.Equal(t, "http://cms.test/files/"+created["name"], created["url"])

	req := httptest.NewRequest("GET", "/files/"+created["name"], nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, content, w.Body.Bytes())
	require.Equal(t, "image/png", w.Header().Get("Content-Type"))

	out := res.Execute(as(authz.Admin), `{ file { del(filename: "`+created["name"]+`") } }`, nil)
	require.Empty(t, out.Errors)
	require.Equal(t, true, out.Data.(map[string]any)["file"].(map[string]any)["del"])

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/files/"+created["name"], nil))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestUploadRejections(t *testing.T) {
	m, _, h := setup(t)
	p, err := m.RequestUpload(as(authz.User), 100, "bin")
	require.NoError(t, err)
	policy := p.FormData["policy"].(string)

	w := post(t, h, policy, bytes.Repeat([]byte("x"), 10))
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = post(t, h, policy+"x", bytes.Repeat([]byte("x"), 100))
	require.Equal(t, http.StatusForbidden, w.Code)

	other := NewSigner([]byte("other"), time.Minute)
	forged, _, err := other.Sign("evil.bin", "", 0, 1000)
	require.NoError(t, err)
	w = post(t, h, forged, bytes.Repeat([]byte("x"), 100))
	require.Equal(t, http.StatusForbidden, w.Code)

	m.signer.now = func() time.Time { return time.Now().Add(time.Hour) }
	w = post(t, h, policy, bytes.Repeat([]byte("x"), 100))
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestSignerRoundTrip(t *testing.T) {
	s := NewSigner(secret, 0)
	token, exp, err := s.Sign("a.png", "ann", 50, 150)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(30*time.Minute), exp, time.Minute)

	p, err := s.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "a.png", p.Name)
	require.Equal(t, "ann", p.Subject)
	require.Equal(t, int64(50), p.MinSize)
	require.Equal(t, int64(150), p.MaxSize)
}

func TestMissingSecretIsGenerated(t *testing.T) {
	a := New(memory.NewObjectStore(), Options{}, zerolog.Nop())
	b := New(memory.NewObjectStore(), Options{}, zerolog.Nop())
	require.NotEmpty(t, a.signer.secret)
	require.NotEqual(t, a.signer.secret, b.signer.secret)

	p, err := a.RequestUpload(as(authz.User), 100, "bin")
	require.NoError(t, err)
	policy := p.FormData["policy"].(string)

	ra, rb := chi.NewRouter(), chi.NewRouter()
	a.Routes(ra)
	b.Routes(rb)
	require.Equal(t, http.StatusForbidden, post(t, rb, policy, bytes.Repeat([]byte("x"), 100)).Code)
	require.Equal(t, http.StatusCreated, post(t, ra, policy, bytes.Repeat([]byte("x"), 100)).Code)
}
