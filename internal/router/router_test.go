package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-pathology/internal/account"
	"github.com/ovaphlow/pitchfork/service-pathology/internal/analysis"
	"github.com/ovaphlow/pitchfork/service-pathology/internal/history"
	"github.com/ovaphlow/pitchfork/service-pathology/internal/history/entity"
	"github.com/ovaphlow/pitchfork/service-pathology/internal/recordstore"
	"github.com/ovaphlow/pitchfork/service-pathology/internal/report"
	"github.com/ovaphlow/pitchfork/service-pathology/internal/slide"
)

type stubInferer struct{ out analysis.Outcome }

func (s stubInferer) Infer(context.Context, []byte, string) analysis.Outcome { return s.out }

func nash() entity.AnalysisResult {
	return entity.AnalysisResult{
		OverallImpression:     "Steatohepatitis.",
		KeyFindings:           []entity.Finding{{Finding: "Steatosis", Description: "Moderate."}},
		DifferentialDiagnosis: "NASH",
		Recommendations:       []string{"Trichrome stain"},
	}
}

func newTestServer(t *testing.T, inf analysis.Inferer) *httptest.Server {
	t.Helper()
	logger := zap.NewNop().Sugar()
	clock := clockwork.NewRealClock()
	store := recordstore.New(recordstore.NewMemoryBackend(), recordstore.WithLatency(0))
	tokens, err := account.NewTokenIssuer([]byte("router-test"), "router-test", time.Hour, clock)
	require.NoError(t, err)
	dir := account.NewDirectory(store, tokens, account.BcryptHasher{Cost: bcrypt.MinCost}, clock, logger)
	hist := history.NewManager(store, logger)
	slides := slide.NewMemory()
	orch := analysis.NewOrchestrator(inf, slides, hist, clock, logger)

	srv := httptest.NewServer(RegisterRoutes(logger, Handlers{
		Account:  account.NewHandler(dir, logger),
		History:  history.NewHandler(hist, logger),
		Analysis: analysis.NewHandler(orch, slides, logger),
		Report:   report.NewHandler(hist, clock, 0, logger),
		Store:    store,
	}))
	t.Cleanup(srv.Close)
	return srv
}

type client struct {
	t     *testing.T
	base  string
	token string
}

func (c *client) do(method, path string, body any) *http.Response {
	c.t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.base+Prefix+path, rdr)
	require.NoError(c.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req)
}

func (c *client) send(req *http.Request) *http.Response {
	c.t.Helper()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	c.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (c *client) upload(mimeType string, data []byte) *http.Response {
	c.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="image"; filename="slide.png"`)
	hdr.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(hdr)
	require.NoError(c.t, err)
	_, _ = part.Write(data)
	require.NoError(c.t, mw.Close())
	req, err := http.NewRequest(http.MethodPost, c.base+Prefix+"/analyses", &buf)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.send(req)
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func signup(t *testing.T, srv *httptest.Server) *client {
	t.Helper()
	c := &client{t: t, base: srv.URL}
	resp := c.do(http.MethodPost, "/signup", map[string]string{
		"email": "doc@example.com", "password": "Slide#2026", "name": "Dr. Rosa Lind", "title": "Pathologist",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	auth := decode[account.AuthResponse](t, resp)
	require.NotEmpty(t, auth.Token)
	c.token = auth.Token
	return c
}

func TestHealthAndHeaders(t *testing.T) {
	srv := newTestServer(t, stubInferer{})
	c := &client{t: t, base: srv.URL}
	resp := c.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	resp = c.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthFlow(t *testing.T) {
	srv := newTestServer(t, stubInferer{})
	anon := &client{t: t, base: srv.URL}
	assert.Equal(t, http.StatusUnauthorized, anon.do(http.MethodGet, "/me", nil).StatusCode)

	c := signup(t, srv)
	me := decode[map[string]any](t, c.do(http.MethodGet, "/me", nil))
	assert.Equal(t, "doc@example.com", me["email"])
	assert.NotContains(t, me, "passwordHash")

	dup := anon.do(http.MethodPost, "/signup", map[string]string{"email": "doc@example.com", "password": "Other#Pass9"})
	assert.Equal(t, http.StatusConflict, dup.StatusCode)
	weak := anon.do(http.MethodPost, "/signup", map[string]string{"email": "new@example.com", "password": "short"})
	assert.Equal(t, http.StatusBadRequest, weak.StatusCode)
	bad := anon.do(http.MethodPost, "/login", map[string]string{"email": "doc@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, bad.StatusCode)

	upd := c.do(http.MethodPut, "/me", map[string]string{"name": "Dr. R. Lind", "hospital": "Royal Infirmary"})
	require.Equal(t, http.StatusOK, upd.StatusCode)
	assert.Equal(t, "Royal Infirmary", decode[map[string]any](t, upd)["hospital"])

	assert.Equal(t, http.StatusUnauthorized, anon.do(http.MethodPost, "/logout", nil).StatusCode)
	assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/me", nil).StatusCode, "anonymous logout keeps the session")

	assert.Equal(t, http.StatusNoContent, c.do(http.MethodPost, "/logout", nil).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, c.do(http.MethodGet, "/me", nil).StatusCode)

	login := anon.do(http.MethodPost, "/login", map[string]string{"email": "doc@example.com", "password": "Slide#2026"})
	require.Equal(t, http.StatusOK, login.StatusCode)
}

func TestAnalyzeEditCommitFlow(t *testing.T) {
	srv := newTestServer(t, stubInferer{out: analysis.Succeeded(nash())})
	c := signup(t, srv)

	resp := c.upload("image/png", []byte{0x89, 'P', 'N', 'G'})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	rec := decode[entity.Record](t, resp)
	require.NotEmpty(t, rec.ID)

	slideResp := c.do(http.MethodGet, "/slides/"+rec.ImageURL, nil)
	require.Equal(t, http.StatusOK, slideResp.StatusCode)
	assert.Equal(t, "image/png", slideResp.Header.Get("Content-Type"))

	list := decode[[]entity.Record](t, c.do(http.MethodGet, "/history", nil))
	require.Len(t, list, 1)

	open := c.do(http.MethodPost, "/history/"+rec.ID+"/edit", nil)
	require.Equal(t, http.StatusOK, open.StatusCode)
	snap := decode[map[string]any](t, open)
	assert.Equal(t, "editing", snap["state"])

	patch := c.do(http.MethodPatch, "/edit", report.EditRequest{Field: "differentialDiagnosis", Value: "NAFLD"})
	require.Equal(t, http.StatusOK, patch.StatusCode)
	bad := c.do(http.MethodPatch, "/edit", report.EditRequest{Field: "finding", Index: 7, Subfield: "description", Value: "x"})
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)

	commit := c.do(http.MethodPost, "/edit/commit", nil)
	require.Equal(t, http.StatusOK, commit.StatusCode)
	snap = decode[map[string]any](t, commit)
	assert.Equal(t, "viewing", snap["state"])
	assert.Equal(t, true, snap["saved"])

	list = decode[[]entity.Record](t, c.do(http.MethodGet, "/history", nil))
	require.Len(t, list, 1)
	assert.Equal(t, "NAFLD", list[0].Result.DifferentialDiagnosis)

	assert.Equal(t, http.StatusBadRequest, c.do(http.MethodDelete, "/edit", nil).StatusCode, "cancel while viewing")

	tr := c.do(http.MethodGet, "/history/"+rec.ID+"/transcript", nil)
	require.Equal(t, http.StatusOK, tr.StatusCode)
	body, _ := io.ReadAll(tr.Body)
	assert.True(t, strings.Contains(string(body), "Prepared by: Dr. Rosa Lind, Pathologist"))
	assert.Contains(t, string(body), "NAFLD")

	assert.Equal(t, http.StatusNotFound, c.do(http.MethodGet, "/history/nope/transcript", nil).StatusCode)
	assert.Equal(t, http.StatusNoContent, c.do(http.MethodDelete, "/history", nil).StatusCode)
	list = decode[[]entity.Record](t, c.do(http.MethodGet, "/history", nil))
	assert.Empty(t, list)
}

func TestAnalyzeFailures(t *testing.T) {
	srv := newTestServer(t, stubInferer{out: analysis.Transport(io.ErrUnexpectedEOF)})
	c := signup(t, srv)

	assert.Equal(t, http.StatusBadGateway, c.upload("image/png", []byte{1, 2}).StatusCode)
	assert.Equal(t, http.StatusBadRequest, c.upload("image/gif", []byte{1, 2}).StatusCode)
	list := decode[[]entity.Record](t, c.do(http.MethodGet, "/history", nil))
	assert.Empty(t, list)
}

func TestEditCancelKeepsStoredValue(t *testing.T) {
	srv := newTestServer(t, stubInferer{out: analysis.Succeeded(nash())})
	c := signup(t, srv)
	rec := decode[entity.Record](t, c.upload("image/jpeg", []byte{0xff, 0xd8, 0xff}))

	require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/history/"+rec.ID+"/edit", nil).StatusCode)
	require.Equal(t, http.StatusOK, c.do(http.MethodPatch, "/edit", report.EditRequest{Field: "differentialDiagnosis", Value: "NAFLD"}).StatusCode)
	cancel := c.do(http.MethodDelete, "/edit", nil)
	require.Equal(t, http.StatusOK, cancel.StatusCode)

	show := decode[map[string]any](t, c.do(http.MethodGet, "/edit", nil))
	assert.Equal(t, "viewing", show["state"])
	list := decode[[]entity.Record](t, c.do(http.MethodGet, "/history", nil))
	require.Len(t, list, 1)
	assert.Equal(t, "NASH", list[0].Result.DifferentialDiagnosis)
}
