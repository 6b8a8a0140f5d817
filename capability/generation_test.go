package capability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/nsa-yoda/ReplyXL/imagize"
	"github.com/nsa-yoda/ReplyXL/route"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	got string
	res imagize.Result
	err error
}

func (f *fakeGenerator) Generate(_ context.Context, text string) (imagize.Result, error) {
	f.got = text
	return f.res, f.err
}

func TestGeneration_JSONBody(t *testing.T) {
	gen := &fakeGenerator{res: imagize.Result{Prompt: "a fig tree on a hill", Model: "m"}}

	req := httptest.NewRequest(http.MethodPost, "/v1/imagize", strings.NewReader(`{"text": "Lara saw a fig tree"}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec := httptest.NewRecorder()

	err := NewGeneration(gen).Serve(rec, req, route.Params{})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "Lara saw a fig tree", gen.got)

	var body imagize.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "a fig tree on a hill", body.Prompt)
}

func TestGeneration_FormAndQuery(t *testing.T) {
	gen := &fakeGenerator{res: imagize.Result{Prompt: "p"}}
	g := NewGeneration(gen)

	form := url.Values{"text": {"from form"}}
	req := httptest.NewRequest(http.MethodPost, "/v1/imagize", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	require.NoError(t, g.Serve(httptest.NewRecorder(), req, route.Params{}))
	assert.Equal(t, "from form", gen.got)

	req = httptest.NewRequest(http.MethodGet, "/v1/imagize?text=from+query", nil)
	require.NoError(t, g.Serve(httptest.NewRecorder(), req, route.Params{}))
	assert.Equal(t, "from query", gen.got)
}

func TestGeneration_MalformedJSON(t *testing.T) {
	gen := &fakeGenerator{}
	req := httptest.NewRequest(http.MethodPost, "/v1/imagize", strings.NewReader(`{"text":`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	require.NoError(t, NewGeneration(gen).Serve(rec, req, route.Params{}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, gen.got)
}

func TestGeneration_ErrorMapping(t *testing.T) {
	internal := errors.New("unexpected")

	tests := []struct {
		err      error
		wantCode int
		wantErr  error
	}{
		{fmt.Errorf("%w: text is empty", imagize.ErrInvalidInput), http.StatusBadRequest, nil},
		{fmt.Errorf("%w: backend down", imagize.ErrGenerationFailed), http.StatusBadGateway, nil},
		{internal, 0, internal},
	}

	for _, tc := range tests {
		gen := &fakeGenerator{err: tc.err}
		req := httptest.NewRequest(http.MethodPost, "/v1/imagize?text=x", nil)
		rec := httptest.NewRecorder()

		err := NewGeneration(gen).Serve(rec, req, route.Params{})
		if tc.wantErr != nil {
			assert.ErrorIs(t, err, tc.wantErr)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tc.wantCode, rec.Code)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.NotEmpty(t, body["error"])
		assert.NotContains(t, body["error"], "backend down")
	}
}

func TestGeneration_OversizeBody(t *testing.T) {
	padding := strings.Repeat("a", maxRequestBody+1)

	for _, tc := range []struct {
		contentType string
		body        string
	}{
		{"application/json", `{"text": "` + padding + `"}`},
		{"application/x-www-form-urlencoded", "text=" + padding},
	} {
		gen := &fakeGenerator{}
		req := httptest.NewRequest(http.MethodPost, "/v1/imagize", strings.NewReader(tc.body))
		req.Header.Set("Content-Type", tc.contentType)
		rec := httptest.NewRecorder()

		require.NoError(t, NewGeneration(gen).Serve(rec, req, route.Params{}))
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, tc.contentType)
		assert.Empty(t, gen.got)
	}
}
