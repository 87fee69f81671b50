package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/edaniels/golog"
	"go.viam.com/test"

	"github.com/edaniels/gocompositor"
)

func newTestController(t *testing.T) (*controller, *gocompositor.VideoCompositor, *httptest.Server) {
	t.Helper()
	logger := golog.NewTestLogger(t)
	vc := gocompositor.NewVideoCompositor(gocompositor.CompositorConfig{Logger: logger})
	ctrl := newController(vc, logger)
	server := httptest.NewServer(ctrl.mux())
	t.Cleanup(func() {
		server.Close()
		test.That(t, vc.Close(context.Background()), test.ShouldBeNil)
	})
	return ctrl, vc, server
}

func do(t *testing.T, method, url string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	test.That(t, err, test.ShouldBeNil)
	resp, err := http.DefaultClient.Do(req)
	test.That(t, err, test.ShouldBeNil)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestControlFrame(t *testing.T) {
	ctrl, _, server := newTestController(t)

	resp := do(t, http.MethodGet, server.URL+"/frame.jpg", nil)
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusServiceUnavailable)

	frame := image.NewRGBA(image.Rect(0, 0, 16, 8))
	frame.Set(1, 1, color.RGBA{R: 255, A: 255})
	ctrl.storeFrame(frame)
	// later writes to the source do not affect the stored copy
	frame.Set(2, 2, color.RGBA{G: 255, A: 255})

	resp = do(t, http.MethodGet, server.URL+"/frame.jpg", nil)
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
	test.That(t, resp.Header.Get("Content-Type"), test.ShouldEqual, "image/jpeg")
	img, err := jpeg.Decode(resp.Body)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, img.Bounds(), test.ShouldResemble, image.Rect(0, 0, 16, 8))
}

func TestControlFilters(t *testing.T) {
	_, vc, server := newTestController(t)

	resp := do(t, http.MethodGet, server.URL+"/filters", nil)
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
	var names []string
	test.That(t, json.NewDecoder(resp.Body).Decode(&names), test.ShouldBeNil)
	test.That(t, names, test.ShouldContain, "sepia")

	resp = do(t, http.MethodGet, server.URL+"/tracks/2/filters", nil)
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
	var chain gocompositor.FilterChain
	test.That(t, json.NewDecoder(resp.Body).Decode(&chain), test.ShouldBeNil)
	test.That(t, chain, test.ShouldBeEmpty)

	resp = do(t, http.MethodPut, server.URL+"/tracks/2/filters",
		[]byte(`[{"name": "invert"}, {"name": "blur", "params": {"sigma": 2}}]`))
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
	stored := vc.Filters(gocompositor.BackgroundTrackID)
	test.That(t, stored, test.ShouldHaveLength, 2)
	test.That(t, stored[1].Name, test.ShouldEqual, "blur")

	resp = do(t, http.MethodPut, server.URL+"/tracks/2/filters", []byte(`[{"name": "nope"}]`))
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusBadRequest)
	resp = do(t, http.MethodPut, server.URL+"/tracks/2/filters", []byte(`{`))
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusBadRequest)
	resp = do(t, http.MethodGet, server.URL+"/tracks/zero/filters", nil)
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusBadRequest)
	test.That(t, vc.Filters(gocompositor.BackgroundTrackID), test.ShouldHaveLength, 2)
}

func TestControlNextPreset(t *testing.T) {
	ctrl, vc, server := newTestController(t)
	ctrl.applyPreset(gocompositor.ForegroundTrackID, 0)
	test.That(t, vc.Filters(gocompositor.ForegroundTrackID), test.ShouldHaveLength, len(foregroundPlacement))

	for i := 1; i <= len(presets); i++ {
		resp := do(t, http.MethodPost, server.URL+"/tracks/1/filters/next", nil)
		test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
		var body struct {
			Preset  int                      `json:"preset"`
			Filters gocompositor.FilterChain `json:"filters"`
		}
		test.That(t, json.NewDecoder(resp.Body).Decode(&body), test.ShouldBeNil)
		test.That(t, body.Preset, test.ShouldEqual, i%len(presets))
		expected := len(presets[i%len(presets)]) + len(foregroundPlacement)
		test.That(t, body.Filters, test.ShouldHaveLength, expected)
		test.That(t, vc.Filters(gocompositor.ForegroundTrackID), test.ShouldHaveLength, expected)
	}

	// the background has no placement suffix
	resp := do(t, http.MethodPost, server.URL+"/tracks/2/filters/next", nil)
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
	test.That(t, vc.Filters(gocompositor.BackgroundTrackID), test.ShouldHaveLength, len(presets[1]))
}

func TestControlStats(t *testing.T) {
	_, _, server := newTestController(t)
	resp := do(t, http.MethodGet, server.URL+"/stats", nil)
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
}

func TestSyntheticReader(t *testing.T) {
	reader := newSyntheticReader(32, 16, backgroundPattern)
	first, release, err := reader.Read()
	test.That(t, err, test.ShouldBeNil)
	release()
	second, _, err := reader.Read()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, first.Bounds(), test.ShouldResemble, image.Rect(0, 0, 32, 16))
	test.That(t, first.At(0, 0), test.ShouldNotEqual, second.At(0, 0))

	fg, _, err := newSyntheticReader(32, 16, foregroundPattern).Read()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, fg.Bounds(), test.ShouldResemble, image.Rect(0, 0, 32, 16))
}
