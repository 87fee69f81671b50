package main

import (
	"encoding/json"
	"image"
	"image/jpeg"
	"net/http"
	"strconv"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"goji.io"
	"goji.io/pat"

	"github.com/edaniels/gocompositor"
	"github.com/edaniels/gocompositor/media"
)

// presets are the chains a track cycles through on POST /tracks/:track/filters/next.
var presets = []gocompositor.FilterChain{
	nil,
	{gocompositor.NewFilterSpec("grayscale")},
	{gocompositor.NewFilterSpec("sepia", "amount", 80.0)},
	{gocompositor.NewFilterSpec("invert")},
	{gocompositor.NewFilterSpec("blur", "sigma", 3.0)},
	{gocompositor.NewFilterSpec("pixelate", "size", 12)},
	{
		gocompositor.NewFilterSpec("brightness", "amount", 20.0),
		gocompositor.NewFilterSpec("contrast", "amount", 30.0),
	},
	{gocompositor.NewFilterSpec("hue", "shift", 90.0)},
}

// foregroundPlacement shrinks and fades the foreground so the background stays visible.
var foregroundPlacement = gocompositor.FilterChain{
	gocompositor.NewFilterSpec("scale", "scale", 0.5),
	gocompositor.NewFilterSpec("translate", "x", 16.0, "y", 16.0),
	gocompositor.NewFilterSpec("opacity", "alpha", 0.7),
}

type filterSetter interface {
	SetFilters(chain gocompositor.FilterChain, track gocompositor.TrackID)
	Filters(track gocompositor.TrackID) gocompositor.FilterChain
}

type controller struct {
	compositor filterSetter
	pump       *media.Pump
	logger     golog.Logger

	mu          sync.Mutex
	latest      image.Image
	presetIndex map[gocompositor.TrackID]int
}

func newController(compositor filterSetter, logger golog.Logger) *controller {
	return &controller{
		compositor:  compositor,
		logger:      logger,
		presetIndex: map[gocompositor.TrackID]int{},
	}
}

func (c *controller) mux() *goji.Mux {
	mux := goji.NewMux()
	mux.HandleFunc(pat.Get("/frame.jpg"), c.handleFrame)
	mux.HandleFunc(pat.Get("/filters"), c.handleFilterNames)
	mux.HandleFunc(pat.Get("/stats"), c.handleStats)
	mux.HandleFunc(pat.Get("/tracks/:track/filters"), c.handleGetFilters)
	mux.HandleFunc(pat.Put("/tracks/:track/filters"), c.handleSetFilters)
	mux.HandleFunc(pat.Post("/tracks/:track/filters/next"), c.handleNextPreset)
	return mux
}

// storeFrame keeps a copy of frame as the latest composited frame.
func (c *controller) storeFrame(frame image.Image) {
	cloned := imaging.Clone(frame)
	c.mu.Lock()
	c.latest = cloned
	c.mu.Unlock()
}

// applyPreset sets the preset at index on track and returns the index actually used.
func (c *controller) applyPreset(track gocompositor.TrackID, index int) int {
	index %= len(presets)
	chain := append(gocompositor.FilterChain{}, presets[index]...)
	if track == gocompositor.ForegroundTrackID {
		chain = append(chain, foregroundPlacement...)
	}
	c.compositor.SetFilters(chain, track)
	c.mu.Lock()
	c.presetIndex[track] = index
	c.mu.Unlock()
	c.logger.Infow("applied preset", "track", track, "preset", index, "filters", chain)
	return index
}

func (c *controller) handleFrame(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	latest := c.latest
	c.mu.Unlock()
	if latest == nil {
		http.Error(w, "no frame yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	if err := jpeg.Encode(w, latest, &jpeg.Options{Quality: 85}); err != nil {
		c.logger.Debugw("error encoding frame", "error", err)
	}
}

func (c *controller) handleFilterNames(w http.ResponseWriter, r *http.Request) {
	c.writeJSON(w, http.StatusOK, gocompositor.FilterNames())
}

func (c *controller) handleStats(w http.ResponseWriter, r *http.Request) {
	if c.pump == nil {
		c.writeJSON(w, http.StatusOK, media.PumpStats{})
		return
	}
	c.writeJSON(w, http.StatusOK, c.pump.Stats())
}

func (c *controller) handleGetFilters(w http.ResponseWriter, r *http.Request) {
	track, err := parseTrack(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	chain := c.compositor.Filters(track)
	if chain == nil {
		chain = gocompositor.FilterChain{}
	}
	c.writeJSON(w, http.StatusOK, chain)
}

func (c *controller) handleSetFilters(w http.ResponseWriter, r *http.Request) {
	track, err := parseTrack(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var chain gocompositor.FilterChain
	if err := json.NewDecoder(r.Body).Decode(&chain); err != nil {
		http.Error(w, errors.Wrap(err, "invalid filter chain").Error(), http.StatusBadRequest)
		return
	}
	for _, spec := range chain {
		if _, ok := gocompositor.LookupFilter(spec.Name); !ok {
			http.Error(w, errors.Errorf("unknown filter %q", spec.Name).Error(), http.StatusBadRequest)
			return
		}
	}
	c.compositor.SetFilters(chain, track)
	c.logger.Infow("set filters", "track", track, "filters", chain)
	c.writeJSON(w, http.StatusOK, chain)
}

func (c *controller) handleNextPreset(w http.ResponseWriter, r *http.Request) {
	track, err := parseTrack(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	c.mu.Lock()
	next := c.presetIndex[track] + 1
	c.mu.Unlock()
	index := c.applyPreset(track, next)
	c.writeJSON(w, http.StatusOK, map[string]interface{}{
		"preset":  index,
		"filters": c.compositor.Filters(track),
	})
}

func (c *controller) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		c.logger.Debugw("error writing response", "error", err)
	}
}

func parseTrack(r *http.Request) (gocompositor.TrackID, error) {
	track, err := strconv.Atoi(pat.Param(r, "track"))
	if err != nil || track <= 0 {
		return 0, errors.Errorf("invalid track %q", pat.Param(r, "track"))
	}
	return gocompositor.TrackID(track), nil
}
