package gocompositor

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sort"
	"sync"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
)

// TrackID distinguishes the logical input roles of a composition.
type TrackID int

// Conventional track ids.
const (
	ForegroundTrackID TrackID = 1
	BackgroundTrackID TrackID = 2
)

// A FilterSpec names an image filter and the parameters to run it with.
type FilterSpec struct {
	Name   string       `json:"name"`
	Params FilterParams `json:"params,omitempty"`
}

// NewFilterSpec returns a spec for the named filter. Params are given as alternating
// keys and values.
func NewFilterSpec(name string, keysAndValues ...interface{}) FilterSpec {
	spec := FilterSpec{Name: name}
	if len(keysAndValues) > 0 {
		spec.Params = make(FilterParams, len(keysAndValues)/2)
	}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		spec.Params[key] = keysAndValues[i+1]
	}
	return spec
}

func (fs FilterSpec) String() string {
	if len(fs.Params) == 0 {
		return fs.Name
	}
	return fmt.Sprintf("%s%v", fs.Name, map[string]interface{}(fs.Params))
}

// A FilterChain is an ordered list of filters applied to a single track.
type FilterChain []FilterSpec

// FilterParams are the named parameters of a filter. Values decoded from JSON are
// accepted alongside native Go values.
type FilterParams map[string]interface{}

// Float returns the named number, or def when it is not set. NaN and infinities
// are rejected.
func (fp FilterParams) Float(key string, def float64) (float64, error) {
	v, ok := fp[key]
	if !ok || v == nil {
		return def, nil
	}
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint8:
		f = float64(n)
	default:
		return 0, errors.Errorf("parameter %q must be a number, got %T", key, v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.Errorf("parameter %q must be finite, got %v", key, f)
	}
	return f, nil
}

// RequiredFloat returns the named number, failing when it is not set.
func (fp FilterParams) RequiredFloat(key string) (float64, error) {
	if _, ok := fp[key]; !ok {
		return 0, errors.Errorf("missing parameter %q", key)
	}
	return fp.Float(key, 0)
}

// Int returns the named number truncated to an integer, or def when it is not set.
func (fp FilterParams) Int(key string, def int) (int, error) {
	f, err := fp.Float(key, float64(def))
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

// Color returns the named color, or def when it is not set. Colors are given as a
// color.Color or as a list of three or four 0-255 components.
func (fp FilterParams) Color(key string, def color.Color) (color.Color, error) {
	v, ok := fp[key]
	if !ok || v == nil {
		return def, nil
	}
	if c, ok := v.(color.Color); ok {
		return c, nil
	}
	comps, err := numbers(key, v)
	if err != nil {
		return nil, err
	}
	if len(comps) != 3 && len(comps) != 4 {
		return nil, errors.Errorf("parameter %q must have 3 or 4 components, got %d", key, len(comps))
	}
	c := color.NRGBA{A: 255}
	c.R, c.G, c.B = clampUint8(comps[0]), clampUint8(comps[1]), clampUint8(comps[2])
	if len(comps) == 4 {
		c.A = clampUint8(comps[3])
	}
	return c, nil
}

// Transform returns the named affine transform. Transforms are given as an
// AffineTransform or as a list of six numbers in a, b, c, d, tx, ty order.
func (fp FilterParams) Transform(key string) (AffineTransform, error) {
	v, ok := fp[key]
	if !ok || v == nil {
		return AffineTransform{}, errors.Errorf("missing parameter %q", key)
	}
	if t, ok := v.(AffineTransform); ok {
		return t, nil
	}
	comps, err := numbers(key, v)
	if err != nil {
		return AffineTransform{}, err
	}
	if len(comps) != 6 {
		return AffineTransform{}, errors.Errorf("parameter %q must have 6 components, got %d", key, len(comps))
	}
	return AffineTransform{A: comps[0], B: comps[1], C: comps[2], D: comps[3], TX: comps[4], TY: comps[5]}, nil
}

func numbers(key string, v interface{}) ([]float64, error) {
	switch vs := v.(type) {
	case []float64:
		return vs, nil
	case []int:
		out := make([]float64, 0, len(vs))
		for _, n := range vs {
			out = append(out, float64(n))
		}
		return out, nil
	case []interface{}:
		out := make([]float64, 0, len(vs))
		sub := FilterParams{}
		for i, n := range vs {
			sub[key] = n
			f, err := sub.Float(key, 0)
			if err != nil {
				return nil, errors.Wrapf(err, "component %d", i)
			}
			out = append(out, f)
		}
		return out, nil
	default:
		return nil, errors.Errorf("parameter %q must be a list of numbers, got %T", key, v)
	}
}

// A FilterFunc produces a filtered image from img. It must not modify img.
type FilterFunc func(img image.Image, params FilterParams) (image.Image, error)

var filterRegistry = struct {
	mu      sync.RWMutex
	filters map[string]FilterFunc
}{filters: map[string]FilterFunc{}}

// RegisterFilter makes a filter available to filter chains under the given name,
// replacing any filter already registered with it.
func RegisterFilter(name string, f FilterFunc) {
	filterRegistry.mu.Lock()
	defer filterRegistry.mu.Unlock()
	filterRegistry.filters[name] = f
}

// LookupFilter returns the filter registered under name.
func LookupFilter(name string) (FilterFunc, bool) {
	filterRegistry.mu.RLock()
	defer filterRegistry.mu.RUnlock()
	f, ok := filterRegistry.filters[name]
	return f, ok
}

// FilterNames returns the sorted names of all registered filters.
func FilterNames() []string {
	filterRegistry.mu.RLock()
	names := make([]string, 0, len(filterRegistry.filters))
	for name := range filterRegistry.filters {
		names = append(names, name)
	}
	filterRegistry.mu.RUnlock()
	sort.Strings(names)
	return names
}

// ApplyFilter runs a single filter over img. A filter that panics fails like one
// that returned an error.
func ApplyFilter(img image.Image, spec FilterSpec) (out image.Image, err error) {
	f, ok := LookupFilter(spec.Name)
	if !ok {
		return nil, errors.Errorf("unknown filter %q", spec.Name)
	}
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, errors.Errorf("filter %q panicked: %v", spec.Name, r)
		}
	}()
	out, err = f(img, spec.Params)
	if err != nil {
		return nil, errors.Wrapf(err, "filter %q", spec.Name)
	}
	if out == nil || out.Bounds().Empty() {
		return nil, errors.Errorf("filter %q produced no image", spec.Name)
	}
	return out, nil
}

// ApplyFilterChain runs the chain over img in order. A filter that fails is skipped
// and the next one sees the image as it was before the failed filter. An empty
// chain returns img itself.
func ApplyFilterChain(img image.Image, chain FilterChain, logger golog.Logger) image.Image {
	current := img
	for i, spec := range chain {
		filtered, err := ApplyFilter(current, spec)
		if err != nil {
			if logger != nil {
				logger.Debugw("skipping filter", "index", i, "filter", spec.Name, "error", err)
			}
			continue
		}
		current = filtered
	}
	return current
}
