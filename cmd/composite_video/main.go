// Package main composites two synthetic video tracks and serves the result along
// with an HTTP API for swapping each track's filters.
package main

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edaniels/golog"
	"github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"github.com/edaniels/gocompositor"
	"github.com/edaniels/gocompositor/media"
)

func main() {
	goutils.ContextualMain(mainWithArgs, logger)
}

var (
	defaultPort = 5555
	logger      = golog.Global().Named("server")
)

// Arguments for the command.
type Arguments struct {
	Port      goutils.NetPortFlag `flag:"0"`
	Width     int                 `flag:"width,default=640,usage=output width"`
	Height    int                 `flag:"height,default=360,usage=output height"`
	FrameRate int                 `flag:"fps,default=30,usage=frames per second"`
	Parallel  bool                `flag:"parallel,usage=run the two filter chains concurrently"`
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) error {
	var argsParsed Arguments
	if err := goutils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}
	if argsParsed.Port == 0 {
		argsParsed.Port = goutils.NetPortFlag(defaultPort)
	}
	if argsParsed.Width <= 0 || argsParsed.Height <= 0 {
		return errors.Errorf("invalid output size %dx%d", argsParsed.Width, argsParsed.Height)
	}
	if argsParsed.FrameRate <= 0 {
		argsParsed.FrameRate = 30
	}
	return runServer(ctx, int(argsParsed.Port), argsParsed, logger)
}

func runServer(ctx context.Context, port int, args Arguments, logger golog.Logger) (err error) {
	compositor := gocompositor.NewVideoCompositor(gocompositor.CompositorConfig{
		ParallelFilters: args.Parallel,
		Logger:          logger.Named("compositor"),
	})
	defer func() {
		err = multierr.Combine(err, compositor.Close(context.Background()))
	}()

	ctrl := newController(compositor, logger)
	ctrl.applyPreset(gocompositor.ForegroundTrackID, 0)
	ctrl.applyPreset(gocompositor.BackgroundTrackID, 0)

	pump, err := media.NewPump(compositor, media.PumpConfig{
		Foreground: newSyntheticReader(args.Width, args.Height, foregroundPattern),
		Background: newSyntheticReader(args.Width, args.Height, backgroundPattern),
		Properties: prop.Video{
			Width:     args.Width,
			Height:    args.Height,
			FrameRate: float32(args.FrameRate),
		},
		Logger: logger.Named("pump"),
	})
	if err != nil {
		return err
	}
	ctrl.pump = pump
	pump.Start()

	var consumers sync.WaitGroup
	consumers.Add(1)
	goutils.ManagedGo(func() {
		for pair := range pump.Frames() {
			ctrl.storeFrame(pair.Frame)
			pair.Release()
		}
	}, consumers.Done)
	defer func() {
		pump.Stop()
		consumers.Wait()
	}()

	listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", port))
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Handler:           ctrl.mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	goutils.PanicCapturingGo(func() {
		logger.Infow("serving", "url", fmt.Sprintf("http://%s", listener.Addr()))
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("error serving", "error", err)
		}
	})

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

type pattern func(img *image.RGBA, frame int)

// newSyntheticReader returns a reader producing an animated pattern.
func newSyntheticReader(width, height int, draw pattern) video.Reader {
	var frame atomic.Int64
	return video.ReaderFunc(func() (image.Image, func(), error) {
		img := image.NewRGBA(image.Rect(0, 0, width, height))
		draw(img, int(frame.Add(1)))
		return img, func() {}, nil
	})
}

// backgroundPattern is a horizontal gradient scrolling to the right.
func backgroundPattern(img *image.RGBA, frame int) {
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			t := float64((x+frame*4)%bounds.Dx()) / float64(bounds.Dx())
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(255 * t),
				G: uint8(255 * float64(y) / float64(bounds.Dy())),
				B: uint8(255 * (1 - t)),
				A: 255,
			})
		}
	}
}

// foregroundPattern is a checkerboard with a circle orbiting its center.
func foregroundPattern(img *image.RGBA, frame int) {
	bounds := img.Bounds()
	const square = 32
	angle := float64(frame) / 30
	cx := float64(bounds.Dx())/2 + math.Cos(angle)*float64(bounds.Dx())/4
	cy := float64(bounds.Dy())/2 + math.Sin(angle)*float64(bounds.Dy())/4
	radius := float64(bounds.Dy()) / 6
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.RGBA{R: 40, G: 40, B: 40, A: 255}
			if (x/square+y/square)%2 == 0 {
				c = color.RGBA{R: 220, G: 220, B: 220, A: 255}
			}
			if math.Hypot(float64(x)-cx, float64(y)-cy) < radius {
				c = color.RGBA{R: 250, G: 200, B: 0, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
}
