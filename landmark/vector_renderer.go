package landmark

import (
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/paulmach/orb"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// nrgbaToRGBA converts color.NRGBA to premultiplied color.RGBA as canvas expects
func nrgbaToRGBA(c color.NRGBA) color.RGBA {
	if c.A == 0 {
		return color.RGBA{0, 0, 0, 0}
	}
	if c.A == 255 {
		return color.RGBA{c.R, c.G, c.B, 255}
	}
	alpha32 := uint32(c.A)
	return color.RGBA{
		R: uint8((uint32(c.R) * alpha32) / 255),
		G: uint8((uint32(c.G) * alpha32) / 255),
		B: uint8((uint32(c.B) * alpha32) / 255),
		A: c.A,
	}
}

// VectorRenderer renders landmark layers as vector graphics
type VectorRenderer struct {
	Layers      []RenderLayer
	Colors      map[string]SourceColor
	Scale       float64 // canvas millimeters per map unit
	Padding     float64 // canvas millimeters around the content
	ArrowLength float64 // heading arrow length in map units
	GridSpacing float64 // grid spacing in map units; 0 disables the grid
	Resolution  canvas.Resolution
}

// NewVectorRenderer creates a vector renderer with default settings
func NewVectorRenderer(layers []RenderLayer, colorOverrides map[string]string) *VectorRenderer {
	return &VectorRenderer{
		Layers:      layers,
		Colors:      layerColors(layers, colorOverrides),
		Scale:       100.0,
		Padding:     20.0,
		ArrowLength: 0.5,
		GridSpacing: 1.0,
		Resolution:  canvas.DPI(150),
	}
}

// HasDrawableContent returns true if any layer has a landmark or footprint
func (r *VectorRenderer) HasDrawableContent() bool {
	_, ok := layersBound(r.Layers)
	return ok
}

// canvasRenderer is implemented by both the svg and rasterizer renderers
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// RenderToSVG writes the layers as an SVG to the provided writer
func (r *VectorRenderer) RenderToSVG(w io.Writer) error {
	bound, width, height := r.canvasSize()
	svgRenderer := svg.New(w, width, height, nil)
	r.renderToCanvas(svgRenderer, bound, width, height)
	return svgRenderer.Close()
}

// RenderToPNG writes the layers as a PNG to the provided writer
func (r *VectorRenderer) RenderToPNG(w io.Writer) error {
	bound, width, height := r.canvasSize()
	rast := rasterizer.New(width, height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, bound, width, height)
	return png.Encode(w, rast)
}

func (r *VectorRenderer) canvasSize() (orb.Bound, float64, float64) {
	bound, ok := layersBound(r.Layers)
	if !ok {
		bound = orb.Bound{}
	}
	bound = bound.Pad(r.ArrowLength)
	width := (bound.Max[0]-bound.Min[0])*r.Scale + 2*r.Padding
	height := (bound.Max[1]-bound.Min[1])*r.Scale + 2*r.Padding
	return bound, width, height
}

func (r *VectorRenderer) renderToCanvas(renderer canvasRenderer, bound orb.Bound, width, height float64) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	toCanvas := func(p orb.Point) (float64, float64) {
		return (p[0]-bound.Min[0])*r.Scale + r.Padding, (p[1]-bound.Min[1])*r.Scale + r.Padding
	}

	if r.GridSpacing > 0 {
		gridStyle := canvas.DefaultStyle
		gridStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		gridStyle.Stroke = canvas.Paint{Color: canvas.Gray}
		gridStyle.StrokeWidth = 0.3
		gridStyle.Dashes = []float64{2.0, 2.0}

		for x := math.Ceil(bound.Min[0]/r.GridSpacing) * r.GridSpacing; x <= bound.Max[0]; x += r.GridSpacing {
			gridPath := &canvas.Path{}
			gridPath.MoveTo(toCanvas(orb.Point{x, bound.Min[1]}))
			gridPath.LineTo(toCanvas(orb.Point{x, bound.Max[1]}))
			renderer.RenderPath(gridPath, gridStyle, canvas.Identity)
		}
		for y := math.Ceil(bound.Min[1]/r.GridSpacing) * r.GridSpacing; y <= bound.Max[1]; y += r.GridSpacing {
			gridPath := &canvas.Path{}
			gridPath.MoveTo(toCanvas(orb.Point{bound.Min[0], y}))
			gridPath.LineTo(toCanvas(orb.Point{bound.Max[0], y}))
			renderer.RenderPath(gridPath, gridStyle, canvas.Identity)
		}
	}

	for _, l := range r.Layers {
		sc := r.Colors[l.SourceID]

		footStyle := canvas.DefaultStyle
		footStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(sc.Fill)}
		footStyle.Stroke = canvas.Paint{Color: nrgbaToRGBA(sc.Outline)}
		footStyle.StrokeWidth = 0.5

		for _, ring := range l.Footprints {
			if len(ring) == 0 {
				continue
			}
			cp := &canvas.Path{}
			for i, pt := range ring {
				cx, cy := toCanvas(pt)
				if i == 0 {
					cp.MoveTo(cx, cy)
				} else {
					cp.LineTo(cx, cy)
				}
			}
			cp.Close()
			renderer.RenderPath(cp, footStyle, canvas.Identity)
		}

		arrowStyle := canvas.DefaultStyle
		arrowStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		arrowStyle.Stroke = canvas.Paint{Color: nrgbaToRGBA(sc.Marker)}
		arrowStyle.StrokeWidth = 0.8

		centerStyle := canvas.DefaultStyle
		centerStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(sc.Marker)}
		centerStyle.Stroke = canvas.Paint{Color: canvas.Black}
		centerStyle.StrokeWidth = 0.2

		for _, lm := range l.Landmarks {
			cx, cy := toCanvas(orb.Point{lm.Pose.Position.X, lm.Pose.Position.Y})

			arrow := &canvas.Path{}
			arrow.MoveTo(cx, cy)
			arrow.LineTo(toCanvas(headingTip(lm, r.ArrowLength)))
			renderer.RenderPath(arrow, arrowStyle, canvas.Identity)

			renderer.RenderPath(canvas.Circle(1.5).Translate(cx, cy), centerStyle, canvas.Identity)
		}
	}
}
