package landmark

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/paulmach/orb"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// SourceColor defines the colors used for one source's markers
type SourceColor struct {
	Fill    color.NRGBA
	Outline color.NRGBA
	Marker  color.NRGBA
}

// DefaultColors returns distinct colors for up to 4 sources
func DefaultColors() []SourceColor {
	return []SourceColor{
		{ // Blue
			Fill:    color.NRGBA{100, 149, 237, 180},
			Outline: color.NRGBA{0, 0, 139, 255},
			Marker:  color.NRGBA{0, 0, 255, 255},
		},
		{ // Red
			Fill:    color.NRGBA{255, 99, 71, 150},
			Outline: color.NRGBA{139, 0, 0, 255},
			Marker:  color.NRGBA{255, 0, 0, 255},
		},
		{ // Green
			Fill:    color.NRGBA{144, 238, 144, 150},
			Outline: color.NRGBA{0, 100, 0, 255},
			Marker:  color.NRGBA{0, 160, 0, 255},
		},
		{ // Yellow
			Fill:    color.NRGBA{255, 255, 150, 150},
			Outline: color.NRGBA{184, 134, 11, 255},
			Marker:  color.NRGBA{255, 215, 0, 255},
		},
	}
}

// ColorFromHex derives a SourceColor from a "#RRGGBB" string
func ColorFromHex(hex string) SourceColor {
	c := parseHexColor(hex)
	return SourceColor{
		Fill:    color.NRGBA{c.R, c.G, c.B, 120},
		Outline: color.NRGBA{c.R / 2, c.G / 2, c.B / 2, 255},
		Marker:  color.NRGBA{c.R, c.G, c.B, 255},
	}
}

// RenderLayer is one source's drawable content: the footprints of accepted
// markers and the landmarks extracted from them.
type RenderLayer struct {
	SourceID   string
	Footprints []orb.Ring
	Landmarks  []Landmark
}

// BuildRenderLayers pairs each landmark set with the footprints of the
// markers it came from. Layers are ordered by source ID.
func BuildRenderLayers(maps map[string]*Map, sets []LandmarkSet, volumeThreshold float64) []RenderLayer {
	layers := make([]RenderLayer, 0, len(sets))
	for _, set := range sets {
		layer := RenderLayer{SourceID: set.SourceID, Landmarks: set.Landmarks}
		if m, ok := maps[set.SourceID]; ok && m != nil {
			for i := range m.Polygons {
				poly := &m.Polygons[i]
				if !IsPoseMarker(poly, set.Subtype) {
					continue
				}
				if _, ok := markerPose(poly.Vertices, volumeThreshold); ok {
					layer.Footprints = append(layer.Footprints, poly.Footprint())
				}
			}
		}
		layers = append(layers, layer)
	}
	sort.Slice(layers, func(i, j int) bool { return layers[i].SourceID < layers[j].SourceID })
	return layers
}

// layerColors assigns colors by layer order, letting overrides win.
func layerColors(layers []RenderLayer, overrides map[string]string) map[string]SourceColor {
	palette := DefaultColors()
	colors := make(map[string]SourceColor, len(layers))
	for i, l := range layers {
		if hex, ok := overrides[l.SourceID]; ok && hex != "" {
			colors[l.SourceID] = ColorFromHex(hex)
			continue
		}
		colors[l.SourceID] = palette[i%len(palette)]
	}
	return colors
}

// layersBound returns the xy bound of every footprint and landmark position.
func layersBound(layers []RenderLayer) (orb.Bound, bool) {
	var b orb.Bound
	found := false
	extend := func(p orb.Point) {
		if !found {
			b = orb.Bound{Min: p, Max: p}
			found = true
			return
		}
		b = b.Extend(p)
	}
	for _, l := range layers {
		for _, ring := range l.Footprints {
			for _, p := range ring {
				extend(p)
			}
		}
		for _, lm := range l.Landmarks {
			extend(orb.Point{lm.Pose.Position.X, lm.Pose.Position.Y})
		}
	}
	return b, found
}

// headingTip returns the xy end point of the landmark's x-axis arrow.
func headingTip(lm Landmark, length float64) orb.Point {
	axis := lm.Pose.Orientation.Normalized().Rotate(r3.Vector{X: 1})
	p := lm.Pose.Position
	return orb.Point{p.X + axis.X*length, p.Y + axis.Y*length}
}

// RasterRenderer draws landmark layers into an RGBA image
type RasterRenderer struct {
	Layers        []RenderLayer
	Colors        map[string]SourceColor
	PixelsPerUnit float64 // image pixels per map unit
	Padding       int     // pixels around the content
	ArrowLength   float64 // heading arrow length in map units
	Labels        bool
}

// NewRasterRenderer creates a raster renderer with default settings
func NewRasterRenderer(layers []RenderLayer, colorOverrides map[string]string) *RasterRenderer {
	return &RasterRenderer{
		Layers:        layers,
		Colors:        layerColors(layers, colorOverrides),
		PixelsPerUnit: 100,
		Padding:       40,
		ArrowLength:   0.5,
		Labels:        true,
	}
}

// HasDrawableContent returns true if any layer has a landmark or footprint
func (r *RasterRenderer) HasDrawableContent() bool {
	_, ok := layersBound(r.Layers)
	return ok
}

// maxRasterSide caps the image size so a stray far-away marker cannot
// allocate an enormous image.
const maxRasterSide = 8192

// Render draws all layers. Map y grows upwards, image y downwards.
func (r *RasterRenderer) Render() *image.RGBA {
	bound, ok := layersBound(r.Layers)
	if !ok {
		return image.NewRGBA(image.Rect(0, 0, 2*r.Padding+1, 2*r.Padding+1))
	}
	// Keep room for arrows leaving the content bound.
	bound = bound.Pad(r.ArrowLength)

	scale := r.PixelsPerUnit
	if longest := math.Max(bound.Max[0]-bound.Min[0], bound.Max[1]-bound.Min[1]) * scale; longest > maxRasterSide {
		scale *= maxRasterSide / longest
	}

	width := int(math.Ceil((bound.Max[0]-bound.Min[0])*scale)) + 2*r.Padding
	height := int(math.Ceil((bound.Max[1]-bound.Min[1])*scale)) + 2*r.Padding
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	white := color.RGBA{255, 255, 255, 255}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, white)
		}
	}

	toPixel := func(p orb.Point) (int, int) {
		px := float64(r.Padding) + (p[0]-bound.Min[0])*scale
		py := float64(height-r.Padding) - (p[1]-bound.Min[1])*scale
		return int(math.Round(px)), int(math.Round(py))
	}

	for _, l := range r.Layers {
		sc := r.Colors[l.SourceID]
		outline := nrgbaToRGBA(sc.Outline)
		for _, ring := range l.Footprints {
			for i := 0; i+1 < len(ring); i++ {
				x0, y0 := toPixel(ring[i])
				x1, y1 := toPixel(ring[i+1])
				drawLine(img, x0, y0, x1, y1, outline)
			}
		}
	}

	for _, l := range r.Layers {
		sc := r.Colors[l.SourceID]
		marker := nrgbaToRGBA(sc.Marker)
		for _, lm := range l.Landmarks {
			cx, cy := toPixel(orb.Point{lm.Pose.Position.X, lm.Pose.Position.Y})
			tx, ty := toPixel(headingTip(lm, r.ArrowLength))
			drawLine(img, cx, cy, tx, ty, marker)
			drawCircle(img, cx, cy, 3, marker)
			if r.Labels {
				drawText(img, cx+5, cy-5, lm.ID, color.RGBA{0, 0, 0, 255})
			}
		}
	}

	r.drawLegend(img)
	return img
}

// SavePNG renders and writes the image to path
func (r *RasterRenderer) SavePNG(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if err := png.Encode(f, r.Render()); err != nil {
		return fmt.Errorf("encoding PNG: %w", err)
	}
	return nil
}

func (r *RasterRenderer) drawLegend(img *image.RGBA) {
	y := 16
	for _, l := range r.Layers {
		sc := r.Colors[l.SourceID]
		for dy := 0; dy < 10; dy++ {
			for dx := 0; dx < 10; dx++ {
				img.Set(8+dx, y+dy-9, sc.Marker)
			}
		}
		drawText(img, 24, y, fmt.Sprintf("%s (%d)", l.SourceID, len(l.Landmarks)), color.RGBA{0, 0, 0, 255})
		y += 16
	}
}

// drawLine draws a one pixel line with Bresenham's algorithm
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	b := img.Bounds()
	e := dx + dy
	for {
		if image.Pt(x0, y0).In(b) {
			img.SetRGBA(x0, y0, c)
		}
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// drawCircle draws a filled circle
func drawCircle(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				x, y := cx+dx, cy+dy
				if x >= 0 && x < img.Bounds().Max.X && y >= 0 && y < img.Bounds().Max.Y {
					img.Set(x, y, c)
				}
			}
		}
	}
}

// drawText renders text onto an image at the specified position
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

// parseHexColor parses "#RRGGBB", defaulting to red
func parseHexColor(hex string) color.RGBA {
	defaultColor := color.RGBA{255, 0, 0, 255}

	if len(hex) == 0 {
		return defaultColor
	}
	if hex[0] == '#' {
		hex = hex[1:]
	}
	if len(hex) != 6 {
		return defaultColor
	}

	var r, g, b uint8
	if _, err := fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b); err != nil {
		return defaultColor
	}
	return color.RGBA{r, g, b, 255}
}
