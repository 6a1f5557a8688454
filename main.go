package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/kwv/posemark/landmark"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions holds the parsed command line
type AppOptions struct {
	ConfigFile         string
	DataDir            string
	MapFile            string
	Subtype            string
	VolumeThreshold    float64
	VolumeThresholdSet bool // --volume-threshold given explicitly
	OutputFile         string
	RenderFormat       string
	GridSpacing        float64
	HttpPort           int

	Extract  bool
	GeoJSON  bool
	Render   bool
	MqttMode bool
	HttpMode bool
}

// AppRunner is the set of modes main can dispatch to
type AppRunner interface {
	ApplyOptions(opts AppOptions)
	RunExtract()
	RunGeoJSON()
	RunRender()
	RunService()
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		os.Exit(2)
	}
}

// run parses args and dispatches to the selected mode on app
func run(args []string, out io.Writer, app AppRunner) error {
	fs := flag.NewFlagSet("posemark", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to configuration file")
	fs.StringVar(&opts.DataDir, "data-dir", ".", "Directory containing map files (*.json, *.json.gz)")
	fs.StringVar(&opts.MapFile, "map", "", "Single map file to process (overrides --data-dir)")
	fs.StringVar(&opts.Subtype, "subtype", "", "Pose marker subtype to extract (default: from config)")
	fs.Float64Var(&opts.VolumeThreshold, "volume-threshold", landmark.DefaultVolumeThreshold, "Reject markers whose tetrahedron volume exceeds this")
	fs.StringVar(&opts.OutputFile, "output", "", "Output file for --geojson and --render (default depends on mode)")
	fs.StringVar(&opts.RenderFormat, "format", "svg", "Render format: svg, png, or raster")
	fs.Float64Var(&opts.GridSpacing, "grid-spacing", 1.0, "Grid line spacing in map units")
	fs.IntVar(&opts.HttpPort, "http-port", 8080, "HTTP server port")
	fs.BoolVar(&opts.Extract, "extract", false, "Print landmarks extracted from map files and exit")
	fs.BoolVar(&opts.GeoJSON, "geojson", false, "Write landmarks and marker footprints as GeoJSON and exit")
	fs.BoolVar(&opts.Render, "render", false, "Render a top-down landmark view and exit")
	fs.BoolVar(&opts.MqttMode, "mqtt", false, "Run service mode with MQTT ingest and publishing")
	fs.BoolVar(&opts.HttpMode, "http", false, "Run service mode with the HTTP API")

	if err := fs.Parse(args); err != nil {
		return err
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "volume-threshold" {
			opts.VolumeThresholdSet = true
		}
	})

	fmt.Fprintf(out, "posemark version: %s\n", Version)
	app.ApplyOptions(opts)

	switch {
	case opts.Extract:
		app.RunExtract()
	case opts.GeoJSON:
		app.RunGeoJSON()
	case opts.Render:
		app.RunRender()
	case opts.MqttMode || opts.HttpMode:
		app.RunService()
	default:
		fmt.Fprintln(out, "Use --extract to print landmarks from map files")
		fmt.Fprintln(out, "Use --geojson to export landmarks as GeoJSON")
		fmt.Fprintln(out, "Use --render to draw landmarks (--format svg|png|raster)")
		fmt.Fprintln(out, "Use --mqtt and/or --http to run the service")
	}
	return nil
}
