package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/kwv/posemark/landmark"
)

// App encapsulates the application state and dependencies
type App struct {
	Config       *landmark.Config
	StateTracker *landmark.StateTracker
	MQTTClient   *landmark.MQTTClient
	Publisher    *landmark.Publisher
	Out          io.Writer

	// CLI flags
	ConfigFile         string
	DataDir            string
	MapFile            string
	Subtype            string
	VolumeThreshold    float64
	VolumeThresholdSet bool
	OutputFile         string
	RenderFormat       string
	GridSpacing        float64
	HttpPort           int
	MqttMode           bool
	HttpMode           bool
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		StateTracker:    landmark.NewStateTracker(),
		Out:             os.Stdout,
		VolumeThreshold: landmark.DefaultVolumeThreshold,
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.DataDir = opts.DataDir
	a.MapFile = opts.MapFile
	a.Subtype = opts.Subtype
	a.VolumeThreshold = opts.VolumeThreshold
	a.VolumeThresholdSet = opts.VolumeThresholdSet
	a.OutputFile = opts.OutputFile
	a.RenderFormat = opts.RenderFormat
	a.GridSpacing = opts.GridSpacing
	a.HttpPort = opts.HttpPort
	a.MqttMode = opts.MqttMode
	a.HttpMode = opts.HttpMode
}

// RunExtract prints the landmarks of every map file
func (a *App) RunExtract() {
	if err := a.extract(); err != nil {
		log.Fatalf("Extract failed: %v", err)
	}
}

// RunGeoJSON writes landmarks and footprints of every map file as GeoJSON
func (a *App) RunGeoJSON() {
	if err := a.writeGeoJSON(); err != nil {
		log.Fatalf("GeoJSON export failed: %v", err)
	}
}

// RunRender draws every map file's landmarks into one image
func (a *App) RunRender() {
	if err := a.render(); err != nil {
		log.Fatalf("Render failed: %v", err)
	}
}

// resolveSubtype returns the --subtype flag, falling back to the config file.
// An explicit flag never requires a readable config.
func (a *App) resolveSubtype() (string, error) {
	if a.Subtype != "" {
		return a.Subtype, nil
	}
	if a.Config != nil {
		return a.Config.Subtype, nil
	}
	cfg, err := landmark.LoadConfig(a.resolvedConfigPath())
	if err != nil {
		return "", fmt.Errorf("no --subtype given and config unusable: %w", err)
	}
	a.Config = cfg
	return cfg.Subtype, nil
}

// resolveVolumeThreshold returns an explicit --volume-threshold, then the
// config file's volumeThreshold, then the flag default.
func (a *App) resolveVolumeThreshold() float64 {
	if a.VolumeThresholdSet {
		return a.VolumeThreshold
	}
	if a.Config == nil {
		cfg, err := landmark.LoadConfig(a.resolvedConfigPath())
		if err != nil {
			return a.VolumeThreshold
		}
		a.Config = cfg
	}
	return a.Config.EffectiveVolumeThreshold()
}

// resolvedConfigPath resolves the default config path relative to --data-dir
func (a *App) resolvedConfigPath() string {
	if a.DataDir != "" && a.DataDir != "." && a.ConfigFile == "config.yaml" {
		return filepath.Join(a.DataDir, "config.yaml")
	}
	return a.ConfigFile
}

// loadMapFiles decodes --map or every map file in --data-dir, keyed by source ID
func (a *App) loadMapFiles() (map[string]*landmark.Map, error) {
	var files []string
	if a.MapFile != "" {
		files = []string{a.MapFile}
	} else {
		for _, pattern := range []string{"*.json", "*.json.gz", "*.json.zz"} {
			matches, err := filepath.Glob(filepath.Join(a.DataDir, pattern))
			if err != nil {
				return nil, fmt.Errorf("finding map files: %w", err)
			}
			files = append(files, matches...)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no map files found in %s", a.DataDir)
	}

	maps := make(map[string]*landmark.Map, len(files))
	for _, file := range files {
		m, err := landmark.DecodeMapFile(file)
		if err != nil {
			log.Printf("Warning: failed to load %s: %v", file, err)
			continue
		}
		maps[sourceIDFromPath(file)] = m
	}
	if len(maps) == 0 {
		return nil, fmt.Errorf("no map file could be decoded")
	}
	return maps, nil
}

// sourceIDFromPath strips directory and map extensions from a file name
func sourceIDFromPath(path string) string {
	base := filepath.Base(path)
	for _, ext := range []string{".gz", ".zz", ".json"} {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

// extractAll runs the extractor over each map and returns sets ordered by source ID
func extractAll(maps map[string]*landmark.Map, subtype string, threshold float64) []landmark.LandmarkSet {
	sets := make([]landmark.LandmarkSet, 0, len(maps))
	for id, m := range maps {
		lms := landmark.ParseLandmarks(m, subtype, threshold)
		sets = append(sets, landmark.NewLandmarkSet(id, subtype, lms))
	}
	sort.Slice(sets, func(i, j int) bool { return sets[i].SourceID < sets[j].SourceID })
	return sets
}

func (a *App) extract() error {
	subtype, err := a.resolveSubtype()
	if err != nil {
		return err
	}
	maps, err := a.loadMapFiles()
	if err != nil {
		return err
	}

	threshold := a.resolveVolumeThreshold()
	fmt.Fprintf(a.Out, "Found %d map(s), subtype %q, volume threshold %g\n\n", len(maps), subtype, threshold)

	for _, set := range extractAll(maps, subtype, threshold) {
		summary := landmark.Summarize(maps[set.SourceID])
		fmt.Fprintf(a.Out, "=== %s ===\n", set.SourceID)
		fmt.Fprintf(a.Out, "Polygons: %d, pose markers: %d (%s), malformed: %d\n",
			summary.PolygonCount, summary.PoseMarkerCount, strings.Join(summary.SubtypeNames, ", "), summary.MalformedMarkers)
		fmt.Fprintf(a.Out, "Landmarks: %d\n", len(set.Landmarks))
		for _, lm := range set.Landmarks {
			p, q := lm.Pose.Position, lm.Pose.Orientation
			fmt.Fprintf(a.Out, "  %-12s pos(%.3f, %.3f, %.3f) quat(%.4f, %.4f, %.4f, %.4f)\n",
				lm.ID, p.X, p.Y, p.Z, q.X, q.Y, q.Z, q.W)
		}
		fmt.Fprintln(a.Out)
	}
	return nil
}

func (a *App) writeGeoJSON() error {
	subtype, err := a.resolveSubtype()
	if err != nil {
		return err
	}
	maps, err := a.loadMapFiles()
	if err != nil {
		return err
	}

	threshold := a.resolveVolumeThreshold()
	sets := extractAll(maps, subtype, threshold)
	fc := landmark.LandmarksToFeatureCollection(sets)
	for _, set := range sets {
		fc = landmark.MergeFeatureCollections(fc,
			landmark.MarkerFootprints(maps[set.SourceID], set.SourceID, subtype, threshold))
	}

	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling GeoJSON: %w", err)
	}

	output := a.OutputFile
	if output == "" || output == "-" {
		_, err = a.Out.Write(append(data, '\n'))
		return err
	}
	if err := os.WriteFile(output, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", output, err)
	}
	fmt.Fprintf(a.Out, "Wrote %d features to %s\n", len(fc.Features), output)
	return nil
}

func (a *App) render() error {
	subtype, err := a.resolveSubtype()
	if err != nil {
		return err
	}
	maps, err := a.loadMapFiles()
	if err != nil {
		return err
	}

	threshold := a.resolveVolumeThreshold()
	layers := landmark.BuildRenderLayers(maps, extractAll(maps, subtype, threshold), threshold)
	colors := map[string]string{}
	if a.Config != nil {
		for _, sc := range a.Config.Sources {
			colors[sc.ID] = sc.Color
		}
	}

	output := a.OutputFile
	format := strings.ToLower(a.RenderFormat)
	if output == "" {
		ext := format
		if ext == "raster" {
			ext = "png"
		}
		output = "landmarks." + ext
	}

	switch format {
	case "raster":
		rr := landmark.NewRasterRenderer(layers, colors)
		if !rr.HasDrawableContent() {
			return fmt.Errorf("no landmarks to render")
		}
		if err := rr.SavePNG(output); err != nil {
			return err
		}
	case "svg", "png":
		vr := landmark.NewVectorRenderer(layers, colors)
		vr.GridSpacing = a.GridSpacing
		if !vr.HasDrawableContent() {
			return fmt.Errorf("no landmarks to render")
		}
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("creating %s: %w", output, err)
		}
		defer func() { _ = f.Close() }()
		if format == "svg" {
			err = vr.RenderToSVG(f)
		} else {
			err = vr.RenderToPNG(f)
		}
		if err != nil {
			return fmt.Errorf("rendering %s: %w", output, err)
		}
	default:
		return fmt.Errorf("unknown render format %q (want svg, png or raster)", a.RenderFormat)
	}

	fmt.Fprintf(a.Out, "Rendered %d source(s) to %s\n", len(layers), output)
	return nil
}

// ingest stores a freshly decoded map, extracts its landmarks and publishes them
func (a *App) ingest(sourceID string, m *landmark.Map) landmark.LandmarkSet {
	subtype := a.Config.Subtype
	threshold := a.Config.EffectiveVolumeThreshold()

	a.StateTracker.UpdateMap(sourceID, m)
	lms := landmark.ParseLandmarks(m, subtype, threshold)
	set := a.StateTracker.SetLandmarks(sourceID, subtype, lms)

	summary := landmark.Summarize(m)
	log.Printf("%s: %d polygons, %d pose markers -> %d landmarks (%s)",
		sourceID, summary.PolygonCount, summary.PoseMarkerCount, len(set.Landmarks), subtype)

	if a.Publisher != nil {
		if err := a.Publisher.PublishLandmarks(sourceID, subtype, lms); err != nil {
			log.Printf("Error publishing landmarks for %s: %v", sourceID, err)
		}
	}
	return set
}

// handleMapMessage is the MQTT message handler
func (a *App) handleMapMessage(sourceID string, _ []byte, m *landmark.Map, err error) {
	if err != nil {
		log.Printf("Error receiving map for %s: %v", sourceID, err)
		return
	}
	a.ingest(sourceID, m)
}

// pollSource fetches a source's API map every interval until ctx is done.
// Unchanged maps are neither re-extracted nor republished.
func (a *App) pollSource(ctx context.Context, sc landmark.SourceConfig, interval time.Duration) {
	fetcher := landmark.NewMapFetcher(sc.ApiURL)
	fetch := func() {
		m, err := fetcher.Fetch(ctx)
		switch {
		case errors.Is(err, landmark.ErrNotModified):
			log.Printf("[FETCH] %s: unchanged", sc.ID)
		case err != nil:
			log.Printf("[FETCH] %s: %v", sc.ID, err)
		default:
			a.ingest(sc.ID, m)
		}
	}

	fetch()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fetch()
		}
	}
}

// loadFileSources ingests every source backed by a local file
func (a *App) loadFileSources() int {
	loaded := 0
	for _, sc := range a.Config.Sources {
		if sc.File == "" {
			continue
		}
		path := sc.File
		if !filepath.IsAbs(path) && a.DataDir != "" {
			path = filepath.Join(a.DataDir, path)
		}
		m, err := landmark.DecodeMapFile(path)
		if err != nil {
			log.Printf("Warning: failed to load %s for %s: %v", path, sc.ID, err)
			continue
		}
		a.ingest(sc.ID, m)
		loaded++
	}
	return loaded
}

// attachMQTT publishes through client and republishes every stored landmark
// set whenever the client (re)connects, so sources ingested while offline
// still reach the broker.
func (a *App) attachMQTT(client *landmark.MQTTClient, prefix string) {
	a.MQTTClient = client
	a.Publisher = landmark.NewPublisherWithPrefix(client.GetClient(), prefix)
	client.SetConnectedHandler(a.republishAll)
}

// republishAll publishes every landmark set held by the state tracker
func (a *App) republishAll() {
	if a.Publisher == nil {
		return
	}
	sets := a.StateTracker.GetLandmarkSets()
	for _, set := range sets {
		if err := a.Publisher.PublishLandmarks(set.SourceID, set.Subtype, set.Landmarks); err != nil {
			log.Printf("Error republishing landmarks for %s: %v", set.SourceID, err)
		}
	}
	if len(sets) > 0 {
		log.Printf("[MQTT] republished %d landmark set(s)", len(sets))
	}
}

// RunService runs MQTT ingest, API polling and the HTTP API until interrupted
func (a *App) RunService() {
	fmt.Fprintln(a.Out, "Starting posemark service...")

	resolvedConfig := a.resolvedConfigPath()
	config, err := landmark.LoadConfig(resolvedConfig)
	if err != nil {
		log.Fatalf("Failed to load config: %v (looked at %s)", err, resolvedConfig)
	}
	a.Config = config
	log.Printf("Loaded config from %s (subtype %q, volume threshold %g)",
		resolvedConfig, config.Subtype, config.EffectiveVolumeThreshold())

	for _, sc := range config.Sources {
		if sc.Color != "" {
			a.StateTracker.SetColor(sc.ID, sc.Color)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The publisher must exist before any source is ingested.
	if a.MqttMode {
		mqttClient, err := landmark.NewMQTTClient(config, a.handleMapMessage)
		if err != nil {
			log.Fatalf("Failed to initialize MQTT: %v", err)
		}
		if mqttClient == nil {
			log.Fatal("MQTT broker not configured in config.yaml")
		}
		a.attachMQTT(mqttClient, config.MQTT.PublishPrefix)
		mqttClient.Start()
		fmt.Fprintln(a.Out, "MQTT landmark publisher initialized")
	}

	if n := a.loadFileSources(); n > 0 {
		fmt.Fprintf(a.Out, "Loaded %d map(s) from files\n", n)
	}

	interval := config.EffectiveRefreshInterval()
	for _, sc := range config.Sources {
		if sc.ApiURL != "" {
			go a.pollSource(ctx, sc, interval)
		}
	}

	if a.HttpMode {
		handler := newHTTPServer(a.StateTracker, serverOptions{
			VolumeThreshold: config.EffectiveVolumeThreshold(),
			GridSpacing:     config.GridSpacing,
		})
		go func() {
			addr := fmt.Sprintf("0.0.0.0:%d", a.HttpPort)
			log.Printf("[HTTP] Starting server on %s", addr)
			if err := http.ListenAndServe(addr, handler); err != nil {
				log.Fatalf("[HTTP] Server error: %v", err)
			}
		}()
	}

	fmt.Fprintln(a.Out, "\nService Running")
	fmt.Fprintln(a.Out, "===============")
	if a.MqttMode {
		fmt.Fprintln(a.Out, "\nMQTT:")
		for _, sc := range config.Sources {
			if sc.Topic != "" {
				fmt.Fprintf(a.Out, "    - %s (%s)\n", sc.Topic, sc.ID)
			}
		}
		fmt.Fprintf(a.Out, "  Publishing to: %s\n", a.Publisher.SourceTopic("{sourceID}"))
		fmt.Fprintf(a.Out, "  Combined: %s\n", a.Publisher.CombinedTopic())
	}
	if a.HttpMode {
		fmt.Fprintf(a.Out, "\nHTTP endpoints (port %d):\n", a.HttpPort)
		fmt.Fprintln(a.Out, "  GET /health             - Health check")
		fmt.Fprintln(a.Out, "  GET /landmarks          - Landmark sets (?source=ID)")
		fmt.Fprintln(a.Out, "  GET /landmarks.geojson  - Landmarks and footprints as GeoJSON")
		fmt.Fprintln(a.Out, "  GET /landmarks.svg      - Vector landmark view")
		fmt.Fprintln(a.Out, "  GET /landmarks.png      - Raster landmark view")
		fmt.Fprintln(a.Out, "  GET /summary            - Per-source map summary")
	}
	fmt.Fprintln(a.Out, "\nPress Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Fprintln(a.Out, "\nShutting down service...")
	cancel()
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
	fmt.Fprintln(a.Out, "Service stopped")
}
