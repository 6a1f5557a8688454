package main

import (
	"bytes"
	"encoding/json"
	"image/png"
	"log"
	"net/http"
	"sort"
	"time"

	"github.com/kwv/posemark/landmark"
)

// serverOptions carries the extraction settings the endpoints need
type serverOptions struct {
	VolumeThreshold float64
	GridSpacing     float64
}

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(stateTracker *landmark.StateTracker, opts serverOptions) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] /health request from %s", r.RemoteAddr)
		status := struct {
			Status        string    `json:"status"`
			Timestamp     time.Time `json:"timestamp"`
			HasMaps       bool      `json:"hasMaps"`
			LandmarkCount int       `json:"landmarkCount"`
		}{
			Status:        "ok",
			Timestamp:     time.Now(),
			HasMaps:       stateTracker.HasMaps(),
			LandmarkCount: stateTracker.LandmarkCount(),
		}
		writeJSON(w, "application/json", status)
	})

	mux.HandleFunc("/landmarks", func(w http.ResponseWriter, r *http.Request) {
		if source := r.URL.Query().Get("source"); source != "" {
			set, ok := stateTracker.GetLandmarks(source)
			if !ok {
				http.Error(w, "Unknown source", http.StatusNotFound)
				return
			}
			writeJSON(w, "application/json", set)
			return
		}
		writeJSON(w, "application/json", stateTracker.GetLandmarkSets())
	})

	mux.HandleFunc("/landmarks.geojson", func(w http.ResponseWriter, r *http.Request) {
		sets := stateTracker.GetLandmarkSets()
		maps := stateTracker.GetMaps()

		fc := landmark.LandmarksToFeatureCollection(sets)
		for _, set := range sets {
			fc = landmark.MergeFeatureCollections(fc,
				landmark.MarkerFootprints(maps[set.SourceID], set.SourceID, set.Subtype, opts.VolumeThreshold))
		}
		writeJSON(w, "application/geo+json", fc)
	})

	mux.HandleFunc("/landmarks.svg", func(w http.ResponseWriter, r *http.Request) {
		renderer := landmark.NewVectorRenderer(buildLayers(stateTracker, opts), stateTracker.GetColors())
		if opts.GridSpacing > 0 {
			renderer.GridSpacing = opts.GridSpacing
		}
		if !renderer.HasDrawableContent() {
			http.Error(w, "No landmarks available", http.StatusServiceUnavailable)
			return
		}

		var buf bytes.Buffer
		if err := renderer.RenderToSVG(&buf); err != nil {
			log.Printf("Error rendering landmark SVG: %v", err)
			http.Error(w, "Render failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write(buf.Bytes())
	})

	mux.HandleFunc("/landmarks.png", func(w http.ResponseWriter, r *http.Request) {
		renderer := landmark.NewRasterRenderer(buildLayers(stateTracker, opts), stateTracker.GetColors())
		if !renderer.HasDrawableContent() {
			http.Error(w, "No landmarks available", http.StatusServiceUnavailable)
			return
		}

		img := renderer.Render()
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := png.Encode(w, img); err != nil {
			log.Printf("Error encoding landmark PNG: %v", err)
		}
	})

	mux.HandleFunc("/summary", func(w http.ResponseWriter, r *http.Request) {
		maps := stateTracker.GetMaps()
		ids := make([]string, 0, len(maps))
		for id := range maps {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		type sourceSummary struct {
			SourceID string `json:"sourceId"`
			landmark.MapSummary
		}
		summaries := make([]sourceSummary, 0, len(ids))
		for _, id := range ids {
			summaries = append(summaries, sourceSummary{SourceID: id, MapSummary: landmark.Summarize(maps[id])})
		}
		writeJSON(w, "application/json", summaries)
	})

	return mux
}

// buildLayers snapshots the tracker into render layers
func buildLayers(st *landmark.StateTracker, opts serverOptions) []landmark.RenderLayer {
	return landmark.BuildRenderLayers(st.GetMaps(), st.GetLandmarkSets(), opts.VolumeThreshold)
}

// writeJSON encodes v with the given content type
func writeJSON(w http.ResponseWriter, contentType string, v any) {
	w.Header().Set("Content-Type", contentType)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}
