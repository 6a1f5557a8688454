package landmark

import (
	"sort"
	"sync"
)

// StateTracker holds the latest map and landmark set per source for the
// HTTP endpoints and renderers.
type StateTracker struct {
	mu        sync.RWMutex
	maps      map[string]*Map
	landmarks map[string]LandmarkSet
	colors    map[string]string // source ID -> hex color
}

// NewStateTracker creates a new state tracker
func NewStateTracker() *StateTracker {
	return &StateTracker{
		maps:      make(map[string]*Map),
		landmarks: make(map[string]LandmarkSet),
		colors:    make(map[string]string),
	}
}

// SetColor sets the color for a source
func (st *StateTracker) SetColor(sourceID, hexColor string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.colors[sourceID] = hexColor
}

// GetColors returns a copy of the configured source colors
func (st *StateTracker) GetColors() map[string]string {
	st.mu.RLock()
	defer st.mu.RUnlock()

	result := make(map[string]string, len(st.colors))
	for k, v := range st.colors {
		result[k] = v
	}
	return result
}

// UpdateMap stores the latest map for a source. The map must not be mutated
// afterwards; readers share it.
func (st *StateTracker) UpdateMap(sourceID string, m *Map) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.maps[sourceID] = m
}

// SetLandmarks replaces the landmark set for a source and returns the stored set
func (st *StateTracker) SetLandmarks(sourceID, subtype string, landmarks []Landmark) LandmarkSet {
	set := NewLandmarkSet(sourceID, subtype, append([]Landmark(nil), landmarks...))

	st.mu.Lock()
	defer st.mu.Unlock()
	st.landmarks[sourceID] = set
	return set
}

// GetLandmarks returns the landmark set for a source
func (st *StateTracker) GetLandmarks(sourceID string) (LandmarkSet, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	set, ok := st.landmarks[sourceID]
	if !ok {
		return LandmarkSet{}, false
	}
	set.Landmarks = append([]Landmark(nil), set.Landmarks...)
	return set, true
}

// GetLandmarkSets returns all landmark sets ordered by source ID
func (st *StateTracker) GetLandmarkSets() []LandmarkSet {
	st.mu.RLock()
	defer st.mu.RUnlock()

	sets := make([]LandmarkSet, 0, len(st.landmarks))
	for _, set := range st.landmarks {
		set.Landmarks = append([]Landmark(nil), set.Landmarks...)
		sets = append(sets, set)
	}
	sort.Slice(sets, func(i, j int) bool { return sets[i].SourceID < sets[j].SourceID })
	return sets
}

// GetMaps returns all current maps
func (st *StateTracker) GetMaps() map[string]*Map {
	st.mu.RLock()
	defer st.mu.RUnlock()

	result := make(map[string]*Map, len(st.maps))
	for k, v := range st.maps {
		result[k] = v
	}
	return result
}

// HasMaps returns true if we have at least one map
func (st *StateTracker) HasMaps() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.maps) > 0
}

// LandmarkCount returns the total number of landmarks across sources
func (st *StateTracker) LandmarkCount() int {
	st.mu.RLock()
	defer st.mu.RUnlock()

	n := 0
	for _, set := range st.landmarks {
		n += len(set.Landmarks)
	}
	return n
}
