package graph

import (
	"encoding/json"
	"sort"
)

// DenoiseLevel is the emphasis an edge is rendered with.
type DenoiseLevel string

const (
	DenoiseOff    DenoiseLevel = "off"
	DenoiseStrong DenoiseLevel = "strong"
	DenoiseWeak   DenoiseLevel = "weak"
)

// maxStrongEdges caps how many edges render at full emphasis.
const maxStrongEdges = 2

// DenoiseLevels is the level of every edge, indexed by EdgeID.
type DenoiseLevels [EdgeCount]DenoiseLevel

// MarshalJSON encodes the levels keyed by edge name.
func (l DenoiseLevels) MarshalJSON() ([]byte, error) {
	m := make(map[string]DenoiseLevel, EdgeCount)
	for i, lv := range l {
		m[edgeNames[i]] = lv
	}
	return json.Marshal(m)
}

// UnmarshalJSON decodes levels keyed by edge name. Missing edges are off.
func (l *DenoiseLevels) UnmarshalJSON(data []byte) error {
	var m map[string]DenoiseLevel
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	for i, name := range edgeNames {
		l[i] = DenoiseOff
		if lv, ok := m[name]; ok {
			l[i] = lv
		}
	}
	return nil
}

// ComputeDenoiseLevels ranks active edges by most recent activation (ties by
// ascending ordinal) and marks the top two strong, other active edges weak and
// idle edges off.
func ComputeDenoiseLevels(flows EdgeFlowStates) DenoiseLevels {
	active := make([]EdgeID, 0, EdgeCount)
	for _, id := range AllEdges() {
		if flows[id].Active() {
			active = append(active, id)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		a, b := flows[active[i]], flows[active[j]]
		if a.LastActivatedSeq != b.LastActivatedSeq {
			return a.LastActivatedSeq > b.LastActivatedSeq
		}
		return active[i] < active[j]
	})

	var levels DenoiseLevels
	for i := range levels {
		levels[i] = DenoiseOff
	}
	for rank, id := range active {
		if rank < maxStrongEdges {
			levels[id] = DenoiseStrong
		} else {
			levels[id] = DenoiseWeak
		}
	}
	return levels
}
