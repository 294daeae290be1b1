// Package models defines the data structures shared by the tracker packages.
package models

import (
	"sort"
	"time"
)

// CategoryNode is one (depth1, depth2) combination of the ranking taxonomy.
type CategoryNode struct {
	Depth1Code string `json:"depth1_code" yaml:"depth1_code"`
	Depth1Name string `json:"depth1_name" yaml:"depth1_name"`
	Depth2Code string `json:"depth2_code" yaml:"depth2_code"`
	Depth2Name string `json:"depth2_name" yaml:"depth2_name"`
}

// CategoryKey identifies a node regardless of its display names.
type CategoryKey struct {
	Depth1Code string
	Depth2Code string
}

// Key returns the identity of the node.
func (n CategoryNode) Key() CategoryKey {
	return CategoryKey{Depth1Code: n.Depth1Code, Depth2Code: n.Depth2Code}
}

// Label renders the human readable "depth1 > depth2" form, falling back to codes.
func (n CategoryNode) Label() string {
	d1 := n.Depth1Name
	if d1 == "" {
		d1 = n.Depth1Code
	}
	d2 := n.Depth2Name
	if d2 == "" {
		d2 = n.Depth2Code
	}
	return d1 + " > " + d2
}

func (k CategoryKey) String() string {
	return k.Depth1Code + "/" + k.Depth2Code
}

// SortNodes orders nodes by depth1 code, then depth2 code, in place.
func SortNodes(nodes []CategoryNode) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].Depth1Code != nodes[j].Depth1Code {
			return nodes[i].Depth1Code < nodes[j].Depth1Code
		}
		return nodes[i].Depth2Code < nodes[j].Depth2Code
	})
}

// UniqueNodes drops later nodes that repeat an earlier identity.
func UniqueNodes(nodes []CategoryNode) []CategoryNode {
	seen := make(map[CategoryKey]struct{}, len(nodes))
	out := make([]CategoryNode, 0, len(nodes))
	for _, n := range nodes {
		if _, ok := seen[n.Key()]; ok {
			continue
		}
		seen[n.Key()] = struct{}{}
		out = append(out, n)
	}
	return out
}

// CategorySnapshot is one recorded version of the taxonomy.
type CategorySnapshot struct {
	Version    int            `json:"version"`
	Hash       string         `json:"hash"`
	CapturedAt time.Time      `json:"captured_at"`
	Nodes      []CategoryNode `json:"nodes"`

	// Provenance of this version, kept so the version log can be rebuilt.
	OldHash string         `json:"old_hash,omitempty"`
	Added   []CategoryNode `json:"added,omitempty"`
	Removed []CategoryNode `json:"removed,omitempty"`
}

// Empty reports whether no snapshot has ever been recorded.
func (s CategorySnapshot) Empty() bool {
	return s.Version == 0
}

// Depth1Count returns the number of distinct depth1 groups in the snapshot.
func (s CategorySnapshot) Depth1Count() int {
	seen := make(map[string]struct{})
	for _, n := range s.Nodes {
		seen[n.Depth1Code] = struct{}{}
	}
	return len(seen)
}

// VersionLogEntry records one taxonomy change. Entries are append-only.
type VersionLogEntry struct {
	Version   int            `json:"version"`
	Timestamp time.Time      `json:"timestamp"`
	OldHash   string         `json:"old_hash"`
	NewHash   string         `json:"new_hash"`
	Added     []CategoryNode `json:"added"`
	Removed   []CategoryNode `json:"removed"`
}
