package parser

import (
	"encoding/json"
	"fmt"

	"github.com/aluiziolira/go-best-rank/models"
)

var (
	depth1CodeKeys = []string{"depth1Code", "depth1_code", "depth1Cd", "d1Code"}
	depth1NameKeys = []string{"depth1Name", "depth1_name", "d1Name"}
	depth2CodeKeys = []string{"depth2Code", "depth2_code", "depth2Cd", "d2Code"}
	depth2NameKeys = []string{"depth2Name", "depth2_name", "d2Name"}
)

// ParseCategoryTree extracts category combinations from a taxonomy payload.
//
// Accepted shapes are the bestCategories tree (category1DepthList with nested
// category2DepthList), any document embedding a bestCategories object such as a
// __NEXT_DATA__ blob, and flat arrays of nodes. Groups without depth2 entries
// are skipped. Duplicates by identity keep the first occurrence.
func ParseCategoryTree(data []byte) ([]models.CategoryNode, error) {
	var root any
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: decode category json: %v", ErrMalformed, err)
	}

	scope := root
	if found := findKey(root, "bestCategories"); len(found) > 0 {
		scope = found[0]
	}

	var nodes []models.CategoryNode
	if groups := findKey(scope, "category1DepthList"); len(groups) > 0 {
		list, ok := groups[0].([]any)
		if !ok {
			return nil, fmt.Errorf("%w: category1DepthList is %T, want array", ErrMalformed, groups[0])
		}
		for _, g := range list {
			group, ok := g.(map[string]any)
			if !ok {
				continue
			}
			nodes = append(nodes, groupNodes(group)...)
		}
	} else {
		list, ok := scope.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: no category list found", ErrMalformed)
		}
		for _, item := range list {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			node := models.CategoryNode{
				Depth1Code: pickString(obj, depth1CodeKeys),
				Depth1Name: NormalizeText(pickString(obj, depth1NameKeys)),
				Depth2Code: pickString(obj, depth2CodeKeys),
				Depth2Name: NormalizeText(pickString(obj, depth2NameKeys)),
			}
			if node.Depth1Code != "" && node.Depth2Code != "" {
				nodes = append(nodes, node)
			}
		}
	}

	return models.UniqueNodes(nodes), nil
}

func groupNodes(group map[string]any) []models.CategoryNode {
	d1Code := pickString(group, depth1CodeKeys)
	d1Name := NormalizeText(pickString(group, depth1NameKeys))
	if d1Code == "" {
		return nil
	}

	subs, _ := group["category2DepthList"].([]any)
	out := make([]models.CategoryNode, 0, len(subs))
	for _, s := range subs {
		sub, ok := s.(map[string]any)
		if !ok {
			continue
		}
		d2Code := pickString(sub, depth2CodeKeys)
		if d2Code == "" {
			continue
		}
		out = append(out, models.CategoryNode{
			Depth1Code: d1Code,
			Depth1Name: d1Name,
			Depth2Code: d2Code,
			Depth2Name: NormalizeText(pickString(sub, depth2NameKeys)),
		})
	}
	return out
}
