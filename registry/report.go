package registry

import (
	"fmt"
	"strings"

	"github.com/aluiziolira/go-best-rank/models"
)

// Rename pairs a node whose identity survived a version with new display names.
type Rename struct {
	Before models.CategoryNode
	After  models.CategoryNode
}

// Changes splits a log entry into pure additions, pure removals and renames.
func Changes(e models.VersionLogEntry) (added, removed []models.CategoryNode, renamed []Rename) {
	gone := make(map[models.CategoryKey]models.CategoryNode, len(e.Removed))
	for _, n := range e.Removed {
		gone[n.Key()] = n
	}
	paired := make(map[models.CategoryKey]struct{})
	for _, n := range e.Added {
		if before, ok := gone[n.Key()]; ok {
			renamed = append(renamed, Rename{Before: before, After: n})
			paired[n.Key()] = struct{}{}
			continue
		}
		added = append(added, n)
	}
	for _, n := range e.Removed {
		if _, ok := paired[n.Key()]; !ok {
			removed = append(removed, n)
		}
	}
	return added, removed, renamed
}

// ChangeReport renders a Markdown summary of one version change.
func ChangeReport(e models.VersionLogEntry) string {
	added, removed, renamed := Changes(e)

	var b strings.Builder
	b.WriteString("# 카테고리 변경사항 리포트\n\n")
	fmt.Fprintf(&b, "- 버전: v%d\n", e.Version)
	fmt.Fprintf(&b, "- 시각: %s\n", e.Timestamp.Format("2006-01-02 15:04:05 -0700"))
	if e.OldHash == "" {
		fmt.Fprintf(&b, "- 해시: %s (초기 생성)\n\n", shortHash(e.NewHash))
	} else {
		fmt.Fprintf(&b, "- 해시: %s → %s\n\n", shortHash(e.OldHash), shortHash(e.NewHash))
	}

	fmt.Fprintf(&b, "## 변경 요약\n\n추가 %d개, 삭제 %d개, 이름 변경 %d개\n\n", len(added), len(removed), len(renamed))

	if len(added) > 0 {
		b.WriteString("### 추가된 카테고리\n\n")
		for _, n := range added {
			fmt.Fprintf(&b, "- %s (`%s`)\n", n.Label(), n.Key())
		}
		b.WriteString("\n")
	}
	if len(removed) > 0 {
		b.WriteString("### 삭제된 카테고리\n\n")
		for _, n := range removed {
			fmt.Fprintf(&b, "- %s (`%s`)\n", n.Label(), n.Key())
		}
		b.WriteString("\n")
	}
	if len(renamed) > 0 {
		b.WriteString("### 이름이 바뀐 카테고리\n\n")
		for _, rn := range renamed {
			fmt.Fprintf(&b, "- `%s`: %s → %s\n", rn.After.Key(), rn.Before.Label(), rn.After.Label())
		}
		b.WriteString("\n")
	}
	return b.String()
}
