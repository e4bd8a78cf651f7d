package resolver

import (
	"strings"

	"github.com/takeaway1/wxchat/internal/model"
)

// Diagnosis 联系人到聊天表匹配过程的调试信息
type Diagnosis struct {
	Database    string   `json:"database,omitempty"`
	Identifiers []string `json:"identifiers"`
	Candidates  []string `json:"candidates"`
	Matches     []string `json:"matches"`
}

// MatchCandidates 返回名称（忽略大小写）等于某个候选表名的表
func MatchCandidates(candidates []string, tables []*model.TableInfo) []*model.TableInfo {
	set := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		set[strings.ToLower(c)] = struct{}{}
	}
	out := make([]*model.TableInfo, 0)
	for _, t := range tables {
		if t == nil {
			continue
		}
		if _, ok := set[strings.ToLower(t.Name)]; ok {
			out = append(out, t)
		}
	}
	return out
}

// DiagnoseChatMapping 给出联系人的标识、候选表名以及在 tables 中实际命中的表
func DiagnoseChatMapping(c *model.Contact, tables []*model.TableInfo) *Diagnosis {
	candidates := GenerateCandidateTableNames(c)
	d := &Diagnosis{
		Identifiers: Identifiers(c),
		Candidates:  candidates,
		Matches:     []string{},
	}
	if d.Identifiers == nil {
		d.Identifiers = []string{}
	}
	for _, t := range MatchCandidates(candidates, tables) {
		d.Matches = append(d.Matches, t.Name)
	}
	return d
}
