package ranker

import (
	"fmt"
	"sort"
	"strconv"

	"live-friends/internal/domain"
)

const (
	minResults = 2
	maxResults = 4
)

// SimpleRanker упорядочивает кандидатов по убыванию скоринга.
type SimpleRanker struct{}

// NewSimple создаёт ранжировщик.
func NewSimple() *SimpleRanker {
	return &SimpleRanker{}
}

// Rank сортирует кандидатов по скору (стабильно: равные скоры сохраняют
// порядок генераторов), обрезает список до clamp(n, 2, 4) и присваивает
// выжившим отображаемые идентификаторы.
func (r *SimpleRanker) Rank(candidates []domain.SuggestionCandidate) []domain.Suggestion {
	if len(candidates) == 0 {
		return nil
	}
	items := make([]domain.SuggestionCandidate, len(candidates))
	copy(items, candidates)
	sort.SliceStable(items, func(i, j int) bool { return items[i].Score > items[j].Score })

	limit := len(items)
	if limit > maxResults {
		limit = maxResults
	}
	if limit < minResults && len(items) >= minResults {
		limit = minResults
	}
	items = items[:limit]

	out := make([]domain.Suggestion, 0, len(items))
	for idx, c := range items {
		out = append(out, domain.Suggestion{
			ID:            displayID(c, idx),
			SuggestionKey: c.SuggestionKey,
			TargetUserID:  c.TargetUserID,
			Title:         c.Title,
			Body:          c.Body,
			CTALabel:      c.CTALabel,
			Action:        c.Action,
			Score:         c.Score,
		})
	}
	return out
}

// displayID строит идентификатор из вида подсказки и цели,
// либо позиции если цели нет.
func displayID(c domain.SuggestionCandidate, position int) string {
	if c.TargetUserID != nil {
		return fmt.Sprintf("%s-%d", c.SuggestionKey, *c.TargetUserID)
	}
	return string(c.SuggestionKey) + "-" + strconv.Itoa(position)
}
