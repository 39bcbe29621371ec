package chat

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/xela07ax/folio-core/internal/domain"
	"github.com/xela07ax/folio-core/internal/resolver"
)

const fallbackText = "Sorry, I don't have anything on that yet. Try asking about skills or the studio."

// answer находит факты под intent и собирает ответ. Пустой список фактов
// значит, что ушел шаблонный текст.
func answer(cat *resolver.Catalog, intent domain.Intent, mentions []domain.Fact) (string, []domain.Fact) {
	switch intent {
	case domain.IntentSkill:
		return answerSkills(cat, mentions)
	case domain.IntentBrand:
		return answerBrand(cat, mentions)
	}
	return fallbackText, nil
}

func answerSkills(cat *resolver.Catalog, mentions []domain.Fact) (string, []domain.Fact) {
	named := lo.Filter(mentions, func(f domain.Fact, _ int) bool { return f.FactKind() == domain.KindSkill })
	if len(named) > 0 {
		parts := lo.Map(named, func(f domain.Fact, _ int) string {
			s := f.(domain.Skill)
			return fmt.Sprintf("%s (%s, %s)", s.Name, s.Level, orDefault(s.Category, "general"))
		})
		return "Yes: " + strings.Join(parts, "; ") + ".", named
	}

	skills := cat.Skills()
	if len(skills) == 0 {
		return fallbackText, nil
	}
	names := lo.Map(skills, func(s domain.Skill, _ int) string { return s.Name })
	facts := lo.Map(skills, func(s domain.Skill, _ int) domain.Fact { return s })
	return "Here is what I work with: " + strings.Join(names, ", ") + ".", facts
}

func answerBrand(cat *resolver.Catalog, mentions []domain.Fact) (string, []domain.Fact) {
	var b domain.Brand
	if named, ok := lo.Find(mentions, func(f domain.Fact) bool { return f.FactKind() == domain.KindBrand }); ok {
		b = named.(domain.Brand)
	} else {
		def, err := cat.DefaultBrand()
		if err != nil {
			return fallbackText, nil
		}
		b = def
	}

	var sb strings.Builder
	sb.WriteString(b.Name)
	if b.Tagline != "" {
		sb.WriteString(": " + b.Tagline)
	}
	sb.WriteString(".")
	if b.Website != "" {
		sb.WriteString(" Website: " + b.Website + ".")
	}
	if b.Contact != "" {
		sb.WriteString(" Contact: " + b.Contact + ".")
	}
	return sb.String(), []domain.Fact{b}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
