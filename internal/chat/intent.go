package chat

import (
	"strings"
	"unicode"

	"github.com/xela07ax/folio-core/internal/domain"
)

// Правила по ключевым словам. Сообщение про навыки или бренд, если в нем
// есть одно из этих слов или названы навык либо бренд из каталога.
var (
	skillWords = []string{"skill", "skills", "stack", "tech", "technology", "technologies",
		"know", "experience", "language", "languages", "framework", "frameworks", "tools", "expertise"}
	brandWords = []string{"brand", "company", "who", "about", "contact", "website", "studio", "hire", "email"}
)

// classify детерминирован: тот же текст и те же упоминания всегда дают
// тот же intent. Явные упоминания важнее слов; при равенстве побеждают навыки.
func classify(text string, mentions []domain.Fact) domain.Intent {
	var skills, brands int
	for _, f := range mentions {
		switch f.FactKind() {
		case domain.KindSkill:
			skills++
		case domain.KindBrand:
			brands++
		}
	}
	switch {
	case skills > 0 && skills >= brands:
		return domain.IntentSkill
	case brands > 0:
		return domain.IntentBrand
	}

	words := tokenize(text)
	switch {
	case containsAny(words, skillWords):
		return domain.IntentSkill
	case containsAny(words, brandWords):
		return domain.IntentBrand
	}
	return domain.IntentGeneral
}

func tokenize(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		out[f] = struct{}{}
	}
	return out
}

func containsAny(words map[string]struct{}, vocab []string) bool {
	for _, v := range vocab {
		if _, ok := words[v]; ok {
			return true
		}
	}
	return false
}
