package domain

import "strings"

// SkillLevel: уровень владения по фиксированной шкале.
type SkillLevel string

const (
	LevelFamiliar   SkillLevel = "familiar"
	LevelProficient SkillLevel = "proficient"
	LevelExpert     SkillLevel = "expert"
)

// Skill: нормализованный навык. Значения разделяются между запросами
// и не меняются после создания.
type Skill struct {
	Key      string     `json:"key" mapstructure:"key"`
	Name     string     `json:"name" mapstructure:"name"`
	Category string     `json:"category" mapstructure:"category"`
	Level    SkillLevel `json:"level" mapstructure:"level"`
	Aliases  []string   `json:"aliases,omitempty" mapstructure:"aliases"`
}

func (s Skill) FactKind() FactKind { return KindSkill }
func (s Skill) FactKey() string    { return s.Key }
func (s Skill) Label() string      { return s.Name }
func (Skill) isFact()              {}

// Normalize возвращает копию с обрезанными полями, ключом в нижнем регистре
// и уровнем по умолчанию. Алиасы копируются.
func (s Skill) Normalize() Skill {
	out := Skill{
		Key:      NormalizeKey(s.Key),
		Name:     strings.TrimSpace(s.Name),
		Category: strings.TrimSpace(s.Category),
		Level:    SkillLevel(strings.ToLower(strings.TrimSpace(string(s.Level)))),
	}
	if out.Key == "" {
		out.Key = NormalizeKey(out.Name)
	}
	if out.Name == "" {
		out.Name = s.Key
	}
	switch out.Level {
	case LevelFamiliar, LevelProficient, LevelExpert:
	default:
		out.Level = LevelProficient
	}
	for _, a := range s.Aliases {
		if a = NormalizeKey(a); a != "" {
			out.Aliases = append(out.Aliases, a)
		}
	}
	return out
}

// NormalizeKey: каноническая форма ключа поиска.
func NormalizeKey(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}
