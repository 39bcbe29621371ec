// Package resolver превращает переданные таблицы навыков и брендов в
// неизменяемые каталоги для чата.
package resolver

import (
	"fmt"
	"slices"
	"strings"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
	"github.com/samber/lo"

	"github.com/xela07ax/folio-core/internal/domain"
)

// Tables: сырые данные, из которых строится Catalog.
type Tables struct {
	Skills       []domain.Skill `mapstructure:"skills"`
	Brands       []domain.Brand `mapstructure:"brands"`
	DefaultBrand string         `mapstructure:"default_brand"`
}

// Catalog только для чтения после NewCatalog. Изменение таблиц
// строит новый Catalog, а не меняет этот.
type Catalog struct {
	skills       map[string]domain.Skill
	brands       map[string]domain.Brand
	skillOrder   []string
	brandOrder   []string
	aliases      map[string]domain.FactRef
	defaultBrand string

	matcher  *goahocorasick.Machine
	patterns map[string]domain.FactRef
}

// NewCatalog нормализует таблицы и строит поиск упоминаний.
// Дубликаты ключей отклоняются.
func NewCatalog(t Tables) (*Catalog, error) {
	c := &Catalog{
		skills:   make(map[string]domain.Skill, len(t.Skills)),
		brands:   make(map[string]domain.Brand, len(t.Brands)),
		aliases:  make(map[string]domain.FactRef),
		patterns: make(map[string]domain.FactRef),
	}

	for _, raw := range t.Skills {
		s := raw.Normalize()
		if s.Key == "" {
			return nil, fmt.Errorf("skill without key or name")
		}
		if _, dup := c.skills[s.Key]; dup {
			return nil, fmt.Errorf("duplicate skill key %q", s.Key)
		}
		c.skills[s.Key] = s
		c.skillOrder = append(c.skillOrder, s.Key)
		c.index(domain.RefOf(s), s.Key, domain.NormalizeKey(s.Name), s.Aliases)
	}

	for _, raw := range t.Brands {
		b := raw.Normalize()
		if b.Key == "" {
			return nil, fmt.Errorf("brand without key or name")
		}
		if _, dup := c.brands[b.Key]; dup {
			return nil, fmt.Errorf("duplicate brand key %q", b.Key)
		}
		c.brands[b.Key] = b
		c.brandOrder = append(c.brandOrder, b.Key)
		c.index(domain.RefOf(b), b.Key, domain.NormalizeKey(b.Name), b.Aliases)
	}

	c.defaultBrand = domain.NormalizeKey(t.DefaultBrand)
	if c.defaultBrand == "" && len(c.brandOrder) > 0 {
		c.defaultBrand = c.brandOrder[0]
	}
	if _, ok := c.brands[c.defaultBrand]; c.defaultBrand != "" && !ok {
		return nil, fmt.Errorf("default brand %q is not in the brand table", c.defaultBrand)
	}

	if err := c.buildMatcher(); err != nil {
		return nil, fmt.Errorf("build mention matcher: %w", err)
	}
	return c, nil
}

func (c *Catalog) index(ref domain.FactRef, key, name string, aliases []string) {
	for _, k := range append([]string{key, name}, aliases...) {
		if k == "" {
			continue
		}
		// Побеждает первый, чтобы алиас навыка не перекрыл ключ бренда.
		if _, taken := c.aliases[k]; !taken {
			c.aliases[k] = ref
		}
		if _, taken := c.patterns[k]; !taken {
			c.patterns[k] = ref
		}
	}
}

func (c *Catalog) buildMatcher() error {
	if len(c.patterns) == 0 {
		return nil
	}
	words := lo.Keys(c.patterns)
	slices.Sort(words)
	runes := lo.Map(words, func(w string, _ int) []rune { return []rune(w) })

	m := new(goahocorasick.Machine)
	if err := m.Build(runes); err != nil {
		return err
	}
	c.matcher = m
	return nil
}

// ResolveSkill ищет навык по ключу, имени или алиасу.
func (c *Catalog) ResolveSkill(key string) (domain.Skill, error) {
	k := domain.NormalizeKey(key)
	if s, ok := c.skills[k]; ok {
		return cloneSkill(s), nil
	}
	if ref, ok := c.aliases[k]; ok && ref.Kind == domain.KindSkill {
		return cloneSkill(c.skills[ref.Key]), nil
	}
	return domain.Skill{}, fmt.Errorf("skill %q: %w", key, domain.ErrNotFound)
}

// ResolveBrand ищет бренд по ключу, имени или алиасу.
func (c *Catalog) ResolveBrand(key string) (domain.Brand, error) {
	k := domain.NormalizeKey(key)
	if b, ok := c.brands[k]; ok {
		return cloneBrand(b), nil
	}
	if ref, ok := c.aliases[k]; ok && ref.Kind == domain.KindBrand {
		return cloneBrand(c.brands[ref.Key]), nil
	}
	return domain.Brand{}, fmt.Errorf("brand %q: %w", key, domain.ErrNotFound)
}

// DefaultBrand: бренд для общих вопросов вроде "кто вы".
func (c *Catalog) DefaultBrand() (domain.Brand, error) {
	if c.defaultBrand == "" {
		return domain.Brand{}, fmt.Errorf("default brand: %w", domain.ErrNotFound)
	}
	return cloneBrand(c.brands[c.defaultBrand]), nil
}

// Skills перечисляет навыки в порядке таблицы.
func (c *Catalog) Skills() []domain.Skill {
	return lo.Map(c.skillOrder, func(k string, _ int) domain.Skill { return cloneSkill(c.skills[k]) })
}

func (c *Catalog) Brands() []domain.Brand {
	return lo.Map(c.brandOrder, func(k string, _ int) domain.Brand { return cloneBrand(c.brands[k]) })
}

// Mentions возвращает факты, названные в тексте, в порядке первого появления.
// Совпадение должно стоять на границах слова, чтобы "go" не сработал внутри "going".
func (c *Catalog) Mentions(text string) []domain.Fact {
	if c.matcher == nil {
		return nil
	}
	content := []rune(strings.ToLower(text))
	terms := c.matcher.MultiPatternSearch(content, false)

	type hit struct {
		pos int
		ref domain.FactRef
	}
	var hits []hit
	for _, t := range terms {
		start, end := t.Pos, t.Pos+len(t.Word)
		if start < 0 || end > len(content) || !isBoundary(content, start-1) || !isBoundary(content, end) {
			continue
		}
		if ref, ok := c.patterns[string(t.Word)]; ok {
			hits = append(hits, hit{pos: start, ref: ref})
		}
	}
	slices.SortStableFunc(hits, func(a, b hit) int { return a.pos - b.pos })

	seen := make(map[domain.FactRef]struct{}, len(hits))
	var out []domain.Fact
	for _, h := range hits {
		if _, dup := seen[h.ref]; dup {
			continue
		}
		seen[h.ref] = struct{}{}
		if f, ok := c.fact(h.ref); ok {
			out = append(out, f)
		}
	}
	return out
}

func (c *Catalog) fact(ref domain.FactRef) (domain.Fact, bool) {
	switch ref.Kind {
	case domain.KindSkill:
		s, ok := c.skills[ref.Key]
		return cloneSkill(s), ok
	case domain.KindBrand:
		b, ok := c.brands[ref.Key]
		return cloneBrand(b), ok
	}
	return nil, false
}

// Значения выходят из каталога со своей копией алиасов, чтобы снаружи
// нельзя было добраться до памяти каталога.
func cloneSkill(s domain.Skill) domain.Skill {
	s.Aliases = slices.Clone(s.Aliases)
	return s
}

func cloneBrand(b domain.Brand) domain.Brand {
	b.Aliases = slices.Clone(b.Aliases)
	return b
}

func isBoundary(content []rune, i int) bool {
	if i < 0 || i >= len(content) {
		return true
	}
	r := content[i]
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
