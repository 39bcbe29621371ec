package domain

// FactKind: категория факта.
type FactKind string

const (
	KindSkill FactKind = "skill"
	KindBrand FactKind = "brand"
)

// Fact: найденное неизменяемое значение для ответов чата.
// Реализуют только Skill и Brand.
type Fact interface {
	FactKind() FactKind
	FactKey() string
	Label() string
	isFact()
}

// FactRef: сериализуемая ссылка на факт в событиях и ответах.
type FactRef struct {
	Kind  FactKind `json:"kind"`
	Key   string   `json:"key"`
	Label string   `json:"label"`
}

func RefOf(f Fact) FactRef {
	return FactRef{Kind: f.FactKind(), Key: f.FactKey(), Label: f.Label()}
}
