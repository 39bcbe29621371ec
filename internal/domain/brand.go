package domain

import "strings"

// Brand: публичный образ, которым чат отвечает на вопросы о бренде.
type Brand struct {
	Key     string   `json:"key" mapstructure:"key"`
	Name    string   `json:"name" mapstructure:"name"`
	Tagline string   `json:"tagline" mapstructure:"tagline"`
	Website string   `json:"website" mapstructure:"website"`
	Contact string   `json:"contact" mapstructure:"contact"`
	Aliases []string `json:"aliases,omitempty" mapstructure:"aliases"`
}

func (b Brand) FactKind() FactKind { return KindBrand }
func (b Brand) FactKey() string    { return b.Key }
func (b Brand) Label() string      { return b.Name }
func (Brand) isFact()              {}

func (b Brand) Normalize() Brand {
	out := Brand{
		Key:     NormalizeKey(b.Key),
		Name:    strings.TrimSpace(b.Name),
		Tagline: strings.TrimSpace(b.Tagline),
		Website: strings.TrimSpace(b.Website),
		Contact: strings.TrimSpace(b.Contact),
	}
	if out.Key == "" {
		out.Key = NormalizeKey(out.Name)
	}
	if out.Name == "" {
		out.Name = b.Key
	}
	for _, a := range b.Aliases {
		if a = NormalizeKey(a); a != "" {
			out.Aliases = append(out.Aliases, a)
		}
	}
	return out
}
