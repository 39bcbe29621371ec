package resolver

import "sync/atomic"

// Registry отдает текущий Catalog. Читатель берет указатель и пользуется
// им весь запрос; подмена не трогает каталог, который уже используется.
type Registry struct {
	current atomic.Pointer[Catalog]
}

func NewRegistry(c *Catalog) *Registry {
	r := &Registry{}
	r.current.Store(c)
	return r
}

func (r *Registry) Current() *Catalog {
	return r.current.Load()
}

// Reload строит каталог из новых таблиц и подменяет текущий. Старый каталог
// остается валидным для тех, кто его еще держит.
func (r *Registry) Reload(t Tables) error {
	c, err := NewCatalog(t)
	if err != nil {
		return err
	}
	r.current.Store(c)
	return nil
}
