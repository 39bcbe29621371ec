package events

import (
	"slices"
	"sync/atomic"
)

// Subscription: хэндл, который возвращает Subscribe.
type Subscription struct {
	id       uint64
	name     string
	typ      Type
	wildcard bool
	handler  Handler
	active   atomic.Bool
	bus      *Bus
}

func (s *Subscription) Name() string { return s.name }

// Unsubscribe прекращает доставку. Можно звать повторно и
// параллельно с Publish.
func (s *Subscription) Unsubscribe() {
	if !s.active.Swap(false) {
		return
	}
	s.bus.update(func(r *registry) { r.remove(s) })
}

// registry: неизменяемый снапшот. Писатели клонируют, правят и подменяют.
type registry struct {
	byType map[Type][]*Subscription
	all    []*Subscription
}

func (r *registry) clone() *registry {
	out := &registry{
		byType: make(map[Type][]*Subscription, len(r.byType)),
		all:    slices.Clone(r.all),
	}
	for t, subs := range r.byType {
		out.byType[t] = slices.Clone(subs)
	}
	return out
}

func (r *registry) remove(s *Subscription) {
	del := func(list []*Subscription) []*Subscription {
		return slices.DeleteFunc(list, func(x *Subscription) bool { return x == s })
	}
	if s.wildcard {
		r.all = del(r.all)
		return
	}
	r.byType[s.typ] = del(r.byType[s.typ])
	if len(r.byType[s.typ]) == 0 {
		delete(r.byType, s.typ)
	}
}

// match сливает типизированных и wildcard-подписчиков в порядке подписки.
func (r *registry) match(t Type) []*Subscription {
	typed, all := r.byType[t], r.all
	if len(all) == 0 {
		return typed
	}
	if len(typed) == 0 {
		return all
	}
	out := make([]*Subscription, 0, len(typed)+len(all))
	i, j := 0, 0
	for i < len(typed) && j < len(all) {
		if typed[i].id < all[j].id {
			out = append(out, typed[i])
			i++
		} else {
			out = append(out, all[j])
			j++
		}
	}
	out = append(out, typed[i:]...)
	return append(out, all[j:]...)
}

// Subscribe подписывает h на один тип события. Один обработчик, подписанный
// дважды, получит событие дважды.
func (b *Bus) Subscribe(t Type, name string, h Handler) *Subscription {
	return b.add(&Subscription{typ: t, name: name, handler: h})
}

// SubscribeAll подписывает h на все типы событий.
func (b *Bus) SubscribeAll(name string, h Handler) *Subscription {
	return b.add(&Subscription{wildcard: true, name: name, handler: h})
}

func (b *Bus) add(s *Subscription) *Subscription {
	s.bus = b
	s.active.Store(true)
	b.update(func(r *registry) {
		s.id = b.seq.Add(1)
		if s.wildcard {
			r.all = append(r.all, s)
		} else {
			r.byType[s.typ] = append(r.byType[s.typ], s)
		}
	})
	return s
}

func (b *Bus) update(edit func(r *registry)) {
	b.regMu.Lock()
	defer b.regMu.Unlock()
	next := b.registry.Load().clone()
	edit(next)
	b.registry.Store(next)
}
