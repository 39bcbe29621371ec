package memory

import (
	"context"
	"sync"

	"github.com/xela07ax/folio-core/internal/audit"
)

// DeadLetterRepo держит отложенные записи в памяти процесса.
type DeadLetterRepo struct {
	mu      sync.Mutex
	letters []audit.DeadLetter
}

func NewDeadLetterRepo() *DeadLetterRepo {
	return &DeadLetterRepo{}
}

func (r *DeadLetterRepo) Push(_ context.Context, dl audit.DeadLetter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.letters = append(r.letters, dl)
	return nil
}

func (r *DeadLetterRepo) List(_ context.Context) ([]audit.DeadLetter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audit.DeadLetter{}, r.letters...), nil
}

func (r *DeadLetterRepo) Drain(_ context.Context) ([]audit.DeadLetter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.letters
	r.letters = nil
	return out, nil
}
