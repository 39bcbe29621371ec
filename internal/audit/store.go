package audit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Store: узкий интерфейс записи и чтения к хранилищу записей (только дописывание).
type Store interface {
	// Append пишет r, если записи с тем же SourceEventID еще нет.
	// Для дубликата inserted=false, и это не ошибка.
	Append(ctx context.Context, r Record) (inserted bool, err error)
	// Page возвращает до limit записей под фильтр f строго после курсора,
	// по возрастанию (OccurredAt, Seq).
	Page(ctx context.Context, f Filter, after Cursor, limit int) ([]Record, error)
}

// DeadLetter: запись, которую не удалось сохранить после всех повторов.
type DeadLetter struct {
	Record   Record    `json:"record"`
	Error    string    `json:"error"`
	Attempts int       `json:"attempts"`
	FailedAt time.Time `json:"failedAt"`
}

// DeadLetterQueue откладывает такие записи туда, где их увидит оператор.
type DeadLetterQueue interface {
	Push(ctx context.Context, dl DeadLetter) error
	List(ctx context.Context) ([]DeadLetter, error)
	// Drain забирает и возвращает все отложенное.
	Drain(ctx context.Context) ([]DeadLetter, error)
}

var ErrUnknownPayload = errors.New("audit: unknown event payload")

// PersistenceFailure возвращается, когда у Append кончились попытки.
type PersistenceFailure struct {
	SourceEventID string
	Attempts      int
	Err           error
}

func (e *PersistenceFailure) Error() string {
	return fmt.Sprintf("audit: append %s failed after %d attempts: %v", e.SourceEventID, e.Attempts, e.Err)
}

func (e *PersistenceFailure) Unwrap() error { return e.Err }
