package shared

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// DefaultBodyLimit ограничивает размер тела запроса для DecodeJSON.
const DefaultBodyLimit int64 = 64 << 10

var ErrTrailingData = errors.New("unexpected data after JSON value")

// DecodeJSON читает ровно одно JSON-значение в v. Неизвестные поля отклоняются.
func DecodeJSON(r io.Reader, v any, limit int64) error {
	if limit <= 0 {
		limit = DefaultBodyLimit
	}
	dec := json.NewDecoder(io.LimitReader(r, limit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return ErrTrailingData
	}
	return nil
}

// WriteJSON пишет v с заданным статусом. Ошибку кодирования возвращаем, чтобы
// вызывающий мог ее залогировать: статус к этому моменту уже отправлен.
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// ErrorBody: общий формат ошибки для всех эндпоинтов.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func WriteError(w http.ResponseWriter, status int, code, msg string) {
	_ = WriteJSON(w, status, ErrorBody{Error: code, Message: msg})
}
