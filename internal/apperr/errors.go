// Package apperr описывает типизированные ошибки домена переговоров и заказов.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code машинный код ошибки, который получает клиент
type Code string

const (
	CodeValidation    Code = "validation_error"
	CodeStock         Code = "insufficient_stock"
	CodeNotFound      Code = "not_found"
	CodeForbidden     Code = "forbidden"
	CodePartialCommit Code = "partial_commit"
	CodeStore         Code = "store_error"
	CodeInternal      Code = "internal_error"
)

// ValidationError некорректный пользовательский ввод
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// StockError: запрошено больше, чем есть на складе в момент проверки.
// Conflict выставляется, когда остаток изменился между чтением и записью.
type StockError struct {
	CropID    string
	Requested float64
	Available float64
	Unit      string
	Conflict  bool
}

func (e *StockError) Error() string {
	if e.Conflict {
		return fmt.Sprintf("остаток культуры %s изменился во время покупки, повторите попытку", e.CropID)
	}
	return fmt.Sprintf("недостаточно товара: доступно %g %s, запрошено %g", e.Available, e.Unit, e.Requested)
}

// NotFoundError: культура, чат или сообщение не найдены
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s не найден", e.Entity)
	}
	return fmt.Sprintf("%s %s не найден", e.Entity, e.ID)
}

// ForbiddenError: действие не разрешено этому участнику
type ForbiddenError struct {
	Action string
	Reason string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("действие %q запрещено: %s", e.Action, e.Reason)
}

// PartialCommitError: остаток уже списан, а заказ создать не удалось.
// Такое состояние требует сверки оператором.
type PartialCommitError struct {
	CropID      string
	Quantity    float64
	Compensated bool
	JournalID   string
	Err         error
}

func (e *PartialCommitError) Error() string {
	state := "остаток не восстановлен"
	if e.Compensated {
		state = "остаток восстановлен"
	}
	return fmt.Sprintf("частичная фиксация покупки культуры %s (%g, %s): %v", e.CropID, e.Quantity, state, e.Err)
}

func (e *PartialCommitError) Unwrap() error { return e.Err }

// StoreError сбой транспорта или хранилища записей
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("ошибка хранилища (%s): %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func NotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

func Forbidden(action, reason string) error {
	return &ForbiddenError{Action: action, Reason: reason}
}

// Store оборачивает ошибку хранилища, не трогая уже типизированные ошибки домена
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	if CodeOf(err) != CodeInternal {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// CodeOf определяет код ошибки по цепочке обёрток
func CodeOf(err error) Code {
	var (
		validation *ValidationError
		stock      *StockError
		notFound   *NotFoundError
		forbidden  *ForbiddenError
		partial    *PartialCommitError
		store      *StoreError
	)

	switch {
	case err == nil:
		return ""
	// PartialCommitError проверяем первой: она оборачивает ошибку хранилища
	case errors.As(err, &partial):
		return CodePartialCommit
	case errors.As(err, &validation):
		return CodeValidation
	case errors.As(err, &stock):
		return CodeStock
	case errors.As(err, &notFound):
		return CodeNotFound
	case errors.As(err, &forbidden):
		return CodeForbidden
	case errors.As(err, &store):
		return CodeStore
	default:
		return CodeInternal
	}
}

// HTTPStatus сопоставляет ошибку домена с HTTP-статусом
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeStock:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	case CodeForbidden:
		return http.StatusForbidden
	case CodeStore:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// UserMessage возвращает текст уведомления для пользователя, свой для каждого вида ошибки
func UserMessage(err error) string {
	switch CodeOf(err) {
	case CodeValidation, CodeStock, CodeNotFound, CodeForbidden:
		return err.Error()
	case CodePartialCommit:
		return "Оплата зафиксирована не полностью: остаток списан, но заказ не создан. Оператор проверит операцию."
	case CodeStore:
		return "Хранилище данных недоступно, попробуйте ещё раз"
	default:
		return "Внутренняя ошибка сервера"
	}
}

func IsStock(err error) bool {
	var stock *StockError
	return errors.As(err, &stock)
}

func IsPartialCommit(err error) bool {
	var partial *PartialCommitError
	return errors.As(err, &partial)
}
