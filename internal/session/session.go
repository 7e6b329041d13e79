// Package session описывает текущего пользователя, от имени которого выполняется операция.
package session

import (
	"github.com/rajivgeraev/agrobazaar-api/internal/apperr"
	"github.com/rajivgeraev/agrobazaar-api/internal/models"
)

// Session передаётся в каждую операцию явно, глобального состояния нет
type Session struct {
	UserID models.ID
	Name   string
	Role   models.Role
}

func (s Session) IsFarmer() bool   { return s.Role == models.RoleFarmer }
func (s Session) IsCustomer() bool { return s.Role == models.RoleCustomer }

// Sender превращает сессию в автора сообщения
func (s Session) Sender() models.Sender {
	return models.Sender{ID: s.UserID, Name: s.Name, Role: s.Role}
}

// Validate проверяет, что сессия пригодна для операций ядра
func (s Session) Validate() error {
	if s.UserID == "" {
		return apperr.Validation("session", "не указан пользователь")
	}
	if !s.Role.Valid() {
		return apperr.Validation("session", "неизвестная роль пользователя")
	}
	return nil
}
