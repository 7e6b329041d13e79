package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType тег сообщения в хранилище
type MessageType string

const (
	MessageText          MessageType = "text"
	MessagePriceProposal MessageType = "price_proposal"
)

// ProposalStatus состояние ценового предложения
type ProposalStatus string

const (
	ProposalPending   ProposalStatus = "pending"
	ProposalPurchased ProposalStatus = "purchased"
	ProposalRejected  ProposalStatus = "rejected"
)

// Terminal сообщает, что из этого состояния переходов больше нет
func (s ProposalStatus) Terminal() bool {
	return s == ProposalPurchased || s == ProposalRejected
}

// Sender автор сообщения
type Sender struct {
	ID   ID
	Name string
	Role Role
}

// MessageBody задаёт закрытый набор вариантов тела сообщения: Text или PriceProposal
type MessageBody interface {
	messageType() MessageType
}

// Text обычное текстовое сообщение
type Text struct {
	Text string
}

func (Text) messageType() MessageType { return MessageText }

// PriceProposal предложение цены и количества.
// После создания меняются только Status, AcceptedBy, RejectedBy и PurchasedAt.
type PriceProposal struct {
	ProposedPrice    float64
	ProposedQuantity float64
	TotalAmount      float64
	OriginalPrice    float64
	OriginalQuantity float64
	Status           ProposalStatus
	DeliveryAddress  string
	AcceptedBy       ID
	RejectedBy       ID
	PurchasedAt      *time.Time

	// Summary содержит человекочитаемую строку, которую видит собеседник
	Summary string
}

func (PriceProposal) messageType() MessageType { return MessagePriceProposal }

// Message элемент ленты чата
type Message struct {
	ID        ID
	Sender    Sender
	Timestamp time.Time
	Body      MessageBody

	// Культура, к которой относится сообщение. Для предложений обязательна,
	// текст в сводной ленте фермера помечается культурой выбранного чата.
	CropID   ID
	CropName string
}

func (m Message) Type() MessageType {
	if m.Body == nil {
		return ""
	}
	return m.Body.messageType()
}

// Proposal возвращает копию тела предложения
func (m Message) Proposal() (PriceProposal, bool) {
	p, ok := m.Body.(PriceProposal)
	return p, ok
}

// Preview возвращает короткую строку для списка диалогов
func (m Message) Preview() string {
	switch body := m.Body.(type) {
	case Text:
		return body.Text
	case PriceProposal:
		if body.Summary != "" {
			return body.Summary
		}
		return fmt.Sprintf("Предложение: ₹%s × %s", FormatMoney(body.ProposedPrice), FormatQuantity(body.ProposedQuantity))
	default:
		return ""
	}
}

// wireMessage плоская форма сообщения в хранилище
type wireMessage struct {
	ID               ID             `json:"id"`
	SenderID         ID             `json:"senderId"`
	SenderName       string         `json:"senderName"`
	SenderRole       Role           `json:"senderRole"`
	Type             MessageType    `json:"type"`
	Text             string         `json:"text"`
	ProposedPrice    *float64       `json:"proposedPrice,omitempty"`
	ProposedQuantity *float64       `json:"proposedQuantity,omitempty"`
	TotalAmount      *float64       `json:"totalAmount,omitempty"`
	OriginalPrice    *float64       `json:"originalPrice,omitempty"`
	OriginalQuantity *float64       `json:"originalQuantity,omitempty"`
	CropID           ID             `json:"cropId,omitempty"`
	CropName         string         `json:"cropName,omitempty"`
	Status           ProposalStatus `json:"status,omitempty"`
	DeliveryAddress  string         `json:"deliveryAddress,omitempty"`
	AcceptedBy       ID             `json:"acceptedBy,omitempty"`
	RejectedBy       ID             `json:"rejectedBy,omitempty"`
	PurchasedAt      *time.Time     `json:"purchasedAt,omitempty"`
	Timestamp        time.Time      `json:"timestamp"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{
		ID:         m.ID,
		SenderID:   m.Sender.ID,
		SenderName: m.Sender.Name,
		SenderRole: m.Sender.Role,
		CropID:     m.CropID,
		CropName:   m.CropName,
		Timestamp:  m.Timestamp,
	}

	switch body := m.Body.(type) {
	case Text:
		w.Type = MessageText
		w.Text = body.Text
	case PriceProposal:
		w.Type = MessagePriceProposal
		w.Text = body.Summary
		w.ProposedPrice = &body.ProposedPrice
		w.ProposedQuantity = &body.ProposedQuantity
		w.TotalAmount = &body.TotalAmount
		w.OriginalPrice = &body.OriginalPrice
		w.OriginalQuantity = &body.OriginalQuantity
		w.Status = body.Status
		w.DeliveryAddress = body.DeliveryAddress
		w.AcceptedBy = body.AcceptedBy
		w.RejectedBy = body.RejectedBy
		w.PurchasedAt = body.PurchasedAt
	default:
		return nil, fmt.Errorf("сообщение %s: неизвестный тип тела %T", m.ID, m.Body)
	}

	return json.Marshal(w)
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	msg := Message{
		ID:        w.ID,
		Sender:    Sender{ID: w.SenderID, Name: w.SenderName, Role: w.SenderRole},
		Timestamp: w.Timestamp,
		CropID:    w.CropID,
		CropName:  w.CropName,
	}

	switch w.Type {
	// Записи без type встречаются в старых данных, это обычный текст
	case MessageText, "":
		msg.Body = Text{Text: w.Text}
	case MessagePriceProposal:
		p := PriceProposal{
			ProposedPrice:    deref(w.ProposedPrice),
			ProposedQuantity: deref(w.ProposedQuantity),
			TotalAmount:      deref(w.TotalAmount),
			OriginalPrice:    deref(w.OriginalPrice),
			OriginalQuantity: deref(w.OriginalQuantity),
			Status:           w.Status,
			DeliveryAddress:  w.DeliveryAddress,
			AcceptedBy:       w.AcceptedBy,
			RejectedBy:       w.RejectedBy,
			PurchasedAt:      w.PurchasedAt,
			Summary:          w.Text,
		}
		if p.Status == "" {
			p.Status = ProposalPending
		}
		msg.Body = p
	default:
		return fmt.Errorf("сообщение %s: неизвестный тип %q", w.ID, w.Type)
	}

	*m = msg
	return nil
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
