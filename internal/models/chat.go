package models

import "time"

// Chat представляет переписку покупателя и фермера по одной культуре.
// На тройку (культура, покупатель, фермер) приходится не больше одного чата.
type Chat struct {
	ID           ID        `json:"id"`
	CropID       ID        `json:"cropId"`
	CropName     string    `json:"cropName"`
	CustomerID   ID        `json:"customerId"`
	CustomerName string    `json:"customerName"`
	FarmerID     ID        `json:"farmerId"`
	FarmerName   string    `json:"farmerName"`
	Messages     []Message `json:"messages"`

	// Revision растёт на единицу при каждой записи сообщений
	Revision int64 `json:"revision"`
}

// HasParticipant сообщает, участвует ли пользователь в чате
func (c *Chat) HasParticipant(userID ID) bool {
	return userID != "" && (c.CustomerID == userID || c.FarmerID == userID)
}

// FindMessage возвращает индекс сообщения по id
func (c *Chat) FindMessage(id ID) (int, bool) {
	for i := range c.Messages {
		if c.Messages[i].ID == id {
			return i, true
		}
	}
	return -1, false
}

// Clone копирует чат вместе со списком сообщений.
// Тела сообщений хранятся по значению, поэтому копии среза достаточно.
func (c Chat) Clone() Chat {
	if c.Messages != nil {
		msgs := make([]Message, len(c.Messages))
		copy(msgs, c.Messages)
		c.Messages = msgs
	}
	return c
}

// TimelineEntry сообщение ленты с пометкой исходного чата и культуры
type TimelineEntry struct {
	ChatID   ID      `json:"chatId"`
	CropID   ID      `json:"cropId"`
	CropName string  `json:"cropName"`
	Message  Message `json:"message"`
}

// ConversationSummary строка входящих фермера, сгруппированная по покупателю
type ConversationSummary struct {
	CustomerID      ID         `json:"customerId"`
	CustomerName    string     `json:"customerName"`
	ChatIDs         []ID       `json:"chatIds"`
	CropNames       []string   `json:"cropNames"`
	TotalMessages   int        `json:"totalMessages"`
	LastMessage     string     `json:"lastMessage,omitempty"`
	LastMessageTime *time.Time `json:"lastMessageTime,omitempty"`
}
