package negotiation

import (
	"context"
	"sort"

	"github.com/rajivgeraev/agrobazaar-api/internal/apperr"
	"github.com/rajivgeraev/agrobazaar-api/internal/models"
	"github.com/rajivgeraev/agrobazaar-api/internal/session"
	"github.com/rajivgeraev/agrobazaar-api/internal/store"
)

// Conversations возвращает входящие фермера: по строке на покупателя,
// свежие диалоги первыми, диалоги без сообщений в конце
func (e *Engine) Conversations(ctx context.Context, sess session.Session) (out []models.ConversationSummary, err error) {
	defer func() { e.observe("conversations", err) }()

	if err := sess.Validate(); err != nil {
		return nil, err
	}
	if !sess.IsFarmer() {
		return nil, apperr.Forbidden("просмотр входящих", "входящие доступны только фермеру")
	}

	chats, err := e.store.ListChats(ctx, store.ChatFilter{FarmerID: sess.UserID})
	if err != nil {
		return nil, apperr.Store("чтение чатов", err)
	}
	return groupByCustomer(chats), nil
}

func groupByCustomer(chats []models.Chat) []models.ConversationSummary {
	out := []models.ConversationSummary{}
	index := map[models.ID]int{}

	for i := range chats {
		chat := &chats[i]

		pos, ok := index[chat.CustomerID]
		if !ok {
			pos = len(out)
			index[chat.CustomerID] = pos
			out = append(out, models.ConversationSummary{
				CustomerID:   chat.CustomerID,
				CustomerName: chat.CustomerName,
				ChatIDs:      []models.ID{},
				CropNames:    []string{},
			})
		}
		sum := &out[pos]

		sum.ChatIDs = append(sum.ChatIDs, chat.ID)
		if !containsString(sum.CropNames, chat.CropName) {
			sum.CropNames = append(sum.CropNames, chat.CropName)
		}
		sum.TotalMessages += len(chat.Messages)

		for _, msg := range chat.Messages {
			if sum.LastMessageTime == nil || msg.Timestamp.After(*sum.LastMessageTime) {
				at := msg.Timestamp
				sum.LastMessageTime = &at
				sum.LastMessage = msg.Preview()
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].LastMessageTime, out[j].LastMessageTime
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
