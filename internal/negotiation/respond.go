package negotiation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/rajivgeraev/agrobazaar-api/internal/apperr"
	"github.com/rajivgeraev/agrobazaar-api/internal/inventory"
	"github.com/rajivgeraev/agrobazaar-api/internal/models"
	"github.com/rajivgeraev/agrobazaar-api/internal/reconcile"
	"github.com/rajivgeraev/agrobazaar-api/internal/session"
)

// Decision ответ на предложение
type Decision string

const (
	DecisionAccept  Decision = "accept"
	DecisionReject  Decision = "reject"
	DecisionCounter Decision = "counter"
)

// defaultAddress подставляется, когда покупатель не указал адрес в предложении
const defaultAddress = "Адрес не указан"

// CounterInput содержит цену и количество встречного предложения.
// Нулевые значения берутся из исходного предложения.
type CounterInput struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

type Response struct {
	Decision        Decision      `json:"decision"`
	DeliveryAddress string        `json:"deliveryAddress"`
	Phone           string        `json:"phone"`
	Counter         *CounterInput `json:"counter,omitempty"`
}

// RespondResult описывает, что изменилось в результате ответа
type RespondResult struct {
	Proposal models.Message  `json:"proposal"`
	Order    *models.Order   `json:"order,omitempty"`
	Counter  *models.Message `json:"counter,omitempty"`
}

// errProposalClosed: предложение закрыли, пока шло оформление заказа
var errProposalClosed = errors.New("предложение уже закрыто")

// RespondToProposal принимает, отклоняет предложение или отвечает встречным.
// Отвечать может только собеседник автора, и только на предложение в статусе pending.
func (e *Engine) RespondToProposal(ctx context.Context, sess session.Session, thread Thread, messageID models.ID, resp Response) (result *RespondResult, err error) {
	defer func() { e.observe(respondOperation(resp.Decision), err) }()

	if err := requireParticipant(sess, thread, "ответ на предложение"); err != nil {
		return nil, err
	}

	switch resp.Decision {
	case DecisionAccept, DecisionReject, DecisionCounter:
	default:
		return nil, apperr.Validation("decision", "допустимые значения: accept, reject, counter")
	}

	wantsCounter := resp.Decision == DecisionCounter || (resp.Decision == DecisionReject && resp.Counter != nil)
	if wantsCounter && !sess.IsFarmer() {
		return nil, apperr.Forbidden("встречное предложение", "встречное предложение может сделать только фермер")
	}

	chat, msg, proposal, err := e.findPendingProposal(ctx, thread, messageID)
	if err != nil {
		return nil, err
	}
	if msg.Sender.ID == sess.UserID {
		return nil, apperr.Forbidden("ответ на предложение", "нельзя отвечать на собственное предложение")
	}

	switch resp.Decision {
	case DecisionAccept:
		return e.accept(ctx, sess, chat, msg, proposal, resp)
	case DecisionReject:
		rejected, err := e.reject(ctx, sess, chat.ID, messageID)
		if err != nil {
			return nil, err
		}
		result := &RespondResult{Proposal: rejected}
		if resp.Counter != nil {
			counter, err := e.counter(ctx, sess, chat, msg, proposal, *resp.Counter)
			if err != nil {
				return result, err
			}
			result.Counter = &counter
		}
		return result, nil
	default:
		in := CounterInput{}
		if resp.Counter != nil {
			in = *resp.Counter
		}
		counter, err := e.counter(ctx, sess, chat, msg, proposal, in)
		if err != nil {
			return nil, err
		}
		return &RespondResult{Proposal: msg, Counter: &counter}, nil
	}
}

// respondOperation ограничивает метки метрик известными решениями
func respondOperation(d Decision) string {
	switch d {
	case DecisionAccept, DecisionReject, DecisionCounter:
		return "respond_" + string(d)
	default:
		return "respond_invalid"
	}
}

// findPendingProposal ищет предложение среди чатов ленты
func (e *Engine) findPendingProposal(ctx context.Context, thread Thread, messageID models.ID) (*models.Chat, models.Message, models.PriceProposal, error) {
	chats, err := e.chats(ctx, thread)
	if err != nil {
		return nil, models.Message{}, models.PriceProposal{}, err
	}

	for i := range chats {
		idx, ok := chats[i].FindMessage(messageID)
		if !ok {
			continue
		}
		msg := chats[i].Messages[idx]
		proposal, ok := msg.Proposal()
		if !ok || proposal.Status != models.ProposalPending {
			break
		}
		return &chats[i], msg, proposal, nil
	}
	return nil, models.Message{}, models.PriceProposal{}, apperr.NotFound("активное предложение", messageID.String())
}

// setStatus меняет статус предложения, только если оно всё ещё pending
func (e *Engine) setStatus(ctx context.Context, chatID, messageID models.ID, change func(*models.PriceProposal)) (models.Message, error) {
	var updated models.Message
	_, err := e.updateChat(ctx, chatID, func(chat *models.Chat) error {
		idx, ok := chat.FindMessage(messageID)
		if !ok {
			return apperr.NotFound("активное предложение", messageID.String())
		}
		proposal, ok := chat.Messages[idx].Proposal()
		if !ok {
			return apperr.NotFound("активное предложение", messageID.String())
		}
		if proposal.Status != models.ProposalPending {
			return errProposalClosed
		}
		change(&proposal)
		chat.Messages[idx].Body = proposal
		updated = chat.Messages[idx]
		return nil
	})
	return updated, err
}

func (e *Engine) reject(ctx context.Context, sess session.Session, chatID, messageID models.ID) (models.Message, error) {
	msg, err := e.setStatus(ctx, chatID, messageID, func(p *models.PriceProposal) {
		p.Status = models.ProposalRejected
		p.RejectedBy = sess.UserID
	})
	if errors.Is(err, errProposalClosed) {
		return models.Message{}, apperr.NotFound("активное предложение", messageID.String())
	}
	return msg, err
}

// counter добавляет встречное предложение фермера в чат исходного предложения.
// Статус исходного предложения не меняется.
func (e *Engine) counter(ctx context.Context, sess session.Session, chat *models.Chat, original models.Message, proposal models.PriceProposal, in CounterInput) (models.Message, error) {
	if !sess.IsFarmer() {
		return models.Message{}, apperr.Forbidden("встречное предложение", "встречное предложение может сделать только фермер")
	}

	price := in.Price
	if price == 0 {
		price = proposal.ProposedPrice
	}
	quantity := in.Quantity
	if quantity == 0 {
		quantity = proposal.ProposedQuantity
	}

	input := ProposalInput{
		Price:           price,
		Quantity:        quantity,
		DeliveryAddress: proposal.DeliveryAddress,
		CropID:          original.CropID,
	}
	if err := validateProposal(sess, &input); err != nil {
		return models.Message{}, err
	}

	msg, err := e.buildProposal(ctx, sess, chat, input)
	if err != nil {
		return models.Message{}, err
	}
	if _, err := e.appendMessage(ctx, chat.ID, msg); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// accept оформляет заказ через склад и только потом помечает предложение купленным.
// Ошибка склада оставляет предложение в статусе pending.
func (e *Engine) accept(ctx context.Context, sess session.Session, chat *models.Chat, msg models.Message, proposal models.PriceProposal, resp Response) (*RespondResult, error) {
	req := inventory.PurchaseRequest{
		CropID:    msg.CropID,
		Quantity:  proposal.ProposedQuantity,
		UnitPrice: proposal.ProposedPrice,
		Total:     proposal.TotalAmount,
		Path:      inventory.PathProposal,
		ChatID:    chat.ID,
		MessageID: msg.ID,
	}
	if req.CropID == "" {
		req.CropID = chat.CropID
	}

	if sess.IsCustomer() {
		// покупатель принимает встречное предложение фермера
		address := strings.TrimSpace(resp.DeliveryAddress)
		phone := strings.TrimSpace(resp.Phone)
		if address == "" {
			return nil, apperr.Validation("deliveryAddress", "укажите адрес доставки")
		}
		if phone == "" {
			return nil, apperr.Validation("phone", "укажите номер телефона")
		}
		req.Customer = inventory.Customer{ID: sess.UserID, Name: sess.Name}
		req.DeliveryAddress = address
		req.Phone = phone
	} else {
		req.Customer = inventory.Customer{ID: chat.CustomerID, Name: chat.CustomerName}
		req.DeliveryAddress = proposal.DeliveryAddress
		if strings.TrimSpace(req.DeliveryAddress) == "" {
			req.DeliveryAddress = defaultAddress
		}
		req.Phone = e.customerPhone(ctx, chat.CustomerID)
	}

	order, err := e.purchaser.CommitPurchase(ctx, req)
	if err != nil {
		return nil, err
	}

	now := e.timestamp()
	updated, err := e.setStatus(ctx, chat.ID, msg.ID, func(p *models.PriceProposal) {
		p.Status = models.ProposalPurchased
		p.AcceptedBy = sess.UserID
		p.PurchasedAt = &now
	})
	if err != nil {
		return nil, e.statusWriteFailed(ctx, chat, msg, order, err)
	}

	return &RespondResult{Proposal: updated, Order: order}, nil
}

// customerPhone берёт телефон покупателя из профиля. Отсутствие телефона не мешает заказу.
func (e *Engine) customerPhone(ctx context.Context, customerID models.ID) string {
	u, err := e.store.GetUser(ctx, customerID)
	if err != nil {
		e.log(ctx).Warn("Не удалось получить телефон покупателя",
			zap.String("customer_id", customerID.String()),
			zap.Error(err))
		return ""
	}
	return u.Phone
}

// statusWriteFailed фиксирует заказ, у которого предложение осталось pending
func (e *Engine) statusWriteFailed(ctx context.Context, chat *models.Chat, msg models.Message, order *models.Order, cause error) error {
	ctx = context.WithoutCancel(ctx)

	entry, jerr := e.journal.Record(ctx, reconcile.Entry{
		Kind:      reconcile.KindProposalStatus,
		CropID:    order.CropID.String(),
		OrderID:   order.ID.String(),
		ChatID:    chat.ID.String(),
		MessageID: msg.ID.String(),
		Quantity:  order.Quantity,
		Error:     cause.Error(),
	})
	if jerr != nil {
		e.log(ctx).Error("Не удалось записать операцию в журнал сверки", zap.Error(jerr))
	}

	e.log(ctx).Error("Заказ создан, но статус предложения не записан",
		zap.String("order_id", order.ID.String()),
		zap.String("chat_id", chat.ID.String()),
		zap.String("message_id", msg.ID.String()),
		zap.String("journal_id", entry.ID),
		zap.Error(cause))

	return &apperr.StoreError{
		Op:  fmt.Sprintf("статус предложения после заказа %s", order.ID),
		Err: cause,
	}
}
