package negotiation

import (
	"context"
	"fmt"
	"strings"

	"github.com/rajivgeraev/agrobazaar-api/internal/apperr"
	"github.com/rajivgeraev/agrobazaar-api/internal/models"
	"github.com/rajivgeraev/agrobazaar-api/internal/session"
)

type TextInput struct {
	Body string `json:"text"`
	// CropID выбирает чат в сводной ленте фермера
	CropID models.ID `json:"cropId"`
}

type ProposalInput struct {
	Price           float64   `json:"price"`
	Quantity        float64   `json:"quantity"`
	DeliveryAddress string    `json:"deliveryAddress"`
	CropID          models.ID `json:"cropId"`
}

// SendText добавляет текстовое сообщение в ленту
func (e *Engine) SendText(ctx context.Context, sess session.Session, thread Thread, in TextInput) (msg models.Message, err error) {
	defer func() { e.observe("send_text", err) }()

	if err := requireParticipant(sess, thread, "отправка сообщения"); err != nil {
		return models.Message{}, err
	}

	body := strings.TrimSpace(in.Body)
	if body == "" {
		return models.Message{}, apperr.Validation("text", "сообщение не может быть пустым")
	}

	chat, err := e.targetChat(ctx, thread, in.CropID)
	if err != nil {
		return models.Message{}, err
	}

	at := e.timestamp()
	msg = models.Message{
		ID:        e.newMessageID(at),
		Sender:    sess.Sender(),
		Timestamp: at,
		Body:      models.Text{Text: body},
	}
	if thread.Kind == ThreadCustomer {
		msg.CropID = chat.CropID
		msg.CropName = chat.CropName
	}

	if _, err := e.appendMessage(ctx, chat.ID, msg); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// ProposePrice добавляет предложение цены. Остаток перечитывается в момент вызова,
// при любой ошибке сообщение не добавляется.
func (e *Engine) ProposePrice(ctx context.Context, sess session.Session, thread Thread, in ProposalInput) (msg models.Message, err error) {
	defer func() { e.observe("propose_price", err) }()

	if err := requireParticipant(sess, thread, "предложение цены"); err != nil {
		return models.Message{}, err
	}
	if err := validateProposal(sess, &in); err != nil {
		return models.Message{}, err
	}

	chat, err := e.targetChat(ctx, thread, in.CropID)
	if err != nil {
		return models.Message{}, err
	}

	msg, err = e.buildProposal(ctx, sess, chat, in)
	if err != nil {
		return models.Message{}, err
	}

	if _, err := e.appendMessage(ctx, chat.ID, msg); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

func validateProposal(sess session.Session, in *ProposalInput) error {
	in.DeliveryAddress = strings.TrimSpace(in.DeliveryAddress)

	if in.Price <= 0 {
		return apperr.Validation("price", "цена должна быть больше нуля")
	}
	if in.Quantity <= 0 {
		return apperr.Validation("quantity", "количество должно быть больше нуля")
	}
	if sess.IsCustomer() && in.DeliveryAddress == "" {
		return apperr.Validation("deliveryAddress", "укажите адрес доставки")
	}
	return nil
}

// buildProposal проверяет живой остаток культуры чата и снимает исходные цену и количество
func (e *Engine) buildProposal(ctx context.Context, sess session.Session, chat *models.Chat, in ProposalInput) (models.Message, error) {
	crop, err := e.getCrop(ctx, chat.CropID)
	if err != nil {
		return models.Message{}, err
	}

	if in.Quantity > crop.Quantity {
		return models.Message{}, &apperr.StockError{
			CropID:    crop.ID.String(),
			Requested: in.Quantity,
			Available: crop.Quantity,
			Unit:      crop.Unit,
		}
	}

	price := models.RoundMoney(in.Price)
	proposal := models.PriceProposal{
		ProposedPrice:    price,
		ProposedQuantity: in.Quantity,
		TotalAmount:      models.Total(price, in.Quantity),
		OriginalPrice:    crop.PricePerUnit,
		OriginalQuantity: crop.Quantity,
		Status:           models.ProposalPending,
		DeliveryAddress:  in.DeliveryAddress,
	}
	proposal.Summary = proposalSummary(sess, proposal, crop.Unit)

	at := e.timestamp()
	return models.Message{
		ID:        e.newMessageID(at),
		Sender:    sess.Sender(),
		Timestamp: at,
		Body:      proposal,
		CropID:    crop.ID,
		CropName:  crop.CropName,
	}, nil
}

// proposalSummary: "Предложение: ₹10.00/kg × 5 kg = ₹50.00"
func proposalSummary(sess session.Session, p models.PriceProposal, unit string) string {
	label := "Предложение"
	if sess.IsFarmer() {
		label = "Встречное предложение"
	}
	return fmt.Sprintf("%s: ₹%s/%s × %s %s = ₹%s",
		label,
		models.FormatMoney(p.ProposedPrice), unit,
		models.FormatQuantity(p.ProposedQuantity), unit,
		models.FormatMoney(p.TotalAmount))
}
