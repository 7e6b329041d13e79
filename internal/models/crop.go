package models

import (
	"encoding/json"
	"strings"

	"github.com/rajivgeraev/agrobazaar-api/internal/apperr"
)

// Crop представляет культуру, выставленную фермером на продажу
type Crop struct {
	ID           ID      `json:"id"`
	FarmerID     ID      `json:"farmerId"`
	FarmerName   string  `json:"farmerName"`
	CropName     string  `json:"cropName"`
	Category     string  `json:"category"`
	Quantity     float64 `json:"quantity"`
	Unit         string  `json:"unit"`
	PricePerUnit float64 `json:"pricePerUnit"`
	Description  string  `json:"description"`
	HarvestDate  string  `json:"harvestDate"`
	Image        string  `json:"image,omitempty"`
}

// UnmarshalJSON принимает количество и цену и числом, и строкой
func (c *Crop) UnmarshalJSON(data []byte) error {
	type plain Crop
	aux := struct {
		*plain
		Quantity     FlexFloat `json:"quantity"`
		PricePerUnit FlexFloat `json:"pricePerUnit"`
	}{plain: (*plain)(c)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.Quantity = float64(aux.Quantity)
	c.PricePerUnit = float64(aux.PricePerUnit)
	return nil
}

func (c *Crop) InStock() bool {
	return c.Quantity > 0
}

// Validate проверяет поля, которые фермер заполняет при создании и правке
func (c *Crop) Validate() error {
	c.CropName = strings.TrimSpace(c.CropName)
	c.Unit = strings.TrimSpace(c.Unit)

	if c.CropName == "" {
		return apperr.Validation("cropName", "название культуры обязательно")
	}
	if c.Unit == "" {
		return apperr.Validation("unit", "единица измерения обязательна")
	}
	if c.Quantity < 0 {
		return apperr.Validation("quantity", "количество не может быть отрицательным")
	}
	if c.PricePerUnit <= 0 {
		return apperr.Validation("pricePerUnit", "цена должна быть больше нуля")
	}
	return nil
}
