package models

import "github.com/shopspring/decimal"

// Total считает сумму price × quantity с округлением до копеек
func Total(price, quantity float64) float64 {
	total := decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(quantity)).Round(2)
	f, _ := total.Float64()
	return f
}

// RoundMoney округляет денежное значение до двух знаков
func RoundMoney(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

// FormatMoney печатает сумму в виде "54.00"
func FormatMoney(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

// FormatQuantity печатает количество без лишних нулей: "6", "2.5"
func FormatQuantity(v float64) string {
	return decimal.NewFromFloat(v).String()
}
