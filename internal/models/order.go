package models

import "time"

// OrderStatus задаёт статус заказа. Заказ создаётся только после списания остатка.
type OrderStatus string

const OrderSuccess OrderStatus = "success"

// Order неизменяемая запись о покупке
type Order struct {
	ID              ID          `json:"id"`
	CustomerID      ID          `json:"customerId"`
	CustomerName    string      `json:"customerName"`
	FarmerID        ID          `json:"farmerId"`
	FarmerName      string      `json:"farmerName"`
	CropID          ID          `json:"cropId"`
	CropName        string      `json:"cropName"`
	Quantity        float64     `json:"quantity"`
	PricePerUnit    float64     `json:"pricePerUnit"`
	TotalPrice      float64     `json:"totalPrice"`
	Unit            string      `json:"unit"`
	Status          OrderStatus `json:"status"`
	OrderDate       time.Time   `json:"orderDate"`
	DeliveryAddress string      `json:"deliveryAddress"`
	CustomerPhone   string      `json:"customerPhone,omitempty"`
}
