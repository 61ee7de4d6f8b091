package dto

import "stayvista/internal/domain/shared/money"

type MoneyDTO struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	// Major is Amount in major units, for display only.
	Major float64 `json:"major"`
}

func MapMoney(m money.Money) MoneyDTO {
	return MoneyDTO{Amount: m.Amount, Currency: m.Currency, Major: float64(m.Amount) / 100}
}
