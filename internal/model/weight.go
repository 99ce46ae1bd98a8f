package model

import "time"

type Unit string

const (
	UnitKilogram Unit = "kg"
	UnitGram     Unit = "g"
)

func (u Unit) Valid() bool {
	return u == UnitKilogram || u == UnitGram
}

type Weight struct {
	ID        string    `json:"id"`
	Value     float64   `json:"value"`
	Unit      Unit      `json:"unit"`
	Date      time.Time `json:"date"`
	CreatedBy string    `json:"created_by"`
	UpdatedBy string    `json:"updated_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WeightItem is the copy of a Weight kept in its year bucket.
type WeightItem struct {
	ID        string    `json:"id"`
	Value     float64   `json:"value"`
	Unit      Unit      `json:"unit"`
	Date      time.Time `json:"date"`
	CreatedAt time.Time `json:"created_at"`
}

func (w Weight) Item() WeightItem {
	return WeightItem{
		ID:        w.ID,
		Value:     w.Value,
		Unit:      w.Unit,
		Date:      w.Date,
		CreatedAt: w.CreatedAt,
	}
}

// YearlyWeightSummary is the body of a weight_years/{YYYY} document.
type YearlyWeightSummary struct {
	Weights []WeightItem `json:"weights"`
}
