package models

// ShareSnapshot is the pre-market analytics record for one ticker, produced
// by the external indicator pipeline. The supervisor treats it as read-only
// input: entry/stop/take levels and ATR feed validation and sizing.
type ShareSnapshot struct {
	Ticker       string  `json:"ticker"`
	FIGI         string  `json:"figi"`
	LotSize      int     `json:"lot_size"`
	EntryPrice   float64 `json:"entry_price"`
	StopPrice    float64 `json:"stop_price"`
	TakePrice    float64 `json:"take_price"`
	StopOffset   float64 `json:"stop_offset"`
	TakeOffset   float64 `json:"take_offset"`
	ATR          float64 `json:"atr"`
	PositionSize int     `json:"position_size"`
	LastPrice    float64 `json:"last_price"`
}
