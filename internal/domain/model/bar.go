package model

// BarSize is the base resolution of the stored time series, in seconds.
const BarSize = 5

// Bar is a single OHLCV record for one symbol at one grid-aligned UTC timestamp.
type Bar struct {
	Symbol string  `json:"symbol"`
	Ts     int64   `json:"ts"` // unix seconds, multiple of BarSize
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
	Wap    float64 `json:"wap"`
	Count  int64   `json:"count"`
}

// GridAligned reports whether the bar timestamp sits on the BarSize grid.
func (b Bar) GridAligned() bool {
	return b.Ts%BarSize == 0
}
