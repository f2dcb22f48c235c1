package history

// Record is the REST response shape for one bar plus its indicator columns.
// Optional columns use pointers so that absent values are omitted from the
// JSON instead of being emitted as zero sentinels.
type Record struct {
	Symbol string   `json:"symbol"`
	Date   string   `json:"date"` // ISO-8601 calendar date
	Open   float64  `json:"open"`
	High   float64  `json:"high"`
	Low    float64  `json:"low"`
	Close  float64  `json:"close"`
	Volume *int64   `json:"volume,omitempty"`
	MA30   *float64 `json:"ma30,omitempty"`
	MA60   *float64 `json:"ma60,omitempty"`
}

// Stats summarizes a non-empty result. All fields are derived from the data
// sequence, never stored independently.
type Stats struct {
	TotalRecords int    `json:"totalRecords"`
	StartDate    string `json:"startDate"`
	EndDate      string `json:"endDate"`
	Years        int    `json:"years"`
}

// Response is the query result. An empty series is a successful outcome:
// Data is empty, Message carries an advisory and NeedsSync asks the caller
// to trigger an out-of-band bar sync.
type Response struct {
	Data      []Record `json:"data"`
	Stats     *Stats   `json:"stats,omitempty"`
	Message   string   `json:"message,omitempty"`
	NeedsSync bool     `json:"needsSync,omitempty"`
}
