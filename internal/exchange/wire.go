package exchange

// orderRequest is the wire payload for POST /orders, signed per order.
type orderRequest struct {
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`
	Type      string `json:"type"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	PostOnly  bool   `json:"post_only"`
	Nonce     int64  `json:"nonce"`
	Signature string `json:"signature"`
}

// restingStatus / filledStatus / errorStatus are the three shapes a single
// entry of orderResponseDTO.Data.Statuses can take, per the venue's
// documented order API response.
type restingStatus struct {
	OID string `json:"oid"`
}

type filledStatus struct {
	Size string `json:"size"`
}

// orderResponseDTO mirrors {status, id, data.statuses: [...]}.
type orderResponseDTO struct {
	Status string `json:"status"`
	ID     string `json:"id"`
	Data   struct {
		Statuses []statusEntry `json:"statuses"`
	} `json:"data"`
}

type statusEntry struct {
	Resting *restingStatus `json:"resting,omitempty"`
	Filled  *filledStatus  `json:"filled,omitempty"`
	Error   *string        `json:"error,omitempty"`
}

// orderStatusDTO is the response shape for GET /orders/{id}.
type orderStatusDTO struct {
	ID           string  `json:"id"`
	Status       string  `json:"status"`
	FilledSize   string  `json:"filled_size"`
	AvgFillPrice *string `json:"avg_fill_price,omitempty"`
}

// wsSubscribeMsg is sent once on connect (and on every reconnect) to
// subscribe to the symbol universe's book and trade streams.
type wsSubscribeMsg struct {
	Operation string   `json:"operation"`
	Symbols   []string `json:"symbols"`
}

type levelDTO struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type wsBookEvent struct {
	EventType   string     `json:"event_type"`
	Symbol      string     `json:"symbol"`
	Bids        []levelDTO `json:"bids"`
	Asks        []levelDTO `json:"asks"`
	TimestampMs int64      `json:"timestamp_ms"`
}

type wsTradeEvent struct {
	EventType   string `json:"event_type"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	Price       string `json:"price"`
	Size        string `json:"size"`
	TimestampMs int64  `json:"timestamp_ms"`
}
