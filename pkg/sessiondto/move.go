package sessiondto

// Move describes one applied move and what it did on the board.
type Move struct {
	UCI       string `json:"uci"`
	SAN       string `json:"san"`
	Side      string `json:"side"`
	Ply       int    `json:"ply"`
	Captured  string `json:"captured,omitempty"`
	Promotion string `json:"promotion,omitempty"`
	EnPassant bool   `json:"en_passant,omitempty"`
	Castle    bool   `json:"castle,omitempty"`
	Check     bool   `json:"check,omitempty"`
}
