package sessiondto

type SessionState struct {
	SessionID       string   `json:"session_id"`
	Mode            string   `json:"mode"`
	LocalSide       string   `json:"local_side"`
	Trainer         *Trainer `json:"trainer,omitempty"`
	FEN             string   `json:"fen"`
	SideToMove      string   `json:"side_to_move"`
	Turn            string   `json:"turn"`
	MovesUCI        []string `json:"moves_uci"`
	RedoUCI         []string `json:"redo_uci"`
	LastMove        string   `json:"last_move,omitempty"`
	CanUndo         bool     `json:"can_undo"`
	CanRedo         bool     `json:"can_redo"`
	InCheck         bool     `json:"in_check"`
	CheckedKing     string   `json:"checked_king,omitempty"`
	GameOver        bool     `json:"game_over"`
	Result          string   `json:"result"`
	Method          string   `json:"method,omitempty"`
	Winner          string   `json:"winner,omitempty"`
	Selected        string   `json:"selected,omitempty"`
	Destinations    []string `json:"destinations,omitempty"`
	EngineAvailable bool     `json:"engine_available"`
}

type Trainer struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Theme      string `json:"theme,omitempty"`
	Difficulty string `json:"difficulty"`
	Strength   string `json:"strength"`
}
