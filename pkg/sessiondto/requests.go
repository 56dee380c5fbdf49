package sessiondto

type CommandType string

const (
	CommandSelect        CommandType = "select"
	CommandMove          CommandType = "move"
	CommandUndo          CommandType = "undo"
	CommandRedo          CommandType = "redo"
	CommandNewGame       CommandType = "new_game"
	CommandChangeMode    CommandType = "change_mode"
	CommandChangeTrainer CommandType = "change_trainer"
	CommandResign        CommandType = "resign"
	CommandTrainers      CommandType = "trainers"
	CommandSnapshot      CommandType = "snapshot"
)

// Command is the client to server envelope. ID is echoed back as ReplyTo on direct answers.
type Command struct {
	ID      string      `json:"id,omitempty"`
	Type    CommandType `json:"type"`
	Square  string      `json:"square,omitempty"`
	Move    string      `json:"move,omitempty"`
	Mode    string      `json:"mode,omitempty"`
	Side    string      `json:"side,omitempty"`
	Trainer string      `json:"trainer,omitempty"`
}
