package protocol

import "strings"

// Delimiter separates the command from its parameters and parameters from
// each other. Fields containing the delimiter are not escaped and will be
// mis-split on parse; this is a documented limitation of the wire format.
const Delimiter = "|"

// Client commands
const (
	CmdRegister       = "REGISTER"
	CmdLogin          = "LOGIN"
	CmdForceLogin     = "FORCE_LOGIN"
	CmdLogout         = "LOGOUT"
	CmdDelete         = "DELETE"
	CmdChangePassword = "CHANGE_PASSWORD"
	CmdSetString      = "SET_STRING"
	CmdGetString      = "GET_STRING"
	CmdQuit           = "QUIT"
)

// Server responses
const (
	RespSuccess  = "SUCCESS"
	RespError    = "ERROR"
	RespConflict = "CONFLICT"
	RespKicked   = "KICKED"
	RespWelcome  = "WELCOME"
	RespGoodbye  = "GOODBYE"
)

// Message is a single protocol message: a command followed by positional
// parameters.
type Message struct {
	Command string
	Params  []string
}

// ParseMessage parses a raw line in "COMMAND|param1|param2" form. A single
// trailing delimiter does not produce an empty final parameter, so
// "LOGOUT|" parses the same as "LOGOUT".
func ParseMessage(line string) Message {
	parts := strings.Split(line, Delimiter)
	if len(parts) > 1 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return Message{
		Command: parts[0],
		Params:  parts[1:],
	}
}

// Serialize renders the message back into its wire form.
func (m Message) Serialize() string {
	if len(m.Params) == 0 {
		return m.Command
	}
	return m.Command + Delimiter + strings.Join(m.Params, Delimiter)
}

// NewMessage builds a message from a command and parameters.
func NewMessage(command string, params ...string) Message {
	return Message{Command: command, Params: params}
}
