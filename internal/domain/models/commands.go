package models

import "strings"

// CommandType enumerates the field commands accepted over WhatsApp.
type CommandType string

const (
	CommandCount   CommandType = "count"
	CommandEmpty   CommandType = "empty"
	CommandDamage  CommandType = "damage"
	CommandStatus  CommandType = "status"
	CommandUnknown CommandType = "unknown"
)

// Command represents a parsed field instruction extracted from message text.
type Command struct {
	Type CommandType
	Raw  string
	Args []string
}

// ParseCommand derives a Command from a free-form message. Arguments keep
// their original casing because SKUs and location names are case-bearing.
func ParseCommand(message string) Command {
	trimmed := strings.TrimSpace(message)
	cmd := Command{Type: CommandUnknown, Raw: message}

	tokens := strings.Fields(trimmed)
	if len(tokens) == 0 {
		return cmd
	}

	head := strings.ToLower(strings.TrimPrefix(tokens[0], "/"))
	switch CommandType(head) {
	case CommandCount, CommandEmpty, CommandDamage, CommandStatus:
		cmd.Type = CommandType(head)
	}

	if len(tokens) > 1 {
		cmd.Args = tokens[1:]
	}

	return cmd
}
