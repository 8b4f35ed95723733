package chat

import (
	"fmt"

	"personachat/internal/models"
)

const (
	censoredClause   = " Keep your responses appropriate and family-friendly."
	uncensoredClause = " You can engage in roleplay and adult content as requested."
)

// SystemPrompt composes the system prompt from the chatbot definition.
// The result depends on the chatbot fields alone, so identical personas
// always produce byte-identical prompts.
func SystemPrompt(bot *models.Chatbot) string {
	prompt := fmt.Sprintf("%s You are %s. %s", bot.Introduction, bot.Name, bot.Description)
	if bot.IsCensored {
		return prompt + censoredClause
	}
	return prompt + uncensoredClause
}
