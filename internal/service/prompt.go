// internal/service/prompt.go
package service

import (
	"strings"

	"github.com/zainab674/voiceagents-sub004/internal/model"
)

// RenderPrompt fills {name}, {first_name}, {email} and {phone} placeholders in
// the campaign prompt. {phone} is the number actually dialed. Missing names
// read as "there"; missing email or phone render empty.
func RenderPrompt(prompt string, contact *model.Contact, dialed string) string {
	if !strings.Contains(prompt, "{") {
		return prompt
	}
	first := contact.Name
	if i := strings.IndexByte(first, ' '); i > 0 {
		first = first[:i]
	}
	return strings.NewReplacer(
		"{name}", nameOrThere(contact.Name),
		"{first_name}", nameOrThere(first),
		"{email}", contact.Email,
		"{phone}", dialed,
	).Replace(prompt)
}

func nameOrThere(v string) string {
	if v == "" {
		return "there"
	}
	return v
}
