package chat

import (
	"fmt"
	"strings"

	"github.com/appforge/appforge/internal/project/models"
)

// systemPrompt instructs the model to emit complete files in fenced blocks
// whose info string carries both the language and the file path. The response
// parser depends on this exact shape.
const systemPrompt = `You are an expert software developer building small runnable web applications.

When the user asks you to build or change an application, respond with the complete contents of every file that needs to exist, each in its own fenced code block. The opening fence must name the language and the file path separated by a colon, for example:

` + "```javascript:index.js" + `
const http = require('http');
` + "```" + `

Rules:
- Always emit whole files, never diffs or fragments.
- Use relative paths inside the project (index.js, src/app.js, requirements.txt).
- Servers must listen on the port given by the PORT environment variable.
- Keep prose outside the code blocks brief: a short explanation of what you built or changed.
- When modifying an existing project, re-emit every file you change in full.`

// buildSystem appends the current project context so follow-up requests edit
// the existing files instead of starting over.
func buildSystem(proj *models.Project) string {
	if proj == nil {
		return systemPrompt
	}

	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString(fmt.Sprintf("\n\nThe user is working on an existing %s project named %q. Current files:\n", proj.Language, proj.Name))
	for _, f := range proj.Files {
		b.WriteString(fmt.Sprintf("\n```%s:%s\n%s\n```\n", f.Language, f.Path, f.Content))
	}
	return b.String()
}
