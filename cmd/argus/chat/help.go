package chat

const helpMarkdown = `# argus

Chat with the ARGUS analytics agent. Replies stream in as they are generated.

## Keys

| Key | Action |
|-----|--------|
| Enter | Send the message, or cancel the reply being generated |
| Ctrl+X | Cancel the reply being generated |
| Alt+Enter | New line |
| Ctrl+O | Pick a file to attach |
| Ctrl+R | Remove the attached file |
| Esc | Dismiss notices, close this panel |
| Tab | Switch between chat and dashboard |
| r | Run the simulation (dashboard) |
| Ctrl+C | Quit |

## Commands

- ` + "`/attach <path>`" + ` uploads a file and attaches it to the next messages
- ` + "`/attach`" + ` opens the file picker
- ` + "`/detach`" + ` removes the attachment (the server keeps the file)
- ` + "`/dashboard`" + ` opens the metrics dashboard
- ` + "`/help`" + ` shows this panel
- ` + "`/quit`" + ` exits

An attachment stays attached until you remove or replace it.
`

// safeRenderMarkdown renders markdown with panic recovery.
func (m Model) safeRenderMarkdown(content string) (result string) {
	defer func() {
		if r := recover(); r != nil {
			result = content
		}
	}()

	if m.renderer != nil && content != "" {
		rendered, err := m.renderer.Render(content)
		if err == nil {
			return rendered
		}
	}
	return content
}
