package router

import (
	"strings"

	"shopbot/pkg/tgui"
)

func usageOf(c Command) string {
	if u := strings.TrimSpace(c.Usage); u != "" {
		return u
	}
	return "/" + c.Name
}

// helpText renders the command list. The admin section is only shown to the admin.
func (m *CommandManager) helpText(admin bool) string {
	cmds := m.Commands()

	title := m.opts.HelpTitle
	if title == "" {
		title = "🤖 Bot commands:"
	}
	b := tgui.New().RawLine(tgui.B(title).String()).Blank()
	for _, c := range cmds {
		if c.Hidden || c.Access == AccessAdminOnly {
			continue
		}
		b.Line(usageOf(c) + " - " + c.Description)
	}

	if admin {
		b.Blank().Section("Admin commands:")
		for _, c := range cmds {
			if c.Hidden || c.Access != AccessAdminOnly {
				continue
			}
			b.Line(usageOf(c) + " - " + c.Description)
		}
	}
	if f := strings.TrimSpace(m.opts.HelpFooter); f != "" {
		b.Blank().Line(f)
	}
	return b.String()
}
