package alfredo

import (
	"context"
	"strings"

	"alfredo/internal/router"
	kit "alfredo/internal/transport"
	"alfredo/internal/text"
)

func (b *Bot) cmdStart(ctx context.Context, req *router.Request) error {
	var sb strings.Builder
	sb.WriteString("Mamma Mia!\n\n")
	sb.WriteString("Der AlfredoBot versorgt dich mit allen Informationen rund um die beste Pizza der Welt.\n\n")
	sb.WriteString(text.Bullet("Verfügbare Kommandos: siehe /help"))
	sb.WriteString(text.Bullet("Maintainer: " + Maintainer))
	sb.WriteString(text.Bullet("Version: " + text.Version))
	sb.WriteString(text.Bullet("Bugreports: " + BugReportURL))
	if req.Admin && req.Private() {
		sb.WriteString("\n\nDu bist ein Admin!")
	}
	router.Reply(ctx, b.ch, req, sb.String(), &kit.SendOptions{DisablePreview: true})
	return nil
}

func (b *Bot) cmdHelp(ctx context.Context, req *router.Request) error {
	b.reply(ctx, req, b.helpText(req.Admin && req.Private()))
	return nil
}

func (b *Bot) helpText(admin bool) string {
	var sb strings.Builder
	sb.WriteString("Verfügbare Kommandos:\n")
	for _, c := range b.Commands() {
		if c.Access == router.AccessEveryone {
			sb.WriteString(text.Bullet("/" + c.Name + ": " + c.Description))
		}
	}
	if admin {
		sb.WriteString("\nAdminkommandos:\n")
		for _, c := range b.Commands() {
			if c.Access == router.AccessAdmin {
				sb.WriteString(text.Bullet(usageLine(c) + " " + c.Description))
			}
		}
	}
	return sb.String()
}

func (b *Bot) cmdMenu(ctx context.Context, req *router.Request) error {
	msg := "Link zur aktuellen Karte: [Link](" + MenuURL + ")"
	router.Reply(ctx, b.ch, req, msg, &kit.SendOptions{DisablePreview: true, ParseMode: "MarkdownV2"})
	return nil
}
