package lobby

import "lan-lobby/internal/uiutil"

func formatName(name, fallback string) string { return uiutil.FormatName(name, fallback) }
func dim(s string) string                     { return uiutil.Dim(s) }

func PrintBanner(p Printer, a *App) {
	p.Println()
	p.Println("LAN lobby started.")
	p.Printf("Name:           %s\n", formatName(a.Name(), a.Session()))
	p.Printf("Session:        %s\n", uiutil.ShortID(a.Session()))
	p.Printf("Addr:           %s\n", a.transport.LocalAddr())
	p.Printf("Interfaces:     %d\n", len(a.transport.Interfaces()))
	p.Println()
	PrintCommands(p)
	p.Println()
}

func PrintCommands(p Printer) {
	p.Println("Commands:")
	p.Println("    /say <message>               - chat with everyone on the LAN")
	p.Println("    /players                     - show who is in the lobby")
	p.Println("    /games                       - list hosted games")
	p.Println("    /host <map> <mode>           - announce a game you are hosting")
	p.Println("    /unhost                      - stop announcing your game")
	p.Println("    /lock, /unlock               - close or reopen your room to joiners")
	p.Println("    /ifaces                      - show broadcast interfaces")
	p.Println("    /history                     - players seen before")
	p.Println("    /quit                        - exit")
}
