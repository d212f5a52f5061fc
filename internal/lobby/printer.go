package lobby

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Printer is where user-facing lobby output goes. Log lines go to the
// logger instead.
type Printer interface {
	Printf(format string, args ...any)
	Println(args ...any)
}

// eraseLine returns the cursor to column 0 and clears the line.
const eraseLine = "\r\033[K"

// StdPrinter serialises output from the inbound pump and the command loop.
// With a prompt set, each line is written over the prompt and the prompt is
// drawn again after it, so chat arriving mid-typing does not land after
// "> ".
type StdPrinter struct {
	mu       sync.Mutex
	w        io.Writer
	prompt   string
	atPrompt bool
}

func NewStdPrinter(w io.Writer) *StdPrinter { return &StdPrinter{w: w} }

// SetPrompt sets the prompt and draws it. An empty prompt turns redrawing
// off.
func (p *StdPrinter) SetPrompt(prompt string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompt = prompt
	p.atPrompt = prompt != ""
	if p.atPrompt {
		io.WriteString(p.w, eraseLine+prompt)
	}
}

func (p *StdPrinter) Printf(format string, args ...any) {
	p.write(fmt.Sprintf(format, args...))
}

func (p *StdPrinter) Println(args ...any) {
	p.write(fmt.Sprintln(args...))
}

func (p *StdPrinter) write(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.prompt == "" {
		io.WriteString(p.w, s)
		return
	}
	if p.atPrompt {
		io.WriteString(p.w, eraseLine)
	}
	io.WriteString(p.w, s)
	// after a partial line the cursor stays where the caller left it
	p.atPrompt = strings.HasSuffix(s, "\n")
	if p.atPrompt {
		io.WriteString(p.w, p.prompt)
	}
}
