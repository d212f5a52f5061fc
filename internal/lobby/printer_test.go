package lobby

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStdPrinterPlain(t *testing.T) {
	out := &lockedBuffer{}
	p := NewStdPrinter(out)

	p.Printf("[LOBBY] %s joined\n", "Bob")
	p.Println("bye")
	assert.Equal(t, "[LOBBY] Bob joined\nbye\n", out.String())
}

func TestStdPrinterRedrawsPrompt(t *testing.T) {
	out := &lockedBuffer{}
	p := NewStdPrinter(out)
	p.SetPrompt("> ")

	p.Println("Bob: hi")
	p.Printf("partial ")
	p.Printf("line\n")

	want := eraseLine + "> " +
		eraseLine + "Bob: hi\n> " +
		eraseLine + "partial " +
		"line\n> "
	assert.Equal(t, want, out.String())
}

func TestStdPrinterConcurrentLinesStayWhole(t *testing.T) {
	out := &lockedBuffer{}
	p := NewStdPrinter(out)
	p.SetPrompt("> ")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				p.Println("line")
			}
		}()
	}
	wg.Wait()

	want := eraseLine + "line\n> "
	got := out.String()[len(eraseLine+"> "):]
	assert.Equal(t, 400*len(want), len(got))
	for len(got) > 0 {
		if !assert.Equal(t, want, got[:len(want)]) {
			return
		}
		got = got[len(want):]
	}
}
