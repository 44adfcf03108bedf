package sh

import (
	"fmt"
	"strings"

	"github.com/abiosoft/ishell"
)

func printLines(c *ishell.Context, lines []string, err error) {
	for _, line := range lines {
		c.Println(line)
	}
	if err != nil {
		c.Err(err)
	}
}

var (
	// DecodeCmd decodes a single record.
	DecodeCmd = ishell.Cmd{
		Name:    "decode",
		Aliases: []string{"d"},
		Help:    "RECORD",
		Func: func(c *ishell.Context) {
			if len(c.Args) == 0 {
				c.Err(fmt.Errorf("RECORD required"))
				return
			}
			lines, err := ShellFrom(c).Decode(strings.Join(c.Args, " "))
			printLines(c, lines, err)
		},
	}

	// FeedCmd frames raw UART text.
	FeedCmd = ishell.Cmd{
		Name:    "feed",
		Aliases: []string{"f"},
		Help:    `TEXT (\n \r \t \0 escapes)`,
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			lines, err := s.Feed(strings.Join(c.Args, " "))
			printLines(c, lines, err)
			if n := s.Ring.Len(); n > 0 {
				c.Printf("%d bytes buffered\n", n)
			}
		},
	}

	// ResetCmd purges the feed ring.
	ResetCmd = ishell.Cmd{
		Name: "reset",
		Help: "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Ring.Reset()
		},
	}

	// TwinCmd applies a desired-properties document.
	TwinCmd = ishell.Cmd{
		Name:    "twin",
		Aliases: []string{"t"},
		Help:    "JSON",
		Func: func(c *ishell.Context) {
			reported, err := ShellFrom(c).Twin(strings.Join(c.Args, " "))
			if err != nil {
				c.Err(err)
				return
			}
			c.Println(reported)
		},
	}

	// WrapCmd renders a telemetry envelope.
	WrapCmd = ishell.Cmd{
		Name:    "wrap",
		Aliases: []string{"w"},
		Help:    "SID DTG JSON",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 3 {
				c.Err(fmt.Errorf("SID DTG JSON required"))
				return
			}
			out, err := ShellFrom(c).Wrap(c.Args[0], c.Args[1], strings.Join(c.Args[2:], " "))
			if err != nil {
				c.Err(err)
				return
			}
			c.Println(out)
		},
	}

	// HelloCmd renders the hello message.
	HelloCmd = ishell.Cmd{
		Name: "hello",
		Help: "",
		Func: func(c *ishell.Context) {
			c.Println(ShellFrom(c).Hello())
		},
	}
)
