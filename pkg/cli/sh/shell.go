// Package sh is an offline diagnostics shell for the gateway's record
// decoder, framer, twin parser and envelope.
package sh

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/beacongw/pkg/beacon"
	"github.com/robotalks/beacongw/pkg/cloud"
	fx "github.com/robotalks/beacongw/pkg/framework"
	"github.com/robotalks/beacongw/pkg/registry"
	"github.com/robotalks/beacongw/pkg/serial"
	"github.com/robotalks/beacongw/pkg/telemetry"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	Clock       fx.Clock

	Shell  *ishell.Shell
	Ring   *serial.Ring
	Config cloud.Config
}

const (
	shellKey = "$shell"
	prompt   = "beacon > "
)

var (
	// flags

	evalOnly     bool
	outputJSON   bool
	ringCapacity = serial.DefaultRingCapacity

	// commands
	commands = []*ishell.Cmd{
		&DecodeCmd,
		&FeedCmd,
		&ResetCmd,
		&TwinCmd,
		&WrapCmd,
		&HelloCmd,
	}

	escapes = strings.NewReplacer(`\n`, "\n", `\r`, "\r", `\t`, "\t", `\0`, "\x00")
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
	flag.IntVar(&ringCapacity, "ring", ringCapacity, "Ring capacity used by feed.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New() *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,
		Clock:       fx.SystemClock,

		Shell:  ishell.New(),
		Ring:   serial.NewRing(ringCapacity),
		Config: cloud.DefaultConfig(),
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(prompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// Decode decodes one record and renders the telemetry it produces.
func (s *Shell) Decode(line string) ([]string, error) {
	rec, err := beacon.Decode([]byte(line))
	if err != nil {
		return nil, err
	}
	out := []string{s.describe(rec)}
	reg := registry.New(registry.Policy{})
	index, _, err := reg.LookupOrPlace(rec.Address())
	if err != nil {
		return out, err
	}
	reg.Apply(index, rec)
	for _, snap := range reg.DrainFresh() {
		payloads, err := telemetry.Snapshot(snap)
		for _, p := range payloads {
			out = append(out, string(p.Body))
		}
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

// Feed frames text through the shell's ring and decodes every
// complete record. Partial records stay buffered for the next Feed.
func (s *Shell) Feed(text string) ([]string, error) {
	var out []string
	var errs fx.AggregatedError
	err := s.Ring.Feed([]byte(escapes.Replace(text)), serial.HandleRecordFunc(func(rec []byte) {
		lines, err := s.Decode(string(rec))
		if err != nil {
			errs.Add(fmt.Errorf("%q: %w", rec, err))
		}
		out = append(out, lines...)
	}))
	errs.Add(err)
	return out, errs.Aggregate()
}

// Twin applies a desired-properties document to the shell's config
// and returns the reported properties.
func (s *Shell) Twin(doc string) (string, error) {
	next, err := cloud.ApplyTwin(s.Config, []byte(doc))
	if err != nil {
		return "", err
	}
	s.Config = next
	return string(next.Reported()), nil
}

// Wrap renders the telemetry envelope.
func (s *Shell) Wrap(sid, dtg, inner string) (string, error) {
	if !json.Valid([]byte(inner)) {
		return "", fmt.Errorf("payload is not JSON")
	}
	return string(cloud.Wrap(sid, dtg, s.Clock.Now(), []byte(inner))), nil
}

// Hello renders the hello message.
func (s *Shell) Hello() string {
	return string(cloud.HelloMessage(s.Clock.Now()))
}

func (s *Shell) describe(rec beacon.Record) string {
	data, err := json.Marshal(rec)
	if err != nil {
		data = []byte(err.Error())
	}
	if s.OutputJSON {
		return string(data)
	}
	var w bytes.Buffer
	fmt.Fprintf(&w, "%s %s rssi=%d %s", rec.Tag(), rec.Address(), rec.RSSI(), rec.Family())
	if seq, ok := rec.(beacon.Sequenced); ok {
		fmt.Fprintf(&w, " seq=%d", seq.Sequence())
	}
	fmt.Fprintf(&w, " %s", data)
	return w.String()
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Printf("beaconsh %s\n", time.Now().Format(time.RFC3339))
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New().Run(flag.Args()...)
}
