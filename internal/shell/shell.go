// Package shell provides the interactive gree console.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/zberg/go-gree/internal/ui"
	"github.com/zberg/go-gree/pkg/gree"
)

// Backend is the device access the shell needs. *gree.Manager satisfies it.
type Backend interface {
	Scan(ctx context.Context, forced bool) error
	Devices() []gree.DeviceIdentity
	Resolve(target string) (*gree.Session, bool)
	Bind(ctx context.Context, target string) (*gree.Session, error)
	Read(ctx context.Context, target string, codes []gree.Code) (gree.PropertySet, error)
	Write(ctx context.Context, target string, changes gree.PropertySet) (gree.PropertySet, error)
}

// Shell is a readline console over a Backend.
type Shell struct {
	backend Backend
	rl      *readline.Instance
	out     io.Writer
}

// New creates a shell reading from the terminal.
func New(backend Backend) (*Shell, error) {
	s := &Shell{backend: backend}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "gree> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    s.completer(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	s.rl = rl
	s.out = rl.Stdout()
	return s, nil
}

// Stdout returns a writer that does not clobber the prompt.
func (s *Shell) Stdout() io.Writer {
	return s.out
}

// Run reads commands until quit, EOF or ctx is done.
func (s *Shell) Run(ctx context.Context) error {
	defer s.rl.Close()

	s.printHelp()
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := s.rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			fmt.Fprintln(s.out, "Exiting...")
			return nil
		}
		if s.Exec(ctx, line) {
			return nil
		}
	}
}

// Exec runs one command line and reports whether the shell should exit.
func (s *Shell) Exec(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		s.printHelp()
	case "scan", "discover":
		s.cmdScan(ctx)
	case "list", "ls", "devices":
		s.cmdList()
	case "bind", "b":
		s.cmdBind(ctx, args)
	case "get", "g":
		s.cmdGet(ctx, args)
	case "set", "s":
		s.cmdSet(ctx, args)
	case "props":
		fmt.Fprintln(s.out, ui.PropertiesTable())
	case "quit", "exit", "q":
		fmt.Fprintln(s.out, "Exiting...")
		return true
	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, `
Gree Commands:
  Devices:
    scan                         - Broadcast a scan and list replies
    list                         - List known devices
    bind <device>                - Obtain the device key

  Control:
    get <device> [prop ...|all]  - Read properties
    set <device> prop=value ...  - Write properties
    props                        - Show the property catalog

  General:
    help                         - Show this help
    quit                         - Exit

  <device> is an alias, MAC, name or IP address.`)
}

func (s *Shell) cmdScan(ctx context.Context) {
	if err := s.backend.Scan(ctx, true); err != nil {
		fmt.Fprintln(s.out, ui.Failure(err))
		return
	}
	s.cmdList()
}

func (s *Shell) cmdList() {
	fmt.Fprintln(s.out, ui.DevicesTable(s.backend.Devices(), s.isBound))
}

func (s *Shell) isBound(mac string) bool {
	sess, ok := s.backend.Resolve(mac)
	return ok && sess.State() == gree.Bound
}

func (s *Shell) cmdBind(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: bind <device>")
		return
	}
	sess, err := s.backend.Bind(ctx, args[0])
	if err != nil {
		fmt.Fprintln(s.out, ui.Failure(err))
		return
	}
	fmt.Fprintln(s.out, ui.Success("bound "+sess.Identity().String()))
}

func (s *Shell) cmdGet(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.out, "Usage: get <device> [prop ...|all]")
		return
	}
	codes, err := ParseCodes(args[1:])
	if err != nil {
		fmt.Fprintln(s.out, ui.Failure(err))
		return
	}
	status, err := s.backend.Read(ctx, args[0], codes)
	if err != nil {
		fmt.Fprintln(s.out, ui.Failure(err))
		return
	}
	fmt.Fprintln(s.out, ui.StatusTable(status))
}

func (s *Shell) cmdSet(ctx context.Context, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(s.out, "Usage: set <device> prop=value ...")
		return
	}
	changes, err := ParseSettings(args[1:])
	if err != nil {
		fmt.Fprintln(s.out, ui.Failure(err))
		return
	}
	applied, err := s.backend.Write(ctx, args[0], changes)
	if err != nil {
		fmt.Fprintln(s.out, ui.Failure(err))
		return
	}
	fmt.Fprintln(s.out, ui.Success("applied "+applied.String()))
}

func (s *Shell) completer() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("help"),
		readline.PcItem("scan"),
		readline.PcItem("list"),
		readline.PcItem("bind", readline.PcItemDynamic(s.deviceNames)),
		readline.PcItem("get", readline.PcItemDynamic(s.deviceNames)),
		readline.PcItem("set", readline.PcItemDynamic(s.deviceNames)),
		readline.PcItem("props"),
		readline.PcItem("quit"),
	)
}

func (s *Shell) deviceNames(string) []string {
	var names []string
	for _, d := range s.backend.Devices() {
		names = append(names, d.MAC)
		if d.Name != "" && d.Name != d.MAC && !strings.ContainsAny(d.Name, " \t") {
			names = append(names, d.Name)
		}
	}
	return names
}
