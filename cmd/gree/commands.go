package main

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zberg/go-gree/internal/logging"
	"github.com/zberg/go-gree/internal/shell"
	"github.com/zberg/go-gree/internal/ui"
	"github.com/zberg/go-gree/pkg/gree"
	"golang.org/x/term"
)

var (
	deviceMAC string
	deviceKey string
	keyPrompt bool
)

func init() {
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(bindCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(propsCmd)
	rootCmd.AddCommand(shellCmd)
	rootCmd.AddCommand(versionCmd)

	for _, cmd := range []*cobra.Command{getCmd, setCmd} {
		cmd.Flags().StringVar(&deviceMAC, "mac", "", "device MAC, skips discovery when used with --key")
		cmd.Flags().StringVar(&deviceKey, "key", "", "device key from a previous bind")
		cmd.Flags().BoolVar(&keyPrompt, "key-prompt", false, "read the device key from the terminal")
		cmd.MarkFlagsMutuallyExclusive("key", "key-prompt")
	}
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover devices on the network",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		defer client.Close()

		fmt.Fprintln(os.Stderr, ui.Muted("Discovering devices..."))
		devices, err := client.Discover(cmd.Context())
		if err != nil {
			return fmt.Errorf("discovery failed: %w", err)
		}
		fmt.Println(ui.DevicesTable(devices, nil))
		return nil
	},
}

var bindCmd = &cobra.Command{
	Use:   "bind <device>",
	Short: "Bind a device and print its key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		defer client.Close()
		mgr, err := newManager(client)
		if err != nil {
			return err
		}

		sess, err := mgr.Bind(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Println(ui.Success("bound " + sess.Identity().String()))
		fmt.Printf("key: %s\n", sess.Key().Secret())
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <device> [prop ...|all]",
	Short: "Read device properties",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		codes, err := shell.ParseCodes(args[1:])
		if err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		defer client.Close()

		var status gree.PropertySet
		sess, direct, err := directSession(args[0])
		switch {
		case err != nil:
			return err
		case direct:
			status, err = client.ReadStatus(cmd.Context(), sess, codes)
		default:
			mgr, mgrErr := newManager(client)
			if mgrErr != nil {
				return mgrErr
			}
			status, err = mgr.Read(cmd.Context(), args[0], codes)
		}
		if err != nil {
			return err
		}
		fmt.Println(ui.StatusTable(status))
		return nil
	},
}

var setCmd = &cobra.Command{
	Use:   "set <device> prop=value ...",
	Short: "Write device properties",
	Long: `Write device properties. Values may be labels or integers, for example:

  gree set bedroom power=on mode=cool temperature=22 fan-speed=auto`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		changes, err := shell.ParseSettings(args[1:])
		if err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		defer client.Close()

		var applied gree.PropertySet
		sess, direct, err := directSession(args[0])
		switch {
		case err != nil:
			return err
		case direct:
			applied, err = client.WriteStatus(cmd.Context(), sess, changes)
		default:
			mgr, mgrErr := newManager(client)
			if mgrErr != nil {
				return mgrErr
			}
			applied, err = mgr.Write(cmd.Context(), args[0], changes)
		}
		if err != nil {
			return err
		}
		fmt.Println(ui.Success("applied " + applied.String()))
		return nil
	},
}

var propsCmd = &cobra.Command{
	Use:   "props",
	Short: "List the supported properties",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(ui.PropertiesTable())
	},
}

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive console",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		defer client.Close()
		mgr, err := newManager(client)
		if err != nil {
			return err
		}

		sh, err := shell.New(mgr)
		if err != nil {
			return err
		}
		return sh.Run(cmd.Context())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("gree", version)
	},
}

func newClient() (*gree.Client, error) {
	opts := cfg.ClientOptions(logging.Named("client"))
	if bcastAddr != "" {
		opts = append(opts, gree.WithBroadcastAddr(bcastAddr))
	}
	if timeout > 0 {
		opts = append(opts, gree.WithRequestTimeout(timeout))
	}
	client, err := gree.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return client, nil
}

func newManager(client *gree.Client) (*gree.Manager, error) {
	return gree.NewManager(client, cfg.ManagerOptions(logging.Named("manager"))...)
}

// directSession builds a bound session from --key and --mac so that target
// can be reached without a broadcast. It reports false when no key was
// given.
func directSession(target string) (*gree.Session, bool, error) {
	key := deviceKey
	if keyPrompt {
		var err error
		if key, err = readKey(); err != nil {
			return nil, false, err
		}
	}
	if key == "" {
		return nil, false, nil
	}
	if deviceMAC == "" {
		return nil, false, errors.New("--mac is required with --key")
	}

	addr, err := targetAddr(target, cfg.Port)
	if err != nil {
		return nil, false, err
	}
	mac := strings.ToLower(deviceMAC)
	k, err := gree.NewBoundKey(mac, key)
	if err != nil {
		return nil, false, err
	}
	sess, err := gree.NewBoundSession(gree.DeviceIdentity{Addr: addr, MAC: mac, Name: mac}, k)
	if err != nil {
		return nil, false, err
	}
	return sess, true, nil
}

// targetAddr parses an IP or IP:port target. port 0 means the default port.
func targetAddr(target string, port int) (netip.AddrPort, error) {
	if ap, err := netip.ParseAddrPort(target); err == nil {
		return ap, nil
	}
	ip, err := netip.ParseAddr(target)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("with --key the device must be an IP address, got %q", target)
	}
	if port == 0 {
		port = gree.DefaultPort
	}
	return netip.AddrPortFrom(ip, uint16(port)), nil
}

func readKey() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("--key-prompt needs a terminal")
	}
	fmt.Fprint(os.Stderr, "Device key: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read key: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}
