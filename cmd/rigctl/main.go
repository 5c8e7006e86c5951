package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dougsko/rigd/pkg/client"
	"github.com/dougsko/rigd/pkg/rig"
)

var (
	addr  = flag.String("addr", "localhost:14290", "rigd listener address")
	token = flag.String("token", "", "Auth token or shared secret")
)

func main() {
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		showHelp()
		return
	}

	c := client.New(*addr, *token)
	defer c.Close()

	snap, err := run(c, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	printSnapshot(snap)
}

func run(c *client.Client, args []string) (*rig.Snapshot, error) {
	cmd := strings.ToLower(args[0])
	switch cmd {
	case "state", "status":
		return c.GetState()

	case "freq":
		if len(args) < 2 {
			return nil, fmt.Errorf("usage: freq <hz>")
		}
		hz, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad frequency %q: %w", args[1], err)
		}
		return c.SetFreq(hz)

	case "mode":
		if len(args) < 2 {
			return nil, fmt.Errorf("usage: mode <name>")
		}
		return c.SetMode(strings.ToUpper(args[1]))

	case "ptt":
		if len(args) < 2 {
			return nil, fmt.Errorf("usage: ptt on|off")
		}
		on, err := parseOnOff(args[1])
		if err != nil {
			return nil, err
		}
		return c.SetPTT(on)

	case "power":
		if len(args) < 2 {
			return nil, fmt.Errorf("usage: power on|off")
		}
		on, err := parseOnOff(args[1])
		if err != nil {
			return nil, err
		}
		if on {
			return c.PowerOn()
		}
		return c.PowerOff()

	case "vfo":
		return c.Send(rig.ToggleVFO())

	case "lock":
		return c.Send(rig.Lock())

	case "unlock":
		return c.Send(rig.Unlock())

	case "limit":
		if len(args) < 2 {
			return c.Send(rig.GetTxLimit())
		}
		w, err := strconv.ParseUint(args[1], 10, 8)
		if err != nil {
			return nil, fmt.Errorf("bad power limit %q: %w", args[1], err)
		}
		return c.Send(rig.SetTxLimit(uint8(w)))

	default:
		return nil, fmt.Errorf("unknown command %q (run with no arguments for help)", args[0])
	}
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

func printSnapshot(snap *rig.Snapshot) {
	if snap == nil {
		fmt.Println("OK")
		return
	}
	st := snap.Status
	fmt.Printf("Rig:       %s %s\n", snap.Info.Manufacturer, snap.Info.Model)
	fmt.Printf("State:     %s\n", snap.StateName)
	if snap.Band != "" {
		fmt.Printf("Frequency: %d Hz (%s)\n", st.Freq.Hz, snap.Band)
	} else {
		fmt.Printf("Frequency: %d Hz\n", st.Freq.Hz)
	}
	fmt.Printf("Mode:      %s\n", st.Mode)
	fmt.Printf("PTT:       %v\n", st.TxEnabled)
	fmt.Printf("Locked:    %v\n", st.Lock)
	fmt.Printf("Signal:    %d\n", st.Rx.Signal)
	if st.TxEnabled {
		fmt.Printf("TX power:  %d W  SWR: %.1f  ALC: %d\n", st.Tx.Power, st.Tx.SWR, st.Tx.ALC)
	}
	if st.Tx.Limit > 0 {
		fmt.Printf("TX limit:  %d W\n", st.Tx.Limit)
	}
	if snap.LastError != "" {
		fmt.Printf("Last err:  %s\n", snap.LastError)
	}
}

func showHelp() {
	fmt.Println("rigctl - rigd control tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Printf("  %s [options] <command> [args]\n", os.Args[0])
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -addr <host:port>   rigd listener address (default: localhost:14290)")
	fmt.Println("  -token <token>      Auth token or shared secret")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  state               Show the current rig state")
	fmt.Println("  freq <hz>           Tune to a frequency in Hz")
	fmt.Println("  mode <name>         Switch operating mode (USB, LSB, CW, FM, ...)")
	fmt.Println("  ptt on|off          Key or unkey the transmitter")
	fmt.Println("  power on|off        Power the rig up or down")
	fmt.Println("  vfo                 Toggle between VFO A and B")
	fmt.Println("  lock                Lock the front panel")
	fmt.Println("  unlock              Unlock the front panel")
	fmt.Println("  limit [watts]       Show or set the TX power limit")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Printf("  %s state\n", os.Args[0])
	fmt.Printf("  %s freq 14070000\n", os.Args[0])
	fmt.Printf("  %s mode usb\n", os.Args[0])
}
