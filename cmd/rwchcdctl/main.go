// Command rwchcdctl is a small offline inspection and repair tool for the
// persistent store rwchcd maintains between runs: it shows one relay's
// saved accounting row, lets an operator overwrite it with a known state
// after a hardware swap, and resets one relay's row to zero. It does not
// list every row or wipe the store as a whole.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/thatsimonsguy/rwchcd/internal/actuator"
	"github.com/thatsimonsguy/rwchcd/internal/store"
	"github.com/thatsimonsguy/rwchcd/internal/timekeep"
)

func main() {
	var dbPath, command, backend, resource string
	var isOn bool
	var cycles int
	flag.StringVar(&dbPath, "db", "/var/lib/rwchcd/store.db", "path to the rwchcd sqlite store")
	flag.StringVar(&command, "cmd", "", "command to run: show-relay, set-relay, reset")
	flag.StringVar(&backend, "backend", "plant", "backend name for relay commands")
	flag.StringVar(&resource, "resource", "", "resource name for relay commands")
	flag.BoolVar(&isOn, "on", false, "relay state for set-relay")
	flag.IntVar(&cycles, "cycles", 0, "lifetime cycle count for set-relay")
	help := flag.Bool("help", false, "show help")
	flag.Parse()

	if *help || command == "" {
		usage()
		os.Exit(0)
	}

	var err error
	switch command {
	case "show-relay":
		err = showRelay(dbPath, backend, resource)
	case "set-relay":
		err = setRelay(dbPath, backend, resource, isOn, cycles)
	case "reset":
		err = resetRelay(dbPath, backend, resource)
	default:
		fmt.Println("unknown command:", command)
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("command %s failed: %v\n", command, err)
		os.Exit(1)
	}
	fmt.Printf("command %s completed successfully\n", command)
}

func usage() {
	fmt.Println("\nUsage of rwchcdctl:")
	fmt.Println("  -db string\t\tpath to the sqlite store (default /var/lib/rwchcd/store.db)")
	fmt.Println("  -cmd string\t\tcommand to run: show-relay, set-relay, reset")
	fmt.Println("  -backend string\tbackend name (default 'plant')")
	fmt.Println("  -resource string\trelay's resource name, as it appears in the daemon's config")
	fmt.Println("  -on\t\t\trelay state for set-relay")
	fmt.Println("  -cycles int\t\tlifetime cycle count for set-relay")
	fmt.Println("  -help\t\t\tshow this help message")
}

func requireResource(resource string) error {
	if resource == "" {
		return fmt.Errorf("-resource is required")
	}
	return nil
}

func showRelay(dbPath, backend, resource string) error {
	if err := requireResource(resource); err != nil {
		return err
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	snap, ok, err := st.LoadRelay(backend, resource)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Printf("%s/%s: no saved state\n", backend, resource)
		return nil
	}
	fmt.Printf("%s/%s: on=%v since=%.1fs cum_on=%.1fs cum_off=%.1fs cycles=%d\n",
		backend, resource, snap.IsOn,
		timekeep.TkToSec(snap.Since), timekeep.TkToSec(snap.CumOn), timekeep.TkToSec(snap.CumOff),
		snap.Cycles)
	return nil
}

// setRelay overwrites a relay's saved accounting directly, for use after a
// relay is physically replaced and its cycle count should be reset without
// losing the rest of the plant's persisted state.
func setRelay(dbPath, backend, resource string, isOn bool, cycles int) error {
	if err := requireResource(resource); err != nil {
		return err
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	return st.SaveRelay(backend, resource, actuator.Saved{IsOn: isOn, Cycles: cycles})
}

func resetRelay(dbPath, backend, resource string) error {
	return setRelay(dbPath, backend, resource, false, 0)
}
