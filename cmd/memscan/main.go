package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/stealthrocket/memscan"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

var (
	scanType     string
	jsonOutput   bool
	pollInterval time.Duration
)

func init() {
	log.Default().SetOutput(os.Stderr)
	flag.StringVar(&scanType, "scan-type", "", "Pin scans to a single value type (e.g. Int32); default autodetects.")
	flag.BoolVar(&jsonOutput, "json", false, "Print candidate addresses as a JSON array instead of one per line.")
	flag.DurationVar(&pollInterval, "poll-interval", 100*time.Millisecond, "Rewrite period for the lock command's pinning task.")
}

func run(ctx context.Context) error {
	flag.Parse()

	args := flag.Args()
	if len(args) != 1 {
		return fmt.Errorf("usage: memscan <pid>")
	}
	pid64, err := strconv.ParseInt(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("usage: memscan <pid>")
	}

	sess := memscan.NewSession(int32(pid64))
	sess.SetLockInterval(pollInterval)
	if err := sess.ReloadMaps(); err != nil {
		return fmt.Errorf("loading maps: %w", err)
	}
	if err := sess.Memory().Attach(); err != nil {
		return fmt.Errorf("attaching: %w", err)
	}
	defer sess.Memory().Detach()

	var override *memscan.Tag
	if scanType != "" {
		t, ok := memscan.ParseTag(scanType)
		if !ok {
			return fmt.Errorf("unrecognized --scan-type %q", scanType)
		}
		override = &t
	}

	return runLoop(ctx, sess, override)
}

// runLoop is the headless stand-in for the hotkey-driven graphical
// shell described in spec §6: F2 issues a scan/refine, F3 undoes it,
// F4 resets, F5 writes the current value to every result, F7 pins it.
// Those keys are a UI contract this core satisfies through Session's
// methods; here they are exposed as one-word commands (scan, next,
// mode, prev, reset, set, lock, quit) read from stdin so the core is
// reachable without the windowing shell.
func runLoop(ctx context.Context, sess *memscan.Session, override *memscan.Tag) error {
	scanner := bufio.NewScanner(os.Stdin)
	mode := memscan.ModeExact

	printResults(sess)
	fmt.Fprintln(os.Stderr, "commands: scan <value> | next <value> | mode <name> | prev | reset | set <value> | lock <value> | quit")

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 2)
		cmd := fields[0]
		var arg string
		if len(fields) == 2 {
			arg = fields[1]
		}

		switch cmd {
		case "scan":
			if err := sess.FirstScan(arg, mode, override); err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
				continue
			}
		case "next":
			if err := sess.NextScan(arg, mode, override); err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
				continue
			}
		case "mode":
			mode = memscan.Mode(arg)
		case "prev":
			sess.PreviousScan()
		case "reset":
			sess.Reset()
		case "set":
			if err := sess.Set(arg); err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
				continue
			}
		case "lock":
			sess.Lock(arg)
			fmt.Fprintln(os.Stderr, "lock started")
			continue
		case "quit":
			return nil
		default:
			fmt.Fprintln(os.Stderr, "unrecognized command:", cmd)
			continue
		}
		printResults(sess)
	}
	return scanner.Err()
}

func printResults(sess *memscan.Session) {
	results := sess.Results()
	sort.Slice(results, func(i, j int) bool { return results[i] < results[j] })
	if jsonOutput {
		fmt.Print("[")
		for i, addr := range results {
			if i > 0 {
				fmt.Print(",")
			}
			fmt.Printf("\"0x%x\"", addr)
		}
		fmt.Println("]")
		return
	}
	for _, addr := range results {
		fmt.Printf("0x%x\n", addr)
	}
	fmt.Fprintf(os.Stderr, "%d candidate(s)\n", len(results))
}
