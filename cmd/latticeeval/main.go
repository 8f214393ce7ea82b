// Command latticeeval is a standalone harness for compiling and running
// verb/function bodies against a throwaway in-memory world, without
// bringing up a listener. It supports a single expression (-e), a batch
// file of expressions (-batch), and an interactive REPL.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lattice-mud/lattice/internal/resolve"
	"github.com/lattice-mud/lattice/internal/scripthost"
	"github.com/lattice-mud/lattice/internal/store/memstore"
	"github.com/lattice-mud/lattice/internal/world"
)

// bootstrapWorld builds a minimal world: one root class, one player
// ("wizard") that the REPL and -e/-batch modes run scripts as.
func bootstrapWorld() (*world.Model, world.ID, error) {
	var n int
	minter := func() string { n++; return "obj" + strconv.Itoa(n) }
	m := world.New(memstore.New(), minter)
	ctx := context.Background()
	if err := m.Load(ctx); err != nil {
		return nil, "", err
	}
	root, err := m.CreateClass(ctx, "Object", "", "")
	if err != nil {
		return nil, "", err
	}
	p, err := m.CreatePlayer(ctx, root.ID, "wizard", "unused")
	if err != nil {
		return nil, "", err
	}
	return m, p.ID, nil
}

func runOnce(host *scripthost.Host, player world.ID, body string) string {
	unit, err := host.Compile("eval", body)
	if err != nil {
		return fmt.Sprintf("compile error: %v", err)
	}
	var notifications []string
	ic := scripthost.InvocationContext{
		Player: player,
		This:   player,
		Notify: func(target world.ID, text string) {
			notifications = append(notifications, fmt.Sprintf("[notify %s]: %s", target, text))
		},
	}
	result, err := host.Invoke(context.Background(), unit, ic)
	if err != nil {
		return scripthost.DescribeError(err)
	}
	for _, n := range notifications {
		fmt.Println(n)
	}
	return result
}

func main() {
	expr := flag.String("e", "", "script body to evaluate (non-interactive mode)")
	batch := flag.String("batch", "", "file with script bodies to evaluate, one per line")
	maxDepth := flag.Int("max-depth", 0, "call depth cap (0 = scripthost default)")
	budget := flag.Duration("budget", 0, "execution budget per invocation (0 = scripthost default)")
	flag.Parse()

	model, player, err := bootstrapWorld()
	if err != nil {
		fmt.Fprintf(os.Stderr, "bootstrap failed: %v\n", err)
		os.Exit(1)
	}
	resolver := resolve.New(model, "", "system")
	host := scripthost.New(scripthost.ModelBuiltins{Model: model, Resolver: resolver}, *maxDepth, time.Duration(*budget))

	if *expr != "" {
		fmt.Println(runOnce(host, player, *expr))
		return
	}

	if *batch != "" {
		f, err := os.Open(*batch)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error opening batch file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		lineNum := 0
		for scanner.Scan() {
			lineNum++
			line := scanner.Text()
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			parts := strings.SplitN(line, " | ", 2)
			body := parts[0]
			result := runOnce(host, player, body)
			if len(parts) == 2 {
				expected := parts[1]
				status := "PASS"
				if result != expected {
					status = "FAIL"
				}
				fmt.Printf("[%s] line %d: %s\n", status, lineNum, body)
				if status == "FAIL" {
					fmt.Printf("  expected: %s\n", expected)
					fmt.Printf("  got:      %s\n", result)
				}
			} else {
				fmt.Printf("line %d: %s => %s\n", lineNum, body, result)
			}
		}
		return
	}

	fmt.Println("lattice script evaluator")
	fmt.Printf("player context: %s\n", player)
	fmt.Println("type a script body to run it; \"quit\" or Ctrl+D to exit.")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("lattice> ")
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}
		fmt.Println(runOnce(host, player, line))
	}
}
