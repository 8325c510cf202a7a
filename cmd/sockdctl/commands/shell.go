package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive sockdctl shell",
		Long:  "Launches a REPL that sends each typed line as one framed request and prints the response. Type 'exit' or 'quit' to leave.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			printShellBanner()
			scanner := bufio.NewScanner(os.Stdin)
			fmt.Print("sockdctl> ")

			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())

				switch {
				case line == "exit" || line == "quit":
					return nil
				case line == "help" || line == "?":
					printShellHelp()
				case line != "":
					runShellRoundTrip(line)
				}

				fmt.Print("sockdctl> ")
			}

			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			return nil
		},
	}
}

func runShellRoundTrip(line string) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	resp, err := roundTrip(ctx, []byte(line))
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return
	}
	fmt.Printf("%s\n", resp)
}

func printShellBanner() {
	fmt.Printf("sockdctl interactive shell, connected to %s. Type 'help' for usage, 'exit' to quit.\n", socketPath)
	fmt.Println()
}

func printShellHelp() {
	fmt.Println("Available commands:")
	fmt.Println()
	fmt.Println("  <anything>   send it verbatim as one framed request, print the response")
	fmt.Println("  help / ?     show this help message")
	fmt.Println("  exit / quit  leave the interactive shell")
	fmt.Println()
}
