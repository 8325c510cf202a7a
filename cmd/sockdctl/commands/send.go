package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// errNoPayload indicates neither positional text nor --file was given.
var errNoPayload = errors.New("send: provide a request string or --file")

func sendCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "send [text]",
		Short: "Send one framed request and print the response",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			payload, err := buildPayload(args, file)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			resp, err := roundTrip(ctx, payload)
			if err != nil {
				return err
			}

			fmt.Printf("%s\n", resp)
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "YAML file, parsed and re-marshaled, sent as the request payload")
	return cmd
}

// buildPayload assembles the request payload from either positional text
// or a YAML file, re-marshaled to canonical form before sending.
func buildPayload(args []string, file string) ([]byte, error) {
	if file != "" {
		raw, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		var doc any
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}
		out, err := yaml.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("re-marshal %s: %w", file, err)
		}
		return out, nil
	}

	if len(args) == 0 {
		return nil, errNoPayload
	}
	return []byte(strings.Join(args, " ")), nil
}
