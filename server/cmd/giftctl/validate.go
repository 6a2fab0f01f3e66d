package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/gate4ai/giftmessage/server/validator"
	"github.com/spf13/cobra"
)

type validateOptions struct {
	maxLength int
}

var errRejected = errors.New("one or more messages were rejected")

func newValidateCommand() *cobra.Command {
	var opts validateOptions

	cmd := &cobra.Command{
		Use:   "validate [MESSAGE]...",
		Short: "Check gift messages and print their normalized form",
		Long:  "Check gift messages and print their normalized form. Without arguments one message per line is read from stdin.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runValidateReader(cmd.InOrStdin(), cmd.OutOrStdout(), opts)
			}
			return runValidate(args, cmd.OutOrStdout(), opts)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&opts.maxLength, "max-length", validator.DefaultMaxLength, "Maximum message length in characters")

	return cmd
}

func runValidateReader(in io.Reader, out io.Writer, opts validateOptions) error {
	var messages []string
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		messages = append(messages, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return runValidate(messages, out, opts)
}

// runValidate prints "ok\t<normalized>" or "<code>\t<message>" per input.
func runValidate(messages []string, out io.Writer, opts validateOptions) error {
	v := validator.New(opts.maxLength)
	rejected := false
	for _, msg := range messages {
		normalized, err := v.Validate(msg)
		if err != nil {
			ve, ok := validator.AsValidationError(err)
			if !ok {
				return err
			}
			rejected = true
			fmt.Fprintf(out, "%s\t%s\n", ve.Code, ve.Message)
			continue
		}
		if normalized == "" {
			fmt.Fprintln(out, "empty")
			continue
		}
		fmt.Fprintf(out, "ok\t%s\n", normalized)
	}
	if rejected {
		return errRejected
	}
	return nil
}
