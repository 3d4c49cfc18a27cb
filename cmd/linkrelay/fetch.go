package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"linkrelay/internal/channel"
	"linkrelay/internal/config"

	"github.com/spf13/cobra"
)

func fetchCmd() *cobra.Command {
	var keepDir string
	cmd := &cobra.Command{
		Use:   "fetch [text]",
		Short: "Run a message through the relay in the terminal",
		Long: `Handles one message exactly like the bot would and prints the replies.
Without arguments, reads one message per line from stdin.
Downloaded videos are removed afterwards unless --keep is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadLocal(resolveConfigPath())
			if err != nil {
				return err
			}
			closeLog, err := setupLogger(cfg)
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			r, err := newRelay(cfg)
			if err != nil {
				return err
			}
			defer r.Close()

			cli := channel.NewCLI(channel.CLIConfig{
				Logger:  logger,
				Out:     cmd.OutOrStdout(),
				KeepDir: config.ExpandPath(keepDir),
			})
			defer cli.Stop()

			if len(args) == 0 {
				runDone := make(chan struct{})
				go func() {
					r.dispatcher.Run(ctx)
					close(runDone)
				}()
				err := cli.Start(ctx, r.bus)
				// Closing the bus lets Run drain what was already read.
				r.bus.Close()
				<-runDone
				r.dispatcher.Wait()
				return err
			}

			cli.Register(r.bus)
			res := r.dispatcher.HandleMessage(ctx, cli.Inbound(joinArgs(args)))
			if res.Failed() {
				return fmt.Errorf("%s: %w", res.Outcome, res.Err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&keepDir, "keep", "k", "", "copy downloaded videos into this directory")
	return cmd
}
