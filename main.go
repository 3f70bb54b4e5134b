// Command callagent runs the realty call agent: the webhook server that answers
// voice turns, and a local chat loop for driving the orchestrator from stdin.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	configx "github.com/tanpawarit/Chative-Realty-Call-Agent/pkg/config"
	logx "github.com/tanpawarit/Chative-Realty-Call-Agent/pkg/logger"
	_ "github.com/tanpawarit/Chative-Realty-Call-Agent/pkg/logger/autoload"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "callagent",
		Short:         "Realty voice call agent",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			configx.SetEnvFile(envFile)
			// LOG_* may live in the env file, which autoload could not see.
			logCfg, err := configx.New[logx.Config]("LOG")
			if err != nil {
				return err
			}
			logx.Init(*logCfg)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env", "", "Path to a .env file (default ./.env when present)")

	root.AddCommand(newServeCmd(), newChatCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook server",
		Long: `Start the HTTP server that answers telephony webhook turns.

Routes:
  POST /retell-webhook          one caller turn (alias POST /webhook)
  GET  /calls/{call_id}         current call state
  POST /calls/{call_id}/end     evict the call and close its log
  GET  /ws-transcript/{call_id} live transcript ingest (websocket)
  GET  /ws/calls/{call_id}      live transcript subscription (websocket)
  GET  /healthz, GET /metrics

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func newChatCmd() *cobra.Command {
	var callID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the agent from the terminal",
		Example: `  # Start a new call with a generated id
  callagent chat

  # Continue a call
  callagent chat --call-id demo-1 --env .env.local`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), callID, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&callID, "call-id", "", "Call id to use (default: a new uuid)")

	return cmd
}
