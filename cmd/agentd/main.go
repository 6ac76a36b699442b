package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/richtan/ETHDenver2026-sub001/internal/agent"
	"github.com/richtan/ETHDenver2026-sub001/internal/api"
	"github.com/richtan/ETHDenver2026-sub001/internal/chain"
	"github.com/richtan/ETHDenver2026-sub001/internal/config"
	"github.com/richtan/ETHDenver2026-sub001/internal/costs"
	"github.com/richtan/ETHDenver2026-sub001/internal/notify"
	"github.com/richtan/ETHDenver2026-sub001/internal/observability"
	"github.com/richtan/ETHDenver2026-sub001/internal/oracle"
	"github.com/richtan/ETHDenver2026-sub001/internal/pricing"
)

func main() {
	root := &cobra.Command{
		Use:           "agentd",
		Short:         "Autonomous on-chain job orchestrator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(runCmd(), replayCmd())
	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Recover state from the event log, then serve live events",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			shutdownTracing, err := observability.InitTracingFromEnv("agentd")
			if err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}
			defer func() {
				if err := shutdownTracing(context.Background()); err != nil {
					log.Printf("agentd: tracing shutdown: %v", err)
				}
			}()

			// The in-process ledger backs this build; a JSON-RPC client
			// plugs in through the same Reader/Writer interfaces.
			if cfg.ChainRPC != "" {
				log.Printf("agentd: chain_rpc=%s configured but no remote client is built in, using in-process ledger", cfg.ChainRPC)
			}
			ledger := chain.NewMemoryChain()
			writer := chain.NewSerialWriter(ledger)
			writer.Start(ctx)

			orch := agent.New(ledger, writer, buildOracle(cfg), buildPricing(cfg), costs.NewLedger(), buildSink(cfg))

			// Recovery before the live subscription: the replay seeds
			// the task-count cache and re-drives interrupted work, and
			// only then do fresh events start flowing.
			if _, err := agent.NewReplayer(ledger, orch, cfg.ReplayQueriesPerSecond).Run(ctx); err != nil {
				return fmt.Errorf("recovery: %w", err)
			}
			go func() {
				if err := orch.Run(ctx); err != nil && ctx.Err() == nil {
					log.Printf("agentd: subscription ended: %v", err)
					cancel()
				}
			}()
			go agent.NewExpiryScanner(orch, cfg.ExpiryScanInterval.Std()).Start(ctx)
			go agent.NewReimburseScanner(orch, cfg.OperatorAccount, cfg.ReimburseThresholdUSD,
				cfg.ReimburseScanInterval.Std(), cfg.ReimburseEnabled).Start(ctx)

			srv := &http.Server{
				Addr:    ":" + cfg.APIPort,
				Handler: api.NewServer(orch, ledger).Handler(),
			}
			go func() {
				<-ctx.Done()
				_ = srv.Shutdown(context.Background())
			}()
			log.Printf("agentd: serving on :%s", cfg.APIPort)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		},
	}
}

func replayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay",
		Short: "Dry-run recovery: report what a restart would re-drive",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ledger := chain.NewMemoryChain()
			orch := agent.New(ledger, ledger, buildOracle(cfg), buildPricing(cfg), costs.NewLedger(), notify.Noop{})
			report, redrives, err := agent.NewReplayer(ledger, orch, cfg.ReplayQueriesPerSecond).Plan(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "scanned %d events, %d jobs tracked, %d items to re-drive\n",
				report.EventsScanned, report.JobsTracked, len(redrives))
			for _, rd := range redrives {
				switch rd.Kind {
				case agent.RedriveVerify:
					fmt.Fprintf(os.Stdout, "  %s job=%d task=%d proof=%s\n", rd.Kind, rd.JobID, rd.TaskID, rd.ProofRef)
				default:
					fmt.Fprintf(os.Stdout, "  %s job=%d\n", rd.Kind, rd.JobID)
				}
			}
			return nil
		},
	}
}

// buildOracle picks the decision backend. Without an endpoint the
// deterministic template planner runs, which is what the local profile
// uses.
func buildOracle(cfg config.Config) oracle.Oracle {
	if cfg.OracleEndpoint == "" {
		log.Printf("agentd: no oracle endpoint, using template planner")
		return oracle.Template{}
	}
	var proofs oracle.ProofFetcher
	if cfg.ProofStoreEndpoint != "" {
		store, err := oracle.NewProofStore(oracle.ProofStoreConfig{
			Endpoint:  cfg.ProofStoreEndpoint,
			AccessKey: cfg.ProofStoreAccessKey,
			SecretKey: cfg.ProofStoreSecretKey,
			Bucket:    cfg.ProofStoreBucket,
			Secure:    cfg.ProofStoreSecure,
		})
		if err != nil {
			log.Printf("agentd: proof store disabled: %v", err)
		} else {
			proofs = store
		}
	}
	return oracle.NewHTTPProvider(cfg.OracleEndpoint, cfg.OracleAPIKey, proofs)
}

func buildPricing(cfg config.Config) pricing.Oracle {
	if cfg.PriceEndpoint != "" {
		return pricing.NewHTTPOracle(cfg.PriceEndpoint)
	}
	return pricing.Fixed{USDPerToken: cfg.USDPerToken}
}

func buildSink(cfg config.Config) notify.Sink {
	if cfg.NotifyWebhook == "" {
		return notify.Noop{}
	}
	return notify.NewWebhook(cfg.NotifyWebhook)
}
