package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	grpc_adapter "github.com/JoeShih716/go-ledger-engine/internal/app/core/adapter/in/grpc"
	grpcpkg "github.com/JoeShih716/go-ledger-engine/pkg/grpc"
	"github.com/JoeShih716/go-ledger-engine/pkg/logger"
	"github.com/JoeShih716/go-ledger-engine/pkg/money"
)

type options struct {
	target      string
	userID      string
	total       int
	concurrency int
	amount      string
	timeout     time.Duration
}

func main() {
	opts := options{}
	cmd := &cobra.Command{
		Use:          "load_client",
		Short:        "Drive concurrent deposits against a running ledger server",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.target, "target", "localhost:50051", "gRPC server address")
	flags.StringVar(&opts.userID, "user", "load-tester", "user id sent as x-user-id")
	flags.IntVar(&opts.total, "total", 100000, "number of deposits")
	flags.IntVar(&opts.concurrency, "concurrency", 1000, "in-flight requests")
	flags.StringVar(&opts.amount, "amount", "100.00", "amount per deposit")
	flags.DurationVar(&opts.timeout, "timeout", 120*time.Second, "overall deadline")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	log, err := logger.New(logger.Config{Level: "info", Format: "console"})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if opts.total <= 0 || opts.concurrency <= 0 {
		return fmt.Errorf("total and concurrency must be positive")
	}
	amount, err := money.Parse(opts.amount)
	if err != nil {
		return err
	}

	pool := grpcpkg.NewPool(
		grpcpkg.WithJSONCodec(),
		grpcpkg.WithInterceptor(grpcpkg.LoggingInterceptor(log)),
	)
	defer pool.Close()
	conn, err := pool.GetConnection(opts.target)
	if err != nil {
		return err
	}
	client := grpc_adapter.NewClient(conn)

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	account, err := client.CreateAccount(ctx, opts.userID, &grpc_adapter.CreateAccountRequest{DisplayName: "load test"})
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	log.Info("Created target account", zap.String("account_number", account.AccountNumber))

	var (
		wg     sync.WaitGroup
		failed atomic.Int64
		sem    = make(chan struct{}, opts.concurrency)
	)
	start := time.Now()
	for i := 0; i < opts.total; i++ {
		sem <- struct{}{}
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			_, err := client.Deposit(ctx, opts.userID, &grpc_adapter.DepositRequest{
				AccountNumber: account.AccountNumber,
				Amount:        amount,
			})
			if err != nil {
				if failed.Add(1)%1000 == 1 {
					log.Warn("Deposit failed", zap.Int("index", idx), zap.Error(err))
				}
			}
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(start)

	list, err := client.ListAccounts(ctx, opts.userID)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}
	var balance string
	for _, a := range list.Accounts {
		if a.AccountNumber == account.AccountNumber {
			balance = a.BalanceDisplay
		}
	}

	succeeded := int64(opts.total) - failed.Load()
	fmt.Printf("Completed %d requests in %v (%d failed)\n", opts.total, elapsed, failed.Load())
	fmt.Printf("TPS: %.2f\n", float64(opts.total)/elapsed.Seconds())
	fmt.Printf("Final balance: %s (expected %s)\n", balance, money.Format(succeeded*amount))
	return nil
}
