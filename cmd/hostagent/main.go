package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ZacharyEspiritu/asylo/cmd/flags"
	"github.com/ZacharyEspiritu/asylo/host"
)

var cliFlags = []cli.Flag{
	&cli.StringFlag{
		Name:  "listen-addr",
		Value: "127.0.0.1:8095",
		Usage: "address to listen on for donation requests",
	},
	&cli.StringFlag{
		Name:  "enclave-addr",
		Value: "http://127.0.0.1:8080",
		Usage: "base URL of the enclave API",
	},
	flags.LogJSONFlag,
	flags.LogDebugFlag,
	flags.LogUIDFlag,
	flags.LogServiceFlag,
}

func main() {
	app := &cli.App{
		Name:  "hostagent",
		Usage: "Donate host threads to an enclave runtime on request",
		Flags: cliFlags,
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			agent := &host.DonationAgent{
				EnclaveAddr: cCtx.String("enclave-addr"),
				Log:         logger,
			}

			listenAddr := cCtx.String("listen-addr")
			go func() {
				logger.Info("Starting donation agent", "listenAddress", listenAddr)
				if err := agent.ListenAndServe(listenAddr); err != nil {
					logger.Error("Donation agent failed", "err", err)
				}
			}()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
			<-exit
			logger.Info("Shutdown signal received")

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := agent.Shutdown(ctx); err != nil {
				logger.Error("Graceful agent shutdown failed", "err", err)
			}
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
