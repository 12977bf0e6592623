package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ZacharyEspiritu/asylo/attestation"
	"github.com/ZacharyEspiritu/asylo/cmd/flags"
	"github.com/ZacharyEspiritu/asylo/host"
	"github.com/ZacharyEspiritu/asylo/httpserver"
	"github.com/ZacharyEspiritu/asylo/interfaces"
	"github.com/ZacharyEspiritu/asylo/sealing"
	"github.com/ZacharyEspiritu/asylo/storage"
	"github.com/ZacharyEspiritu/asylo/threading"
)

var cliFlags = []cli.Flag{
	flags.ListenAddrFlag,
	flags.MetricsAddrFlag,
	flags.MasterSecretFlag,
	flags.AdminKeysFileFlag,
	flags.ProvisionTimeoutFlag,
	flags.SecretStorageFlag,
	flags.DonorModeFlag,
	flags.HostAddrFlag,
	flags.AttestationFlag,
	flags.QuoteProviderFlag,
	flags.LogJSONFlag,
	flags.LogDebugFlag,
	flags.LogUIDFlag,
	flags.LogServiceFlag,
	flags.PprofFlag,
	flags.DrainSecondsFlag,
}

func main() {
	app := &cli.App{
		Name:  "enclaved",
		Usage: "Serve the enclave runtime API: thread donation scheduling and secret sealing",
		Flags: cliFlags,
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			// Storage for sealed secrets
			storageURIs := cCtx.StringSlice(flags.SecretStorageFlag.Name)
			locations := make([]interfaces.StorageBackendLocation, len(storageURIs))
			for i, uri := range storageURIs {
				locations[i] = interfaces.StorageBackendLocation(uri)
			}

			storageFactory := storage.NewStorageBackendFactory(logger)
			secretStorage, err := storageFactory.CreateMultiBackend(locations)
			if err != nil {
				logger.Error("Failed to create secret storage", "err", err)
				return err
			}

			// Thread donation
			var donor interfaces.ThreadDonor
			var goroutineDonor *host.GoroutineDonor
			switch donorMode := cCtx.String(flags.DonorModeFlag.Name); donorMode {
			case "local":
				goroutineDonor = host.NewGoroutineDonor()
				donor = goroutineDonor
			case "remote":
				hostAddr := cCtx.String(flags.HostAddrFlag.Name)
				if hostAddr == "" {
					return errors.New("host-addr is required for remote donor mode")
				}
				donor = &host.RemoteDonor{Address: hostAddr}
			default:
				return fmt.Errorf("invalid donor-mode: %s", donorMode)
			}

			manager := threading.NewManager(donor, logger)
			if goroutineDonor != nil {
				goroutineDonor.Attach(manager)
			}

			cfg := flags.ConfigureServer(cCtx, logger, cCtx.String(flags.ListenAddrFlag.Name))
			handler := httpserver.NewHandler(manager, secretStorage, logger)

			attestor, err := attestationProvider(cCtx)
			if err != nil {
				logger.Error("Failed to configure attestation", "err", err)
				return err
			}
			handler.SetAttestationProvider(attestor)

			// Sealing: either a master secret on the command line, or
			// operator provisioning over the admin API.
			masterSecretHex := cCtx.String(flags.MasterSecretFlag.Name)
			adminKeysFile := cCtx.String(flags.AdminKeysFileFlag.Name)

			var server *httpserver.Server
			switch {
			case masterSecretHex != "":
				masterSecret, err := hex.DecodeString(masterSecretHex)
				if err != nil {
					logger.Error("Invalid master-secret - must be hex encoded", "err", err)
					return fmt.Errorf("invalid master-secret: %w", err)
				}

				sealer, err := sealing.NewSealer(masterSecret)
				if err != nil {
					logger.Error("Failed to create sealer", "err", err)
					return err
				}
				handler.SetSealer(sealer)

				server, err = httpserver.New(cfg, handler, nil)
				if err != nil {
					logger.Error("Failed to create server", "err", err)
					return err
				}

				manager.WithMetrics(threading.NewMetrics(server.Metrics().Registry()))

				logger.Info("Starting server")
				server.RunInBackground()

			case adminKeysFile != "":
				logger.Info("Loading operator keys", "file", adminKeysFile)
				adminKeysData, err := os.Open(adminKeysFile)
				if err != nil {
					logger.Error("Failed to open admin keys file", "err", err)
					return err
				}
				defer adminKeysData.Close()

				adminKeys, err := httpserver.LoadAdminKeys(adminKeysData)
				if err != nil {
					logger.Error("Failed to load admin keys", "err", err)
					return err
				}
				logger.Info("Operator keys loaded successfully", "count", len(adminKeys))

				admin := httpserver.NewProvisionHandler(logger, adminKeys)
				server, err = httpserver.New(cfg, handler, admin)
				if err != nil {
					logger.Error("Failed to create server", "err", err)
					return err
				}

				manager.WithMetrics(threading.NewMetrics(server.Metrics().Registry()))

				logger.Info("Starting server, waiting for master secret provisioning")
				server.RunInBackground()

				provisionTimeout := cCtx.Int(flags.ProvisionTimeoutFlag.Name)
				ctx, cancel := context.WithTimeout(context.Background(),
					time.Duration(provisionTimeout)*time.Second)
				defer cancel()

				sealer, err := admin.WaitForProvision(ctx)
				if err != nil {
					logger.Error("Master secret provisioning failed", "err", err)
					return err
				}
				handler.SetSealer(sealer)

				logger.Info("Master secret provisioned, sealing endpoints enabled")

			default:
				logger.Error("Either master-secret or admin-keys-file must be set")
				return errors.New("either master-secret or admin-keys-file must be set")
			}

			// Wait for termination signal
			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			logger.Info("Server shutdown complete")

			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// attestationProvider selects the quote provider from the attestation flags.
func attestationProvider(cCtx *cli.Context) (attestation.Provider, error) {
	switch mode := cCtx.String(flags.AttestationFlag.Name); mode {
	case "dummy":
		return attestation.DummyProvider{}, nil
	case "remote":
		addr := cCtx.String(flags.QuoteProviderFlag.Name)
		if addr == "" {
			return nil, errors.New("quote-provider-addr is required for remote attestation")
		}
		return &attestation.RemoteProvider{Address: addr}, nil
	case "tdx":
		return attestation.DCAPProvider{}, nil
	default:
		return nil, fmt.Errorf("invalid attestation mode: %s", mode)
	}
}
