// Package flags holds the CLI flags and setup helpers shared by the enclave
// runtime binaries.
package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/ZacharyEspiritu/asylo/common"
	"github.com/ZacharyEspiritu/asylo/httpserver"
)

// SetupLogger builds the process logger from the logging flags.
func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJSONFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUIDFlag.Name)
	logService := cCtx.String(LogServiceFlag.Name)

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

// ConfigureServer builds the HTTP server config from the server flags.
func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, listenAddr string) *httpserver.HTTPServerConfig {
	metricsAddr := cCtx.String(MetricsAddrFlag.Name)
	enablePprof := cCtx.Bool(PprofFlag.Name)
	drainDuration := time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second

	return &httpserver.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              metricsAddr,
		Log:                      logger,
		EnablePprof:              enablePprof,
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

var ListenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8080",
	Usage: "address to listen on for API",
}

var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}

var MasterSecretFlag = &cli.StringFlag{
	Name:  "master-secret",
	Value: "",
	Usage: "hex-encoded sealing master secret, at least 32 bytes (mutually exclusive with admin-keys-file)",
}

var AdminKeysFileFlag = &cli.StringFlag{
	Name:  "admin-keys-file",
	Value: "",
	Usage: "JSON file with operator public keys; enables master secret provisioning over the admin API",
}

var ProvisionTimeoutFlag = &cli.IntFlag{
	Name:  "provision-timeout",
	Value: 300,
	Usage: "timeout in seconds for master secret provisioning",
}

var SecretStorageFlag = &cli.StringSliceFlag{
	Name:  "secret-storage",
	Value: cli.NewStringSlice("file://./enclaved-data"),
	Usage: "storage backend URIs for sealed secrets (file://, s3://, ipfs://, vault://)",
}

var AttestationFlag = &cli.StringFlag{
	Name:  "attestation",
	Value: "dummy",
	Usage: "attestation provider: 'dummy', 'remote' (out-of-enclave quote service) or 'tdx' (DCAP via the guest quote device)",
}

var QuoteProviderFlag = &cli.StringFlag{
	Name:  "quote-provider-addr",
	Value: "",
	Usage: "base URL of the remote quote service (required if attestation is 'remote')",
}

var DonorModeFlag = &cli.StringFlag{
	Name:  "donor-mode",
	Value: "local",
	Usage: "thread donation mode: 'local' (in-process vehicles) or 'remote' (host donation service)",
}

var HostAddrFlag = &cli.StringFlag{
	Name:  "host-addr",
	Value: "http://127.0.0.1:8095",
	Usage: "base URL of the host donation service (required if donor-mode is 'remote')",
}

var LogJSONFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}

var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}

var LogUIDFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}

var LogServiceFlag = &cli.StringFlag{
	Name:  "log-service",
	Value: common.PackageName,
	Usage: "add 'service' tag to logs",
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}

var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
