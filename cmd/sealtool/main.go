package main

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ZacharyEspiritu/asylo/attestation"
	"github.com/ZacharyEspiritu/asylo/client"
	"github.com/ZacharyEspiritu/asylo/httpserver"
	"github.com/ZacharyEspiritu/asylo/interfaces"
)

var enclaveAddrFlag = &cli.StringFlag{
	Name:  "enclave-addr",
	Value: "http://127.0.0.1:8080",
	Usage: "base URL of the enclave API",
}

func main() {
	app := &cli.App{
		Name:  "sealtool",
		Usage: "Seal and unseal secrets through a running enclave",
		Commands: []*cli.Command{
			{
				Name:  "seal",
				Usage: "seal stdin and print the content ID",
				Flags: []cli.Flag{
					enclaveAddrFlag,
					&cli.StringFlag{
						Name:  "additional-data",
						Usage: "data stored in the clear but authenticated with the secret",
					},
				},
				Action: func(cCtx *cli.Context) error {
					secret, err := io.ReadAll(os.Stdin)
					if err != nil {
						return fmt.Errorf("failed to read secret from stdin: %w", err)
					}

					c := &client.EnclaveClient{BaseURL: cCtx.String("enclave-addr")}
					id, err := c.Seal(cCtx.Context, secret, []byte(cCtx.String("additional-data")))
					if err != nil {
						return err
					}

					fmt.Println(id.String())
					return nil
				},
			},
			{
				Name:      "unseal",
				Usage:     "unseal a secret by content ID and print the plaintext",
				ArgsUsage: "<content-id>",
				Flags:     []cli.Flag{enclaveAddrFlag},
				Action: func(cCtx *cli.Context) error {
					id, err := interfaces.NewContentIDFromHex(cCtx.Args().First())
					if err != nil {
						return fmt.Errorf("invalid content ID: %w", err)
					}

					c := &client.EnclaveClient{BaseURL: cCtx.String("enclave-addr")}
					secret, _, err := c.Unseal(cCtx.Context, id)
					if err != nil {
						return err
					}

					os.Stdout.Write(secret)
					return nil
				},
			},
			{
				Name:  "attestation-key",
				Usage: "generate and seal an attestation key inside the enclave",
				Flags: []cli.Flag{enclaveAddrFlag},
				Action: func(cCtx *cli.Context) error {
					c := &client.EnclaveClient{BaseURL: cCtx.String("enclave-addr")}
					id, verifyingKey, err := c.CreateAttestationKey(cCtx.Context)
					if err != nil {
						return err
					}

					fmt.Println(id.String())
					fmt.Println(base64.StdEncoding.EncodeToString(verifyingKey))
					return nil
				},
			},
			{
				Name:      "attest",
				Usage:     "generate a quote over a sealed attestation key",
				ArgsUsage: "<content-id>",
				Flags: []cli.Flag{
					enclaveAddrFlag,
					&cli.BoolFlag{
						Name:  "verify-tdx",
						Usage: "verify the quote as a TDX DCAP quote and print the measurement registers",
					},
				},
				Action: func(cCtx *cli.Context) error {
					id, err := interfaces.NewContentIDFromHex(cCtx.Args().First())
					if err != nil {
						return fmt.Errorf("invalid content ID: %w", err)
					}

					c := &client.EnclaveClient{BaseURL: cCtx.String("enclave-addr")}
					quote, reportData, err := c.Attest(cCtx.Context, id)
					if err != nil {
						return err
					}

					if cCtx.Bool("verify-tdx") {
						measurements, err := attestation.VerifyDCAPQuote(reportData, quote)
						if err != nil {
							return err
						}
						for register := 0; register < len(measurements); register++ {
							fmt.Printf("%d: %s\n", register, measurements[register])
						}
						return nil
					}

					fmt.Println(base64.StdEncoding.EncodeToString(quote))
					return nil
				},
			},
			{
				Name:  "provision",
				Usage: "provision the sealing master secret through the admin API",
				Flags: []cli.Flag{
					enclaveAddrFlag,
					&cli.StringFlag{
						Name:     "admin-id",
						Required: true,
						Usage:    "operator identifier registered with the enclave",
					},
					&cli.StringFlag{
						Name:     "key-file",
						Required: true,
						Usage:    "PEM file with the operator's ECDSA private key",
					},
					&cli.StringFlag{
						Name:     "master-secret",
						Required: true,
						Usage:    "hex-encoded sealing master secret, at least 32 bytes",
					},
				},
				Action: func(cCtx *cli.Context) error {
					keyPEM, err := os.ReadFile(cCtx.String("key-file"))
					if err != nil {
						return fmt.Errorf("failed to read key file: %w", err)
					}

					key, err := httpserver.ParsePrivateKey(keyPEM)
					if err != nil {
						return err
					}

					masterSecret, err := hex.DecodeString(cCtx.String("master-secret"))
					if err != nil {
						return fmt.Errorf("invalid master secret: %w", err)
					}

					c := &client.EnclaveClient{BaseURL: cCtx.String("enclave-addr")}
					return c.ProvisionMasterSecret(cCtx.Context, cCtx.String("admin-id"), key, masterSecret)
				},
			},
			{
				Name:  "keygen",
				Usage: "generate an operator key pair and print both PEMs",
				Action: func(cCtx *cli.Context) error {
					privPEM, pubPEM, err := httpserver.GenerateAdminKeyPair()
					if err != nil {
						return err
					}
					fmt.Print(privPEM)
					fmt.Print(pubPEM)
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
