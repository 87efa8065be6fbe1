package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/celery8911/InnerLedger/internal/clients"
	"github.com/celery8911/InnerLedger/internal/metatx"
	"github.com/celery8911/InnerLedger/internal/services"
)

// signedFile is what record --save writes and verify reads. The wire request does not carry
// the nonce, so it is stored next to it.
type signedFile struct {
	ForwardRequest *metatx.WireRequest `json:"forwardRequest"`
	Nonce          string              `json:"nonce"`
	ChainID        int64               `json:"chainId"`
	Forwarder      string              `json:"forwarder"`
}

type recordReport struct {
	From        string `json:"from"`
	Nonce       string `json:"nonce"`
	ContentHash string `json:"contentHash"`
	TxHash      string `json:"txHash,omitempty"`
	Status      string `json:"status,omitempty"`
	BlockNumber uint64 `json:"blockNumber,omitempty"`
	NextNonce   string `json:"nextNonce,omitempty"`
	SavedTo     string `json:"savedTo,omitempty"`
}

func newRecordCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Sign a CreateRecord request and submit it through the relay",
		Example: `  INNERLEDGER_KEY=0x... innerledger record --emotion calm --content "walked by the sea"
  innerledger record --emotion joy --content "..." --key 0x... --wait`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			emotion := strings.TrimSpace(c.v.GetString("emotion"))
			content := c.v.GetString("content")
			if emotion == "" || content == "" {
				return fmt.Errorf("--emotion and --content are required")
			}
			keyHex := c.v.GetString("key")
			if keyHex == "" {
				return fmt.Errorf("no signing key: pass --key or set %s_KEY", envPrefix)
			}
			userSigner, err := metatx.PrivateKeySignerFromHex(keyHex)
			if err != nil {
				return err
			}
			domain, err := c.domain()
			if err != nil {
				return err
			}
			ledger, err := c.contract("ledger")
			if err != nil {
				return err
			}

			ctx, cancel := c.timeoutCtx(cmd.Context())
			defer cancel()
			chain, forwarder, closeFn, err := c.connect(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			if !c.v.GetBool("skip-domain-check") {
				onChain, err := forwarder.Domain(ctx)
				if err != nil {
					return fmt.Errorf("read forwarder domain (--skip-domain-check signs anyway): %w", err)
				}
				if err := metatx.CheckDomain(domain, onChain); err != nil {
					return fmt.Errorf("refusing to sign: %w", err)
				}
			}

			builder := metatx.NewBuilder(forwarder, domain.VerifyingContract, ledger,
				metatx.WithGas(c.v.GetUint64("gas")),
				metatx.WithValidity(c.v.GetDuration("validity")))
			contentHash := crypto.Keccak256Hash([]byte(content))
			req, err := builder.BuildCreateRecord(ctx, userSigner.Address(), emotion, contentHash)
			if err != nil {
				return err
			}
			signed, err := metatx.NewSigner(domain, userSigner).Sign(ctx, req)
			if err != nil {
				return err
			}

			report := recordReport{
				From:        userSigner.Address().Hex(),
				Nonce:       req.Nonce.String(),
				ContentHash: contentHash.Hex(),
			}
			if path := c.v.GetString("save"); path != "" {
				if err := saveSigned(path, signed, domain); err != nil {
					return err
				}
				report.SavedTo = path
			}
			if c.v.GetBool("dry-run") {
				return c.renderRecord(cmd, report)
			}

			idemKey := c.v.GetString("idempotency-key")
			if idemKey == "" {
				idemKey = uuid.NewString()
			}
			relay := clients.NewRelayClient(c.v.GetString("relay-url"))
			hash, err := relay.RelayWithKey(ctx, signed, idemKey)
			if err != nil {
				return err
			}
			report.TxHash = hash
			report.Status = "submitted"

			if c.v.GetBool("wait") {
				// waiting gets its own deadline, independent of --timeout
				watcher := services.NewTxWatcherService(chain, nil, nil, services.WatcherBackoff{
					InitialInterval: time.Second,
					MaxInterval:     5 * time.Second,
					MaxElapsedTime:  c.v.GetDuration("wait-timeout"),
				}, c.logger)
				defer watcher.Stop()
				receipt, err := watcher.WaitForReceipt(cmd.Context(), common.HexToHash(hash))
				if err != nil {
					return err
				}
				report.BlockNumber = receipt.BlockNumber.Uint64()
				if receipt.Status == types.ReceiptStatusSuccessful {
					report.Status = "confirmed"
					nonceCtx, cancelNonce := c.timeoutCtx(cmd.Context())
					if next, err := forwarder.Nonces(nonceCtx, userSigner.Address()); err == nil {
						report.NextNonce = next.String()
					}
					cancelNonce()
				} else {
					report.Status = "failed"
				}
			}

			if err := c.renderRecord(cmd, report); err != nil {
				return err
			}
			if report.Status == "failed" {
				return fmt.Errorf("transaction %s reverted", hash)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.String("emotion", "", "emotion label of the record")
	f.String("content", "", "record text; only its keccak256 hash goes on chain")
	f.String("key", "", "hex private key of the signing user")
	f.Uint64("gas", metatx.DefaultGas, "gas for the inner ledger call")
	f.Duration("validity", time.Hour, "how long the signed request stays valid")
	f.String("idempotency-key", "", "idempotency key (default: random uuid)")
	f.String("save", "", "write the signed request to this file")
	f.Bool("dry-run", false, "sign without submitting")
	f.Bool("skip-domain-check", false, "sign without comparing the domain with the forwarder's eip712Domain")
	f.Bool("wait", false, "wait for the receipt")
	f.Duration("wait-timeout", 2*time.Minute, "how long --wait polls for the receipt")
	return cmd
}

func (c *cli) renderRecord(cmd *cobra.Command, r recordReport) error {
	fields := []field{
		{"From", r.From},
		{"Nonce", r.Nonce},
		{"Content hash", r.ContentHash},
	}
	if r.TxHash != "" {
		fields = append(fields, field{"Tx hash", r.TxHash}, field{"Status", r.Status})
	}
	if r.BlockNumber > 0 {
		fields = append(fields, field{"Block", r.BlockNumber})
	}
	if r.NextNonce != "" {
		fields = append(fields, field{"Next nonce", r.NextNonce})
	}
	if r.SavedTo != "" {
		fields = append(fields, field{"Saved to", r.SavedTo})
	}
	return c.render(cmd.OutOrStdout(), "CreateRecord", r, fields)
}

func saveSigned(path string, signed *metatx.ForwardRequestData, domain metatx.Domain) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	return writeJSON(f, signedFile{
		ForwardRequest: signed.ToWire(),
		Nonce:          signed.Nonce.String(),
		ChainID:        domain.ChainID.Int64(),
		Forwarder:      domain.VerifyingContract.Hex(),
	})
}
