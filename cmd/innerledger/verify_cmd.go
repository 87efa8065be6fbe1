package main

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/celery8911/InnerLedger/internal/metatx"
)

type verifyReport struct {
	From         string `json:"from"`
	To           string `json:"to"`
	Nonce        string `json:"nonce,omitempty"`
	Signer       string `json:"recoveredSigner,omitempty"`
	OfflineValid *bool  `json:"offlineValid,omitempty"`
	OnChainValid *bool  `json:"onChainValid,omitempty"`
}

// loadRequest accepts a signedFile, a relay envelope or a bare wire request.
func loadRequest(path string) (*metatx.ForwardRequestData, gjson.Result, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, gjson.Result{}, fmt.Errorf("read %s: %w", path, err)
	}
	if !gjson.ValidBytes(raw) {
		return nil, gjson.Result{}, fmt.Errorf("%s is not valid JSON", path)
	}
	doc := gjson.ParseBytes(raw)
	body := doc
	if fr := doc.Get("forwardRequest"); fr.Exists() {
		body = fr
	}

	var wire metatx.WireRequest
	if err := json.Unmarshal([]byte(body.Raw), &wire); err != nil {
		return nil, doc, fmt.Errorf("decode forward request: %w", err)
	}
	req, err := wire.Parse()
	if err != nil {
		return nil, doc, err
	}
	return req, doc, nil
}

func newVerifyCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <file>",
		Short: "Check a signed forward request offline and against the forwarder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, doc, err := loadRequest(args[0])
			if err != nil {
				return err
			}
			domain, err := c.domain()
			if err != nil {
				return err
			}
			if fwd := doc.Get("forwarder").String(); fwd != "" && !strings.EqualFold(fwd, domain.VerifyingContract.Hex()) {
				c.logger.WithField("file_forwarder", fwd).Warn("request was signed for a different forwarder")
			}

			nonceStr := c.v.GetString("nonce")
			if nonceStr == "" {
				nonceStr = doc.Get("nonce").String()
			}

			report := verifyReport{From: req.From.Hex(), To: req.To.Hex()}
			valid := true

			if nonceStr != "" {
				nonce, ok := new(big.Int).SetString(nonceStr, 10)
				if !ok {
					return fmt.Errorf("invalid nonce %q", nonceStr)
				}
				req.Nonce = nonce
				report.Nonce = nonce.String()
				signer, err := metatx.RecoverSigner(domain, &req.ForwardRequest, req.Signature)
				offline := err == nil && signer == req.From
				if err == nil {
					report.Signer = signer.Hex()
				}
				report.OfflineValid = &offline
				valid = valid && offline
			}

			if !c.v.GetBool("offline") {
				ctx, cancel := c.timeoutCtx(cmd.Context())
				defer cancel()
				_, forwarder, closeFn, err := c.connect(ctx)
				if err != nil {
					return err
				}
				defer closeFn()
				onChain, err := forwarder.Verify(ctx, req)
				if err != nil {
					return err
				}
				report.OnChainValid = &onChain
				valid = valid && onChain
			} else if report.OfflineValid == nil {
				return fmt.Errorf("--offline needs the nonce: pass --nonce or use a file written by record --save")
			}

			fields := []field{{"From", report.From}, {"To", report.To}}
			if report.Nonce != "" {
				fields = append(fields, field{"Nonce", report.Nonce}, field{"Recovered signer", orDash(report.Signer)}, field{"Offline", *report.OfflineValid})
			}
			if report.OnChainValid != nil {
				fields = append(fields, field{"Forwarder verify()", *report.OnChainValid})
			}
			if err := c.render(cmd.OutOrStdout(), "Forward request", report, fields); err != nil {
				return err
			}
			if !valid {
				return fmt.Errorf("signature of %s does not verify", req.From.Hex())
			}
			return nil
		},
	}
	cmd.Flags().String("nonce", "", "nonce the request was signed with (default: from the file)")
	cmd.Flags().Bool("offline", false, "skip the forwarder verify() call")
	return cmd
}

func orDash(s string) string {
	if s == "" || s == (common.Address{}).Hex() {
		return "-"
	}
	return s
}
