package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/celery8911/InnerLedger/internal/clients"
	"github.com/celery8911/InnerLedger/internal/metatx"
)

func newNonceCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "nonce <address>",
		Short: "Show the forwarder nonce of an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !common.IsHexAddress(args[0]) {
				return fmt.Errorf("invalid address %q", args[0])
			}
			owner := common.HexToAddress(args[0])

			ctx, cancel := c.timeoutCtx(cmd.Context())
			defer cancel()
			_, forwarder, closeFn, err := c.connect(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			nonce, err := forwarder.Nonces(ctx, owner)
			if err != nil {
				return err
			}
			out := map[string]string{"address": strings.ToLower(owner.Hex()), "nonce": nonce.String()}
			return c.render(cmd.OutOrStdout(), "Forwarder nonce", out, []field{
				{"Address", owner.Hex()},
				{"Forwarder", forwarder.Address().Hex()},
				{"Nonce", nonce.String()},
			})
		},
	}
}

type domainReport struct {
	Name              string   `json:"name"`
	Version           string   `json:"version"`
	ChainID           string   `json:"chainId"`
	VerifyingContract string   `json:"verifyingContract"`
	MatchesOnChain    bool     `json:"matchesOnChain"`
	MismatchedFields  []string `json:"mismatchedFields,omitempty"`
}

func newDomainCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "domain",
		Short: "Compare the local signing domain with the forwarder's eip712Domain()",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			expected, err := c.domain()
			if err != nil {
				return err
			}
			ctx, cancel := c.timeoutCtx(cmd.Context())
			defer cancel()
			_, forwarder, closeFn, err := c.connect(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			onChain, err := forwarder.Domain(ctx)
			if err != nil {
				return err
			}
			report := domainReport{
				Name:              onChain.Name,
				Version:           onChain.Version,
				ChainID:           onChain.ChainID.String(),
				VerifyingContract: onChain.VerifyingContract.Hex(),
				MatchesOnChain:    true,
			}
			if mismatch, ok := metatx.CheckDomain(expected, onChain).(*metatx.DomainMismatchError); ok {
				report.MatchesOnChain = false
				report.MismatchedFields = mismatch.Fields
			}

			if err := c.render(cmd.OutOrStdout(), "Forwarder domain", report, []field{
				{"Name", report.Name},
				{"Version", report.Version},
				{"Chain ID", report.ChainID},
				{"Verifying contract", report.VerifyingContract},
				{"Matches local", report.MatchesOnChain},
			}); err != nil {
				return err
			}
			if !report.MatchesOnChain {
				return fmt.Errorf("domain mismatch in %s: signatures made with the local domain will be rejected", strings.Join(report.MismatchedFields, ", "))
			}
			return nil
		},
	}
}

type journeyReport struct {
	Address string                 `json:"address"`
	Badges  uint64                 `json:"badges"`
	Records []clients.LedgerRecord `json:"records"`
}

func newJourneyCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "journey <address>",
		Short: "List the records an address has written to the ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !common.IsHexAddress(args[0]) {
				return fmt.Errorf("invalid address %q", args[0])
			}
			user := common.HexToAddress(args[0])
			ledgerAddr, err := c.contract("ledger")
			if err != nil {
				return err
			}
			sbtAddr, _ := c.contract("sbt")

			ctx, cancel := c.timeoutCtx(cmd.Context())
			defer cancel()
			chain, _, closeFn, err := c.connect(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			ledger := clients.NewLedgerClient(chain, ledgerAddr, sbtAddr)
			records, err := ledger.Journey(ctx, user)
			if err != nil {
				return err
			}
			report := journeyReport{Address: strings.ToLower(user.Hex()), Records: records}
			if sbtAddr != (common.Address{}) {
				if report.Badges, err = ledger.BadgeBalance(ctx, user); err != nil {
					c.logger.WithError(err).Warn("badge balance unavailable")
				}
			}

			if c.jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleRounded)
			t.SetTitle("Journey of " + user.Hex())
			t.AppendHeader(table.Row{"#", "Emotion", "Content hash", "Written"})
			for i, r := range records {
				t.AppendRow(table.Row{i + 1, r.Emotion, r.ContentHash.Hex(), time.Unix(int64(r.Timestamp), 0).UTC().Format(time.RFC3339)})
			}
			t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d records", len(records)), fmt.Sprintf("%d badges", report.Badges)})
			t.Render()
			return nil
		},
	}
}
