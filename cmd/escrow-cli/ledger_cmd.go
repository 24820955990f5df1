package main

import (
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

func runLedgerCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, ledgerUsage())
		return 1
	}
	switch args[0] {
	case "balance":
		fs := newEscrowFlagSet("balance", stderr)
		var address string
		fs.StringVar(&address, "address", "", "Account address")
		if err := fs.Parse(args[1:]); err != nil {
			return 1
		}
		if strings.TrimSpace(address) == "" {
			return printEscrowError(stderr, "--address is required")
		}
		return runEscrowCall("ledger_getBalance", map[string]interface{}{"address": strings.TrimSpace(address)}, false, stdout, stderr)
	case "credit":
		fs := newEscrowFlagSet("credit", stderr)
		var address, amount string
		fs.StringVar(&address, "address", "", "Account to credit")
		fs.StringVar(&amount, "amount", "", "Amount in base units")
		if err := fs.Parse(args[1:]); err != nil {
			return 1
		}
		if strings.TrimSpace(address) == "" {
			return printEscrowError(stderr, "--address is required")
		}
		normalized, err := normalizeEscrowAmount("--amount", amount)
		if err != nil {
			return printEscrowError(stderr, err.Error())
		}
		params := map[string]interface{}{"address": strings.TrimSpace(address), "amount": normalized}
		return runEscrowCall("ledger_credit", params, true, stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, ledgerUsage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown ledger subcommand: %s\n", args[0])
		fmt.Fprintln(stderr, ledgerUsage())
		return 1
	}
}

func runLandCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] != "get" {
		fmt.Fprintln(stderr, "Usage:\n  escrow-cli land get --id <landId>")
		return 1
	}
	fs := newEscrowFlagSet("get", stderr)
	var landID uint64
	fs.Uint64Var(&landID, "id", 0, "Land parcel identifier")
	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}
	if landID == 0 {
		return printEscrowError(stderr, "--id is required")
	}
	return runEscrowCall("land_get", map[string]interface{}{"landId": landID}, false, stdout, stderr)
}

func ledgerUsage() string {
	return strings.TrimSpace(`Usage:
  escrow-cli ledger <command> [flags]

Commands:
  balance  Show the spendable balance of an address
  credit   Mint funds into an address (owner only)
`)
}

func encodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
