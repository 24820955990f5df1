package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

var escrowRPCCall = callEscrowRPC

func runEscrowCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, escrowUsage())
		return 1
	}
	switch args[0] {
	case "create":
		return runEscrowCreate(args[1:], stdout, stderr)
	case "get":
		return runEscrowIDOnly("get", "escrow_get", false, args[1:], stdout, stderr)
	case "confirm":
		return runEscrowIDOnly("confirm", "escrow_confirm", true, args[1:], stdout, stderr)
	case "complete":
		return runEscrowIDOnly("complete", "escrow_complete", true, args[1:], stdout, stderr)
	case "expire":
		return runEscrowIDOnly("expire", "escrow_expire", true, args[1:], stdout, stderr)
	case "cancel":
		return runEscrowReasoned("cancel", "escrow_cancel", args[1:], stdout, stderr)
	case "dispute":
		return runEscrowReasoned("dispute", "escrow_raiseDispute", args[1:], stdout, stderr)
	case "resolve":
		return runEscrowResolve(args[1:], stdout, stderr)
	case "partial-refund":
		return runEscrowPartialRefund(args[1:], stdout, stderr)
	case "list-user":
		return runEscrowListUser(args[1:], stdout, stderr)
	case "list-land":
		return runEscrowListLand(args[1:], stdout, stderr)
	case "verify":
		return runEscrowVerify(args[1:], stdout, stderr)
	case "events":
		return runEscrowEvents(args[1:], stdout, stderr)
	case "set-fee":
		return runEscrowSetFee(args[1:], stdout, stderr)
	case "set-collector":
		return runEscrowSetAddress("set-collector", "escrow_updateFeeCollector", args[1:], stdout, stderr)
	case "set-arbiter":
		return runEscrowSetAddress("set-arbiter", "escrow_updateArbiter", args[1:], stdout, stderr)
	case "params":
		return runEscrowCall("escrow_getParams", nil, false, stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, escrowUsage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown escrow subcommand: %s\n", args[0])
		fmt.Fprintln(stderr, escrowUsage())
		return 1
	}
}

func newEscrowFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func runEscrowCall(method string, params interface{}, requireAuth bool, stdout, stderr io.Writer) int {
	result, rpcErr, err := escrowRPCCall(method, params, requireAuth)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}

func runEscrowCreate(args []string, stdout, stderr io.Writer) int {
	fs := newEscrowFlagSet("create", stderr)
	var (
		landID    uint64
		days      int64
		deposit   string
		contact   string
		agreement string
	)
	fs.Uint64Var(&landID, "land", 0, "Land parcel identifier")
	fs.Int64Var(&days, "days", 0, "Escrow duration in days (1-90)")
	fs.StringVar(&deposit, "deposit", "", "Deposit amount in base units (supports 5e18 shorthand)")
	fs.StringVar(&contact, "contact", "", "Buyer contact information")
	fs.StringVar(&agreement, "agreement-hash", "", "Hex digest of the signed purchase agreement")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if landID == 0 {
		return printEscrowError(stderr, "--land is required")
	}
	if days <= 0 {
		return printEscrowError(stderr, "--days must be positive")
	}
	amount, err := normalizeEscrowAmount("--deposit", deposit)
	if err != nil {
		return printEscrowError(stderr, err.Error())
	}
	params := map[string]interface{}{
		"landId":       landID,
		"durationDays": days,
		"deposit":      amount,
	}
	if v := strings.TrimSpace(contact); v != "" {
		params["contactInfo"] = v
	}
	if v := strings.TrimSpace(agreement); v != "" {
		params["agreementHash"] = v
	}
	return runEscrowCall("escrow_create", params, true, stdout, stderr)
}

func runEscrowIDOnly(name, method string, requireAuth bool, args []string, stdout, stderr io.Writer) int {
	fs := newEscrowFlagSet(name, stderr)
	var id uint64
	fs.Uint64Var(&id, "id", 0, "Escrow identifier")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if id == 0 {
		return printEscrowError(stderr, "--id is required")
	}
	return runEscrowCall(method, map[string]interface{}{"id": id}, requireAuth, stdout, stderr)
}

func runEscrowReasoned(name, method string, args []string, stdout, stderr io.Writer) int {
	fs := newEscrowFlagSet(name, stderr)
	var (
		id     uint64
		reason string
	)
	fs.Uint64Var(&id, "id", 0, "Escrow identifier")
	fs.StringVar(&reason, "reason", "", "Free-form reason recorded on the escrow")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if id == 0 {
		return printEscrowError(stderr, "--id is required")
	}
	params := map[string]interface{}{"id": id}
	if v := strings.TrimSpace(reason); v != "" {
		params["reason"] = v
	}
	return runEscrowCall(method, params, true, stdout, stderr)
}

func runEscrowResolve(args []string, stdout, stderr io.Writer) int {
	fs := newEscrowFlagSet("resolve", stderr)
	var (
		id      uint64
		outcome string
		notes   string
	)
	fs.Uint64Var(&id, "id", 0, "Escrow identifier")
	fs.StringVar(&outcome, "outcome", "", "Dispute outcome: refund or settle")
	fs.StringVar(&notes, "notes", "", "Resolution notes")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if id == 0 {
		return printEscrowError(stderr, "--id is required")
	}
	var refund bool
	switch strings.ToLower(strings.TrimSpace(outcome)) {
	case "refund", "buyer":
		refund = true
	case "settle", "seller":
		refund = false
	case "":
		return printEscrowError(stderr, "--outcome is required")
	default:
		return printEscrowError(stderr, fmt.Sprintf("unknown --outcome %q (expected refund or settle)", outcome))
	}
	params := map[string]interface{}{"id": id, "refundToBuyer": refund}
	if v := strings.TrimSpace(notes); v != "" {
		params["notes"] = v
	}
	return runEscrowCall("escrow_resolveDispute", params, true, stdout, stderr)
}

func runEscrowPartialRefund(args []string, stdout, stderr io.Writer) int {
	fs := newEscrowFlagSet("partial-refund", stderr)
	var (
		id     uint64
		amount string
		notes  string
	)
	fs.Uint64Var(&id, "id", 0, "Escrow identifier")
	fs.StringVar(&amount, "amount", "", "Amount to return to the buyer")
	fs.StringVar(&notes, "notes", "", "Notes recorded with the refund event")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if id == 0 {
		return printEscrowError(stderr, "--id is required")
	}
	normalized, err := normalizeEscrowAmount("--amount", amount)
	if err != nil {
		return printEscrowError(stderr, err.Error())
	}
	params := map[string]interface{}{"id": id, "amount": normalized}
	if v := strings.TrimSpace(notes); v != "" {
		params["notes"] = v
	}
	return runEscrowCall("escrow_partialRefund", params, true, stdout, stderr)
}

func runEscrowListUser(args []string, stdout, stderr io.Writer) int {
	fs := newEscrowFlagSet("list-user", stderr)
	var (
		address string
		state   string
		open    bool
	)
	fs.StringVar(&address, "address", "", "Buyer or seller address")
	fs.StringVar(&state, "state", "", "Only escrows in this state (created, confirmed, disputed, ...)")
	fs.BoolVar(&open, "open", false, "Only escrows that can still change state")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(address) == "" {
		return printEscrowError(stderr, "--address is required")
	}
	params := map[string]interface{}{"address": strings.TrimSpace(address)}
	if strings.TrimSpace(state) != "" {
		params["state"] = strings.TrimSpace(state)
	}
	if open {
		params["open"] = true
	}
	return runEscrowCall("escrow_listByUser", params, false, stdout, stderr)
}

func runEscrowListLand(args []string, stdout, stderr io.Writer) int {
	fs := newEscrowFlagSet("list-land", stderr)
	var landID uint64
	fs.Uint64Var(&landID, "land", 0, "Land parcel identifier")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if landID == 0 {
		return printEscrowError(stderr, "--land is required")
	}
	return runEscrowCall("escrow_listByLand", map[string]interface{}{"landId": landID}, false, stdout, stderr)
}

func runEscrowVerify(args []string, stdout, stderr io.Writer) int {
	fs := newEscrowFlagSet("verify", stderr)
	var (
		id       uint64
		document string
		file     string
	)
	fs.Uint64Var(&id, "id", 0, "Escrow identifier")
	fs.StringVar(&document, "document", "", "Agreement text to hash")
	fs.StringVar(&file, "file", "", "Path to the agreement document")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if id == 0 {
		return printEscrowError(stderr, "--id is required")
	}
	if (document == "") == (file == "") {
		return printEscrowError(stderr, "exactly one of --document or --file is required")
	}
	params := map[string]interface{}{"id": id}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return printEscrowError(stderr, fmt.Sprintf("read %s: %v", file, err))
		}
		params["documentBase64"] = encodeBase64(data)
	} else {
		params["document"] = document
	}
	return runEscrowCall("escrow_verifyAgreement", params, false, stdout, stderr)
}

func runEscrowEvents(args []string, stdout, stderr io.Writer) int {
	fs := newEscrowFlagSet("events", stderr)
	var (
		id    uint64
		limit int
	)
	fs.Uint64Var(&id, "id", 0, "Escrow identifier")
	fs.IntVar(&limit, "limit", 0, "Maximum number of events to return")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if id == 0 {
		return printEscrowError(stderr, "--id is required")
	}
	if limit < 0 {
		return printEscrowError(stderr, "--limit must not be negative")
	}
	params := map[string]interface{}{"id": id}
	if limit > 0 {
		params["limit"] = limit
	}
	return runEscrowCall("escrow_listEvents", params, false, stdout, stderr)
}

func runEscrowSetFee(args []string, stdout, stderr io.Writer) int {
	fs := newEscrowFlagSet("set-fee", stderr)
	fee := fs.Int("bps", -1, "Platform fee in basis points")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *fee < 0 {
		return printEscrowError(stderr, "--bps is required")
	}
	return runEscrowCall("escrow_updatePlatformFee", map[string]interface{}{"feeBps": *fee}, true, stdout, stderr)
}

func runEscrowSetAddress(name, method string, args []string, stdout, stderr io.Writer) int {
	fs := newEscrowFlagSet(name, stderr)
	var address string
	fs.StringVar(&address, "address", "", "New address (0x-prefixed hex)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(address) == "" {
		return printEscrowError(stderr, "--address is required")
	}
	return runEscrowCall(method, map[string]interface{}{"address": strings.TrimSpace(address)}, true, stdout, stderr)
}

func printEscrowError(w io.Writer, msg string) int {
	fmt.Fprintf(w, "Error: %s\n", msg)
	return 1
}

func handleRPCError(w io.Writer, err *rpcError) int {
	if err == nil {
		return 0
	}
	fmt.Fprintf(w, "RPC error %d: %s\n", err.Code, err.Message)
	return 1
}

func handleRPCCallError(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintf(w, "RPC call failed: %v\n", err)
	return 1
}

func writeRPCResult(w io.Writer, result json.RawMessage) {
	if len(result) == 0 {
		fmt.Fprintln(w, "null")
		return
	}
	if _, err := w.Write(result); err == nil {
		if result[len(result)-1] != '\n' {
			fmt.Fprintln(w)
		}
	}
}

func escrowUsage() string {
	return strings.TrimSpace(`Usage:
  escrow-cli escrow <command> [flags]

Commands:
  create          Lock a deposit against a land parcel
  get             Fetch escrow details by id
  confirm         Seller acknowledges the escrow
  complete        Buyer releases the deposit to the seller
  cancel          Cancel a pending or confirmed escrow
  expire          Refund an escrow past its deadline
  dispute         Raise a dispute on a confirmed escrow
  resolve         Arbiter resolves a dispute (--outcome refund|settle)
  partial-refund  Seller returns part of the deposit
  list-user       List escrows for a buyer or seller
  list-land       List escrows for a land parcel
  verify          Check a document against the agreement hash
  events          Show indexed lifecycle events
  set-fee         Update the platform fee (owner)
  set-collector   Update the fee collector (owner)
  set-arbiter     Update the dispute arbiter (owner)
  params          Show the current platform parameters
`)
}

// normalizeEscrowAmount converts a base-unit amount, optionally written in
// scientific shorthand such as 5e18, into a plain decimal string.
func normalizeEscrowAmount(flagName, value string) (string, error) {
	trimmed := strings.ReplaceAll(strings.TrimSpace(value), "_", "")
	if trimmed == "" {
		return "", fmt.Errorf("%s is required", flagName)
	}
	var exponent int
	base := trimmed
	if idx := strings.IndexAny(trimmed, "eE"); idx != -1 {
		base = trimmed[:idx]
		expPart := strings.TrimSpace(trimmed[idx+1:])
		if expPart == "" {
			return "", fmt.Errorf("invalid scientific notation in %s", flagName)
		}
		expValue, err := strconv.ParseInt(expPart, 10, 32)
		if err != nil || expValue < 0 {
			return "", fmt.Errorf("invalid scientific notation in %s", flagName)
		}
		exponent = int(expValue)
	}
	base = strings.TrimSpace(strings.TrimPrefix(base, "+"))
	if strings.HasPrefix(base, "-") {
		return "", fmt.Errorf("%s must be positive", flagName)
	}
	parts := strings.Split(base, ".")
	if len(parts) > 2 {
		return "", fmt.Errorf("invalid amount format")
	}
	integerPart := parts[0]
	fractionalPart := ""
	if len(parts) == 2 {
		fractionalPart = strings.TrimRight(parts[1], "0")
	}
	digits := integerPart + fractionalPart
	if digits == "" || !isDigits(digits) {
		return "", fmt.Errorf("invalid amount format")
	}
	if len(fractionalPart) > exponent {
		return "", fmt.Errorf("%s must be a whole number of base units", flagName)
	}
	digits = strings.TrimLeft(digits+strings.Repeat("0", exponent-len(fractionalPart)), "0")
	if digits == "" {
		return "", fmt.Errorf("%s must be positive", flagName)
	}
	return digits, nil
}

func isDigits(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
