package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"yieldrouter/config"
	"yieldrouter/crypto"
	"yieldrouter/gateway/auth"
	gatewayconfig "yieldrouter/gateway/config"
)

const (
	defaultConfig  = "./config.toml"
	defaultGateway = "http://127.0.0.1:8080"
	gatewayEnv     = "YIELD_GATEWAY_URL"
	tokenEnv       = "YIELD_TOKEN"
	defaultIssuer  = "yieldctl"
	defaultScope   = "aggregator:write"
)

var errUsage = errors.New("usage")

type command struct {
	name    string
	summary string
	run     func(cli *cli, args []string) error
}

var commands = []command{
	{"init", "Write a node configuration with the aggregator owner and custody", runInit},
	{"token", "Mint a gateway bearer token for an address", runToken},
	{"register", "Register a protocol (owner)", runRegister},
	{"stats", "Push apy and tvl for a protocol (owner)", runStats},
	{"activate", "Activate or deactivate a protocol (owner)", runActivate},
	{"sweep", "Move accrued fees of a protocol to the fee collector (owner)", runSweep},
	{"set-params", "Change min deposit, fee, slippage or owner (owner)", runSetParams},
	{"pause", "Pause or resume a module (owner)", runPause},
	{"deposit", "Deposit into the best active protocol", runDeposit},
	{"withdraw", "Withdraw principal from a protocol", runWithdraw},
	{"claim", "Claim accrued rewards from a protocol", runClaim},
	{"inspect", "Show params, protocols, a protocol, the best protocol or a position", runInspect},
}

// cli carries process-level dependencies so commands can be exercised in
// tests without touching the real environment.
type cli struct {
	out    io.Writer
	errOut io.Writer
	getenv func(string) string
	now    func() time.Time
	http   *http.Client
}

func main() {
	c := &cli{out: os.Stdout, errOut: os.Stderr, getenv: os.Getenv, now: time.Now}
	if err := c.run(os.Args[1:]); err != nil {
		if !errors.Is(err, errUsage) && !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func (c *cli) run(args []string) error {
	if len(args) < 1 {
		c.usage()
		return errUsage
	}
	for _, cmd := range commands {
		if cmd.name == args[0] {
			return cmd.run(c, args[1:])
		}
	}
	c.usage()
	return errUsage
}

func (c *cli) usage() {
	fmt.Fprintln(c.errOut, "yieldctl <command> [flags]")
	fmt.Fprintln(c.errOut)
	fmt.Fprintln(c.errOut, "Commands:")
	for _, cmd := range commands {
		fmt.Fprintf(c.errOut, "  %-11s %s\n", cmd.name, cmd.summary)
	}
}

// clientFlags are shared by every command that talks to the gateway.
type clientFlags struct {
	gateway string
	token   string
	secret  string
	as      string
	key     string
}

func (c *cli) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.errOut)
	return fs
}

func (c *cli) bindClient(fs *flag.FlagSet) *clientFlags {
	cf := &clientFlags{}
	fs.StringVar(&cf.gateway, "gateway", "", "gateway base URL (default $"+gatewayEnv+" or "+defaultGateway+")")
	fs.StringVar(&cf.token, "token", "", "bearer token (default $"+tokenEnv+")")
	fs.StringVar(&cf.secret, "secret", "", "HMAC secret used to mint a token for -as (default $"+gatewayconfig.HMACSecretEnv+")")
	fs.StringVar(&cf.as, "as", "", "bech32 address to act as when minting a token")
	fs.StringVar(&cf.key, "idempotency-key", "", "Idempotency-Key for write requests (random when empty)")
	return cf
}

func (c *cli) client(cf *clientFlags) (*gatewayClient, error) {
	base := firstNonEmpty(cf.gateway, c.getenv(gatewayEnv), defaultGateway)
	token := firstNonEmpty(cf.token, c.getenv(tokenEnv))
	if token == "" && strings.TrimSpace(cf.as) != "" {
		secret := firstNonEmpty(cf.secret, c.getenv(gatewayconfig.HMACSecretEnv))
		if secret == "" {
			return nil, fmt.Errorf("-as requires -secret or $%s", gatewayconfig.HMACSecretEnv)
		}
		addr, err := crypto.DecodeAddress(cf.as)
		if err != nil {
			return nil, fmt.Errorf("invalid -as address: %w", err)
		}
		token, err = auth.IssueToken(secret, auth.TokenRequest{
			Subject: addr.String(),
			Scopes:  []string{defaultScope},
			Issuer:  defaultIssuer,
			TTL:     5 * time.Minute,
		}, c.now())
		if err != nil {
			return nil, err
		}
	}
	return newGatewayClient(base, token, c.http), nil
}

func (c *cli) print(raw json.RawMessage) error {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		_, err = c.out.Write(raw)
		return err
	}
	pretty.WriteByte('\n')
	_, err := c.out.Write(pretty.Bytes())
	return err
}

func runInit(c *cli, args []string) error {
	fs := c.flagSet("init")
	path := fs.String("config", defaultConfig, "path of the configuration file to write")
	owner := fs.String("owner", "", "bech32 owner address")
	custody := fs.String("custody", "", "bech32 custody address holding deposited principal")
	feeCollector := fs.String("fee-collector", "", "bech32 fee collector (defaults to owner)")
	rewardPool := fs.String("reward-pool", "", "bech32 reward pool paying claims (bookkeeping only when empty)")
	dataDir := fs.String("data-dir", "", "state directory")
	force := fs.Bool("force", false, "overwrite an existing configuration")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*force {
		if _, err := os.Stat(*path); err == nil {
			return fmt.Errorf("config file %s already exists (use -force to overwrite)", *path)
		} else if !os.IsNotExist(err) {
			return err
		}
	}
	cfg := config.Default()
	cfg.Aggregator.Owner = strings.TrimSpace(*owner)
	cfg.Aggregator.CustodyAddress = strings.TrimSpace(*custody)
	cfg.Aggregator.FeeCollector = strings.TrimSpace(*feeCollector)
	cfg.Aggregator.RewardPool = strings.TrimSpace(*rewardPool)
	if strings.TrimSpace(*dataDir) != "" {
		cfg.DataDir = strings.TrimSpace(*dataDir)
	}
	cfg.GenesisTime = c.now().Unix()
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if err := config.Save(*path, cfg); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Wrote %s\n", *path)
	return nil
}

func runToken(c *cli, args []string) error {
	fs := c.flagSet("token")
	subject := fs.String("subject", "", "bech32 address placed in the sub claim")
	secret := fs.String("secret", "", "HMAC secret (default $"+gatewayconfig.HMACSecretEnv+")")
	scopes := fs.String("scopes", defaultScope, "space or comma separated scopes")
	issuer := fs.String("issuer", defaultIssuer, "iss claim")
	audience := fs.String("audience", "", "aud claim")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	addr, err := crypto.DecodeAddress(*subject)
	if err != nil {
		return fmt.Errorf("invalid -subject: %w", err)
	}
	token, err := auth.IssueToken(firstNonEmpty(*secret, c.getenv(gatewayconfig.HMACSecretEnv)), auth.TokenRequest{
		Subject:  addr.String(),
		Scopes:   strings.FieldsFunc(*scopes, func(r rune) bool { return r == ',' || r == ' ' }),
		Issuer:   *issuer,
		Audience: *audience,
		TTL:      *ttl,
	}, c.now())
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, token)
	return nil
}

func runRegister(c *cli, args []string) error {
	fs := c.flagSet("register")
	cf := c.bindClient(fs)
	address := fs.String("address", "", "protocol address")
	protocolType := fs.String("type", "", "protocol type: lending, staking or yield-farming")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return c.post(cf, "/v1/protocols", map[string]string{"address": *address, "type": *protocolType})
}

func runStats(c *cli, args []string) error {
	fs := c.flagSet("stats")
	cf := c.bindClient(fs)
	id := fs.Uint64("id", 0, "protocol id")
	apy := fs.Uint64("apy", 0, "apy in basis points")
	tvl := fs.String("tvl", "0", "total value locked")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return c.post(cf, "/v1/protocols/"+strconv.FormatUint(*id, 10)+"/stats", map[string]interface{}{"apy": *apy, "tvl": *tvl})
}

func runActivate(c *cli, args []string) error {
	fs := c.flagSet("activate")
	cf := c.bindClient(fs)
	id := fs.Uint64("id", 0, "protocol id")
	active := fs.Bool("active", true, "false deactivates the protocol")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return c.post(cf, "/v1/protocols/"+strconv.FormatUint(*id, 10)+"/status", map[string]bool{"active": *active})
}

func runSweep(c *cli, args []string) error {
	fs := c.flagSet("sweep")
	cf := c.bindClient(fs)
	id := fs.Uint64("id", 0, "protocol id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return c.post(cf, "/v1/protocols/"+strconv.FormatUint(*id, 10)+"/sweep", nil)
}

func runSetParams(c *cli, args []string) error {
	fs := c.flagSet("set-params")
	cf := c.bindClient(fs)
	minDeposit := fs.String("min-deposit", "", "minimum deposit amount")
	fee := fs.Int64("fee-bps", -1, "platform fee in basis points")
	slippage := fs.Int64("max-slippage-bps", -1, "max slippage in basis points")
	owner := fs.String("owner", "", "transfer ownership to this address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	body := map[string]interface{}{}
	if strings.TrimSpace(*minDeposit) != "" {
		body["minDeposit"] = strings.TrimSpace(*minDeposit)
	}
	if *fee >= 0 {
		body["platformFeeBps"] = *fee
	}
	if *slippage >= 0 {
		body["maxSlippageBps"] = *slippage
	}
	if strings.TrimSpace(*owner) != "" {
		body["owner"] = strings.TrimSpace(*owner)
	}
	if len(body) == 0 {
		return errors.New("set-params: nothing to change")
	}
	return c.post(cf, "/v1/params", body)
}

func runPause(c *cli, args []string) error {
	fs := c.flagSet("pause")
	cf := c.bindClient(fs)
	module := fs.String("module", "aggregator", "module to toggle")
	resume := fs.Bool("resume", false, "resume instead of pausing")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return c.post(cf, "/v1/pauses", map[string]interface{}{"module": *module, "paused": !*resume})
}

func runDeposit(c *cli, args []string) error {
	fs := c.flagSet("deposit")
	cf := c.bindClient(fs)
	amount := fs.String("amount", "", "amount to deposit")
	quoteID := fs.Uint64("quote-id", 0, "protocol id seen when quoting")
	quoteAPY := fs.Uint64("quote-apy", 0, "apy seen when quoting; 0 skips the slippage check")
	if err := fs.Parse(args); err != nil {
		return err
	}
	body := map[string]interface{}{"amount": *amount}
	if *quoteAPY > 0 {
		body["quote"] = map[string]uint64{"protocolId": *quoteID, "apy": *quoteAPY}
	}
	return c.post(cf, "/v1/deposits", body)
}

func runWithdraw(c *cli, args []string) error {
	fs := c.flagSet("withdraw")
	cf := c.bindClient(fs)
	id := fs.Uint64("id", 0, "protocol id")
	amount := fs.String("amount", "", "principal to withdraw")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return c.post(cf, "/v1/withdrawals", map[string]interface{}{"protocolId": *id, "amount": *amount})
}

func runClaim(c *cli, args []string) error {
	fs := c.flagSet("claim")
	cf := c.bindClient(fs)
	id := fs.Uint64("id", 0, "protocol id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return c.post(cf, "/v1/claims", map[string]uint64{"protocolId": *id})
}

func runInspect(c *cli, args []string) error {
	fs := c.flagSet("inspect")
	cf := c.bindClient(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) == 0 {
		return errors.New("inspect: expected params, protocols, protocol <id>, best or position <user> <id>")
	}
	var path string
	switch rest[0] {
	case "params":
		path = "/v1/params"
	case "protocols":
		path = "/v1/protocols"
	case "best":
		path = "/v1/protocols/best"
	case "protocol":
		if len(rest) != 2 {
			return errors.New("inspect protocol <id>")
		}
		path = "/v1/protocols/" + rest[1]
	case "position":
		if len(rest) != 3 {
			return errors.New("inspect position <user> <id>")
		}
		path = "/v1/positions/" + rest[1] + "/" + rest[2]
	default:
		return fmt.Errorf("inspect: unknown target %q", rest[0])
	}
	client, err := c.client(cf)
	if err != nil {
		return err
	}
	raw, err := client.get(path)
	if err != nil {
		return err
	}
	return c.print(raw)
}

func (c *cli) post(cf *clientFlags, path string, body interface{}) error {
	client, err := c.client(cf)
	if err != nil {
		return err
	}
	raw, err := client.post(path, body, cf.key)
	if err != nil {
		return err
	}
	return c.print(raw)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
