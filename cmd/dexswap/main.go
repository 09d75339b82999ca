package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/RaghavSood/dexswap/chains"
	"github.com/RaghavSood/dexswap/codec"
	"github.com/RaghavSood/dexswap/config"
	"github.com/RaghavSood/dexswap/db"
	"github.com/RaghavSood/dexswap/evm"
	"github.com/RaghavSood/dexswap/routing"
	"github.com/RaghavSood/dexswap/rpclog"
	"github.com/RaghavSood/dexswap/strategy"
	"github.com/RaghavSood/dexswap/swaps"
	"github.com/RaghavSood/dexswap/tokens"
	"github.com/RaghavSood/dexswap/trader"
)

func main() {
	configPath := flag.String("config", "config.json", "path to config file (.json or .yaml)")
	chainName := flag.String("chain", "", "chain to trade on (default from config)")
	inputKind := flag.String("input-kind", "native", "native, fiat or token")
	inputToken := flag.String("in", "native", "input token address, or native")
	amount := flag.String("amount", "", "input amount; 0 sells the full token balance")
	outputToken := flag.String("out", "", "output token address, or native")
	quoteOnly := flag.Bool("quote", false, "print every venue's quote and exit")
	jsonLogs := flag.Bool("json-logs", false, "log as JSON")
	logRPC := flag.Bool("log-rpc", false, "record JSON-RPC traffic in the journal")
	flag.Parse()

	log := logrus.StandardLogger()
	if *jsonLogs {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}
	log.SetLevel(cfg.Level())
	if *chainName == "" {
		*chainName = cfg.Chain
	}
	chain, err := chains.Lookup(*chainName)
	if err != nil {
		log.WithError(err).Fatal("unknown chain")
	}
	clog := log.WithField("chain", chain.Name)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var store *db.Store
	if cfg.DatabasePath != "" {
		store, err = db.Open(cfg.DatabasePath)
		if err != nil {
			clog.WithError(err).Fatal("failed to open database")
		}
		defer store.Close()
	}

	url, err := cfg.Endpoint(chain.Name)
	if err != nil {
		clog.WithError(err).Fatal("no rpc endpoint")
	}
	var transport *rpclog.Transport
	var eth *ethclient.Client
	if *logRPC && store != nil {
		httpClient := rpclog.NewHTTPClient(chain.Name, store, clog)
		transport = httpClient.Transport.(*rpclog.Transport)
		c, err := rpc.DialOptions(ctx, url, rpc.WithHTTPClient(httpClient))
		if err != nil {
			clog.WithError(err).Fatal("failed to connect to rpc")
		}
		eth = ethclient.NewClient(c)
	} else {
		eth, err = ethclient.DialContext(ctx, url)
		if err != nil {
			clog.WithError(err).Fatal("failed to connect to rpc")
		}
	}
	defer eth.Close()
	if transport != nil {
		defer transport.Flush()
	}

	client := evm.NewClient(eth, evm.WithTimeout(cfg.CallTimeout.Duration), evm.WithLogger(clog))

	acct, err := cfg.Account()
	if err != nil {
		clog.WithError(err).Fatal("failed to load account")
	}
	sender := evm.NewSender(client, acct.Key, chain.ID(), clog)
	sender.SetConfirmTimeout(cfg.ConfirmTimeout.Duration)
	clog.WithField("account", acct.Address.Hex()).Info("loaded account")

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
	}

	tokenClient := tokens.NewClient(client, chains.Addr(chain.Contracts.Multicall3), chain.NativeSymbol)
	strategies, err := buildStrategies(cfg, chain, client, sender, tokenClient, rdb, clog)
	if err != nil {
		clog.WithError(err).Fatal("failed to build strategies")
	}

	var topts []trader.Option
	topts = append(topts, trader.WithLogger(clog))
	if store != nil {
		topts = append(topts, trader.WithJournal(store))
	}
	tr := trader.New(chain, client, sender, tokenClient, strategies, topts...)

	intent, err := parseIntent(chain.Name, *inputKind, *inputToken, *amount, *outputToken)
	if err != nil {
		clog.WithError(err).Fatal("invalid trade")
	}

	if *quoteOnly {
		quotes, err := tr.QuoteAll(ctx, intent)
		if err != nil {
			clog.WithError(err).Fatal("quote failed")
		}
		printJSON(quotes)
		return
	}

	result, err := tr.Trade(ctx, intent)
	if err != nil {
		clog.WithError(err).Fatal("trade failed")
	}
	printJSON(result)
}

func buildStrategies(cfg *config.Config, chain chains.Config, client *evm.Client, sender *evm.Sender, tokenClient *tokens.Client, rdb *redis.Client, log logrus.FieldLogger) ([]trader.Strategy, error) {
	version, err := codec.ParseRouterVersion(cfg.RouterVersion)
	if err != nil {
		return nil, err
	}
	opts := strategy.Options{
		Slippage:  cfg.Slippage(),
		MaxImpact: cfg.MaxImpact(),
		Deadline:  cfg.Deadline.Duration,
	}

	var out []trader.Strategy
	for _, name := range cfg.EnabledVenues(chain) {
		var venue strategy.Venue
		switch name {
		case chains.VenueUniswapV2:
			venue, err = strategy.NewV2(chain, client, log)
		case chains.VenueUniswapV3:
			venue, err = strategy.NewV3(chain, client, log)
		case chains.VenueUniswapV4:
			venue, err = strategy.NewV4(chain, sender, version, cfg.V4FeeTier, log)
		case chains.VenueAerodrome:
			venue, err = strategy.NewAerodrome(chain, client, log)
		default:
			err = fmt.Errorf("unknown venue %q", name)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}

		cacheOpts := []routing.CacheOption{routing.WithCacheLogger(log)}
		if rdb != nil {
			cacheOpts = append(cacheOpts, routing.WithStore(routing.NewRedisStore(rdb, chain.Name+":"+name)))
		}
		out = append(out, strategy.New(venue, strategy.Deps{
			Chain:  chain,
			Tokens: tokenClient,
			Sender: sender,
			Cache:  routing.NewCache(cfg.RouteCacheTTL.Duration, cacheOpts...),
			Log:    log,
		}, opts))
		log.WithField("strategy", name).Info("venue enabled")
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no venues enabled on %s", chain.Name)
	}
	return out, nil
}

func parseIntent(chain, kind, in, amount, out string) (swaps.Intent, error) {
	inAddr, err := parseToken(in)
	if err != nil {
		return swaps.Intent{}, fmt.Errorf("-in: %w", err)
	}
	outAddr, err := parseToken(out)
	if err != nil {
		return swaps.Intent{}, fmt.Errorf("-out: %w", err)
	}
	intent := swaps.Intent{
		Chain:       chain,
		InputKind:   swaps.InputKind(strings.ToLower(kind)),
		InputToken:  inAddr,
		InputAmount: amount,
		OutputToken: outAddr,
	}
	return intent, intent.Validate()
}

func parseToken(s string) (common.Address, error) {
	switch strings.ToLower(s) {
	case "native", "eth":
		return swaps.NativeToken, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%q is not an address", s)
	}
	return common.HexToAddress(s), nil
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logrus.WithError(err).Error("failed to print result")
	}
}
