package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"lendfi/crypto"
	"lendfi/native/lending"
	"lendfi/observability/logging"
	statelending "lendfi/state/lending"
	"lendfi/storage"
)

var dataDir = defaultDataDir()
var configPath = os.Getenv("LENDFI_CONFIG")

func defaultDataDir() string {
	if dir := os.Getenv("LENDFI_DATA"); dir != "" {
		return dir
	}
	return "./lendfi-data"
}

// moduleAddress derives a deterministic custody address from a label.
func moduleAddress(label string) crypto.Address {
	sum := sha256.Sum256([]byte(label))
	return crypto.NewAddress(crypto.AccountPrefix, sum[:20])
}

func main() {
	args := os.Args[1:]
	args = applyGlobalFlags(args)

	if len(args) < 1 {
		printUsage()
		return
	}

	env := strings.TrimSpace(os.Getenv("LENDFI_ENV"))
	logger := logging.Setup("lendfi-cli", env)

	cfg := lending.DefaultConfig()
	if configPath != "" {
		loaded, err := lending.LoadConfig(configPath)
		if err != nil {
			fatal(err)
		}
		cfg = loaded
	}

	db, err := storage.NewLevelDB(dataDir)
	if err != nil {
		fatal(fmt.Errorf("open database at %s: %w", dataDir, err))
	}
	defer db.Close()

	engine := lending.NewEngine(moduleAddress("lendfi/module/pool"), moduleAddress("lendfi/module/collateral"), cfg)
	engine.SetState(statelending.NewLedger(db, logger))
	oracle := newStoredOracle(db)
	engine.SetOracle(oracle)
	engine.SetTimestamp(uint64(time.Now().Unix()))

	command := args[0]
	args = args[1:]
	switch command {
	case "generate-key":
		generateKey()
	case "set-price":
		requireArgs(args, 3, "set-price <asset> <price> <decimals>")
		runSetPrice(oracle, args)
	case "list-asset":
		requireArgs(args, 5, "list-asset <asset> <oracle> <tier> <borrowThreshold> <liquidationThreshold>")
		runListAsset(engine, args)
	case "assets":
		runAssets(engine)
	case "create-position":
		requireArgs(args, 2, "create-position <owner> <asset> [--isolated]")
		runCreatePosition(engine, args)
	case "supply-collateral":
		requireArgs(args, 4, "supply-collateral <owner> <position> <asset> <amount>")
		runCollateral(engine, args, engine.SupplyCollateral)
	case "withdraw-collateral":
		requireArgs(args, 4, "withdraw-collateral <owner> <position> <asset> <amount>")
		runCollateral(engine, args, engine.WithdrawCollateral)
	case "borrow":
		requireArgs(args, 3, "borrow <owner> <position> <amount>")
		runBorrow(engine, args)
	case "repay":
		requireArgs(args, 3, "repay <owner> <position> <amount>")
		runRepay(engine, args)
	case "exit-position":
		requireArgs(args, 2, "exit-position <owner> <position>")
		runExit(engine, args)
	case "liquidate":
		requireArgs(args, 3, "liquidate <liquidator> <owner> <position>")
		runLiquidate(engine, args)
	case "supply-liquidity":
		requireArgs(args, 2, "supply-liquidity <supplier> <amount>")
		runLiquidity(engine, args, engine.SupplyLiquidity)
	case "withdraw-liquidity":
		requireArgs(args, 2, "withdraw-liquidity <supplier> <amount>")
		runLiquidity(engine, args, engine.WithdrawLiquidity)
	case "position":
		requireArgs(args, 2, "position <owner> <id>")
		runPosition(engine, args)
	case "market":
		runMarket(engine)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		printUsage()
		os.Exit(1)
	}
}

func applyGlobalFlags(args []string) []string {
	out := args[:0]
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--data" && i+1 < len(args):
			dataDir = args[i+1]
			i++
		case args[i] == "--config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		default:
			out = append(out, args[i])
		}
	}
	return out
}

func printUsage() {
	fmt.Println(`Usage: lendfi-cli [--data <dir>] [--config <file>] <command>

Commands:
  generate-key
  set-price <asset> <price> <decimals>
  list-asset <asset> <oracle> <tier> <borrowThreshold> <liquidationThreshold>
  assets
  create-position <owner> <asset> [--isolated]
  supply-collateral <owner> <position> <asset> <amount>
  withdraw-collateral <owner> <position> <asset> <amount>
  borrow <owner> <position> <amount>
  repay <owner> <position> <amount>
  exit-position <owner> <position>
  liquidate <liquidator> <owner> <position>
  supply-liquidity <supplier> <amount>
  withdraw-liquidity <supplier> <amount>
  position <owner> <id>
  market`)
}

func requireArgs(args []string, n int, usage string) {
	if len(args) < n {
		fmt.Fprintf(os.Stderr, "usage: lendfi-cli %s\n", usage)
		os.Exit(1)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}

func parseAddress(raw string) crypto.Address {
	addr, err := crypto.DecodeAddress(raw)
	if err != nil {
		fatal(fmt.Errorf("address %q: %w", raw, err))
	}
	return addr
}

func parseAmount(raw string) *big.Int {
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		fatal(fmt.Errorf("amount %q is not a base-10 integer", raw))
	}
	return amount
}

func parseID(raw string) uint64 {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		fatal(fmt.Errorf("position id %q: %w", raw, err))
	}
	return id
}

func parseTier(raw string) lending.CollateralTier {
	switch strings.ToLower(raw) {
	case "stable":
		return lending.TierStable
	case "cross-a":
		return lending.TierCrossA
	case "cross-b":
		return lending.TierCrossB
	case "isolated":
		return lending.TierIsolated
	}
	fatal(fmt.Errorf("unknown tier %q (stable, cross-a, cross-b, isolated)", raw))
	return lending.TierStable
}

func parseThreshold(raw string) uint64 {
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || v > 1000 {
		fatal(fmt.Errorf("threshold %q must be 0..1000 thousandths", raw))
	}
	return v
}

func generateKey() {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fatal(err)
	}
	fmt.Println("Address:", key.PubKey().Address().String())
	fmt.Println("PrivateKey:", hex.EncodeToString(key.Bytes()))
}

func runSetPrice(oracle *storedOracle, args []string) {
	asset := parseAddress(args[0])
	price := parseAmount(args[1])
	decimals, err := strconv.ParseUint(args[2], 10, 8)
	if err != nil {
		fatal(fmt.Errorf("decimals %q: %w", args[2], err))
	}
	if err := oracle.SetPrice(asset, price, uint8(decimals)); err != nil {
		fatal(err)
	}
	fmt.Printf("Price for %s set to %s (10^-%d)\n", asset.String(), price, decimals)
}

func runListAsset(engine *lending.Engine, args []string) {
	cfg := lending.AssetConfig{
		Asset:                parseAddress(args[0]),
		Oracle:               parseAddress(args[1]),
		Decimals:             18,
		Active:               true,
		Tier:                 parseTier(args[2]),
		BorrowThreshold:      parseThreshold(args[3]),
		LiquidationThreshold: parseThreshold(args[4]),
	}
	if err := engine.UpsertAssetConfig(cfg); err != nil {
		fatal(err)
	}
	fmt.Printf("Asset %s listed in tier %s\n", cfg.Asset.String(), cfg.Tier)
}

func runAssets(engine *lending.Engine) {
	assets, err := engine.ListedAssets()
	if err != nil {
		fatal(err)
	}
	for _, asset := range assets {
		cfg, err := engine.GetAssetConfig(asset)
		if err != nil {
			fatal(err)
		}
		tvl, err := engine.TotalValueLocked(asset)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("%s tier=%s active=%t tvl=%s\n", asset.String(), cfg.Tier, cfg.Active, tvl)
	}
}

func runCreatePosition(engine *lending.Engine, args []string) {
	isolated := false
	for _, arg := range args[2:] {
		if arg == "--isolated" {
			isolated = true
		}
	}
	id, err := engine.CreatePosition(parseAddress(args[0]), parseAddress(args[1]), isolated)
	if err != nil {
		fatal(err)
	}
	fmt.Println("Position created with id", id)
}

func runCollateral(engine *lending.Engine, args []string, op func(crypto.Address, uint64, crypto.Address, *big.Int) error) {
	if err := op(parseAddress(args[0]), parseID(args[1]), parseAddress(args[2]), parseAmount(args[3])); err != nil {
		fatal(err)
	}
	fmt.Println("OK")
}

func runBorrow(engine *lending.Engine, args []string) {
	if err := engine.Borrow(parseAddress(args[0]), parseID(args[1]), parseAmount(args[2])); err != nil {
		fatal(err)
	}
	fmt.Println("OK")
}

func runRepay(engine *lending.Engine, args []string) {
	paid, err := engine.Repay(parseAddress(args[0]), parseID(args[1]), parseAmount(args[2]))
	if err != nil {
		fatal(err)
	}
	fmt.Println("Repaid", paid)
}

func runExit(engine *lending.Engine, args []string) {
	if err := engine.ExitPosition(parseAddress(args[0]), parseID(args[1])); err != nil {
		fatal(err)
	}
	fmt.Println("Position closed")
}

func runLiquidate(engine *lending.Engine, args []string) {
	if err := engine.Liquidate(parseAddress(args[0]), parseAddress(args[1]), parseID(args[2])); err != nil {
		fatal(err)
	}
	fmt.Println("Position liquidated")
}

func runLiquidity(engine *lending.Engine, args []string, op func(crypto.Address, *big.Int) error) {
	if err := op(parseAddress(args[0]), parseAmount(args[1])); err != nil {
		fatal(err)
	}
	fmt.Println("OK")
}

func runPosition(engine *lending.Engine, args []string) {
	owner := parseAddress(args[0])
	id := parseID(args[1])
	debt, err := engine.DebtWithInterest(owner, id)
	if err != nil {
		fatal(err)
	}
	credit, err := engine.CreditLimit(owner, id)
	if err != nil {
		fatal(err)
	}
	value, err := engine.CollateralValue(owner, id)
	if err != nil {
		fatal(err)
	}
	hf, err := engine.HealthFactor(owner, id)
	if err != nil {
		fatal(err)
	}
	fmt.Println("Debt:", debt)
	fmt.Println("CreditLimit:", credit)
	fmt.Println("CollateralValue:", value)
	fmt.Println("HealthFactor:", hf)
}

func runMarket(engine *lending.Engine) {
	util, err := engine.Utilization()
	if err != nil {
		fatal(err)
	}
	supplyRate, err := engine.SupplyRate()
	if err != nil {
		fatal(err)
	}
	fmt.Println("Utilization:", util)
	fmt.Println("SupplyRate:", supplyRate)
	for _, tier := range []lending.CollateralTier{lending.TierStable, lending.TierCrossA, lending.TierCrossB, lending.TierIsolated} {
		rate, err := engine.BorrowRate(tier)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("BorrowRate[%s]: %s\n", tier, rate)
	}
}
