package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/warroom-labs/warroom/internal/command"
	"github.com/warroom-labs/warroom/internal/models"
)

func (o *Orchestrator) registerHandlers() {
	o.proc.Register(command.CmdYes, o.cmdYes)
	o.proc.Register(command.CmdNo, o.cmdNo)
	o.proc.Register(command.CmdHold, o.cmdHold)
	o.proc.Register(command.CmdStart, o.cmdStart)
	o.proc.Register(command.CmdStop, o.cmdStop)
	o.proc.Register(command.CmdEstop, o.cmdEstop)
	o.proc.Register(command.CmdUpdate, o.cmdUpdate)
	o.proc.Register(command.CmdStatus, o.cmdStatus)
	o.proc.Register(command.CmdPortfolio, o.cmdPortfolio)
	o.proc.Register(command.CmdDefcon, o.cmdDefcon)
	o.proc.Register(command.CmdTrades, o.cmdTrades)
	o.proc.Register(command.CmdBroker, o.cmdBroker)
	o.proc.Register(command.CmdHelp, o.cmdHelp)
	o.proc.Register(command.CmdMode, o.cmdMode)
	o.proc.Register(command.CmdInterval, o.cmdInterval)
	o.proc.Register(command.CmdBuy, o.cmdBuy)
	o.proc.Register(command.CmdSell, o.cmdSell)
	o.proc.Register(command.CmdBriefing, o.cmdBriefing)
	o.proc.Register(command.CmdResearch, o.cmdResearch)
	o.proc.Register(command.CmdHunt, o.cmdHunt)
}

func (o *Orchestrator) cmdYes(ctx context.Context, _ []string) command.Response {
	if o.pendingAlert == nil {
		return command.Response{OK: false, Message: "no pending trade alert"}
	}
	alert := *o.pendingAlert
	o.pendingAlert = nil

	opened := o.broker.ExecuteCrisisPackage(ctx, alert.VIX, alert.Composite, alert.Level, alert.Crisis)
	for i := range opened {
		o.mets.TradesTotal.WithLabelValues("open").Inc()
		o.sink.TradeEntry(ctx, &opened[i])
	}
	return command.Response{
		OK:      true,
		Message: fmt.Sprintf("crisis package approved: %d positions opened", len(opened)),
		Data:    opened,
	}
}

func (o *Orchestrator) cmdNo(_ context.Context, _ []string) command.Response {
	if o.pendingAlert == nil {
		return command.Response{OK: false, Message: "no pending trade alert"}
	}
	o.pendingAlert = nil
	return command.Response{OK: true, Message: "trade alert dismissed"}
}

func (o *Orchestrator) cmdHold(_ context.Context, _ []string) command.Response {
	o.held = true
	return command.Response{OK: true, Message: "trading held: no new entries until start, monitoring and exits continue"}
}

func (o *Orchestrator) cmdStart(_ context.Context, _ []string) command.Response {
	o.held = false
	return command.Response{OK: true, Message: "trading resumed"}
}

func (o *Orchestrator) cmdStop(_ context.Context, _ []string) command.Response {
	o.stopRequested = true
	return command.Response{OK: true, Message: "stopping after current cycle"}
}

func (o *Orchestrator) cmdEstop(_ context.Context, _ []string) command.Response {
	o.estopped = true
	o.pendingAlert = nil
	return command.Response{OK: true, Message: "emergency stop: halting now, pending actions cleared"}
}

func (o *Orchestrator) cmdUpdate(_ context.Context, _ []string) command.Response {
	o.forceCycle = true
	return command.Response{OK: true, Message: "running a cycle now"}
}

func (o *Orchestrator) cmdStatus(ctx context.Context, _ []string) command.Response {
	data := map[string]any{
		"mode":             o.mode,
		"held":             o.held,
		"interval_minutes": int(o.interval.Minutes()),
		"cycles":           o.cycleCount,
		"pending_alert":    o.pendingAlert != nil,
	}
	snap, err := o.st.Snapshots.Latest(ctx)
	if err != nil {
		return command.Response{OK: true, Message: "no cycles recorded yet", Data: data}
	}
	data["snapshot"] = snap
	return command.Response{
		OK: true,
		Message: fmt.Sprintf("DEFCON %d (%s), composite %.1f, VIX %.1f, news %.1f, mode %s",
			snap.DefconLevel, snap.DefconLevel, snap.CompositeScore, snap.VIX, snap.NewsScore, o.mode),
		Data: data,
	}
}

func (o *Orchestrator) cmdPortfolio(ctx context.Context, _ []string) command.Response {
	p, err := o.broker.Snapshot(ctx)
	if err != nil {
		return command.Response{OK: false, Message: fmt.Sprintf("portfolio unavailable: %v", err)}
	}
	return command.Response{
		OK: true,
		Message: fmt.Sprintf("%d open ($%.0f exposure, $%.2f unrealized), cash $%.0f, realized $%.2f over %d closed (%d wins)",
			len(p.OpenPositions), p.OpenExposure, p.UnrealizedPnL, p.AvailableCash,
			p.RealizedPnL, p.ClosedCount, p.WinCount),
		Data: p,
	}
}

func (o *Orchestrator) cmdDefcon(ctx context.Context, _ []string) command.Response {
	msg := fmt.Sprintf("DEFCON %d (%s)", o.prevDefcon, o.prevDefcon)
	if snap, err := o.st.Snapshots.Latest(ctx); err == nil {
		msg = fmt.Sprintf("DEFCON %d (%s), composite %.1f, 10Y %.2f%%, VIX %.1f, S&P %+.2f%%",
			snap.DefconLevel, snap.DefconLevel, snap.CompositeScore,
			snap.BondYield, snap.VIX, snap.MarketChangePct)
	}
	return command.Response{OK: true, Message: msg}
}

func (o *Orchestrator) cmdTrades(ctx context.Context, _ []string) command.Response {
	trades, err := o.st.Trades.Recent(ctx, 10)
	if err != nil {
		return command.Response{OK: false, Message: fmt.Sprintf("trades unavailable: %v", err)}
	}
	if len(trades) == 0 {
		return command.Response{OK: true, Message: "no trades recorded"}
	}
	var b strings.Builder
	for _, t := range trades {
		if t.Status == models.TradeOpen {
			fmt.Fprintf(&b, "#%d %s %d sh @ $%.2f open ($%.2f unrealized)\n",
				t.ID, t.Ticker, t.Shares, t.EntryPrice, t.UnrealizedPnL)
		} else {
			fmt.Fprintf(&b, "#%d %s %d sh @ $%.2f closed $%.2f (%s, $%.2f)\n",
				t.ID, t.Ticker, t.Shares, t.EntryPrice, t.ExitPrice, t.ExitReason, t.RealizedPnL)
		}
	}
	return command.Response{OK: true, Message: strings.TrimSpace(b.String()), Data: trades}
}

func (o *Orchestrator) cmdBroker(ctx context.Context, _ []string) command.Response {
	open, _ := o.st.Trades.OpenPositions(ctx)
	msg := fmt.Sprintf("mode %s, %d open positions", o.mode, len(open))
	if o.held {
		msg += ", HELD"
	}
	if o.pendingAlert != nil {
		msg += fmt.Sprintf(", pending alert (DEFCON %d since %s)",
			o.pendingAlert.Level, o.pendingAlert.Created.Format("15:04"))
	}
	return command.Response{OK: true, Message: msg}
}

func (o *Orchestrator) cmdHelp(_ context.Context, _ []string) command.Response {
	return command.Response{OK: true, Message: strings.TrimSpace(`
decisions:  yes | no
control:    hold | start | stop | estop | update
info:       status | portfolio | defcon | trades | broker | help
config:     mode <disabled|semi_auto|full_auto> | interval <minutes>
trading:    buy TICKER SHARES [@PRICE] | sell TICKER [ID] [@PRICE]
stages:     briefing | research | hunt`)}
}

func (o *Orchestrator) cmdMode(_ context.Context, args []string) command.Response {
	if len(args) != 1 {
		return command.Response{OK: false, Message: "usage: mode <disabled|semi_auto|full_auto>"}
	}
	mode, ok := models.ParseBrokerMode(args[0])
	if !ok {
		return command.Response{OK: false, Message: fmt.Sprintf("unknown mode %q", args[0])}
	}
	o.mode = mode
	return command.Response{OK: true, Message: fmt.Sprintf("broker mode set to %s", mode)}
}

func (o *Orchestrator) cmdInterval(_ context.Context, args []string) command.Response {
	if len(args) != 1 {
		return command.Response{OK: false, Message: "usage: interval <minutes>"}
	}
	minutes, err := strconv.Atoi(args[0])
	if err != nil || minutes < 1 || minutes > 120 {
		return command.Response{OK: false, Message: "interval must be 1-120 minutes"}
	}
	o.pendingInterval = time.Duration(minutes) * time.Minute
	return command.Response{OK: true, Message: fmt.Sprintf("interval set to %d minutes, applies at next sleep", minutes)}
}

func (o *Orchestrator) cmdBuy(ctx context.Context, args []string) command.Response {
	if len(args) < 2 {
		return command.Response{OK: false, Message: "usage: buy TICKER SHARES [@PRICE]"}
	}
	ticker := strings.ToUpper(args[0])
	shares, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || shares <= 0 {
		return command.Response{OK: false, Message: fmt.Sprintf("bad share count %q", args[1])}
	}
	price := 0.0
	if len(args) >= 3 {
		if price, err = parsePrice(args[2]); err != nil {
			return command.Response{OK: false, Message: err.Error()}
		}
	}

	trade, err := o.broker.ManualBuy(ctx, ticker, shares, price, o.prevDefcon)
	if err != nil {
		return command.Response{OK: false, Message: fmt.Sprintf("buy rejected: %v", err)}
	}
	o.mets.TradesTotal.WithLabelValues("open").Inc()
	o.sink.TradeEntry(ctx, trade)
	return command.Response{
		OK:      true,
		Message: fmt.Sprintf("bought %d %s @ $%.2f (trade #%d)", trade.Shares, trade.Ticker, trade.EntryPrice, trade.ID),
		Data:    trade,
	}
}

func (o *Orchestrator) cmdSell(ctx context.Context, args []string) command.Response {
	if len(args) < 1 {
		return command.Response{OK: false, Message: "usage: sell TICKER [ID] [@PRICE]"}
	}
	ticker := strings.ToUpper(args[0])
	var tradeID int64
	price := 0.0
	for _, arg := range args[1:] {
		if strings.HasPrefix(arg, "@") {
			p, err := parsePrice(arg)
			if err != nil {
				return command.Response{OK: false, Message: err.Error()}
			}
			price = p
			continue
		}
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return command.Response{OK: false, Message: fmt.Sprintf("bad trade id %q", arg)}
		}
		tradeID = id
	}

	trade, err := o.broker.ManualSell(ctx, ticker, tradeID, price)
	if err != nil {
		return command.Response{OK: false, Message: fmt.Sprintf("sell rejected: %v", err)}
	}
	o.mets.TradesTotal.WithLabelValues("close").Inc()
	o.sink.TradeExit(ctx, trade, "manual")
	return command.Response{
		OK:      true,
		Message: fmt.Sprintf("sold %d %s @ $%.2f, realized $%.2f", trade.Shares, trade.Ticker, trade.ExitPrice, trade.RealizedPnL),
		Data:    trade,
	}
}

func (o *Orchestrator) cmdBriefing(ctx context.Context, _ []string) command.Response {
	if o.briefer == nil {
		return command.Response{OK: false, Message: "briefing service not configured"}
	}
	b, err := o.briefer.RunDaily(ctx)
	if err != nil {
		return command.Response{OK: false, Message: fmt.Sprintf("briefing failed: %v", err)}
	}
	return command.Response{
		OK:      true,
		Message: fmt.Sprintf("%s regime (%.0f%%): %s", b.MarketRegime, b.RegimeConfidence*100, b.Headline),
		Data:    b,
	}
}

func (o *Orchestrator) cmdResearch(ctx context.Context, _ []string) command.Response {
	if o.researcher == nil || o.analyst == nil {
		return command.Response{OK: false, Message: "acquisition pipeline not configured"}
	}
	researched := o.researcher.Run(ctx)
	analysed := o.analyst.Run(ctx, o.cfg.MaxWatchlistPerRun)
	msg := fmt.Sprintf("researched %d, analysed %d", researched, analysed)
	if o.verifier != nil {
		verdicts := o.verifier.Run(ctx)
		msg += fmt.Sprintf(", verified %d", verdicts[models.VerdictConfirm])
	}
	return command.Response{OK: true, Message: msg}
}

func (o *Orchestrator) cmdHunt(ctx context.Context, _ []string) command.Response {
	if o.hound == nil {
		return command.Response{OK: false, Message: "hound not configured"}
	}
	tickers, err := o.hound.Hunt(ctx, o.prevDefcon)
	if err != nil {
		return command.Response{OK: false, Message: fmt.Sprintf("hunt failed: %v", err)}
	}
	if len(tickers) == 0 {
		return command.Response{OK: true, Message: "no new candidates"}
	}
	return command.Response{
		OK:      true,
		Message: fmt.Sprintf("queued %d candidates: %s", len(tickers), strings.Join(tickers, ", ")),
		Data:    tickers,
	}
}

func parsePrice(arg string) (float64, error) {
	price, err := strconv.ParseFloat(strings.TrimPrefix(arg, "@"), 64)
	if err != nil || price <= 0 {
		return 0, fmt.Errorf("bad price %q", arg)
	}
	return price, nil
}
