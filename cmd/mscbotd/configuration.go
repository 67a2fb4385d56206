// SPDX-FileCopyrightText: 2026 HGFantasy
//
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/hgfantasy/mscbot/pkg/agent"
	"github.com/hgfantasy/mscbot/pkg/bus"
	"github.com/hgfantasy/mscbot/pkg/classify"
	"github.com/hgfantasy/mscbot/pkg/core"
	"github.com/hgfantasy/mscbot/pkg/driver"
	"github.com/hgfantasy/mscbot/pkg/gate"
	"github.com/hgfantasy/mscbot/pkg/pacing"
	"github.com/hgfantasy/mscbot/pkg/storage"
	"github.com/hgfantasy/mscbot/pkg/transport"
	"github.com/hgfantasy/mscbot/pkg/watch"
)

// tomlConfig describes the TOML-configuration.
type tomlConfig struct {
	Logging    logConf
	Core       coreConf
	Delays     delayConf
	Politeness politenessConf
	Human      humanConf
	Backoff    backoffConf
	Classify   classifyConf
	Transport  transportConf
	Agents     agentsConf
	Profiling  profilingConf
}

// logConf describes the Logging-configuration block.
type logConf struct {
	Level        string
	ReportCaller bool `toml:"report-caller"`
	Format       string
}

// coreConf describes the Core-configuration block.
type coreConf struct {
	Store       string
	CommandFile string `toml:"command-file"`
	DryRun      bool   `toml:"dry-run"`
}

// delayConf describes the Delays-configuration block, in seconds.
type delayConf struct {
	JobSeconds       float64 `toml:"job-seconds"`
	TransportSeconds float64 `toml:"transport-seconds"`
}

// politenessConf describes the Politeness-configuration block.
type politenessConf struct {
	MaxConcurrency int `toml:"max-concurrency"`
	RetryAttempts  int `toml:"retry-attempts"`
	BaseDelayMs    int `toml:"base-delay-ms"`
	JitterMs       int `toml:"jitter-ms"`
	EntryBaseMs    int `toml:"entry-base-ms"`
	EntrySpreadMs  int `toml:"entry-spread-ms"`
	ExitBaseMs     int `toml:"exit-base-ms"`
	ExitSpreadMs   int `toml:"exit-spread-ms"`
}

// rangeConf is a "min/max seconds" pair.
type rangeConf struct {
	Min float64
	Max float64
}

func (rc rangeConf) pacingRange() pacing.Range {
	return pacing.Range{Min: rc.Min, Max: rc.Max}
}

// humanConf describes the Human-configuration block.
type humanConf struct {
	ShortBreakProb  float64   `toml:"short-break-prob"`
	ShortBreak      rangeConf `toml:"short-break"`
	MediumBreakProb float64   `toml:"medium-break-prob"`
	MediumBreak     rangeConf `toml:"medium-break"`
	LongBreakProb   float64   `toml:"long-break-prob"`
	LongBreak       rangeConf `toml:"long-break"`
	QuietHours      string    `toml:"quiet-hours"`
	QuietBreakProb  float64   `toml:"quiet-break-prob"`
	QuietBreak      rangeConf `toml:"quiet-break"`
	IdleAfterAction rangeConf `toml:"idle-after-action"`
}

// backoffConf describes the Backoff-configuration block.
type backoffConf struct {
	Enable              bool
	FactorStep          float64 `toml:"factor-step"`
	FactorMax           float64 `toml:"factor-max"`
	CoolDownGoodSeconds int     `toml:"cool-down-good-seconds"`
}

// classifyConf describes the Classify-configuration block.
type classifyConf struct {
	CacheTTLMinutes int            `toml:"cache-ttl-minutes"`
	Keywords        map[string]int `toml:"keywords"`
	ScorerURL       string         `toml:"scorer-url"`
}

// transportKindConf describes the per-subject transport preferences.
type transportKindConf struct {
	MaxDistanceKm  float64 `toml:"max-distance-km"`
	MaxCostPct     float64 `toml:"max-cost-pct"`
	MinFree        int     `toml:"min-free"`
	SLAMinutes     int     `toml:"sla-minutes"`
	Fallback       string
	RecheckMinutes int `toml:"recheck-minutes"`
}

// transportConf describes the Transport-configuration block.
type transportConf struct {
	Patient  transportKindConf
	Prisoner transportKindConf

	BlacklistTTLMinutes int `toml:"blacklist-ttl-minutes"`
	AttemptBudget       int `toml:"attempt-budget"`
	EscalateAfterDefers int `toml:"escalate-after-defers"`
	AdmitMin            int `toml:"admit-min"`
	AdmitMax            int `toml:"admit-max"`
}

// agentsConf describes the Agents-configuration block. A non-empty enabled
// list activates only the named agents; disabled switches individual agents
// off and wins over enabled.
type agentsConf struct {
	Enabled  []string
	Disabled []string
}

// profilingConf describes the Profiling-configuration block.
type profilingConf struct {
	Enable bool
}

// defaultConfig mirrors the stock configuration; the TOML file and the
// environment override it.
func defaultConfig() tomlConfig {
	stock := transport.DefaultConfig()

	kindConf := func(prefs transport.Prefs) transportKindConf {
		return transportKindConf{
			MaxDistanceKm:  prefs.MaxDistance,
			MaxCostPct:     prefs.MaxCostPct,
			MinFree:        prefs.MinFree,
			SLAMinutes:     int(prefs.SLA / time.Minute),
			Fallback:       prefs.Fallback,
			RecheckMinutes: int(prefs.Recheck / time.Minute),
		}
	}

	return tomlConfig{
		Logging: logConf{Level: "info", Format: "text"},
		Core: coreConf{
			Store:       "store",
			CommandFile: "commands.txt",
			DryRun:      true,
		},
		Delays: delayConf{JobSeconds: 10, TransportSeconds: 180},
		Politeness: politenessConf{
			MaxConcurrency: 2,
			RetryAttempts:  3,
			BaseDelayMs:    400,
			JitterMs:       300,
			EntryBaseMs:    250,
			EntrySpreadMs:  100,
			ExitBaseMs:     175,
			ExitSpreadMs:   75,
		},
		Human: humanConf{
			ShortBreakProb:  0.06,
			ShortBreak:      rangeConf{Min: 15, Max: 45},
			MediumBreakProb: 0.03,
			MediumBreak:     rangeConf{Min: 120, Max: 360},
			LongBreakProb:   0.008,
			LongBreak:       rangeConf{Min: 900, Max: 1800},
			QuietHours:      "02:00-06:30",
			QuietBreakProb:  0.2,
			QuietBreak:      rangeConf{Min: 60, Max: 180},
			IdleAfterAction: rangeConf{Min: 0.8, Max: 2.2},
		},
		Backoff: backoffConf{
			Enable:              true,
			FactorStep:          0.25,
			FactorMax:           2.0,
			CoolDownGoodSeconds: 120,
		},
		Classify: classifyConf{CacheTTLMinutes: 10},
		Transport: transportConf{
			Patient:             kindConf(stock.Prefs[transport.SubjectPatient]),
			Prisoner:            kindConf(stock.Prefs[transport.SubjectPrisoner]),
			BlacklistTTLMinutes: int(stock.BlacklistTTL / time.Minute),
			AttemptBudget:       stock.AttemptBudget,
			EscalateAfterDefers: stock.EscalateAfterDefers,
			AdmitMin:            stock.AdmitMin,
			AdmitMax:            stock.AdmitMax,
		},
	}
}

// applyEnv overrides scalar configuration values from MSCBOT_* variables,
// e.g. MSCBOT_LOGGING_LEVEL or MSCBOT_TRANSPORT_ATTEMPT_BUDGET.
func applyEnv(conf *tomlConfig) error {
	var merr *multierror.Error

	lookup := func(name string) (string, bool) {
		return os.LookupEnv("MSCBOT_" + name)
	}

	envString := func(name string, target *string) {
		if v, ok := lookup(name); ok {
			*target = v
		}
	}
	envBool := func(name string, target *bool) {
		if v, ok := lookup(name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				merr = multierror.Append(merr, fmt.Errorf("MSCBOT_%s: %v", name, err))
				return
			}
			*target = b
		}
	}
	envInt := func(name string, target *int) {
		if v, ok := lookup(name); ok {
			i, err := strconv.Atoi(v)
			if err != nil {
				merr = multierror.Append(merr, fmt.Errorf("MSCBOT_%s: %v", name, err))
				return
			}
			*target = i
		}
	}
	envFloat := func(name string, target *float64) {
		if v, ok := lookup(name); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				merr = multierror.Append(merr, fmt.Errorf("MSCBOT_%s: %v", name, err))
				return
			}
			*target = f
		}
	}

	envString("LOGGING_LEVEL", &conf.Logging.Level)
	envString("LOGGING_FORMAT", &conf.Logging.Format)
	envString("CORE_STORE", &conf.Core.Store)
	envString("CORE_COMMAND_FILE", &conf.Core.CommandFile)
	envBool("CORE_DRY_RUN", &conf.Core.DryRun)
	envFloat("DELAYS_JOB_SECONDS", &conf.Delays.JobSeconds)
	envFloat("DELAYS_TRANSPORT_SECONDS", &conf.Delays.TransportSeconds)
	envInt("POLITENESS_MAX_CONCURRENCY", &conf.Politeness.MaxConcurrency)
	envInt("POLITENESS_RETRY_ATTEMPTS", &conf.Politeness.RetryAttempts)
	envInt("POLITENESS_BASE_DELAY_MS", &conf.Politeness.BaseDelayMs)
	envInt("POLITENESS_JITTER_MS", &conf.Politeness.JitterMs)
	envString("HUMAN_QUIET_HOURS", &conf.Human.QuietHours)
	envBool("BACKOFF_ENABLE", &conf.Backoff.Enable)
	envFloat("BACKOFF_FACTOR_STEP", &conf.Backoff.FactorStep)
	envFloat("BACKOFF_FACTOR_MAX", &conf.Backoff.FactorMax)
	envInt("BACKOFF_COOL_DOWN_GOOD_SECONDS", &conf.Backoff.CoolDownGoodSeconds)
	envString("CLASSIFY_SCORER_URL", &conf.Classify.ScorerURL)
	envInt("CLASSIFY_CACHE_TTL_MINUTES", &conf.Classify.CacheTTLMinutes)
	envInt("TRANSPORT_BLACKLIST_TTL_MINUTES", &conf.Transport.BlacklistTTLMinutes)
	envInt("TRANSPORT_ATTEMPT_BUDGET", &conf.Transport.AttemptBudget)
	envInt("TRANSPORT_ESCALATE_AFTER_DEFERS", &conf.Transport.EscalateAfterDefers)
	envInt("TRANSPORT_ADMIT_MIN", &conf.Transport.AdmitMin)
	envInt("TRANSPORT_ADMIT_MAX", &conf.Transport.AdmitMax)
	envBool("PROFILING_ENABLE", &conf.Profiling.Enable)

	return merr.ErrorOrNil()
}

// validate collects all configuration failures instead of bailing on the
// first one.
func validate(conf tomlConfig) error {
	var merr *multierror.Error

	if conf.Core.Store == "" {
		merr = multierror.Append(merr, fmt.Errorf("core.store is empty"))
	}
	if conf.Delays.JobSeconds <= 0 {
		merr = multierror.Append(merr, fmt.Errorf("delays.job-seconds must be > 0"))
	}
	if conf.Delays.TransportSeconds <= 0 {
		merr = multierror.Append(merr, fmt.Errorf("delays.transport-seconds must be > 0"))
	}
	if conf.Politeness.MaxConcurrency < 1 {
		merr = multierror.Append(merr, fmt.Errorf("politeness.max-concurrency must be >= 1"))
	}
	if conf.Politeness.RetryAttempts < 1 {
		merr = multierror.Append(merr, fmt.Errorf("politeness.retry-attempts must be >= 1"))
	}
	if conf.Human.QuietHours != "" {
		if err := pacing.ValidQuietHours(conf.Human.QuietHours); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("human.quiet-hours: %v", err))
		}
	}
	if err := transportConfig(conf.Transport).Validate(); err != nil {
		merr = multierror.Append(merr, fmt.Errorf("transport: %v", err))
	}
	if !conf.Core.DryRun {
		merr = multierror.Append(merr, fmt.Errorf("core.dry-run must be set, this build ships no browser driver"))
	}

	return merr.ErrorOrNil()
}

func setupLogging(conf logConf) {
	if conf.Level != "" {
		if lvl, err := log.ParseLevel(conf.Level); err != nil {
			log.WithFields(log.Fields{
				"level":    conf.Level,
				"error":    err,
				"provided": "panic,fatal,error,warn,info,debug,trace",
			}).Warn("Failed to set log level. Please select one of the provided ones")
		} else {
			log.SetLevel(lvl)
		}
	}

	log.SetReportCaller(conf.ReportCaller)

	switch conf.Format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})

	case "json":
		log.SetFormatter(&log.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})

	default:
		log.Warn("Unknown logging format")
	}
}

func pacingConfig(human humanConf, backoff backoffConf) pacing.Config {
	return pacing.Config{
		ShortBreakProb:   human.ShortBreakProb,
		ShortBreakRange:  human.ShortBreak.pacingRange(),
		MediumBreakProb:  human.MediumBreakProb,
		MediumBreakRange: human.MediumBreak.pacingRange(),
		LongBreakProb:    human.LongBreakProb,
		LongBreakRange:   human.LongBreak.pacingRange(),
		QuietHours:       human.QuietHours,
		QuietBreakProb:   human.QuietBreakProb,
		QuietRange:       human.QuietBreak.pacingRange(),
		IdleAfterAction:  human.IdleAfterAction.pacingRange(),
		BackoffEnable:    backoff.Enable,
		FactorStep:       backoff.FactorStep,
		FactorMax:        backoff.FactorMax,
		CoolDownGood:     time.Duration(backoff.CoolDownGoodSeconds) * time.Second,
	}
}

func gateBudget(conf politenessConf) gate.Budget {
	ms := func(n int) time.Duration { return time.Duration(n) * time.Millisecond }

	return gate.Budget{
		MaxConcurrency: conf.MaxConcurrency,
		RetryAttempts:  conf.RetryAttempts,
		RetryBase:      ms(conf.BaseDelayMs),
		RetryJitter:    ms(conf.JitterMs),
		Entry:          gate.Dwell{Base: ms(conf.EntryBaseMs), Spread: ms(conf.EntrySpreadMs)},
		Exit:           gate.Dwell{Base: ms(conf.ExitBaseMs), Spread: ms(conf.ExitSpreadMs)},
	}
}

func transportConfig(conf transportConf) transport.Config {
	prefs := func(kind transportKindConf) transport.Prefs {
		return transport.Prefs{
			MaxDistance: kind.MaxDistanceKm,
			MaxCostPct:  kind.MaxCostPct,
			MinFree:     kind.MinFree,
			SLA:         time.Duration(kind.SLAMinutes) * time.Minute,
			Fallback:    kind.Fallback,
			Recheck:     time.Duration(kind.RecheckMinutes) * time.Minute,
		}
	}

	cfg := transport.DefaultConfig()
	cfg.Prefs = map[transport.SubjectKind]transport.Prefs{
		transport.SubjectPatient:  prefs(conf.Patient),
		transport.SubjectPrisoner: prefs(conf.Prisoner),
	}
	cfg.BlacklistTTL = time.Duration(conf.BlacklistTTLMinutes) * time.Minute
	cfg.AttemptBudget = conf.AttemptBudget
	cfg.EscalateAfterDefers = conf.EscalateAfterDefers
	cfg.AdmitMin = conf.AdmitMin
	cfg.AdmitMax = conf.AdmitMax

	return cfg
}

// parseCore builds the engine from the given TOML configuration file.
func parseCore(filename string) (c *core.Core, w *watch.Watcher, profiling bool, err error) {
	conf := defaultConfig()
	if _, err = toml.DecodeFile(filename, &conf); err != nil {
		return
	}
	if err = applyEnv(&conf); err != nil {
		return
	}

	setupLogging(conf.Logging)

	if err = validate(conf); err != nil {
		return
	}

	var store *storage.Store
	if store, err = storage.NewStore(conf.Core.Store); err != nil {
		return
	}

	var commands <-chan watch.Command
	if conf.Core.CommandFile != "" {
		if w, err = watch.New(conf.Core.CommandFile); err != nil {
			_ = store.Close()
			return
		}
		commands = w.Commands()
	}

	model := pacing.NewModel(pacingConfig(conf.Human, conf.Backoff))

	var scorer *classify.Scorer
	if conf.Classify.ScorerURL != "" {
		scorer = classify.NewScorer(conf.Classify.ScorerURL, 2*time.Second)
	}

	runtime := agent.NewRuntime()
	session := driver.NewFake()

	agents := []agent.Agent{
		&agent.PacingAgent{Model: model},
		&agent.LoggerAgent{},
		&agent.CleanupAgent{Store: store},
		&agent.SummaryAgent{},
	}
	for _, a := range agents {
		if err = runtime.Register(a); err != nil {
			_ = store.Close()
			return
		}
	}
	if len(conf.Agents.Enabled) > 0 {
		allowed := make(map[string]struct{})
		for _, name := range conf.Agents.Enabled {
			allowed[name] = struct{}{}
		}
		for _, name := range runtime.Names() {
			if _, ok := allowed[name]; !ok {
				runtime.Disable(name)
			}
		}
	}
	for _, name := range conf.Agents.Disabled {
		runtime.Disable(name)
	}
	runtime.ApplyPending()

	c, err = core.NewCore(core.Options{
		Session: session,
		Store:   store,
		Bus:     bus.New(),
		Model:   model,
		Gate:    gate.New(gateBudget(conf.Politeness), model),
		Classifier: classify.New(classify.Config{
			CacheTTL: time.Duration(conf.Classify.CacheTTLMinutes) * time.Minute,
			Weights:  keywordWeights(conf.Classify),
			Scorer:   scorer,
		}),
		Runtime:        runtime,
		Commands:       commands,
		Transport:      transportConfig(conf.Transport),
		JobDelay:       time.Duration(conf.Delays.JobSeconds * float64(time.Second)),
		TransportDelay: time.Duration(conf.Delays.TransportSeconds * float64(time.Second)),
	})
	if err != nil {
		_ = store.Close()
		return
	}

	return c, w, conf.Profiling.Enable, nil
}

// keywordWeights merges configured keyword overrides over the defaults.
func keywordWeights(conf classifyConf) map[string]int {
	if len(conf.Keywords) == 0 {
		return nil
	}

	weights := classify.DefaultWeights()
	for keyword, points := range conf.Keywords {
		weights[strings.ToLower(keyword)] = points
	}
	return weights
}
