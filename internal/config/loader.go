package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct {
	logger *zap.Logger
}

// NewLoader creates a new configuration Loader.
func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{logger: logger}
}

// Load parses command-line arguments and configuration files to produce a Run.
func (l *Loader) Load(args []string) (*Run, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	configPath := flagSet.Lookup("config").Value.String()
	if configPath == "" {
		displayHelp(cmd)
		return nil, ErrHelpRequested
	}

	requestsPath := flagSet.Lookup("requests").Value.String()
	run, err := l.LoadFiles(configPath, requestsPath)
	if err != nil {
		return nil, err
	}

	applyFlagOverrides(run, flagSet)
	if err := run.Validate(); err != nil {
		return nil, err
	}
	return run, nil
}

// LoadFiles reads the run configuration and the optional shared request
// table without consulting command-line flags.
func (l *Loader) LoadFiles(configPath, requestsPath string) (*Run, error) {
	cfgViper := viper.New()
	cfgViper.SetConfigFile(configPath)
	if err := cfgViper.ReadInConfig(); err != nil {
		return nil, err
	}

	var table map[string]*Request
	if requestsPath != "" {
		data, err := os.ReadFile(requestsPath)
		if err != nil {
			return nil, fmt.Errorf("read request table: %w", err)
		}
		named, err := parseRequestTable(data)
		if err != nil {
			return nil, fmt.Errorf("request table %s: %w", requestsPath, err)
		}
		table = make(map[string]*Request, len(named))
		for _, req := range named {
			table[req.Name] = req
		}
	}

	settings, err := asSettings(cfgViper.Get("run"))
	if err != nil || settings == nil {
		return nil, fmt.Errorf("%w: missing top-level 'run' section", ErrInvalidConfig)
	}
	return l.buildRun(settings, table)
}

func applyFlagOverrides(run *Run, flags *pflag.FlagSet) {
	if name := flags.Lookup("run-name").Value.String(); name != "" {
		run.Name = name
	}
	if dir := flags.Lookup("stats-dir").Value.String(); dir != "" {
		run.StatsLog.Dir = dir
	}
	if endpoint := flags.Lookup("trace-endpoint").Value.String(); endpoint != "" {
		run.Tracing.Endpoint = endpoint
	}
}

func (l *Loader) buildRun(settings map[string]any, table map[string]*Request) (*Run, error) {
	run := &Run{
		StatsLog: StatsLog{Dir: "logs/rampline", MaxSizeMB: 5, MaxBackups: 15},
		Tracing:  Tracing{Protocol: "grpc"},
	}

	if val, ok := lookupSetting(settings, "name"); ok {
		name, err := asString(val)
		if err != nil {
			return nil, err
		}
		run.Name = name
	}
	if val, ok := lookupSetting(settings, "wait_between_phases"); ok {
		wait, err := asDuration(val)
		if err != nil {
			return nil, fmt.Errorf("wait_between_phases: %w", err)
		}
		run.PhaseWait = wait
	}
	if val, ok := lookupSetting(settings, "stats_log"); ok {
		if err := applyStatsLog(&run.StatsLog, val); err != nil {
			return nil, err
		}
	}
	if val, ok := lookupSetting(settings, "tracing"); ok {
		if err := applyTracing(&run.Tracing, val); err != nil {
			return nil, err
		}
	}

	phasesVal, ok := lookupSetting(settings, "phases")
	if !ok {
		return nil, fmt.Errorf("%w: 'phases' is required", ErrInvalidConfig)
	}
	phaseItems, ok := phasesVal.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: 'phases' must be a list", ErrInvalidConfig)
	}
	for idx, item := range phaseItems {
		phaseSettings, err := asSettings(item)
		if err != nil {
			return nil, fmt.Errorf("phase %d: %w", idx, err)
		}
		phase, err := l.buildPhase(phaseSettings, table)
		if err != nil {
			return nil, err
		}
		run.Phases = append(run.Phases, phase)
	}
	return run, nil
}

func applyStatsLog(cfg *StatsLog, value any) error {
	settings, err := asSettings(value)
	if err != nil {
		return fmt.Errorf("stats_log: %w", err)
	}
	if val, ok := lookupSetting(settings, "dir"); ok {
		if cfg.Dir, err = asString(val); err != nil {
			return err
		}
	}
	if val, ok := lookupSetting(settings, "max_size_mb"); ok {
		if cfg.MaxSizeMB, err = asInt(val); err != nil {
			return err
		}
	}
	if val, ok := lookupSetting(settings, "max_backups"); ok {
		if cfg.MaxBackups, err = asInt(val); err != nil {
			return err
		}
	}
	return nil
}

func applyTracing(cfg *Tracing, value any) error {
	settings, err := asSettings(value)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	if val, ok := lookupSetting(settings, "endpoint"); ok {
		if cfg.Endpoint, err = asString(val); err != nil {
			return err
		}
	}
	if val, ok := lookupSetting(settings, "protocol"); ok {
		if cfg.Protocol, err = asString(val); err != nil {
			return err
		}
	}
	if val, ok := lookupSetting(settings, "service_name"); ok {
		if cfg.ServiceName, err = asString(val); err != nil {
			return err
		}
	}
	if val, ok := lookupSetting(settings, "insecure"); ok {
		if cfg.Insecure, err = asBool(val); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) buildPhase(settings map[string]any, table map[string]*Request) (Phase, error) {
	var phase Phase

	nameVal, ok := lookupSetting(settings, "name")
	if !ok {
		return phase, fmt.Errorf("%w: phase name is required", ErrInvalidConfig)
	}
	name, err := asString(nameVal)
	if err != nil {
		return phase, err
	}
	phase.Name = name

	runtimeVal, ok := lookupSetting(settings, "run_time", "runtime")
	if !ok {
		return phase, fmt.Errorf("%w: phase %q: run_time is required", ErrInvalidConfig, name)
	}
	runtime, err := asDuration(runtimeVal)
	if err != nil {
		return phase, fmt.Errorf("phase %q: run_time: %w", name, err)
	}
	phase.Runtime = runtime

	scenariosVal, ok := lookupSetting(settings, "scenarios")
	if !ok {
		return phase, fmt.Errorf("%w: phase %q: 'scenarios' is required", ErrInvalidConfig, name)
	}
	items, ok := scenariosVal.([]any)
	if !ok {
		return phase, fmt.Errorf("%w: phase %q: 'scenarios' must be a list", ErrInvalidConfig, name)
	}
	for idx, item := range items {
		scenarioSettings, err := asSettings(item)
		if err != nil {
			return phase, fmt.Errorf("phase %q: scenario %d: %w", name, idx, err)
		}
		scenario, err := l.buildScenario(scenarioSettings, table)
		if err != nil {
			return phase, fmt.Errorf("phase %q: %w", name, err)
		}
		phase.Scenarios = append(phase.Scenarios, scenario)
	}
	return phase, nil
}

func (l *Loader) buildScenario(settings map[string]any, table map[string]*Request) (Scenario, error) {
	var sc Scenario

	nameVal, ok := lookupSetting(settings, "name")
	if !ok {
		return sc, fmt.Errorf("%w: scenario name is required", ErrInvalidConfig)
	}
	name, err := asString(nameVal)
	if err != nil {
		return sc, err
	}
	sc.Name = name

	if val, ok := lookupSetting(settings, "min_concurrency"); ok {
		if sc.MinConcurrency, err = asInt(val); err != nil {
			return sc, fmt.Errorf("scenario %q: min_concurrency: %w", name, err)
		}
	} else {
		return sc, fmt.Errorf("%w: scenario %q: min_concurrency is required", ErrInvalidConfig, name)
	}
	if val, ok := lookupSetting(settings, "max_concurrency"); ok {
		if sc.MaxConcurrency, err = asInt(val); err != nil {
			return sc, fmt.Errorf("scenario %q: max_concurrency: %w", name, err)
		}
	} else {
		return sc, fmt.Errorf("%w: scenario %q: max_concurrency is required", ErrInvalidConfig, name)
	}

	multiplyVal, hasMultiply := lookupSetting(settings, "ramp_up_multiply")
	addVal, hasAdd := lookupSetting(settings, "ramp_up_add")
	if hasMultiply && hasAdd {
		return sc, fmt.Errorf("%w: scenario %q: ramp_up_add and ramp_up_multiply are mutually exclusive", ErrInvalidConfig, name)
	}
	switch {
	case hasMultiply:
		sc.Multiply = true
		if sc.RampUp, err = asIntList(multiplyVal); err != nil {
			return sc, fmt.Errorf("scenario %q: ramp_up_multiply: %w", name, err)
		}
	case hasAdd:
		if sc.RampUp, err = asIntList(addVal); err != nil {
			return sc, fmt.Errorf("scenario %q: ramp_up_add: %w", name, err)
		}
	default:
		sc.RampUp = []int{0}
	}

	if val, ok := lookupSetting(settings, "ramp_up_wait"); ok {
		if sc.RampUpWait, err = asDurationList(val); err != nil {
			return sc, fmt.Errorf("scenario %q: ramp_up_wait: %w", name, err)
		}
	} else {
		sc.RampUpWait = []time.Duration{100 * time.Millisecond}
	}

	if val, ok := lookupSetting(settings, "run_once"); ok {
		if sc.RunOnce, err = asBool(val); err != nil {
			return sc, fmt.Errorf("scenario %q: run_once: %w", name, err)
		}
	}
	if val, ok := lookupSetting(settings, "iterate_through_requests"); ok {
		if sc.IterateThroughRequests, err = asBool(val); err != nil {
			return sc, fmt.Errorf("scenario %q: iterate_through_requests: %w", name, err)
		}
	}
	if val, ok := lookupSetting(settings, "rate_per_second"); ok {
		if sc.RatePerSecond, err = asInt(val); err != nil {
			return sc, fmt.Errorf("scenario %q: rate_per_second: %w", name, err)
		}
	}

	sc.MinConcurrency = l.correctMinConcurrency(name, sc.MinConcurrency, sc.Multiply)

	requests, err := l.resolveRequests(name, settings, table)
	if err != nil {
		return sc, err
	}
	sc.Requests = requests
	return sc, nil
}

// correctMinConcurrency guards the multiplicative mode against a zero base.
// Zero times anything stays zero, so the scenario would never spawn a worker.
func (l *Loader) correctMinConcurrency(scenario string, min int, multiply bool) int {
	if multiply && min == 0 {
		l.logger.Warn("min_concurrency 0 with ramp_up_multiply would never grow; using 1",
			zap.String("scenario", scenario))
		return 1
	}
	return min
}

// resolveRequests builds the ordered request set of a scenario, either from
// inline names resolved against the shared table or from a per-scenario
// request file.
func (l *Loader) resolveRequests(scenario string, settings map[string]any, table map[string]*Request) ([]*Request, error) {
	if val, ok := lookupSetting(settings, "request_file"); ok {
		path, err := asString(val)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("scenario %q: read request file: %w", scenario, err)
		}
		requests, err := parseRequestTable(data)
		if err != nil {
			return nil, fmt.Errorf("scenario %q: request file %s: %w", scenario, path, err)
		}
		return requests, nil
	}

	val, ok := lookupSetting(settings, "requests")
	if !ok {
		return nil, fmt.Errorf("%w: scenario %q: 'requests' or 'request_file' is required", ErrInvalidConfig, scenario)
	}
	names, err := asStringList(val)
	if err != nil {
		return nil, fmt.Errorf("scenario %q: requests: %w", scenario, err)
	}
	requests := make([]*Request, 0, len(names))
	for _, reqName := range names {
		req, ok := table[reqName]
		if !ok {
			return nil, fmt.Errorf("%w: scenario %q: request %q not found in request table", ErrInvalidConfig, scenario, reqName)
		}
		requests = append(requests, req)
	}
	return requests, nil
}

// parseRequestTable decodes a `requests:` mapping preserving document order,
// which a plain map unmarshal would lose.
func parseRequestTable(data []byte) ([]*Request, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("%w: empty request document", ErrInvalidConfig)
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: expected a mapping at the document root", ErrInvalidConfig)
	}

	var tableNode *yaml.Node
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == "requests" {
			tableNode = root.Content[i+1]
			break
		}
	}
	if tableNode == nil || tableNode.Kind != yaml.MappingNode || len(tableNode.Content) == 0 {
		return nil, fmt.Errorf("%w: 'requests' mapping must not be empty", ErrInvalidConfig)
	}

	requests := make([]*Request, 0, len(tableNode.Content)/2)
	for i := 0; i+1 < len(tableNode.Content); i += 2 {
		name := tableNode.Content[i].Value
		req, err := decodeRequest(name, tableNode.Content[i+1])
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, nil
}

type rawRequest struct {
	URL                  string         `yaml:"url"`
	Method               string         `yaml:"method"`
	Params               map[string]any `yaml:"params"`
	ExpectedResponseTime any            `yaml:"expected_response_time"`
	Auth                 string         `yaml:"auth"`
	Type                 string         `yaml:"type"`
	Expect               *struct {
		Path  string `yaml:"path"`
		Value string `yaml:"value"`
	} `yaml:"expect"`
}

func decodeRequest(name string, node *yaml.Node) (*Request, error) {
	var raw rawRequest
	if err := node.Decode(&raw); err != nil {
		return nil, fmt.Errorf("request %q: %w", name, err)
	}
	if strings.TrimSpace(raw.Method) == "" {
		return nil, fmt.Errorf("%w: request %q: method is required", ErrInvalidConfig, name)
	}
	if raw.ExpectedResponseTime == nil {
		return nil, fmt.Errorf("%w: request %q: expected_response_time is required", ErrInvalidConfig, name)
	}
	expected, err := asDuration(raw.ExpectedResponseTime)
	if err != nil {
		return nil, fmt.Errorf("request %q: expected_response_time: %w", name, err)
	}

	kind, err := ResolveKind(raw.Type, raw.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: request %q: %v", ErrInvalidConfig, name, err)
	}

	req := &Request{
		Name:            name,
		URL:             raw.URL,
		Method:          strings.ToUpper(strings.TrimSpace(raw.Method)),
		Params:          raw.Params,
		ExpectedLatency: expected,
		Auth:            raw.Auth,
		Kind:            kind,
	}
	if raw.Expect != nil && raw.Expect.Path != "" {
		req.Expect = &Expectation{Path: raw.Expect.Path, Value: raw.Expect.Value}
	}
	return req, nil
}
