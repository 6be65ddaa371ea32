package gate

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"
)

const decisionQuery = "data.focusd.gate.decision"

//go:embed default.rego
var defaultPolicy string

// Facts is the policy input gathered on each sync.
type Facts struct {
	Relax RelaxFacts `json:"relax"`
	Error bool       `json:"error"`
}

// RelaxFacts mirrors the relax state in milliseconds.
type RelaxFacts struct {
	IsRelaxing       bool  `json:"is_relaxing"`
	RemainingMs      int64 `json:"remaining_ms"`
	ChunkRemainingMs int64 `json:"chunk_remaining_ms"`
	UsedMs           int64 `json:"used_ms"`
}

// Decision is the policy output.
type Decision struct {
	Block  bool   `json:"block"`
	Reason string `json:"reason"`
}

// Policy evaluates the gate decision with OPA.
type Policy struct {
	policyDir string
	logger    zerolog.Logger

	mu    sync.RWMutex
	query rego.PreparedEvalQuery
}

// NewPolicy loads the embedded policy, or every .rego file in policyDir when it
// is set.
func NewPolicy(policyDir string, logger zerolog.Logger) (*Policy, error) {
	p := &Policy{
		policyDir: policyDir,
		logger:    logger.With().Str("component", "opa").Logger(),
	}

	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Reload re-reads and re-prepares the policy modules.
func (p *Policy) Reload() error {
	modules, err := p.loadModules()
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	opts := []func(*rego.Rego){rego.Query(decisionQuery)}
	for _, name := range sortedKeys(modules) {
		opts = append(opts, rego.Module(name, modules[name]))
	}

	query, err := rego.New(opts...).PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("failed to prepare gate query: %w", err)
	}

	p.mu.Lock()
	p.query = query
	p.mu.Unlock()

	p.logger.Info().Int("modules", len(modules)).Str("policy_dir", p.policyDir).Msg("Gate policy loaded")
	return nil
}

func (p *Policy) loadModules() (map[string]string, error) {
	if p.policyDir == "" {
		return map[string]string{"default.rego": defaultPolicy}, nil
	}

	files, err := filepath.Glob(filepath.Join(p.policyDir, "*.rego"))
	if err != nil {
		return nil, fmt.Errorf("failed to glob policy files: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no policy files found in %s", p.policyDir)
	}

	modules := make(map[string]string, len(files))
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read policy file %s: %w", file, err)
		}

		// Parse first so syntax errors name the file.
		module, err := ast.ParseModule(file, string(content))
		if err != nil {
			return nil, fmt.Errorf("failed to parse policy file %s: %w", file, err)
		}

		modules[file] = string(content)
		p.logger.Debug().Str("file", file).Str("package", module.Package.Path.String()).Msg("Loaded policy module")
	}
	return modules, nil
}

// Evaluate returns the decision for facts.
func (p *Policy) Evaluate(ctx context.Context, facts Facts) (Decision, error) {
	startTime := time.Now()

	input := map[string]interface{}{
		"relax": map[string]interface{}{
			"is_relaxing":        facts.Relax.IsRelaxing,
			"remaining_ms":       facts.Relax.RemainingMs,
			"chunk_remaining_ms": facts.Relax.ChunkRemainingMs,
			"used_ms":            facts.Relax.UsedMs,
		},
		"error": facts.Error,
	}

	p.mu.RLock()
	query := p.query
	p.mu.RUnlock()

	results, err := query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Decision{}, fmt.Errorf("gate query evaluation failed: %w", err)
	}

	p.logger.Debug().Dur("duration_ms", time.Since(startTime)).Msg("Gate query evaluated")

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{}, fmt.Errorf("no results from gate query")
	}

	resultBytes, err := json.Marshal(results[0].Expressions[0].Value)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to marshal gate decision: %w", err)
	}

	var decision Decision
	if err := json.Unmarshal(resultBytes, &decision); err != nil {
		return Decision{}, fmt.Errorf("failed to unmarshal gate decision: %w", err)
	}
	return decision, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
