// Package sigma evaluates emitted EXEC records against Sigma detection
// rules. The detector plugs into the output path as a sink; matches are
// surfaced on the diagnostic log, never on the event stream itself.
package sigma

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sigma "github.com/bradleyjkemp/sigma-go"
	"github.com/bradleyjkemp/sigma-go/evaluator"
	log "github.com/sirupsen/logrus"

	"github.com/haolipeng/agentsight/correlate"
)

// Detector holds the compiled rule evaluators.
type Detector struct {
	rulesDir   string
	evaluators map[string]*evaluator.RuleEvaluator
	matches    int
}

// fieldConfig maps the Sigma process-creation field names onto the fields
// our exec records carry.
func fieldConfig() sigma.Config {
	return sigma.Config{
		Title: "agentsight exec fields",
		FieldMappings: map[string]sigma.FieldMapping{
			"CommandLine":     {TargetNames: []string{"CommandLine"}},
			"Image":           {TargetNames: []string{"Image"}},
			"ProcessId":       {TargetNames: []string{"ProcessId"}},
			"ParentProcessId": {TargetNames: []string{"ParentProcessId"}},
		},
	}
}

// NewDetector loads every .yml/.yaml rule under rulesDir. Files that fail
// to parse are skipped with a warning so one bad rule cannot disable the
// rest.
func NewDetector(rulesDir string) (*Detector, error) {
	entries, err := os.ReadDir(rulesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules directory: %w", err)
	}

	d := &Detector{
		rulesDir:   rulesDir,
		evaluators: make(map[string]*evaluator.RuleEvaluator),
	}

	config := fieldConfig()
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || (!strings.HasSuffix(name, ".yml") && !strings.HasSuffix(name, ".yaml")) {
			continue
		}

		content, err := os.ReadFile(filepath.Join(rulesDir, name))
		if err != nil {
			log.Warnf("sigma: cannot read rule %s: %v", name, err)
			continue
		}

		rule, err := sigma.ParseRule(content)
		if err != nil {
			log.Warnf("sigma: cannot parse rule %s: %v", name, err)
			continue
		}

		d.evaluators[name] = evaluator.ForRule(rule, evaluator.WithConfig(config))
	}

	log.Debugf("sigma: loaded %d rules from %s", len(d.evaluators), rulesDir)
	return d, nil
}

// RuleCount returns how many rules were loaded.
func (d *Detector) RuleCount() int {
	return len(d.evaluators)
}

// MatchCount returns how many rule matches have fired so far.
func (d *Detector) MatchCount() int {
	return d.matches
}

// Emit implements correlate.Sink. Only exec records are evaluated; all
// other record kinds pass through untouched.
func (d *Detector) Emit(record any) error {
	rec, ok := record.(correlate.ExecRecord)
	if !ok {
		return nil
	}

	event := map[string]interface{}{
		"CommandLine":     rec.FullCommand,
		"Image":           rec.Filename,
		"ProcessId":       rec.PID,
		"ParentProcessId": rec.PPID,
		"Comm":            rec.Comm,
	}

	ctx := context.Background()
	for name, ruleEvaluator := range d.evaluators {
		result, err := ruleEvaluator.Matches(ctx, event)
		if err != nil {
			log.Warnf("sigma: error evaluating rule %s: %v", name, err)
			continue
		}
		if !result.Match {
			continue
		}
		d.matches++
		log.WithFields(log.Fields{
			"rule":    ruleEvaluator.Rule.Title,
			"rule_id": ruleEvaluator.Rule.ID,
			"pid":     rec.PID,
			"comm":    rec.Comm,
			"command": rec.FullCommand,
		}).Warn("sigma rule matched")
	}
	return nil
}
