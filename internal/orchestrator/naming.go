package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/wonny/demandcast/internal/objectstore"
	"github.com/wonny/demandcast/internal/pipelineconfig"
)

// ProjectName returns <prefix>_<run>_<HHMM>
func ProjectName(prefix, runID string, at time.Time) string {
	return fmt.Sprintf("%s_%s_%s", prefix, sanitize(runID), at.Format("1504"))
}

// sanitize keeps characters the forecasting service accepts in resource names
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, s)
}

// names 라운드별 원격 리소스 이름과 object store 경로
type names struct {
	cfg     *pipelineconfig.Config
	project string
	alg     string
	round   int
}

func newNames(cfg *pipelineconfig.Config, project, alg string, round int) names {
	return names{cfg: cfg, project: project, alg: alg, round: round}
}

func (n names) scoped(base string) string {
	return fmt.Sprintf("%s_%s_%sr%d", n.project, n.alg, base, n.round)
}

func (n names) group() string          { return n.scoped(n.cfg.Datasets.GroupName) }
func (n names) targetDataset() string  { return n.scoped(n.cfg.Datasets.TargetName) }
func (n names) relatedDataset() string { return n.scoped(n.cfg.Datasets.RelatedName) }
func (n names) itemDataset() string    { return n.scoped(n.cfg.Datasets.ItemMetadataName) }
func (n names) targetImport() string   { return n.scoped("target_data_import") }
func (n names) relatedImport() string  { return n.scoped("related_data_import") }
func (n names) itemImport() string     { return n.scoped("item_data_import") }

func (n names) predictor() string {
	return fmt.Sprintf("%s_%sr%d", n.project, n.alg, n.round)
}

func (n names) forecast() string {
	return fmt.Sprintf("%s_%s_fctr%d", n.project, n.alg, n.round)
}

func (n names) export() string {
	return fmt.Sprintf("%s_%s_fct_expr%d", n.project, n.alg, n.round)
}

// workdir <project>_<alg>
func (n names) workdir() string {
	return n.project + "_" + n.alg
}

func (n names) processedKey(file string) string {
	return objectstore.Join(n.cfg.Paths.Processed, n.workdir(), fmt.Sprintf("r%d", n.round), file)
}

// exportPrefix <output>/<project>_<alg>/<alg>_fct_expr<i>
func (n names) exportPrefix() string {
	return objectstore.Join(n.cfg.Paths.Output, n.workdir(), fmt.Sprintf("%s_fct_expr%d", n.alg, n.round))
}

func outputKey(cfg *pipelineconfig.Config, project, alg string) string {
	return objectstore.Join(cfg.Paths.Output, project+"_"+alg, "output.csv")
}
