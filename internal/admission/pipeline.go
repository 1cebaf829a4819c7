// Package admission implements the sequential gate pipeline a
// candidate upload must pass before it may enter the catalog:
// fingerprinting, policy audit, quality scoring, then the duplicate
// check. Gate order is fixed; the duplicate check always runs last so
// it sees the fingerprint computed in the same run.
package admission

import (
	"context"
	"errors"
	"time"

	"github.com/scholarstack/scholarstack/backend/internal/ai"
	"github.com/scholarstack/scholarstack/backend/internal/catalog"
	"github.com/scholarstack/scholarstack/backend/internal/fingerprint"
	"go.uber.org/zap"
)

// Decision is the terminal classification of one pipeline run.
type Decision string

const (
	// DecisionAdmitted: all gates passed; the upload may be finalized.
	DecisionAdmitted Decision = "admitted"
	// DecisionRejectedPolicy: the policy audit found the content
	// non-educational. Terminal; the user must edit and resubmit.
	DecisionRejectedPolicy Decision = "rejected_policy"
	// DecisionRejectedDuplicate: the fingerprint matched an existing
	// non-infringing entry. Terminal for this content.
	DecisionRejectedDuplicate Decision = "rejected_duplicate"
	// DecisionBlocked: a gate failed for retryable reasons. The user may
	// re-invoke the pipeline from scratch.
	DecisionBlocked Decision = "blocked"
)

// Stage names the gate at which a run reached its terminal state.
type Stage string

const (
	StageFingerprinting Stage = "fingerprinting"
	StagePolicyAudit    Stage = "policy_audit"
	StageQualityScoring Stage = "quality_scoring"
	StageDuplicateCheck Stage = "duplicate_check"
)

const retryableReason = "The verification server is busy. Please try again."

var (
	errMissingClassifier = errors.New("admission: classifier is required")
	errMissingAssessor   = errors.New("admission: quality assessor is required")
	errMissingRegistry   = errors.New("admission: duplicate registry is required")
)

// Upload is a candidate document entering the pipeline.
type Upload struct {
	Title    string
	Subject  string
	Filename string
	MIME     string
	IsImage  bool
	// Raw carries the encoded bytes for image uploads. Document uploads
	// are fingerprinted through their text surrogate instead.
	Raw []byte
}

// Content returns the normalized capability input for the upload. The
// same representation feeds the fingerprint, so publish-time and
// check-time digests agree.
func (u Upload) Content() ai.Content {
	if u.IsImage {
		return ai.ImageContent(u.Raw, u.MIME)
	}
	return ai.TextContent(fingerprint.TextSurrogate(u.Title, u.Filename))
}

// Outcome reports the result of one pipeline invocation. On
// DecisionAdmitted the fingerprint, quality assessment and suggested
// tags are populated for the caller to persist as one atomic unit with
// the ledger credit.
type Outcome struct {
	Decision      Decision
	Stage         Stage
	Reason        string
	Duplicate     *catalog.Entry
	Fingerprint   string
	Quality       ai.QualityAssessment
	SuggestedTags []string
	Err           error
}

// Admitted reports whether the run passed every gate.
func (o Outcome) Admitted() bool {
	return o.Decision == DecisionAdmitted
}

// Retryable reports whether the user may immediately retry the run.
func (o Outcome) Retryable() bool {
	return o.Decision == DecisionBlocked
}

// DuplicateRegistry looks up an existing non-infringing entry by
// fingerprint; (nil, nil) means no match.
type DuplicateRegistry interface {
	EntryByFingerprint(ctx context.Context, fp string) (*catalog.Entry, error)
}

// PipelineConfig describes the pipeline's gate dependencies.
type PipelineConfig struct {
	Classifier ai.Classifier
	Assessor   ai.QualityAssessor
	Registry   DuplicateRegistry
	// GateTimeout bounds each external capability call. Zero disables
	// the per-gate bound and leaves only the caller's context.
	GateTimeout time.Duration
	Logger      *zap.Logger
}

// Pipeline runs the admission gates strictly in order, short-circuiting
// on the first failure. A single invocation never retries; retries are
// a fresh user-initiated run.
type Pipeline struct {
	classifier  ai.Classifier
	assessor    ai.QualityAssessor
	registry    DuplicateRegistry
	gateTimeout time.Duration
	logger      *zap.Logger
}

// NewPipeline constructs the pipeline.
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if cfg.Classifier == nil {
		return nil, errMissingClassifier
	}
	if cfg.Assessor == nil {
		return nil, errMissingAssessor
	}
	if cfg.Registry == nil {
		return nil, errMissingRegistry
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		classifier:  cfg.Classifier,
		assessor:    cfg.Assessor,
		registry:    cfg.Registry,
		gateTimeout: cfg.GateTimeout,
		logger:      logger,
	}, nil
}

// Run executes one admission attempt. Gates run sequentially and each
// completes fully before the next begins; a gate failure blocks the
// run rather than defaulting to a permissive pass.
func (p *Pipeline) Run(ctx context.Context, upload Upload) Outcome {
	content := upload.Content()

	var fp string
	if upload.IsImage {
		fp = fingerprint.Digest(upload.Raw)
	} else {
		fp = fingerprint.DigestText(content.Text)
	}

	classification, err := runGate(ctx, p.gateTimeout, func(gateCtx context.Context) (ai.Classification, error) {
		return p.classifier.Classify(gateCtx, content)
	})
	if err != nil {
		p.logger.Warn("policy audit unavailable", zap.Error(err))
		return Outcome{Decision: DecisionBlocked, Stage: StagePolicyAudit, Reason: retryableReason, Fingerprint: fp, Err: err}
	}
	if !classification.IsEducational {
		// Suggested tags from a rejected audit are discarded.
		return Outcome{
			Decision:    DecisionRejectedPolicy,
			Stage:       StagePolicyAudit,
			Reason:      classification.ViolationReason,
			Fingerprint: fp,
		}
	}

	quality, err := runGate(ctx, p.gateTimeout, func(gateCtx context.Context) (ai.QualityAssessment, error) {
		return p.assessor.AssessQuality(gateCtx, content, upload.Title, upload.Subject)
	})
	if err != nil {
		p.logger.Warn("quality scoring unavailable", zap.Error(err))
		return Outcome{Decision: DecisionBlocked, Stage: StageQualityScoring, Reason: retryableReason, Fingerprint: fp, Err: err}
	}

	existing, err := p.registry.EntryByFingerprint(ctx, fp)
	if err != nil {
		p.logger.Warn("duplicate registry unavailable", zap.Error(err))
		return Outcome{Decision: DecisionBlocked, Stage: StageDuplicateCheck, Reason: retryableReason, Fingerprint: fp, Err: err}
	}
	if existing != nil {
		return Outcome{
			Decision:    DecisionRejectedDuplicate,
			Stage:       StageDuplicateCheck,
			Reason:      "This document matches an existing record in our library.",
			Duplicate:   existing,
			Fingerprint: fp,
		}
	}

	return Outcome{
		Decision:      DecisionAdmitted,
		Fingerprint:   fp,
		Quality:       quality,
		SuggestedTags: classification.SuggestedTags,
	}
}

// runGate bounds a single capability call with the per-gate timeout.
func runGate[T any](ctx context.Context, timeout time.Duration, call func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return call(ctx)
	}
	gateCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return call(gateCtx)
}
