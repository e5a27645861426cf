// Package deploy places and removes the workload an intent asks for.
package deploy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/validation"

	"intentmesh/internal/config"
	"intentmesh/internal/domain"
	"intentmesh/internal/logging"
)

// Deployer ensures the workload of an intent exists, or removes it.
// Both operations are idempotent.
type Deployer interface {
	Ensure(ctx context.Context, intentID string, target domain.Target) error
	Remove(ctx context.Context, intentID string) error
}

var (
	_ Deployer = Noop{}
	_ Deployer = &Kubernetes{}
)

// New builds the deployer selected by deploy.backend.
func New(cfg config.DeployConfig, logger *zap.Logger) (Deployer, error) {
	switch cfg.Backend {
	case config.DeployNoop, "":
		return Noop{Logger: logger}, nil
	case config.DeployKubernetes:
		cs, err := NewClientset(cfg.Kubeconfig)
		if err != nil {
			return nil, err
		}
		return NewKubernetes(WrapClientset(cs), cfg.Namespace, cfg.Replicas, logger), nil
	default:
		return nil, fmt.Errorf("unknown deploy backend %q", cfg.Backend)
	}
}

// Noop only logs what would be deployed.
type Noop struct {
	Logger *zap.Logger
}

func (n Noop) Ensure(_ context.Context, intentID string, target domain.Target) error {
	logging.OrNop(n.Logger).Info("workload ensure skipped",
		zap.String("intent", intentID),
		zap.String("workload", WorkloadName(intentID)),
		zap.String("descriptor", target.Descriptor))
	return nil
}

func (n Noop) Remove(_ context.Context, intentID string) error {
	logging.OrNop(n.Logger).Info("workload remove skipped",
		zap.String("intent", intentID), zap.String("workload", WorkloadName(intentID)))
	return nil
}

const (
	workloadPrefix = "intent-"
	hashLen        = 8
)

// WorkloadName derives a DNS-1123 label from an intent id. Ids that are not
// already valid labels get a short hash of the raw id appended, so distinct
// ids never share a workload.
func WorkloadName(intentID string) string {
	if intentID == "" {
		return strings.TrimSuffix(workloadPrefix, "-")
	}
	label := dnsLabel(intentID)
	if label == intentID && len(workloadPrefix)+len(label) <= validation.DNS1123LabelMaxLength {
		return workloadPrefix + label
	}
	sum := sha256.Sum256([]byte(intentID))
	suffix := hex.EncodeToString(sum[:])[:hashLen]
	room := validation.DNS1123LabelMaxLength - len(workloadPrefix) - len(suffix) - 1
	if len(label) > room {
		label = strings.TrimRight(label[:room], "-")
	}
	if label == "" {
		return workloadPrefix + suffix
	}
	return workloadPrefix + label + "-" + suffix
}

// dnsLabel lowercases s and collapses every run of other characters into a
// single dash.
func dnsLabel(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.Trim(b.String(), "-")
}
