package deploy

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
	"go.uber.org/zap"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/validation"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"intentmesh/internal/domain"
	"intentmesh/internal/logging"
)

const (
	labelName      = "app.kubernetes.io/name"
	labelManagedBy = "app.kubernetes.io/managed-by"
	managedBy      = "intentmesh"

	annotationIntent      = "intentmesh.io/intent-id"
	annotationApplication = "intentmesh.io/application"
	annotationRoutingKey  = "intentmesh.io/routing-key"
)

// Client is the subset of the Kubernetes API the deployer calls.
type Client interface {
	GetDeployment(ctx context.Context, namespace, name string) (*appsv1.Deployment, error)
	CreateDeployment(ctx context.Context, namespace string, d *appsv1.Deployment) (*appsv1.Deployment, error)
	UpdateDeployment(ctx context.Context, namespace string, d *appsv1.Deployment) (*appsv1.Deployment, error)
	DeleteDeployment(ctx context.Context, namespace, name string) error
}

type clientset struct {
	cs kubernetes.Interface
}

var _ Client = &clientset{}

// WrapClientset adapts a typed clientset, real or fake, to Client.
func WrapClientset(cs kubernetes.Interface) Client {
	return &clientset{cs: cs}
}

func (c *clientset) GetDeployment(ctx context.Context, namespace, name string) (*appsv1.Deployment, error) {
	return c.cs.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
}

func (c *clientset) CreateDeployment(ctx context.Context, namespace string, d *appsv1.Deployment) (*appsv1.Deployment, error) {
	return c.cs.AppsV1().Deployments(namespace).Create(ctx, d, metav1.CreateOptions{})
}

func (c *clientset) UpdateDeployment(ctx context.Context, namespace string, d *appsv1.Deployment) (*appsv1.Deployment, error) {
	return c.cs.AppsV1().Deployments(namespace).Update(ctx, d, metav1.UpdateOptions{})
}

func (c *clientset) DeleteDeployment(ctx context.Context, namespace, name string) error {
	foreground := metav1.DeletePropagationForeground
	return c.cs.AppsV1().Deployments(namespace).Delete(ctx, name, metav1.DeleteOptions{PropagationPolicy: &foreground})
}

// NewClientset connects with kubeconfig, $KUBECONFIG, or the in-cluster
// service account, in that order.
func NewClientset(kubeconfig string) (kubernetes.Interface, error) {
	if kubeconfig == "" {
		kubeconfig = os.Getenv("KUBECONFIG")
	}
	var (
		cfg *rest.Config
		err error
	)
	if kubeconfig == "" {
		cfg, err = rest.InClusterConfig()
	} else {
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	}
	if err != nil {
		return nil, fmt.Errorf("load kubernetes config: %w", err)
	}
	cs, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("create kubernetes client: %w", err)
	}
	return cs, nil
}

// Kubernetes runs each intent's descriptor as a Deployment.
type Kubernetes struct {
	client    Client
	namespace string
	replicas  int32
	logger    *zap.Logger
}

func NewKubernetes(client Client, namespace string, replicas int32, logger *zap.Logger) *Kubernetes {
	if replicas <= 0 {
		replicas = 1
	}
	return &Kubernetes{client: client, namespace: namespace, replicas: replicas, logger: logging.OrNop(logger)}
}

// Ensure creates the Deployment of intentID, or updates it in place when it
// already exists.
func (k *Kubernetes) Ensure(ctx context.Context, intentID string, target domain.Target) error {
	ref, err := name.ParseReference(target.Descriptor)
	if err != nil {
		return domain.Invalidf("deployment descriptor %q is not an image reference: %v", target.Descriptor, err)
	}
	workload := WorkloadName(intentID)
	desired := k.deployment(workload, intentID, target, ref.Name())

	current, err := k.client.GetDeployment(ctx, k.namespace, workload)
	switch {
	case apierrors.IsNotFound(err):
		if _, err := k.client.CreateDeployment(ctx, k.namespace, desired); err != nil {
			return kubeError("create deployment "+workload, err)
		}
		k.logger.Info("workload created", zap.String("intent", intentID), zap.String("workload", workload), zap.String("image", ref.Name()))
		return nil
	case err != nil:
		return kubeError("get deployment "+workload, err)
	}

	updated := current.DeepCopy()
	if updated.Labels == nil {
		updated.Labels = map[string]string{}
	}
	for key, v := range desired.Labels {
		updated.Labels[key] = v
	}
	if updated.Annotations == nil {
		updated.Annotations = map[string]string{}
	}
	for key, v := range desired.Annotations {
		updated.Annotations[key] = v
	}
	updated.Spec.Replicas = desired.Spec.Replicas
	updated.Spec.Template = desired.Spec.Template
	if _, err := k.client.UpdateDeployment(ctx, k.namespace, updated); err != nil {
		return kubeError("update deployment "+workload, err)
	}
	k.logger.Info("workload updated", zap.String("intent", intentID), zap.String("workload", workload), zap.String("image", ref.Name()))
	return nil
}

// Remove deletes the Deployment of intentID. A missing Deployment is not an error.
func (k *Kubernetes) Remove(ctx context.Context, intentID string) error {
	workload := WorkloadName(intentID)
	err := k.client.DeleteDeployment(ctx, k.namespace, workload)
	if apierrors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return kubeError("delete deployment "+workload, err)
	}
	k.logger.Info("workload removed", zap.String("intent", intentID), zap.String("workload", workload))
	return nil
}

func (k *Kubernetes) deployment(workload, intentID string, target domain.Target, image string) *appsv1.Deployment {
	labels := map[string]string{
		labelName:      workload,
		labelManagedBy: managedBy,
	}
	container := "workload"
	if target.Application != "" {
		container = containerName(target.Application)
	}
	replicas := k.replicas
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:      workload,
			Namespace: k.namespace,
			Labels:    labels,
			Annotations: map[string]string{
				annotationIntent:      intentID,
				annotationApplication: target.Application,
				annotationRoutingKey:  target.RoutingKey,
			},
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: map[string]string{labelName: workload}},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{{Name: container, Image: image}},
				},
			},
		},
	}
}

func containerName(application string) string {
	n := dnsLabel(application)
	if len(n) > validation.DNS1123LabelMaxLength {
		n = strings.TrimRight(n[:validation.DNS1123LabelMaxLength], "-")
	}
	if n == "" {
		return "workload"
	}
	return n
}

// kubeError classifies API failures the way HTTP callers see them.
func kubeError(op string, err error) error {
	switch {
	case apierrors.IsInvalid(err), apierrors.IsBadRequest(err):
		return domain.Invalidf("%s: %v", op, err)
	case apierrors.IsConflict(err), apierrors.IsAlreadyExists(err):
		return domain.Conflictf("%s: %v", op, err)
	case apierrors.IsForbidden(err), apierrors.IsUnauthorized(err):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return domain.Unavailable(op, err)
	}
}
