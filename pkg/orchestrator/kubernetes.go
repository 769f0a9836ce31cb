package orchestrator

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	meta "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// KubernetesConfig configures the Kubernetes orchestrator.
type KubernetesConfig struct {
	// Namespace is used when a pool does not name its own group.
	Namespace string
	// ServiceLabel is the pod label carrying the service name (e.g. "app").
	ServiceLabel string
	// Kubeconfig is used when not running in-cluster. Empty means the default home file.
	Kubeconfig string
}

// Kubernetes maps pools onto Deployments: pods are instances, the Deployment replica
// count is the desired size.
type Kubernetes struct {
	Logger *zap.Logger
	client kubernetes.Interface
	cfg    KubernetesConfig
}

var _ Orchestrator = (*Kubernetes)(nil)

// NewKubernetesFromConfig builds a client from the in-cluster config, falling back
// to a kubeconfig file.
func NewKubernetesFromConfig(cfg KubernetesConfig, logger *zap.Logger) (*Kubernetes, error) {
	log := logger.With(zap.String("component", "k8s_orchestrator"))

	var (
		rc  *rest.Config
		err error
		src string
	)
	if rc, err = rest.InClusterConfig(); err == nil {
		src = "in_cluster"
	} else {
		kubeconfig := cfg.Kubeconfig
		if kubeconfig == "" {
			kubeconfig = os.Getenv("KUBECONFIG")
		}
		if kubeconfig == "" {
			kubeconfig = clientcmd.RecommendedHomeFile
		}
		rc, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			log.Error("kube config build failed", zap.Error(err))
			return nil, fmt.Errorf("build kube config: %w", err)
		}
		src = "kubeconfig"
	}

	cs, err := kubernetes.NewForConfig(rc)
	if err != nil {
		log.Error("k8s client init failed", zap.Error(err))
		return nil, fmt.Errorf("k8s client: %w", err)
	}

	k := NewKubernetes(cs, cfg, logger)
	log.Info("orchestrator initialized",
		zap.String("config_source", src),
		zap.String("namespace", k.cfg.Namespace),
		zap.String("service_label", k.cfg.ServiceLabel),
	)
	return k, nil
}

// NewKubernetes wraps an existing clientset.
func NewKubernetes(client kubernetes.Interface, cfg KubernetesConfig, logger *zap.Logger) *Kubernetes {
	if cfg.Namespace == "" {
		cfg.Namespace = "default"
	}
	if cfg.ServiceLabel == "" {
		cfg.ServiceLabel = "app"
	}
	return &Kubernetes{
		Logger: logger.With(zap.String("component", "k8s_orchestrator")),
		client: client,
		cfg:    cfg,
	}
}

func (k *Kubernetes) namespace(group string) string {
	if group != "" {
		return group
	}
	return k.cfg.Namespace
}

// ListInstances lists running, non-terminating pods carrying the service label.
func (k *Kubernetes) ListInstances(ctx context.Context, service, group string) ([]Instance, error) {
	ns := k.namespace(group)
	selector := labels.SelectorFromSet(labels.Set{k.cfg.ServiceLabel: service}).String()

	pods, err := k.client.CoreV1().Pods(ns).List(ctx, meta.ListOptions{LabelSelector: selector})
	if err != nil {
		return nil, fmt.Errorf("list pods %s/%s: %w", ns, selector, err)
	}

	out := make([]Instance, 0, len(pods.Items))
	for i := range pods.Items {
		pod := &pods.Items[i]
		if pod.Status.Phase != corev1.PodRunning || pod.DeletionTimestamp != nil {
			continue
		}
		inst := Instance{
			ID:     pod.Name,
			Status: StatusRunning,
			Labels: pod.Labels,
		}
		if pod.Status.StartTime != nil {
			inst.StartedAt = pod.Status.StartTime.Time
		}
		out = append(out, inst)
	}
	return out, nil
}

// SetReplicas updates the replica count of the Deployment named after the service.
func (k *Kubernetes) SetReplicas(ctx context.Context, req ScaleRequest) error {
	ns := k.namespace(req.Group)
	deploy, err := k.client.AppsV1().Deployments(ns).Get(ctx, req.Service, meta.GetOptions{})
	if apierrors.IsNotFound(err) {
		return fmt.Errorf("deployment %s/%s not found", ns, req.Service)
	}
	if err != nil {
		return fmt.Errorf("get deployment: %w", err)
	}

	want := int32(req.Replicas)
	if deploy.Spec.Replicas != nil && *deploy.Spec.Replicas == want {
		k.Logger.Debug("deployment already at desired replicas", zap.String("deployment", req.Service), zap.Int32("replicas", want))
		return nil
	}
	deploy.Spec.Replicas = &want
	if _, err := k.client.AppsV1().Deployments(ns).Update(ctx, deploy, meta.UpdateOptions{}); err != nil {
		return fmt.Errorf("update deployment replicas: %w", err)
	}
	k.Logger.Info("deployment scaled", zap.String("namespace", ns), zap.String("deployment", req.Service), zap.Int32("replicas", want))
	return nil
}

// Ping queries the API server version.
func (k *Kubernetes) Ping(_ context.Context) error {
	v, err := k.client.Discovery().ServerVersion()
	if err != nil {
		return fmt.Errorf("k8s api unreachable: %w", err)
	}
	k.Logger.Info("k8s api reachable", zap.String("git_version", v.GitVersion))
	return nil
}

// Close is a no-op.
func (k *Kubernetes) Close() error {
	k.Logger.Info("orchestrator closed")
	return nil
}
