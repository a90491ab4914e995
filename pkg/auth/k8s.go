package auth

import (
	"fmt"
	"net/http"

	authnv1 "k8s.io/api/authentication/v1"
	authzv1 "k8s.io/api/authorization/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/lightspan-ai/gateway/pkg/config"
)

// K8sModule authenticates bearer tokens with a Kubernetes TokenReview and
// authorizes callers with a SubjectAccessReview on a configured non-resource
// path.
type K8sModule struct {
	cfg    config.K8sAuthConfig
	client kubernetes.Interface
}

// NewK8sModule creates the k8s auth module from in-cluster configuration,
// falling back to the default kubeconfig loading rules.
func NewK8sModule(cfg config.K8sAuthConfig) (*K8sModule, error) {
	restCfg, err := rest.InClusterConfig()
	if err != nil {
		loader := clientcmd.NewDefaultClientConfigLoadingRules()
		restCfg, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
			loader, &clientcmd.ConfigOverrides{}).ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to build kubernetes client config: %w", err)
		}
	}

	client, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}
	return NewK8sModuleWithClient(cfg, client), nil
}

// NewK8sModuleWithClient creates the module with an injected clientset.
func NewK8sModuleWithClient(cfg config.K8sAuthConfig, client kubernetes.Interface) *K8sModule {
	return &K8sModule{cfg: cfg, client: client}
}

// Authenticate implements Module.
func (m *K8sModule) Authenticate(r *http.Request) (*Identity, error) {
	token, err := ExtractBearer(r)
	if err != nil {
		return nil, err
	}
	ctx := r.Context()

	review, err := m.client.AuthenticationV1().TokenReviews().Create(ctx,
		&authnv1.TokenReview{Spec: authnv1.TokenReviewSpec{Token: token}},
		metav1.CreateOptions{})
	if err != nil {
		return nil, fmt.Errorf("token review failed: %w", err)
	}
	if !review.Status.Authenticated {
		return nil, fmt.Errorf("%w: token review rejected the token", ErrForbidden)
	}

	user := review.Status.User
	uid := user.UID
	if user.Username == m.cfg.AdminSentinel && m.cfg.ClusterID != "" {
		// kube:admin carries no stable UID, so the cluster stands in for it.
		uid = m.cfg.ClusterID
	}

	sar, err := m.client.AuthorizationV1().SubjectAccessReviews().Create(ctx,
		&authzv1.SubjectAccessReview{Spec: authzv1.SubjectAccessReviewSpec{
			User:   user.Username,
			Groups: user.Groups,
			NonResourceAttributes: &authzv1.NonResourceAttributes{
				Path: m.cfg.AccessReviewPath,
				Verb: "get",
			},
		}},
		metav1.CreateOptions{})
	if err != nil {
		return nil, fmt.Errorf("subject access review failed: %w", err)
	}
	if !sar.Status.Allowed {
		return nil, fmt.Errorf("%w: user %s may not access %s", ErrForbidden,
			user.Username, m.cfg.AccessReviewPath)
	}

	return &Identity{
		UserID:   uid,
		Username: user.Username,
		Token:    token,
	}, nil
}
