package auth

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	authnv1 "k8s.io/api/authentication/v1"
	authzv1 "k8s.io/api/authorization/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/lightspan-ai/gateway/pkg/config"
)

func newFakeK8sModule(t *testing.T, authenticated bool, username string, allowed bool) *K8sModule {
	t.Helper()

	client := fake.NewSimpleClientset()
	client.PrependReactor("create", "tokenreviews",
		func(action k8stesting.Action) (bool, runtime.Object, error) {
			return true, &authnv1.TokenReview{
				Status: authnv1.TokenReviewStatus{
					Authenticated: authenticated,
					User: authnv1.UserInfo{
						Username: username,
						UID:      "uid-" + username,
					},
				},
			}, nil
		})
	client.PrependReactor("create", "subjectaccessreviews",
		func(action k8stesting.Action) (bool, runtime.Object, error) {
			return true, &authzv1.SubjectAccessReview{
				Status: authzv1.SubjectAccessReviewStatus{Allowed: allowed},
			}, nil
		})

	return NewK8sModuleWithClient(config.K8sAuthConfig{
		ClusterID:        "cluster-1234",
		AccessReviewPath: "/ls-access",
		AdminSentinel:    "kube:admin",
	}, client)
}

func TestK8sModuleAuthenticates(t *testing.T) {
	m := newFakeK8sModule(t, true, "bob", true)

	r := httptest.NewRequest("POST", "/v1/query", nil)
	r.Header.Set("Authorization", "Bearer sa-token")

	id, err := m.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, "uid-bob", id.UserID)
	assert.Equal(t, "bob", id.Username)
	assert.Equal(t, "sa-token", id.Token)
}

func TestK8sModuleAdminSentinelUsesClusterID(t *testing.T) {
	m := newFakeK8sModule(t, true, "kube:admin", true)

	r := httptest.NewRequest("POST", "/v1/query", nil)
	r.Header.Set("Authorization", "Bearer sa-token")

	id, err := m.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, "cluster-1234", id.UserID)
}

func TestK8sModuleRejectsUnauthenticatedToken(t *testing.T) {
	m := newFakeK8sModule(t, false, "", false)

	r := httptest.NewRequest("POST", "/v1/query", nil)
	r.Header.Set("Authorization", "Bearer bad")

	_, err := m.Authenticate(r)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestK8sModuleRejectsDisallowedUser(t *testing.T) {
	m := newFakeK8sModule(t, true, "mallory", false)

	r := httptest.NewRequest("POST", "/v1/query", nil)
	r.Header.Set("Authorization", "Bearer sa-token")

	_, err := m.Authenticate(r)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestK8sModuleRequiresBearer(t *testing.T) {
	m := newFakeK8sModule(t, true, "bob", true)

	r := httptest.NewRequest("POST", "/v1/query", nil)
	_, err := m.Authenticate(r)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
