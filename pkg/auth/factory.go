package auth

import (
	"fmt"

	"github.com/lightspan-ai/gateway/pkg/config"
)

// NewModuleFromConfig creates the configured auth module.
func NewModuleFromConfig(cfg *config.AuthConfig) (Module, error) {
	switch cfg.Module {
	case config.AuthModuleNoop:
		return NewNoop(), nil
	case config.AuthModuleNoopWithToken:
		return NewNoopWithToken(), nil
	case config.AuthModuleJWK:
		return NewJWKModule(cfg.JWK), nil
	case config.AuthModuleK8s:
		return NewK8sModule(cfg.K8s)
	default:
		return nil, fmt.Errorf("unknown auth module: %s", cfg.Module)
	}
}
