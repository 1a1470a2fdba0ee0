package adapters

import (
	"strings"

	"github.com/smallbiznis/learnpay/internal/payment/domain"
)

const (
	KindStripe = "stripe"
	KindBkash  = "bkash"
)

// Local cards settle through Stripe in taka.
var methodKinds = map[domain.Method]string{
	domain.MethodStripe: KindStripe,
	domain.MethodVisaBD: KindStripe,
	domain.MethodBkash:  KindBkash,
}

type Registry struct {
	gateways map[string]domain.Gateway
}

func NewRegistry(gateways ...domain.Gateway) *Registry {
	registry := &Registry{gateways: map[string]domain.Gateway{}}
	for _, gateway := range gateways {
		if gateway == nil {
			continue
		}
		kind := normalizeKind(gateway.Kind())
		if kind == "" {
			continue
		}
		registry.gateways[kind] = gateway
	}
	return registry
}

// KindForMethod names the gateway that settles a payment method.
func KindForMethod(method domain.Method) (string, bool) {
	kind, ok := methodKinds[method]
	return kind, ok
}

func (r *Registry) ForMethod(method domain.Method) (domain.Gateway, error) {
	kind, ok := KindForMethod(method)
	if !ok {
		return nil, domain.ErrInvalidMethod
	}
	gateway, ok := r.ForKind(kind)
	if !ok {
		return nil, domain.ErrMethodUnavailable
	}
	return gateway, nil
}

func (r *Registry) ForKind(kind string) (domain.Gateway, bool) {
	if r == nil {
		return nil, false
	}
	gateway, ok := r.gateways[normalizeKind(kind)]
	return gateway, ok
}

// Verifier returns the webhook verifier of a gateway that accepts webhooks.
func (r *Registry) Verifier(kind string) (domain.WebhookVerifier, error) {
	gateway, ok := r.ForKind(kind)
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	verifier, ok := gateway.(domain.WebhookVerifier)
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return verifier, nil
}

func normalizeKind(kind string) string {
	return strings.ToLower(strings.TrimSpace(kind))
}
