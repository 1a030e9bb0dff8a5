// Package mercadopago adapts the Mercado Pago subscriptions (preapproval)
// API to the plan lifecycle. Client implements coachplan.PaymentGateway using
// the official SDK (github.com/mercadopago/sdk-go) and resolves webhook
// notifications into coachplan.PaymentEvent values.
//
//	var cfg mercadopago.Config
//	config.MustLoad(&cfg)
//	gw := mercadopago.NewClient(cfg, mercadopago.WithLogger(log))
//	svc := coachplan.NewService(coachplan.DefaultCatalog(), store, gw)
//
// MP_BASE_URL redirects every request, SDK calls included, to another host
// such as a sandbox proxy.
//
// Failures are reported with the coachplan sentinels so callers can branch on
// them without importing this package: missing or rejected credentials wrap
// coachplan.ErrPaymentNotConfigured, unknown subscriptions wrap
// coachplan.ErrSubscriptionNotFound and everything else wraps
// coachplan.ErrGatewayUnavailable. The *APIError with the provider's message
// is joined to the sentinel and can be extracted with errors.As.
package mercadopago
