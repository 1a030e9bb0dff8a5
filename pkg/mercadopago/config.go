package mercadopago

import "time"

// Config holds Mercado Pago credentials and defaults. An empty AccessToken
// leaves the client unconfigured: every call fails with
// coachplan.ErrPaymentNotConfigured instead of reaching the API.
type Config struct {
	AccessToken string        `env:"MP_ACCESS_TOKEN"`
	BaseURL     string        `env:"MP_BASE_URL" envDefault:"https://api.mercadopago.com"`
	BackURL     string        `env:"MP_BACK_URL" envDefault:"https://app.fitmarket.com.br/coach/plan"`
	Currency    string        `env:"MP_CURRENCY" envDefault:"BRL"`
	Timeout     time.Duration `env:"MP_TIMEOUT" envDefault:"15s"`
}
