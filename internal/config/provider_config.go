package config

import "time"

const (
	minPageSize = 1
	maxPageSize = 50
)

// ProviderConfig describes the music provider's OAuth2 endpoints and Web API.
type ProviderConfig interface {
	GetClientID() string
	GetRedirectURI() string
	GetAuthURL() string
	GetTokenURL() string
	GetAPIBaseURL() string
	GetProviderTimeout() time.Duration
	GetProviderRate() float64
	GetProviderBurst() int
	GetPageSize() int
}

type Provider struct {
	ClientID    string        `env:"PROVIDER_CLIENT_ID"`
	RedirectURI string        `env:"PROVIDER_REDIRECT_URI"`
	AuthURL     string        `env:"PROVIDER_AUTH_URL" envDefault:"https://accounts.spotify.com/authorize"`
	TokenURL    string        `env:"PROVIDER_TOKEN_URL" envDefault:"https://accounts.spotify.com/api/token"`
	APIBaseURL  string        `env:"PROVIDER_API_BASE_URL" envDefault:"https://api.spotify.com/v1"`
	Timeout     time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"15s"`
	Rate        float64       `env:"PROVIDER_RATE" envDefault:"10"`
	Burst       int           `env:"PROVIDER_BURST" envDefault:"5"`
	PageSize    int           `env:"PAGE_SIZE" envDefault:"20"`
}

var _ ProviderConfig = Provider{}

func (p Provider) GetClientID() string {
	return p.ClientID
}

func (p Provider) GetRedirectURI() string {
	return p.RedirectURI
}

func (p Provider) GetAuthURL() string {
	return p.AuthURL
}

func (p Provider) GetTokenURL() string {
	return p.TokenURL
}

func (p Provider) GetAPIBaseURL() string {
	return p.APIBaseURL
}

func (p Provider) GetProviderTimeout() time.Duration {
	return p.Timeout
}

func (p Provider) GetProviderRate() float64 {
	return p.Rate
}

func (p Provider) GetProviderBurst() int {
	return p.Burst
}

func (p Provider) GetPageSize() int {
	return p.PageSize
}
