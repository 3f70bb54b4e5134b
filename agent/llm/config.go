package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Realty-Call-Agent/agent/contract"
	nimx "github.com/tanpawarit/Chative-Realty-Call-Agent/pkg/nim"
)

const (
	BackendEino = "eino"
	BackendSDK  = "sdk"
)

type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://integrate.api.nvidia.com/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" default:"nvidia/llama-3.1-nemotron-nano-8b-v1"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"1024"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.2"`
	TopP               float32       `envconfig:"TOP_P" split_words:"true" default:"0.7"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
	JSONMode           bool          `envconfig:"JSON_MODE" split_words:"true" default:"true"`
	NoThink            bool          `envconfig:"NO_THINK" split_words:"true" default:"true"`

	RouterModel            string  `envconfig:"ROUTER_MODEL" split_words:"true"`
	SellerModel            string  `envconfig:"SELLER_MODEL" split_words:"true"`
	AcquisitionModel       string  `envconfig:"ACQUISITION_MODEL" split_words:"true"`
	RouterTemperature      float32 `envconfig:"ROUTER_TEMPERATURE" split_words:"true" default:"-1"`
	SellerTemperature      float32 `envconfig:"SELLER_TEMPERATURE" split_words:"true" default:"-1"`
	AcquisitionTemperature float32 `envconfig:"ACQUISITION_TEMPERATURE" split_words:"true" default:"-1"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: llm api key is required", contractx.ErrValidation)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: llm timeout must be >= 0", contractx.ErrValidation)
	}
	return nil
}

// For resolves the endpoint settings of one role, applying its overrides.
func (c Config) For(agentType contractx.AgentType) nimx.Config {
	modelName := strings.TrimSpace(c.Model)
	temp := c.Temperature

	switch agentType {
	case contractx.AgentTypeRouter:
		if v := strings.TrimSpace(c.RouterModel); v != "" {
			modelName = v
		}
		if c.RouterTemperature >= 0 {
			temp = c.RouterTemperature
		}
	case contractx.AgentTypeSeller:
		if v := strings.TrimSpace(c.SellerModel); v != "" {
			modelName = v
		}
		if c.SellerTemperature >= 0 {
			temp = c.SellerTemperature
		}
	case contractx.AgentTypeAcquisition:
		if v := strings.TrimSpace(c.AcquisitionModel); v != "" {
			modelName = v
		}
		if c.AcquisitionTemperature >= 0 {
			temp = c.AcquisitionTemperature
		}
	}

	maxCompletionToken := c.MaxCompletionToken
	return nimx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              modelName,
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        temp,
		TopP:               c.TopP,
		Timeout:            c.Timeout,
		JSONMode:           c.JSONMode,
	}
}
