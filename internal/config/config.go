package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration. It is loaded once at
// startup and passed by reference; nothing mutates it afterwards.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	HTTP     HTTPConfig     `yaml:"http" mapstructure:"http"`
	B3       B3Config       `yaml:"b3" mapstructure:"b3"`
	CVM      CVMConfig      `yaml:"cvm" mapstructure:"cvm"`
	Worker   WorkerConfig   `yaml:"worker" mapstructure:"worker"`
	Pacer    PacerConfig    `yaml:"pacer" mapstructure:"pacer"`
	Estimate EstimateConfig `yaml:"estimate" mapstructure:"estimate"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// HTTPConfig configures the fetch client.
type HTTPConfig struct {
	TimeoutSecs   int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	ProbeURL      string   `yaml:"probe_url" mapstructure:"probe_url"`
	UserAgents    []string `yaml:"user_agents" mapstructure:"user_agents"`
	Referers      []string `yaml:"referers" mapstructure:"referers"`
	Languages     []string `yaml:"languages" mapstructure:"languages"`
	InsecureHosts []string `yaml:"insecure_hosts" mapstructure:"insecure_hosts"`
}

// B3Config holds the listed-companies endpoints.
type B3Config struct {
	CompanyInitialURL string `yaml:"company_initial_url" mapstructure:"company_initial_url"`
	CompanyDetailURL  string `yaml:"company_detail_url" mapstructure:"company_detail_url"`
	Language          string `yaml:"language" mapstructure:"language"`
	PageSize          int    `yaml:"page_size" mapstructure:"page_size"`
}

// CVMConfig holds the filing (NSD) and statement endpoints.
type CVMConfig struct {
	NSDURL       string `yaml:"nsd_url" mapstructure:"nsd_url"`
	StatementURL string `yaml:"statement_url" mapstructure:"statement_url"`
	CapitalURL   string `yaml:"capital_url" mapstructure:"capital_url"`
}

// WorkerConfig configures the worker pool and save batching.
type WorkerConfig struct {
	MaxWorkers int `yaml:"max_workers" mapstructure:"max_workers"`
	QueueSize  int `yaml:"queue_size" mapstructure:"queue_size"`
	Threshold  int `yaml:"threshold" mapstructure:"threshold"`
}

// PacerConfig configures the adaptive sleep policy.
type PacerConfig struct {
	WaitSecs    float64 `yaml:"wait_secs" mapstructure:"wait_secs"`
	CPUInterval float64 `yaml:"cpu_interval" mapstructure:"cpu_interval"`
	Multiplier  float64 `yaml:"multiplier" mapstructure:"multiplier"`
}

// EstimateConfig configures NSD range prediction.
type EstimateConfig struct {
	WindowDays   int     `yaml:"window_days" mapstructure:"window_days"`
	SafetyFactor float64 `yaml:"safety_factor" mapstructure:"safety_factor"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("B3")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "b3.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("http.timeout_secs", 5)
	v.SetDefault("http.probe_url", "https://www.google.com")
	v.SetDefault("http.user_agents", defaultUserAgents)
	v.SetDefault("http.referers", defaultReferers)
	v.SetDefault("http.languages", defaultLanguages)
	v.SetDefault("http.insecure_hosts", []string{"bvmf.bmfbovespa.com.br"})
	v.SetDefault("b3.company_initial_url", "https://sistemaswebb3-listados.b3.com.br/listedCompaniesProxy/CompanyCall/GetInitialCompanies/")
	v.SetDefault("b3.company_detail_url", "https://sistemaswebb3-listados.b3.com.br/listedCompaniesProxy/CompanyCall/GetDetail/")
	v.SetDefault("b3.language", "pt-br")
	v.SetDefault("b3.page_size", 120)
	v.SetDefault("cvm.nsd_url", "https://www.rad.cvm.gov.br/ENET/frmGerenciaPaginaFRE.aspx")
	v.SetDefault("cvm.statement_url", "https://www.rad.cvm.gov.br/ENET/frmDemonstracaoFinanceiraITR.aspx")
	v.SetDefault("cvm.capital_url", "https://www.rad.cvm.gov.br/ENET/frmDadosComposicaoCapitalITR.aspx")
	v.SetDefault("worker.max_workers", 1)
	v.SetDefault("worker.queue_size", 100)
	v.SetDefault("worker.threshold", 50)
	v.SetDefault("pacer.wait_secs", 1.0)
	v.SetDefault("pacer.cpu_interval", 0.25)
	v.SetDefault("pacer.multiplier", 1.0)
	v.SetDefault("estimate.window_days", 30)
	v.SetDefault("estimate.safety_factor", 1.5)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:124.0) Gecko/20100101 Firefox/124.0",
}

var defaultReferers = []string{
	"https://www.google.com/",
	"https://www.bing.com/",
	"https://duckduckgo.com/",
	"https://www.b3.com.br/",
}

var defaultLanguages = []string{
	"pt-BR,pt;q=0.9,en-US;q=0.8,en;q=0.7",
	"pt-BR,pt;q=0.9",
	"en-US,en;q=0.9,pt-BR;q=0.8",
}
