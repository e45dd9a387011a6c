package service

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/1BDO/MA-Algorithm-Strategy/internal/model"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ExchangeConfig 定义了交易所的连接信息。
// API 凭证不放在 yaml 里，从 .env / 环境变量读取。
type ExchangeConfig struct {
	Name      string
	BaseURL   string // REST 基地址
	WSURL     string // WebSocket 行情地址
	ProductID int    // Delta 的产品 ID (BTC 永续 = 27)
	Paper     bool   // true 时使用模拟执行器，不触碰真实交易所
	APIKey    string `mapstructure:"-"`
	APISecret string `mapstructure:"-"`
}

// TradingConfig 定义了交易对和数据参数
type TradingConfig struct {
	Symbol        string
	Interval      string        // K 线周期，例如 "1d"
	PollInterval  time.Duration // 决策周期的调度间隔
	HistoryBars   int           // 每个周期拉取的 K 线数量
	LotSize       float64       // 每张合约的标的数量
	ShortMAPeriod int
	LongMAPeriod  int
	ATRPeriod     int
}

// RiskConfig 定义了 Kelly 仓位和风控参数。启动时校验，运行期不可变。
type RiskConfig struct {
	Bankroll                     float64 // 策略本金 (USD)
	WinProbability               float64 // Kelly 胜率 p，取值 [0,1]
	RewardRiskRatio              float64 // Kelly 赔率 b，必须 > 0
	KellyFraction                float64 // Kelly 系数，0.5 即半 Kelly
	MaxMarginFraction            float64 // 初始保证金占本金的上限，同时是 f 的上限
	MaxPortfolioDrawdownFraction float64 // 组合止损线：浮亏/本金 达到该比例即强平
	StopMultiplier               float64 // 止损距离 = ATR * StopMultiplier
	EntryBandPct                 float64 // 入场回调带宽（价格偏离长均线的比例）
	HaltAfterPortfolioStop       bool    // 组合止损后是否停止后续开仓直到重启
}

// MetricsConfig Prometheus 指标服务配置
type MetricsConfig struct {
	Enabled    bool
	ListenAddr string
}

type Config struct {
	Exchange ExchangeConfig `mapstructure:"Exchange"`
	Trading  TradingConfig  `mapstructure:"Trading"`
	Risk     RiskConfig     `mapstructure:"Risk"`
	Metrics  MetricsConfig  `mapstructure:"Metrics"`
}

// LoadConfig 读取并解析配置文件，同时从 .env 加载 API 凭证
func LoadConfig(configPath string) *Config {
	// .env 不存在不算错误（纸面交易不需要凭证）
	_ = godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configPath)

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Fatalf("Config file not found: %s", err)
		} else {
			log.Fatalf("Error reading config file: %s", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		log.Fatalf("Unable to decode config into struct: %s", err)
	}

	cfg.Exchange.APIKey = os.Getenv("DELTA_API_KEY")
	cfg.Exchange.APISecret = os.Getenv("DELTA_API_SECRET")

	return &cfg
}

func setDefaults() {
	viper.SetDefault("Exchange.Name", "delta")
	viper.SetDefault("Exchange.Paper", true)
	viper.SetDefault("Trading.Interval", "1d")
	viper.SetDefault("Trading.PollInterval", "15m")
	viper.SetDefault("Trading.HistoryBars", 365)
	viper.SetDefault("Trading.LotSize", 1)
	viper.SetDefault("Trading.ShortMAPeriod", 50)
	viper.SetDefault("Trading.LongMAPeriod", 200)
	viper.SetDefault("Trading.ATRPeriod", 14)
	viper.SetDefault("Risk.KellyFraction", 1.0)
	viper.SetDefault("Risk.StopMultiplier", 2.0)
	viper.SetDefault("Risk.EntryBandPct", 0.05)
	viper.SetDefault("Risk.MaxMarginFraction", 0.75)
	viper.SetDefault("Risk.MaxPortfolioDrawdownFraction", 0.10)
	viper.SetDefault("Risk.HaltAfterPortfolioStop", true)
	viper.SetDefault("Metrics.Enabled", true)
	viper.SetDefault("Metrics.ListenAddr", ":9102")
}

// Validate 在启动时校验配置。风控参数非法属于配置缺陷，直接致命。
func (c *Config) Validate() error {
	r := c.Risk
	if r.WinProbability < 0 || r.WinProbability > 1 {
		return fmt.Errorf("%w: winProbability %.4f not in [0,1]",
			model.ErrInvalidRiskParameters, r.WinProbability)
	}
	if r.RewardRiskRatio <= 0 {
		return fmt.Errorf("%w: rewardRiskRatio %.4f must be > 0",
			model.ErrInvalidRiskParameters, r.RewardRiskRatio)
	}
	if r.Bankroll <= 0 {
		return fmt.Errorf("%w: bankroll %.2f must be > 0",
			model.ErrInvalidRiskParameters, r.Bankroll)
	}
	if r.MaxMarginFraction <= 0 || r.MaxMarginFraction > 1 {
		return fmt.Errorf("%w: maxMarginFraction %.4f not in (0,1]",
			model.ErrInvalidRiskParameters, r.MaxMarginFraction)
	}
	if r.MaxPortfolioDrawdownFraction <= 0 {
		return fmt.Errorf("%w: maxPortfolioDrawdownFraction %.4f must be > 0",
			model.ErrInvalidRiskParameters, r.MaxPortfolioDrawdownFraction)
	}
	if c.Trading.LongMAPeriod <= c.Trading.ShortMAPeriod {
		return fmt.Errorf("%w: longMAPeriod %d must exceed shortMAPeriod %d",
			model.ErrInvalidRiskParameters, c.Trading.LongMAPeriod, c.Trading.ShortMAPeriod)
	}
	if !c.Exchange.Paper && (c.Exchange.APIKey == "" || c.Exchange.APISecret == "") {
		return fmt.Errorf("API credentials not set: please set DELTA_API_KEY and DELTA_API_SECRET in .env")
	}
	return nil
}
