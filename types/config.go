// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package types

import (
	"net/url"
	"os"
	"time"

	tml "github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
)

// stuck round policies
const (
	StuckPolicyRetry = "retry"
	StuckPolicyForce = "force"
)

// DefaultProgramID 已部署的 flipsol 合约
const DefaultProgramID = "BTU8kuz95iPH6XqBMp7a4VEsLhdco62s9H81Jt6G4GQL"

// MaxRoundDuration 合约允许的最大轮次时长
const MaxRoundDuration = 86400 * time.Second

// Config flipd 配置
type Config struct {
	Title     string    `toml:"Title"`
	Log       Log       `toml:"log"`
	Chain     Chain     `toml:"chain"`
	Authority Authority `toml:"authority"`
	Engine    Engine    `toml:"engine"`
	Submitter Submitter `toml:"submitter"`
	Broadcast Broadcast `toml:"broadcast"`
	RPC       RPC       `toml:"rpc"`
	Push      Push      `toml:"push"`
	Store     Store     `toml:"store"`
	Metrics   Metrics   `toml:"metrics"`
	Trace     Trace     `toml:"trace"`
}

// Log 日志配置
type Log struct {
	// 日志级别，支持debug(dbug)/info/warn/error(eror)/crit
	Loglevel        string `toml:"loglevel" env:"FLIPD_LOG_LEVEL"`
	LogConsoleLevel string `toml:"logConsoleLevel" env:"FLIPD_LOG_CONSOLE_LEVEL"`
	// 日志文件名，可带目录，所有生成的日志文件都放到此目录下
	LogFile string `toml:"logFile" env:"FLIPD_LOG_FILE"`
	// 单个日志文件的最大值（单位：兆）
	MaxFileSize uint32 `toml:"maxFileSize"`
	// 最多保存的历史日志文件个数
	MaxBackups uint32 `toml:"maxBackups"`
	// 最多保存的历史日志消息（单位：天）
	MaxAge         uint32 `toml:"maxAge"`
	LocalTime      bool   `toml:"localTime"`
	Compress       bool   `toml:"compress"`
	CallerFile     bool   `toml:"callerFile"`
	CallerFunction bool   `toml:"callerFunction"`
}

// Chain ledger rpc
type Chain struct {
	RPCURL    string `toml:"rpcURL" env:"RPC_URL"`
	ProgramID string `toml:"programID" env:"PROGRAM_ID"`
	// RequestsPerSecond 0 表示不限速
	RequestsPerSecond float64 `toml:"requestsPerSecond" env:"FLIPD_RPC_RPS"`
	Burst             int     `toml:"burst"`
}

// Authority 签名私钥, 二选一
type Authority struct {
	PrivateKey string `toml:"privateKey" env:"CRON_AUTHORITY_PRIVATE_KEY"`
	KeyFile    string `toml:"keyFile" env:"FLIPD_AUTHORITY_KEY_FILE"`
}

// Engine orchestrator loop
type Engine struct {
	RoundDuration      time.Duration `toml:"roundDuration" env:"FLIPD_ROUND_DURATION"`
	PollInterval       time.Duration `toml:"pollInterval" env:"FLIPD_POLL_INTERVAL"`
	StuckThreshold     int           `toml:"stuckThreshold" env:"FLIPD_STUCK_THRESHOLD"`
	StuckPolicy        string        `toml:"stuckPolicy" env:"FLIPD_STUCK_POLICY"`
	ResubmitAfter      time.Duration `toml:"resubmitAfter"`
	SubmitTimeout      time.Duration `toml:"submitTimeout"`
	AdvanceEmptyRounds bool          `toml:"advanceEmptyRounds" env:"FLIPD_ADVANCE_EMPTY_ROUNDS"`
	// ClockSyncEvery 每隔多少次 tick 与集群时间校准一次, 0 表示只在启动时校准
	ClockSyncEvery int `toml:"clockSyncEvery"`
}

// Submitter transaction submission
type Submitter struct {
	ConfirmTimeout      time.Duration `toml:"confirmTimeout"`
	ConfirmPollInterval time.Duration `toml:"confirmPollInterval"`
	MaxAttempts         uint64        `toml:"maxAttempts"`
	BackoffBase         time.Duration `toml:"backoffBase"`
	BackoffMax          time.Duration `toml:"backoffMax"`
}

// Broadcast event fan-out
type Broadcast struct {
	Buffer         int `toml:"buffer"`
	MaxSubscribers int `toml:"maxSubscribers"`
}

// RPC http server
type RPC struct {
	BindAddr    string        `toml:"bindAddr" env:"FLIPD_BIND_ADDR"`
	Whitelist   []string      `toml:"whitelist" env:"FLIPD_WHITELIST"`
	UserName    string        `toml:"userName" env:"FLIPD_RPC_USER"`
	UserPasswd  string        `toml:"userPasswd" env:"FLIPD_RPC_PASSWD"`
	CORSOrigins []string      `toml:"corsOrigins" env:"FLIPD_CORS_ORIGINS"`
	Heartbeat   time.Duration `toml:"heartbeat"`
	// MaxFeedPerIP 每个 ip 每秒允许建立的 feed 连接数
	MaxFeedPerIP float64 `toml:"maxFeedPerIP"`
}

// Push webhook subscribers
type Push struct {
	Enable         bool `toml:"enable"`
	MaxSubscribers int  `toml:"maxSubscribers"`
}

// Store leveldb
type Store struct {
	DBPath    string `toml:"dbPath" env:"FLIPD_DB_PATH"`
	Name      string `toml:"name"`
	CacheSize int    `toml:"cacheSize"`
}

// Metrics 度量
type Metrics struct {
	EnableMetrics bool          `toml:"enableMetrics"`
	DataEmitMode  string        `toml:"dataEmitMode"`
	Duration      time.Duration `toml:"duration"`
}

// Trace opentelemetry
type Trace struct {
	Endpoint    string `toml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName string `toml:"serviceName"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Title: "flipd",
		Log: Log{
			Loglevel:        "info",
			LogConsoleLevel: "info",
			MaxFileSize:     300,
			MaxBackups:      100,
			MaxAge:          28,
			LocalTime:       true,
			Compress:        true,
		},
		Chain: Chain{
			ProgramID:         DefaultProgramID,
			RequestsPerSecond: 10,
			Burst:             5,
		},
		Engine: Engine{
			RoundDuration:  60 * time.Second,
			PollInterval:   5 * time.Second,
			StuckThreshold: 12,
			StuckPolicy:    StuckPolicyRetry,
			ResubmitAfter:  45 * time.Second,
			SubmitTimeout:  90 * time.Second,
			ClockSyncEvery: 720,
		},
		Submitter: Submitter{
			ConfirmTimeout:      60 * time.Second,
			ConfirmPollInterval: 2 * time.Second,
			MaxAttempts:         5,
			BackoffBase:         500 * time.Millisecond,
			BackoffMax:          10 * time.Second,
		},
		Broadcast: Broadcast{
			Buffer:         64,
			MaxSubscribers: 1024,
		},
		RPC: RPC{
			BindAddr:     "localhost:8801",
			Whitelist:    []string{"127.0.0.1"},
			Heartbeat:    30 * time.Second,
			MaxFeedPerIP: 5,
		},
		Push: Push{
			Enable:         true,
			MaxSubscribers: 100,
		},
		Store: Store{
			DBPath:    "datadir",
			Name:      "flipd",
			CacheSize: 64,
		},
		Metrics: Metrics{
			DataEmitMode: "log",
			Duration:     time.Minute,
		},
		Trace: Trace{
			ServiceName: "flipd",
		},
	}
}

// LoadConfig 默认值 -> toml 文件 -> 环境变量, 最后校验
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := tml.DecodeFile(path, cfg); err != nil {
				return nil, errors.Wrapf(ErrConfig, "decode %s: %v", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrConfig, "stat %s: %v", path, err)
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrapf(ErrConfig, "parse env: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReadConfig decode toml text, used by tests and embedded defaults
func ReadConfig(text string) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := tml.Decode(text, cfg); err != nil {
		return nil, errors.Wrapf(ErrConfig, "decode: %v", err)
	}
	return cfg, nil
}

// Validate 半配置状态下 engine 不允许启动
func (cfg *Config) Validate() error {
	u, err := url.Parse(cfg.Chain.RPCURL)
	if cfg.Chain.RPCURL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.Wrapf(ErrConfig, "chain.rpcURL %q", cfg.Chain.RPCURL)
	}
	if _, err := solana.PublicKeyFromBase58(cfg.Chain.ProgramID); err != nil {
		return errors.Wrapf(ErrConfig, "chain.programID %q: %v", cfg.Chain.ProgramID, err)
	}
	if cfg.Chain.RequestsPerSecond < 0 {
		return errors.Wrap(ErrConfig, "chain.requestsPerSecond must not be negative")
	}
	if cfg.Authority.PrivateKey == "" && cfg.Authority.KeyFile == "" {
		return errors.Wrap(ErrConfig, "authority key missing")
	}
	e := cfg.Engine
	if e.RoundDuration <= 0 || e.RoundDuration > MaxRoundDuration {
		return errors.Wrapf(ErrConfig, "engine.roundDuration %v", e.RoundDuration)
	}
	if e.PollInterval <= 0 {
		return errors.Wrapf(ErrConfig, "engine.pollInterval %v", e.PollInterval)
	}
	if e.StuckThreshold < 1 {
		return errors.Wrapf(ErrConfig, "engine.stuckThreshold %d", e.StuckThreshold)
	}
	if e.StuckPolicy != StuckPolicyRetry && e.StuckPolicy != StuckPolicyForce {
		return errors.Wrapf(ErrConfig, "engine.stuckPolicy %q", e.StuckPolicy)
	}
	if e.ResubmitAfter <= 0 || e.SubmitTimeout <= 0 {
		return errors.Wrap(ErrConfig, "engine timeouts must be positive")
	}
	s := cfg.Submitter
	if s.ConfirmTimeout <= 0 || s.ConfirmPollInterval <= 0 || s.BackoffBase <= 0 || s.BackoffMax < s.BackoffBase {
		return errors.Wrap(ErrConfig, "submitter timeouts")
	}
	if s.MaxAttempts == 0 {
		return errors.Wrap(ErrConfig, "submitter.maxAttempts must be at least 1")
	}
	if cfg.Broadcast.Buffer <= 0 || cfg.Broadcast.MaxSubscribers <= 0 {
		return errors.Wrap(ErrConfig, "broadcast buffer and maxSubscribers must be positive")
	}
	return nil
}
