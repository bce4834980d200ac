// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Log            LogConfig            `mapstructure:"log"`
	Auth           AuthConfig           `mapstructure:"auth"`
	Kafka          KafkaConfig          `mapstructure:"kafka"`
	Tika           TikaConfig           `mapstructure:"tika"`
	Elasticsearch  ElasticsearchConfig  `mapstructure:"elasticsearch"`
	MinIO          MinIOConfig          `mapstructure:"minio"`
	RAGFlow        RAGFlowConfig        `mapstructure:"ragflow"`
	Document       DocumentConfig       `mapstructure:"document"`
	KnowledgeGraph KnowledgeGraphConfig `mapstructure:"knowledge_graph"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port    string `mapstructure:"port"`
	Mode    string `mapstructure:"mode"`
	Version string `mapstructure:"version"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN         string `mapstructure:"dsn"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// AuthConfig 控制 API 访问令牌。
// APIKeys 中保存的是 bcrypt 哈希，键为客户端名称。
type AuthConfig struct {
	Enabled          bool              `mapstructure:"enabled"`
	Secret           string            `mapstructure:"secret"`
	TokenExpireHours int               `mapstructure:"token_expire_hours"`
	APIKeys          map[string]string `mapstructure:"api_keys"`
	AdminClients     []string          `mapstructure:"admin_clients"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	ConsumerEnabled bool   `mapstructure:"consumer_enabled"`
	Brokers         string `mapstructure:"brokers"`
	Topic           string `mapstructure:"topic"`
	GroupID         string `mapstructure:"group_id"`
}

// TikaConfig 存储 Tika 服务器相关的配置。
type TikaConfig struct {
	ServerURL string `mapstructure:"server_url"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// RAGFlowConfig 存储远端 RAGFlow 实例的连接配置。
type RAGFlowConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DocumentConfig 控制文档上传校验与状态轮询。
type DocumentConfig struct {
	MaxUploadSize      int64         `mapstructure:"max_upload_size"`
	AllowedExtensions  []string      `mapstructure:"allowed_extensions"`
	AllowedMimeTypes   []string      `mapstructure:"allowed_mime_types"`
	AutoParse          bool          `mapstructure:"auto_parse"`
	MaxStatusPolls     int           `mapstructure:"max_status_polls"`
	StatusPollInterval time.Duration `mapstructure:"status_poll_interval"`
	RefreshConcurrency int           `mapstructure:"refresh_concurrency"`
}

// KnowledgeGraphConfig 控制知识图谱缓存。
type KnowledgeGraphConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.version", "dev")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("auth.token_expire_hours", 24)
	v.SetDefault("kafka.topic", "ragflow-document-sync")
	v.SetDefault("kafka.group_id", "ragflow-bridge-consumer")
	v.SetDefault("elasticsearch.index_name", "ragflow_chunks")
	v.SetDefault("ragflow.timeout", 60*time.Second)
	v.SetDefault("document.max_upload_size", 100*1024*1024)
	v.SetDefault("document.max_status_polls", 60)
	v.SetDefault("document.status_poll_interval", 5*time.Second)
	v.SetDefault("document.refresh_concurrency", 8)
	v.SetDefault("knowledge_graph.cache_ttl", 5*time.Minute)
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
// 环境变量 RAGFLOW_BRIDGE_<SECTION>_<KEY> 可以覆盖文件中的值。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = *cfg
}

// Load 读取配置文件但不修改全局变量。
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("RAGFLOW_BRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	return &cfg, nil
}
